// Package workerpool runs tasks on a fixed set of goroutines. Tasks are
// grouped in rooms so that a caller can wait for its own tasks only.
package workerpool

import (
	"errors"
	"runtime"
	"sync"
)

type WorkerPool struct {
	config    Config
	taskQueue chan Task
	closeOnce sync.Once
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

// Room collects the errors of the tasks submitted through it.
type Room struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
	wp   *WorkerPool
}

type Task struct {
	run  func() error
	room *Room
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU()
	}

	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = config.WorkerCount * 2
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan Task, config.GlobalBuffer),
	}

	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	for t := range wp.taskQueue {
		if err := t.run(); err != nil {
			t.room.mu.Lock()
			t.room.errs = append(t.room.errs, err)
			t.room.mu.Unlock()
		}
		t.room.wg.Done()
	}
}

func (wp *WorkerPool) Workers() int {
	return wp.config.WorkerCount
}

func (wp *WorkerPool) CreateRoom() *Room {
	return &Room{wp: wp}
}

// NewTaskWaitForFreeSlot queues job and blocks while the global buffer is
// full.
func (ro *Room) NewTaskWaitForFreeSlot(job func() error) {
	ro.wg.Add(1)
	ro.wp.taskQueue <- Task{run: job, room: ro}
}

// Wait blocks until every task of the room has finished and returns their
// errors joined.
func (ro *Room) Wait() error {
	ro.wg.Wait()

	ro.mu.Lock()
	defer ro.mu.Unlock()
	return errors.Join(ro.errs...)
}

// Close stops the workers once the queued tasks are done. No task may be
// submitted afterwards.
func (wp *WorkerPool) Close() {
	wp.closeOnce.Do(func() {
		close(wp.taskQueue)
	})
}
