package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoom_Wait(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 4, GlobalBuffer: 2})
	defer wp.Close()

	var sum atomic.Int64
	room := wp.CreateRoom()
	for i := 1; i <= 100; i++ {
		n := int64(i)
		room.NewTaskWaitForFreeSlot(func() error {
			sum.Add(n)
			return nil
		})
	}
	require.NoError(t, room.Wait())
	assert.Equal(t, int64(5050), sum.Load())
}

func TestRoom_Errors(t *testing.T) {
	wp := NewWorkerPool(Config{})
	defer wp.Close()
	assert.GreaterOrEqual(t, wp.Workers(), 1)

	errBoom := errors.New("boom")
	room := wp.CreateRoom()
	other := wp.CreateRoom()
	for i := 0; i < 10; i++ {
		fail := i%3 == 0
		room.NewTaskWaitForFreeSlot(func() error {
			if fail {
				return errBoom
			}
			return nil
		})
		other.NewTaskWaitForFreeSlot(func() error { return nil })
	}

	err := room.Wait()
	assert.ErrorIs(t, err, errBoom)
	assert.NoError(t, other.Wait())
}

func TestClose_Idempotent(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 1})
	room := wp.CreateRoom()
	room.NewTaskWaitForFreeSlot(func() error { return nil })
	require.NoError(t, room.Wait())
	wp.Close()
	wp.Close()
}
