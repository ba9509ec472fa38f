// Package nodestore is a content repository persisted in badger. It
// implements the interfaces of package repository.
package nodestore

import (
	"errors"
	"fmt"

	"github.com/i5heu/ouroboros-ocm/internal/compression"
	"github.com/i5heu/ouroboros-ocm/internal/keyValStore"
	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	workerpool "github.com/i5heu/ouroboros-ocm/pkg/workerPool"
	"github.com/sirupsen/logrus"
)

const (
	nodePrefix = "Node:"

	// RootID is the identifier of the root node of every store.
	RootID = "cafebabe-cafe-babe-cafe-babecafebabe"
)

type Config struct {
	Paths         []string // only the first path is used
	InMemory      bool
	MinimumFreeGB uint
	Compression   compression.Kind
	// Workers bounds the goroutines compressing binary chunks. Zero uses
	// one per CPU.
	Workers int
	Logger  *logrus.Logger
}

// Store is safe for concurrent use. Sessions obtained from it are not.
type Store struct {
	log         *logrus.Logger
	kv          *keyValStore.KeyValStore
	compression compression.Kind
	pool        *workerpool.WorkerPool
}

type Stats struct {
	Nodes  int
	Chunks int
	// Reads and Writes count key value operations since Open.
	Reads  uint64
	Writes uint64
	Disk   keyValStore.DiskUsage
}

func nodeKey(id string) []byte {
	return []byte(nodePrefix + id)
}

func Open(conf Config) (*Store, error) {
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:            conf.Paths,
		InMemory:         conf.InMemory,
		MinimumFreeSpace: int(conf.MinimumFreeGB),
		Logger:           conf.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening key value store: %w", err)
	}

	s := &Store{
		log:         conf.Logger,
		kv:          kv,
		compression: conf.Compression,
		pool:        workerpool.NewWorkerPool(workerpool.Config{WorkerCount: conf.Workers}),
	}

	if err := s.ensureRoot(); err != nil {
		s.pool.Close()
		return nil, errors.Join(err, kv.Close())
	}

	s.log.WithFields(logrus.Fields{
		"inMemory":    conf.InMemory,
		"paths":       conf.Paths,
		"compression": conf.Compression.String(),
		"workers":     s.pool.Workers(),
	}).Info("node store opened")

	return s, nil
}

func (s *Store) ensureRoot() error {
	ok, err := s.kv.Has(nodeKey(RootID))
	if err != nil {
		return fmt.Errorf("error looking up root node: %w", err)
	}
	if ok {
		return nil
	}

	root := newRecord(RootID, "", "", repository.NodeTypeUnstructured)
	root.mixins = []string{repository.MixinReferenceable}
	if err := s.kv.Write(nodeKey(RootID), recordToByte(root)); err != nil {
		return fmt.Errorf("error writing root node: %w", err)
	}
	return nil
}

// Login starts a new session.
func (s *Store) Login() *Session {
	return newSession(s)
}

func (s *Store) loadRecord(id string) (*record, error) {
	data, err := s.kv.Read(nodeKey(id))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return nil, fmt.Errorf("node %s: %w", id, repository.ErrItemNotFound)
	}
	if err != nil {
		return nil, err
	}
	return byteToRecord(data)
}

func (s *Store) commit(sets []*record, deletes []string) error {
	var batch keyValStore.Batch
	for _, r := range sets {
		batch.Set(nodeKey(r.id), recordToByte(r))
	}
	for _, id := range deletes {
		batch.Delete(nodeKey(id))
	}

	if err := s.kv.Commit(batch); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"written": len(sets),
		"removed": len(deletes),
	}).Debug("session saved")
	return nil
}

// GarbageCollection compacts the underlying store. Chunks no longer
// referenced by any node are kept.
func (s *Store) GarbageCollection() error {
	s.log.Info("running garbage collection")
	return s.kv.Clean()
}

// Stats counts the stored nodes, frozen copies included, and chunks.
func (s *Store) Stats() (Stats, error) {
	nodes, err := s.kv.CountPrefix([]byte(nodePrefix))
	if err != nil {
		return Stats{}, err
	}
	chunks, err := s.kv.CountPrefix([]byte(chunkPrefix))
	if err != nil {
		return Stats{}, err
	}
	disk, err := s.kv.DiskUsage()
	if err != nil {
		return Stats{}, err
	}

	reads, writes := s.kv.Counters()
	return Stats{
		Nodes:  nodes,
		Chunks: chunks,
		Reads:  reads,
		Writes: writes,
		Disk:   disk,
	}, nil
}

func (s *Store) Close() error {
	s.log.Info("closing node store")
	s.pool.Close()
	return s.kv.Close()
}
