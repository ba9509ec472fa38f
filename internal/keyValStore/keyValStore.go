package keyValStore

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var ErrKeyNotFound = errors.New("keyValStore: key not found")

type StoreConfig struct {
	Paths            []string // absolute path at the moment only first path is supported
	InMemory         bool     // keep everything in memory, Paths is ignored
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config       StoreConfig
	log          *logrus.Logger
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
}

// Batch collects writes and deletes that are applied in one transaction.
type Batch struct {
	Sets    [][2][]byte
	Deletes [][]byte
}

func (b *Batch) Set(key, value []byte) {
	b.Sets = append(b.Sets, [2][]byte{key, value})
}

func (b *Batch) Delete(key []byte) {
	b.Deletes = append(b.Deletes, key)
}

func (b *Batch) Len() int {
	return len(b.Sets) + len(b.Deletes)
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Paths[0])
		opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	}
	opts.Logger = nil
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger: %w", err)
	}

	k := &KeyValStore{
		config:   config,
		log:      config.Logger,
		badgerDB: db,
	}

	if err := k.logDiskUsage(); err != nil {
		return nil, errors.Join(err, db.Close())
	}

	return k, nil
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	atomic.AddUint64(&k.writeCounter, 1)

	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
	if err != nil {
		return fmt.Errorf("error writing key %s: %w", key, err)
	}
	return nil
}

// Commit applies all sets and deletes of the batch atomically.
func (k *KeyValStore) Commit(batch Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		for _, kv := range batch.Sets {
			atomic.AddUint64(&k.writeCounter, 1)
			if err := txn.Set(kv[0], kv[1]); err != nil {
				return err
			}
		}
		for _, key := range batch.Deletes {
			atomic.AddUint64(&k.writeCounter, 1)
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error committing batch of %d operations: %w", batch.Len(), err)
	}
	return nil
}

const maxConflictRetries = 3

// WriteIfMissing stores the value only when the key does not exist yet. It is
// used for content addressed data, where an existing key already holds the
// same value. A transaction conflict with a concurrent writer of the same key
// is retried.
func (k *KeyValStore) WriteIfMissing(key []byte, content []byte) (bool, error) {
	var (
		written bool
		err     error
	)
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		written = false
		err = k.badgerDB.Update(func(txn *badger.Txn) error {
			atomic.AddUint64(&k.readCounter, 1)
			_, err := txn.Get(key)
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			written = true
			return txn.Set(key, content)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if written && err == nil {
		atomic.AddUint64(&k.writeCounter, 1)
	}
	if err != nil {
		return false, fmt.Errorf("error writing key %s: %w", key, err)
	}
	return written, nil
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	atomic.AddUint64(&k.readCounter, 1)
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("error reading key %s: %w", key, ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading key %s: %w", key, err)
	}
	return value, nil
}

func (k *KeyValStore) Has(key []byte) (bool, error) {
	atomic.AddUint64(&k.readCounter, 1)
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountPrefix returns the number of keys starting with prefix. Values are not
// loaded.
func (k *KeyValStore) CountPrefix(prefix []byte) (int, error) {
	atomic.AddUint64(&k.readCounter, 1)
	count := 0
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error counting keys with prefix %s: %w", prefix, err)
	}
	return count, nil
}

// GetItemsWithPrefix returns every key and value starting with prefix, in key
// order. Each item is a {key, value} pair.
func (k *KeyValStore) GetItemsWithPrefix(prefix []byte) ([][][]byte, error) {
	var keysAndValues [][][]byte
	atomic.AddUint64(&k.readCounter, 1)
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keysAndValues = append(keysAndValues, [][]byte{key, value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading keys with prefix %s: %w", prefix, err)
	}
	return keysAndValues, nil
}

// Counters returns the number of read and write operations since the store
// was opened.
func (k *KeyValStore) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&k.readCounter), atomic.LoadUint64(&k.writeCounter)
}

func (k *KeyValStore) Close() error {
	var cleanErr error
	if !k.config.InMemory {
		cleanErr = k.Clean()
	}
	return errors.Join(cleanErr, k.badgerDB.Close())
}

func (k *KeyValStore) Clean() error {
	if k.config.InMemory {
		return nil
	}

	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = k.badgerDB.Flatten(runtime.NumCPU()) // The parameter is the number of concurrent compactions
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	k.log.Debug("DB Flattened")

	// clean badgerDB
	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}
