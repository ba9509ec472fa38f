package keyValStore

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *KeyValStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	kv, err := NewKeyValStore(StoreConfig{InMemory: true, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestWriteAndRead(t *testing.T) {
	kv := newTestStore(t)

	require.NoError(t, kv.Write([]byte("Node:a"), []byte("alpha")))

	value, err := kv.Read([]byte("Node:a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), value)

	_, err = kv.Read([]byte("Node:missing"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestCommit(t *testing.T) {
	kv := newTestStore(t)
	require.NoError(t, kv.Write([]byte("Node:old"), []byte("x")))

	var batch Batch
	batch.Set([]byte("Node:1"), []byte("one"))
	batch.Set([]byte("Node:2"), []byte("two"))
	batch.Delete([]byte("Node:old"))
	require.NoError(t, kv.Commit(batch))

	items, err := kv.GetItemsWithPrefix([]byte("Node:"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []byte("Node:1"), items[0][0])
	assert.Equal(t, []byte("two"), items[1][1])

	ok, err := kv.Has([]byte("Node:old"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteIfMissing(t *testing.T) {
	kv := newTestStore(t)

	written, err := kv.WriteIfMissing([]byte("Chunk:x"), []byte("first"))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = kv.WriteIfMissing([]byte("Chunk:x"), []byte("second"))
	require.NoError(t, err)
	assert.False(t, written)

	value, err := kv.Read([]byte("Chunk:x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), value)
}

func TestWriteIfMissing_Concurrent(t *testing.T) {
	kv := newTestStore(t)

	var (
		wg      sync.WaitGroup
		written atomic.Int32
	)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := kv.WriteIfMissing([]byte("Chunk:shared"), []byte("data"))
			if err != nil {
				errs <- err
				return
			}
			if ok {
				written.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), written.Load())
}

func TestCounters(t *testing.T) {
	kv := newTestStore(t)

	_, writesBefore := kv.Counters()
	require.NoError(t, kv.Write([]byte("k"), []byte("v")))
	_, err := kv.Read([]byte("k"))
	require.NoError(t, err)

	reads, writes := kv.Counters()
	assert.Equal(t, writesBefore+1, writes)
	assert.GreaterOrEqual(t, reads, uint64(1))
}

func TestOnDiskStore(t *testing.T) {
	dir := t.TempDir()

	kv, err := NewKeyValStore(StoreConfig{Paths: []string{dir}})
	require.NoError(t, err)
	require.NoError(t, kv.Write([]byte("k"), []byte("persisted")))
	require.NoError(t, kv.Close())

	kv, err = NewKeyValStore(StoreConfig{Paths: []string{dir}})
	require.NoError(t, err)
	defer kv.Close()

	value, err := kv.Read([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), value)

	usage, err := kv.DiskUsage()
	require.NoError(t, err)
	assert.Equal(t, dir, usage.Path)
	assert.NotZero(t, usage.Total)
	assert.NotZero(t, usage.Store)
}

func TestCountPrefix(t *testing.T) {
	kv := newTestStore(t)

	var batch Batch
	batch.Set([]byte("Node:a"), []byte("1"))
	batch.Set([]byte("Node:b"), []byte("2"))
	batch.Set([]byte("Chunk:a"), []byte("3"))
	require.NoError(t, kv.Commit(batch))

	n, err := kv.CountPrefix([]byte("Node:"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = kv.CountPrefix([]byte("Missing:"))
	require.NoError(t, err)
	assert.Zero(t, n)

	usage, err := kv.DiskUsage()
	require.NoError(t, err)
	assert.Zero(t, usage)
}

func TestCheckConfig(t *testing.T) {
	sc := StoreConfig{}
	assert.Error(t, sc.checkConfig())

	sc = StoreConfig{Paths: []string{"/definitely/not/here"}}
	assert.Error(t, sc.checkConfig())

	sc = StoreConfig{InMemory: true}
	assert.NoError(t, sc.checkConfig())
}

func TestGetItemsWithPrefix(t *testing.T) {
	kv := newTestStore(t)
	require.NoError(t, kv.Write([]byte("Node:b"), []byte("beta")))
	require.NoError(t, kv.Write([]byte("Node:a"), []byte("alpha")))
	require.NoError(t, kv.Write([]byte("Chunk:a"), []byte("data")))

	items, err := kv.GetItemsWithPrefix([]byte("Node:"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, [][]byte{[]byte("Node:a"), []byte("alpha")}, items[0])
	assert.Equal(t, [][]byte{[]byte("Node:b"), []byte("beta")}, items[1])

	items, err = kv.GetItemsWithPrefix([]byte("Missing:"))
	require.NoError(t, err)
	assert.Empty(t, items)
}
