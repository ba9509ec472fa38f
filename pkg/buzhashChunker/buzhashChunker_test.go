package buzhashChunker

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func collect(t *testing.T, data []byte) []ChunkData {
	t.Helper()
	var chunks []ChunkData
	err := ChunkStream(bytes.NewReader(data), func(c ChunkData) error {
		c.Data = append([]byte(nil), c.Data...)
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	return chunks
}

func TestChunkStream_Small(t *testing.T) {
	input := []byte("Hello World")

	chunks := collect(t, input)
	require.Len(t, chunks, 1)

	assert.Equal(t, input, chunks[0].Data)
	assert.Equal(t, uint32(len(input)), chunks[0].DataLength)
	assert.Equal(t, blake3.Sum256(input), [32]byte(chunks[0].Hash))
}

func TestChunkStream_Empty(t *testing.T) {
	assert.Empty(t, collect(t, nil))
}

func TestChunkStream_Reassembles(t *testing.T) {
	data := make([]byte, 2*1024*1024)
	rand.New(rand.NewSource(7)).Read(data)

	chunks := collect(t, data)
	assert.Greater(t, len(chunks), 1)

	var joined []byte
	for _, c := range chunks {
		assert.Equal(t, NewChunkData(c.Data).Hash, c.Hash)
		joined = append(joined, c.Data...)
	}
	assert.Equal(t, data, joined)
}

func TestChunkStream_StopsOnError(t *testing.T) {
	data := make([]byte, 2*1024*1024)
	rand.New(rand.NewSource(3)).Read(data)

	stop := errors.New("stop")
	calls := 0
	err := ChunkStream(bytes.NewReader(data), func(ChunkData) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
