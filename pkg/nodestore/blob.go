package nodestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/i5heu/ouroboros-ocm/internal/compression"
	"github.com/i5heu/ouroboros-ocm/pkg/buzhashChunker"
	"github.com/i5heu/ouroboros-ocm/pkg/types"
	"github.com/sirupsen/logrus"
)

const chunkPrefix = "Chunk:"

func chunkKey(h types.Hash) []byte {
	return []byte(chunkPrefix + h.String())
}

// storedBlob is binary content kept as content addressed chunks.
type storedBlob struct {
	store *Store
	ref   blobRef
}

func (b *storedBlob) Size() int64 {
	return b.ref.size
}

func (b *storedBlob) Open() (io.ReadCloser, error) {
	return &chunkReader{store: b.store, chunks: b.ref.chunks}, nil
}

// chunkReader loads one chunk at a time.
type chunkReader struct {
	store  *Store
	chunks []types.Hash
	buf    *bytes.Reader
	closed bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}
	for r.buf == nil || r.buf.Len() == 0 {
		if len(r.chunks) == 0 {
			return 0, io.EOF
		}
		data, err := r.store.readChunk(r.chunks[0])
		if err != nil {
			return 0, err
		}
		r.chunks = r.chunks[1:]
		r.buf = bytes.NewReader(data)
	}
	return r.buf.Read(p)
}

func (r *chunkReader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}

func (s *Store) readChunk(h types.Hash) ([]byte, error) {
	raw, err := s.kv.Read(chunkKey(h))
	if err != nil {
		return nil, fmt.Errorf("error reading chunk %s: %w", h, err)
	}
	data, err := compression.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("error decompressing chunk %s: %w", h, err)
	}
	return data, nil
}

// writeBlob stores the content of r as chunks. Chunks are compressed and
// written concurrently and shared between all values with the same content.
func (s *Store) writeBlob(r io.Reader) (*blobRef, error) {
	ref := &blobRef{}
	var newChunks atomic.Int64
	queued := map[types.Hash]bool{}

	room := s.pool.CreateRoom()
	streamErr := buzhashChunker.ChunkStream(r, func(c buzhashChunker.ChunkData) error {
		ref.chunks = append(ref.chunks, c.Hash)
		ref.size += int64(c.DataLength)
		if queued[c.Hash] {
			return nil
		}
		queued[c.Hash] = true

		// the chunker may reuse its buffer for the next chunk
		data := append([]byte(nil), c.Data...)
		room.NewTaskWaitForFreeSlot(func() error {
			compressed, err := compression.Compress(s.compression, data)
			if err != nil {
				return err
			}
			written, err := s.kv.WriteIfMissing(chunkKey(c.Hash), compressed)
			if err != nil {
				return err
			}
			if written {
				newChunks.Add(1)
			}
			return nil
		})
		return nil
	})
	if err := errors.Join(streamErr, room.Wait()); err != nil {
		return nil, fmt.Errorf("error storing binary: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"size":      ref.size,
		"chunks":    len(ref.chunks),
		"newChunks": newChunks.Load(),
	}).Debug("binary stored")

	return ref, nil
}
