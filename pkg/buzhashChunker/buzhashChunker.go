package buzhashChunker

import (
	"fmt"
	"io"

	"github.com/i5heu/ouroboros-ocm/pkg/types"

	chunker "github.com/ipfs/boxo/chunker"
	"github.com/zeebo/blake3"
)

// ChunkData is one content defined chunk. Data is only valid until the next
// chunk is read.
type ChunkData struct {
	Hash       types.Hash // BLAKE3 hash of Data
	Data       []byte     // The actual data chunk
	DataLength uint32     // The length of the data chunk
}

// ChunkStream calls fn for every chunk in order. Only one chunk is held in
// memory at a time. An error returned by fn stops the iteration.
func ChunkStream(reader io.Reader, fn func(ChunkData) error) error {
	bz := chunker.NewBuzhash(reader)

	for {
		chunk, err := bz.NextBytes()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading chunk: %w", err)
		}

		if err := fn(NewChunkData(chunk)); err != nil {
			return err
		}
	}
}

func NewChunkData(data []byte) ChunkData {
	return ChunkData{
		Hash:       types.Hash(blake3.Sum256(data)),
		Data:       data,
		DataLength: uint32(len(data)),
	}
}
