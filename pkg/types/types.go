// Package types holds small value types shared by the mapper and the store.
package types

import (
	"encoding/hex"
	"fmt"
)

// Hash is the content address of a stored binary chunk.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h *Hash) HashFromBytes(b []byte) error {
	if len(b) != len(h) {
		return fmt.Errorf("invalid byte length for Hash: %d", len(b))
	}
	copy(h[:], b)
	return nil
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}
