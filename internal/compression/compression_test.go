package compression

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("ouroboros content repository "), 200)

	for _, k := range []Kind{None, Lzma, Zstd, Lz4} {
		t.Run(k.String(), func(t *testing.T) {
			packed, err := Compress(k, data)
			require.NoError(t, err)
			assert.Equal(t, byte(k), packed[0])

			unpacked, err := Decompress(packed)
			require.NoError(t, err)
			assert.Equal(t, data, unpacked)
		})
	}
}

func TestCompress_Shrinks(t *testing.T) {
	data := bytes.Repeat([]byte{'a'}, 64*1024)

	for _, k := range []Kind{Lzma, Zstd, Lz4} {
		packed, err := Compress(k, data)
		require.NoError(t, err)
		assert.Less(t, len(packed), len(data)/10, k.String())
	}
}

func TestDecompress_Errors(t *testing.T) {
	_, err := Decompress(nil)
	assert.Error(t, err)

	_, err = Decompress([]byte{42, 1, 2})
	assert.Error(t, err)
}

func TestCompress_Concurrent(t *testing.T) {
	data := bytes.Repeat([]byte("shared coder "), 1000)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			packed, err := Compress(Zstd, data)
			if err != nil {
				errs <- err
				return
			}
			unpacked, err := Decompress(packed)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(data, unpacked) {
				errs <- fmt.Errorf("round trip mismatch")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Lzma, k)

	k, err = ParseKind("zstd")
	require.NoError(t, err)
	assert.Equal(t, Zstd, k)

	for _, k := range []Kind{None, Lzma, Zstd, Lz4} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err = ParseKind("brotli")
	assert.Error(t, err)
}
