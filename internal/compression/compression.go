// Package compression holds the codecs used for stored binary chunks.
package compression

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// Kind identifies a chunk codec. The value is persisted as the first byte of
// every stored chunk, so existing values must never change.
type Kind uint8

const (
	None Kind = 0
	Lzma Kind = 1
	Zstd Kind = 2
	Lz4  Kind = 3
)

// The zstd coders are safe for concurrent use and shared by all calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compression: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compression: zstd decoder initialization failed: " + err.Error())
	}
}

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Lzma:
		return "lzma"
	case Zstd:
		return "zstd"
	case Lz4:
		return "lz4"
	}
	return fmt.Sprintf("unknown(%d)", k)
}

// ParseKind accepts the names produced by Kind.String. An empty name selects lzma.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "none":
		return None, nil
	case "", "lzma":
		return Lzma, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return Lz4, nil
	}
	return None, fmt.Errorf("unknown compression: %q", name)
}

// Compress encodes data with the codec k and prefixes the codec tag.
func Compress(k Kind, data []byte) ([]byte, error) {
	var body []byte
	var err error

	switch k {
	case None:
		body = data
	case Lzma:
		body, err = compressWithLzma(data)
	case Zstd:
		body = zstdEncoder.EncodeAll(data, nil)
	case Lz4:
		body, err = compressWithLz4(data)
	default:
		return nil, fmt.Errorf("compress: unknown codec %d", k)
	}
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", k, err)
	}

	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(k))
	return append(out, body...), nil
}

// Decompress reverses Compress. The codec is taken from the tag byte, so
// chunks written with a different configuration stay readable.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decompress: empty input")
	}

	k := Kind(data[0])
	body := data[1:]

	var out []byte
	var err error
	switch k {
	case None:
		out = append([]byte(nil), body...)
	case Lzma:
		out, err = decompressWithLzma(body)
	case Zstd:
		out, err = zstdDecoder.DecodeAll(body, nil)
	case Lz4:
		out, err = decompressWithLz4(body)
	default:
		return nil, fmt.Errorf("decompress: unknown codec %d", k)
	}
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", k, err)
	}
	return out, nil
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(data)
	if err != nil {
		return nil, err
	}

	err = w.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func compressWithLz4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWithLz4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(lz4.NewReader(bytes.NewReader(data))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
