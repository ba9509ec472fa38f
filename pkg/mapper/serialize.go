package mapper

import (
	"bytes"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/i5heu/ouroboros-ocm/pkg/repository"
)

const readBufferSize = 1024

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("mapper: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("mapper: CBOR decoder initialization failed: " + err.Error())
	}
}

func serialize(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error serializing %T: %w", v, err)
	}
	return data, nil
}

func deserialize(value repository.Value, t reflect.Type) (reflect.Value, error) {
	data, err := readBytes(value)
	if err != nil {
		return reflect.Value{}, err
	}

	out := reflect.New(t)
	if err := decMode.Unmarshal(data, out.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("error deserializing %s: %w", t, err)
	}
	return out.Elem(), nil
}

// readBytes drains the stream of value through a fixed size buffer. The
// stream is closed on every path.
func readBytes(value repository.Value) ([]byte, error) {
	rc, err := value.Stream()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var out bytes.Buffer
	buf := make([]byte, readBufferSize)
	for {
		n, err := rc.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			return out.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("error reading binary: %w", err)
		}
	}
}
