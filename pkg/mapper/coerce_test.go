package mapper

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/i5heu/ouroboros-ocm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToValue(t *testing.T) {
	v, err := ToValue(42)
	require.NoError(t, err)
	assert.Equal(t, repository.TypeLong, v.Type())

	v, err = ToValue(2.5)
	require.NoError(t, err)
	assert.Equal(t, repository.TypeDouble, v.Type())

	v, err = ToValue(types.Locale{Language: "de", Country: "CH"})
	require.NoError(t, err)
	s, err := v.String()
	require.NoError(t, err)
	assert.Equal(t, "de_CH", s)

	v, err = ToValue(types.NewTimestamp(time.UnixMilli(1500)))
	require.NoError(t, err)
	assert.Equal(t, repository.TypeDate, v.Type())

	for _, removal := range []any{nil, (*string)(nil), []byte(nil), time.Time{}, types.Locale{}, io.Reader(nil)} {
		v, err = ToValue(removal)
		require.NoError(t, err)
		assert.True(t, v.IsZero(), "%T", removal)
	}

	title := "x"
	v, err = ToValue(&title)
	require.NoError(t, err)
	assert.Equal(t, repository.TypeString, v.Type())

	_, err = ToValue(make(chan int))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = ToValue(struct{}{})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestFromValue_TruncatesDoubles(t *testing.T) {
	v, err := FromValue(reflect.TypeOf(int32(0)), repository.DoubleValue(3.7))
	require.NoError(t, err)
	assert.Equal(t, int32(3), v)

	v, err = FromValue(reflect.TypeOf(0), repository.DoubleValue(-3.7))
	require.NoError(t, err)
	assert.Equal(t, -3, v)

	v, err = FromValue(reflect.TypeOf(int64(0)), repository.LongValue(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestFromValue_IntegerRange(t *testing.T) {
	v, err := FromValue(reflect.TypeOf(0), repository.LongValue(1<<53+1))
	require.NoError(t, err)
	assert.Equal(t, 1<<53+1, v)

	v, err = FromValue(reflect.TypeOf(int64(0)), repository.StringValue("42.9"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = FromValue(reflect.TypeOf(int8(0)), repository.DoubleValue(300))
	assert.ErrorIs(t, err, repository.ErrValueFormat)

	_, err = FromValue(reflect.TypeOf(int16(0)), repository.LongValue(-40000))
	assert.ErrorIs(t, err, repository.ErrValueFormat)

	_, err = FromValue(reflect.TypeOf(int64(0)), repository.DoubleValue(1e300))
	assert.ErrorIs(t, err, repository.ErrValueFormat)

	v, err = FromValue(reflect.TypeOf(int8(0)), repository.LongValue(-128))
	require.NoError(t, err)
	assert.Equal(t, int8(-128), v)
}

func TestFromValue_Locale(t *testing.T) {
	v, err := FromValue(reflect.TypeOf(types.Locale{}), repository.StringValue("en_US"))
	require.NoError(t, err)
	assert.Equal(t, types.Locale{Language: "en", Country: "US"}, v)

	v, err = FromValue(reflect.TypeOf(types.Locale{}), repository.StringValue(""))
	require.NoError(t, err)
	assert.Equal(t, types.Locale{}, v)
}

func TestFromValue_Conversions(t *testing.T) {
	v, err := FromValue(reflect.TypeOf(""), repository.LongValue(12))
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	v, err = FromValue(reflect.TypeOf(false), repository.StringValue("TRUE"))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	when := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	v, err = FromValue(reflect.TypeOf(types.Timestamp(0)), repository.DateValue(when))
	require.NoError(t, err)
	assert.Equal(t, types.NewTimestamp(when), v)

	v, err = FromValue(reflect.TypeOf([]byte(nil)), repository.BytesValue([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)

	_, err = FromValue(reflect.TypeOf(0), repository.StringValue("nope"))
	assert.ErrorIs(t, err, repository.ErrValueFormat)

	_, err = FromValue(reflect.TypeOf(struct{}{}), repository.StringValue("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

type trackingBlob struct {
	data   string
	failAt int
	closed int
}

type trackingReader struct {
	blob *trackingBlob
	r    io.Reader
	read int
}

func (tr *trackingReader) Read(p []byte) (int, error) {
	if tr.blob.failAt > 0 && tr.read >= tr.blob.failAt {
		return 0, errors.New("disk on fire")
	}
	n, err := tr.r.Read(p)
	tr.read += n
	return n, err
}

func (tr *trackingReader) Close() error {
	tr.blob.closed++
	return nil
}

func (b *trackingBlob) Open() (io.ReadCloser, error) {
	return &trackingReader{blob: b, r: strings.NewReader(b.data)}, nil
}

func (b *trackingBlob) Size() int64 { return int64(len(b.data)) }

func TestReadBytes_ClosesStream(t *testing.T) {
	blob := &trackingBlob{data: strings.Repeat("x", 3000)}
	data, err := readBytes(repository.BlobValue(blob))
	require.NoError(t, err)
	assert.Len(t, data, 3000)
	assert.Equal(t, 1, blob.closed)

	failing := &trackingBlob{data: strings.Repeat("x", 3000), failAt: readBufferSize}
	_, err = readBytes(repository.BlobValue(failing))
	assert.Error(t, err)
	assert.Equal(t, 1, failing.closed)
}

func TestSerialize(t *testing.T) {
	in := map[string]string{"b": "2", "a": "1"}
	data, err := serialize(in)
	require.NoError(t, err)

	again, err := serialize(map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, data, again)

	out, err := deserialize(repository.BytesValue(data), reflect.TypeOf(map[string]string(nil)))
	require.NoError(t, err)
	assert.Equal(t, in, out.Interface())

	generic, err := deserialize(repository.BytesValue(data), reflect.TypeOf((*any)(nil)).Elem())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "2"}, generic.Interface())
}
