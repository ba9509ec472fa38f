package repository

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

type PropertyType uint8

const (
	TypeUndefined PropertyType = iota
	TypeString
	TypeBinary
	TypeLong
	TypeDouble
	TypeDate
	TypeBoolean
	TypeReference
)

func (t PropertyType) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeBinary:
		return "Binary"
	case TypeLong:
		return "Long"
	case TypeDouble:
		return "Double"
	case TypeDate:
		return "Date"
	case TypeBoolean:
		return "Boolean"
	case TypeReference:
		return "Reference"
	}
	return "undefined"
}

// Blob is binary content that can be read more than once.
type Blob interface {
	Open() (io.ReadCloser, error)
	Size() int64
}

// Value is a single typed property value. The zero Value is undefined.
type Value struct {
	typ    PropertyType
	str    string
	long   int64
	double float64
	boolV  bool
	date   time.Time
	blob   Blob
	reader io.Reader
}

func StringValue(s string) Value     { return Value{typ: TypeString, str: s} }
func LongValue(i int64) Value        { return Value{typ: TypeLong, long: i} }
func DoubleValue(f float64) Value    { return Value{typ: TypeDouble, double: f} }
func BooleanValue(b bool) Value      { return Value{typ: TypeBoolean, boolV: b} }
func DateValue(t time.Time) Value    { return Value{typ: TypeDate, date: t} }
func ReferenceValue(id string) Value { return Value{typ: TypeReference, str: id} }
func BlobValue(b Blob) Value         { return Value{typ: TypeBinary, blob: b} }
func BytesValue(data []byte) Value   { return BlobValue(bytesBlob(data)) }
func BinaryValue(r io.Reader) Value  { return Value{typ: TypeBinary, reader: r} }

func (v Value) Type() PropertyType { return v.typ }
func (v Value) IsZero() bool       { return v.typ == TypeUndefined }
func (v Value) Blob() Blob         { return v.blob }
func (v Value) Reader() io.Reader  { return v.reader }

func (v Value) String() (string, error) {
	switch v.typ {
	case TypeString, TypeReference:
		return v.str, nil
	case TypeLong:
		return strconv.FormatInt(v.long, 10), nil
	case TypeDouble:
		return strconv.FormatFloat(v.double, 'g', -1, 64), nil
	case TypeBoolean:
		return strconv.FormatBool(v.boolV), nil
	case TypeDate:
		return v.date.Format(time.RFC3339Nano), nil
	case TypeBinary:
		rc, err := v.Stream()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%w: undefined value", ErrValueFormat)
}

func (v Value) Long() (int64, error) {
	switch v.typ {
	case TypeLong:
		return v.long, nil
	case TypeDouble:
		return int64(v.double), nil
	case TypeDate:
		return v.date.UnixMilli(), nil
	case TypeString, TypeBinary:
		s, err := v.String()
		if err != nil {
			return 0, err
		}
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a long", ErrValueFormat, s)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: %s cannot be converted to Long", ErrValueFormat, v.typ)
}

func (v Value) Double() (float64, error) {
	switch v.typ {
	case TypeDouble:
		return v.double, nil
	case TypeLong:
		return float64(v.long), nil
	case TypeDate:
		return float64(v.date.UnixMilli()), nil
	case TypeString, TypeBinary:
		s, err := v.String()
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a double", ErrValueFormat, s)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %s cannot be converted to Double", ErrValueFormat, v.typ)
}

// Boolean follows the lenient string rule: only "true", in any case, is true.
func (v Value) Boolean() (bool, error) {
	switch v.typ {
	case TypeBoolean:
		return v.boolV, nil
	case TypeString, TypeBinary:
		s, err := v.String()
		if err != nil {
			return false, err
		}
		return strings.EqualFold(s, "true"), nil
	}
	return false, fmt.Errorf("%w: %s cannot be converted to Boolean", ErrValueFormat, v.typ)
}

func (v Value) Date() (time.Time, error) {
	switch v.typ {
	case TypeDate:
		return v.date, nil
	case TypeLong:
		return time.UnixMilli(v.long), nil
	case TypeDouble:
		return time.UnixMilli(int64(v.double)), nil
	case TypeString, TypeBinary:
		s, err := v.String()
		if err != nil {
			return time.Time{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrValueFormat, s)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s cannot be converted to Date", ErrValueFormat, v.typ)
}

// Stream opens the binary content. Non binary values are streamed in their
// string form. A value built from a plain reader can be streamed once.
func (v Value) Stream() (io.ReadCloser, error) {
	if v.typ != TypeBinary {
		s, err := v.String()
		if err != nil {
			return nil, err
		}
		return io.NopCloser(strings.NewReader(s)), nil
	}
	if v.blob != nil {
		return v.blob.Open()
	}
	if v.reader == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if rc, ok := v.reader.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(v.reader), nil
}

type bytesBlob []byte

func (b bytesBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (b bytesBlob) Size() int64 {
	return int64(len(b))
}
