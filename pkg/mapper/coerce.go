package mapper

import (
	"fmt"
	"io"
	"math"
	"reflect"
	"time"

	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/i5heu/ouroboros-ocm/pkg/types"
)

// ToValue converts a scalar into a repository value. A nil pointer, nil
// slice, zero time or zero locale yields the zero Value, which removes the
// property it is written to.
func ToValue(v any) (repository.Value, error) {
	if v == nil {
		return repository.Value{}, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && scalarKindOf(rv.Type()) == kindInvalid {
		if rv.IsNil() {
			return repository.Value{}, nil
		}
		rv = rv.Elem()
	}
	k := scalarKindOf(rv.Type())
	if k == kindInvalid {
		return repository.Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	return toValue(rv, k)
}

// FromValue converts a repository value into a scalar of type t.
func FromValue(t reflect.Type, v repository.Value) (any, error) {
	k := scalarKindOf(t)
	if k == kindInvalid {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	rv, err := fromValue(v, t, k)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

func toValue(rv reflect.Value, k scalarKind) (repository.Value, error) {
	switch k {
	case kindString:
		return repository.StringValue(rv.String()), nil
	case kindTime:
		t := rv.Interface().(time.Time)
		if t.IsZero() {
			return repository.Value{}, nil
		}
		return repository.DateValue(t), nil
	case kindTimestamp:
		return repository.DateValue(types.Timestamp(rv.Int()).Time()), nil
	case kindReader:
		if rv.IsNil() {
			return repository.Value{}, nil
		}
		return repository.BinaryValue(rv.Interface().(io.Reader)), nil
	case kindBytes:
		if rv.IsNil() {
			return repository.Value{}, nil
		}
		return repository.BytesValue(append([]byte(nil), rv.Bytes()...)), nil
	case kindInt:
		return repository.LongValue(rv.Int()), nil
	case kindFloat:
		return repository.DoubleValue(rv.Float()), nil
	case kindBool:
		return repository.BooleanValue(rv.Bool()), nil
	case kindLocale:
		l := rv.Interface().(types.Locale)
		if l.IsZero() {
			return repository.Value{}, nil
		}
		return repository.StringValue(l.String()), nil
	}
	return repository.Value{}, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
}

// fromValue converts v into a value of type t. Doubles read into integer
// kinds are truncated; values out of the target's range are rejected.
func fromValue(v repository.Value, t reflect.Type, k scalarKind) (reflect.Value, error) {
	out := reflect.New(t).Elem()

	switch k {
	case kindString:
		s, err := v.String()
		if err != nil {
			return out, err
		}
		out.SetString(s)
	case kindTime:
		d, err := v.Date()
		if err != nil {
			return out, err
		}
		out.Set(reflect.ValueOf(d))
	case kindTimestamp:
		d, err := v.Date()
		if err != nil {
			return out, err
		}
		out.SetInt(int64(types.NewTimestamp(d)))
	case kindReader:
		rc, err := v.Stream()
		if err != nil {
			return out, err
		}
		out.Set(reflect.ValueOf(rc))
	case kindBytes:
		data, err := readBytes(v)
		if err != nil {
			return out, err
		}
		out.SetBytes(data)
	case kindInt:
		i, err := longOf(v)
		if err != nil {
			return out, err
		}
		if out.OverflowInt(i) {
			return out, fmt.Errorf("%w: %d overflows %s", repository.ErrValueFormat, i, t)
		}
		out.SetInt(i)
	case kindFloat:
		f, err := v.Double()
		if err != nil {
			return out, err
		}
		out.SetFloat(f)
	case kindBool:
		b, err := v.Boolean()
		if err != nil {
			return out, err
		}
		out.SetBool(b)
	case kindLocale:
		s, err := v.String()
		if err != nil {
			return out, err
		}
		if l, ok := types.ParseLocale(s); ok {
			out.Set(reflect.ValueOf(l))
		}
	default:
		return out, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	return out, nil
}

// writeProperty stores the property or serialized field value fv on n.
func writeProperty(n repository.Node, f *fieldSchema, fv reflect.Value) error {
	if f.role == roleSerialized {
		return writeSerialized(n, f, fv)
	}

	switch f.shape {
	case shapeList, shapeArray:
		if f.shape == shapeList && fv.IsNil() {
			return n.SetProperty(f.name, repository.Value{})
		}
		values := make([]repository.Value, 0, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			v, err := toValue(fv.Index(i), f.kind)
			if err != nil {
				return fmt.Errorf("property %s: %w", f.name, err)
			}
			if !v.IsZero() {
				values = append(values, v)
			}
		}
		return n.SetMultiProperty(f.name, values)
	}

	if f.nullable {
		if fv.IsNil() {
			return n.SetProperty(f.name, repository.Value{})
		}
		fv = fv.Elem()
	}
	v, err := toValue(fv, f.kind)
	if err != nil {
		return fmt.Errorf("property %s: %w", f.name, err)
	}
	return n.SetProperty(f.name, v)
}

func writeSerialized(n repository.Node, f *fieldSchema, fv reflect.Value) error {
	switch fv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if fv.IsNil() {
			return n.SetProperty(f.name, repository.Value{})
		}
	}
	data, err := serialize(fv.Interface())
	if err != nil {
		return fmt.Errorf("property %s: %w", f.name, err)
	}
	return n.SetProperty(f.name, repository.BytesValue(data))
}

// readProperty sets fv from the stored property. A missing property leaves
// fv untouched. A multi-value property read into a scalar yields its first
// value, a single value read into a list yields a list of one.
func readProperty(n repository.Node, f *fieldSchema, fv reflect.Value) error {
	if !n.HasProperty(f.name) {
		return nil
	}
	p, err := n.Property(f.name)
	if err != nil {
		return err
	}

	var values []repository.Value
	if p.IsMultiple() {
		values, err = p.Values()
	} else {
		var v repository.Value
		v, err = p.Value()
		values = []repository.Value{v}
	}
	if err != nil {
		return err
	}

	if f.role == roleSerialized {
		if len(values) == 0 {
			return nil
		}
		out, err := deserialize(values[0], f.typ)
		if err != nil {
			return fmt.Errorf("property %s: %w", f.name, err)
		}
		fv.Set(out)
		return nil
	}

	switch f.shape {
	case shapeList:
		list := reflect.MakeSlice(f.typ, 0, len(values))
		for _, v := range values {
			e, err := fromValue(v, f.elem, f.kind)
			if err != nil {
				return fmt.Errorf("property %s: %w", f.name, err)
			}
			list = reflect.Append(list, e)
		}
		fv.Set(list)
		return nil

	case shapeArray:
		arr := reflect.New(f.typ).Elem()
		for i := 0; i < len(values) && i < arr.Len(); i++ {
			e, err := fromValue(values[i], f.elem, f.kind)
			if err != nil {
				return fmt.Errorf("property %s: %w", f.name, err)
			}
			arr.Index(i).Set(e)
		}
		fv.Set(arr)
		return nil
	}

	if len(values) == 0 {
		return nil
	}
	v, err := fromValue(values[0], f.elem, f.kind)
	if err != nil {
		return fmt.Errorf("property %s: %w", f.name, err)
	}
	if f.nullable {
		ptr := reflect.New(f.elem)
		ptr.Elem().Set(v)
		v = ptr
	}
	fv.Set(v)
	return nil
}

// longOf reads v as an integer. Doubles, stored or written as decimal
// strings, are truncated toward zero.
func longOf(v repository.Value) (int64, error) {
	if v.Type() != repository.TypeDouble {
		i, err := v.Long()
		if err == nil || (v.Type() != repository.TypeString && v.Type() != repository.TypeBinary) {
			return i, err
		}
	}
	f, err := v.Double()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%w: %g overflows int64", repository.ErrValueFormat, f)
	}
	return int64(f), nil
}
