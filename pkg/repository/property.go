package repository

import "fmt"

// Property is a snapshot of a named property. Single valued properties hold
// exactly one value.
type Property struct {
	name     string
	typ      PropertyType
	multiple bool
	values   []Value
}

func NewProperty(name string, value Value) Property {
	return Property{name: name, typ: value.Type(), values: []Value{value}}
}

// NewMultiProperty builds a multi valued property. The type of an empty
// property is taken from typ.
func NewMultiProperty(name string, typ PropertyType, values []Value) Property {
	if len(values) > 0 {
		typ = values[0].Type()
	}
	return Property{name: name, typ: typ, multiple: true, values: values}
}

func (p Property) Name() string       { return p.name }
func (p Property) Type() PropertyType { return p.typ }
func (p Property) IsMultiple() bool   { return p.multiple }

func (p Property) Value() (Value, error) {
	if p.multiple {
		return Value{}, fmt.Errorf("%w: property %s is multi-valued", ErrValueFormat, p.name)
	}
	return p.values[0], nil
}

func (p Property) Values() ([]Value, error) {
	if !p.multiple {
		return nil, fmt.Errorf("%w: property %s is single-valued", ErrValueFormat, p.name)
	}
	out := make([]Value, len(p.values))
	copy(out, p.values)
	return out, nil
}
