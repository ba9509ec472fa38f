package mapper

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/i5heu/ouroboros-ocm/pkg/types"
)

const tagName = "ocm"

type role int

const (
	roleNone role = iota
	roleName
	rolePath
	roleID
	roleProperty
	roleSerialized
	roleChild
	roleReference
	roleFile
	roleParent
	roleVersionName
	roleVersionCreated
	roleBaseVersionName
	roleBaseVersionCreated
	roleCheckedOut
	roleCreated
)

var roleNames = map[string]role{
	"name":               roleName,
	"path":               rolePath,
	"id":                 roleID,
	"property":           roleProperty,
	"serialized":         roleSerialized,
	"child":              roleChild,
	"reference":          roleReference,
	"file":               roleFile,
	"parent":             roleParent,
	"versionName":        roleVersionName,
	"versionCreated":     roleVersionCreated,
	"baseVersionName":    roleBaseVersionName,
	"baseVersionCreated": roleBaseVersionCreated,
	"checkedOut":         roleCheckedOut,
	"created":            roleCreated,
}

// shape is the physical representation of a field.
type shape int

const (
	shapeScalar shape = iota
	shapeList
	shapeArray
	shapeMap
)

// LoadMode selects how the payload of a file field is hydrated.
type LoadMode int

const (
	LoadStream LoadMode = iota
	LoadBytes
	LoadNone
)

// scalarKind classifies the repository compatible scalar types.
type scalarKind int

const (
	kindInvalid scalarKind = iota
	kindString
	kindTime
	kindTimestamp
	kindReader
	kindBytes
	kindInt // every signed integer kind: stored as Long, doubles truncated on read
	kindFloat
	kindBool
	kindLocale
)

var (
	timeType       = reflect.TypeOf(time.Time{})
	timestampType  = reflect.TypeOf(types.Timestamp(0))
	localeType     = reflect.TypeOf(types.Locale{})
	readerType     = reflect.TypeOf((*io.Reader)(nil)).Elem()
	readCloserType = reflect.TypeOf((*io.ReadCloser)(nil)).Elem()
	bytesType      = reflect.TypeOf([]byte(nil))
)

func scalarKindOf(t reflect.Type) scalarKind {
	switch t {
	case timeType:
		return kindTime
	case timestampType:
		return kindTimestamp
	case localeType:
		return kindLocale
	case readerType, readCloserType:
		return kindReader
	case bytesType:
		return kindBytes
	}

	switch t.Kind() {
	case reflect.String:
		return kindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return kindInt
	case reflect.Float32, reflect.Float64:
		return kindFloat
	case reflect.Bool:
		return kindBool
	}
	return kindInvalid
}

// fieldSchema describes one role tagged struct field.
type fieldSchema struct {
	goName string
	name   string // storage name
	index  []int
	typ    reflect.Type
	role   role
	shape  shape

	// elem is the scalar type for properties, the element type for lists,
	// arrays and child/reference/file collections, and the value type of maps.
	elem     reflect.Type
	kind     scalarKind
	nullable bool // pointer to a scalar

	containerType string
	lazy          bool
	load          LoadMode
}

// typeSchema is the mapping descriptor of one registered struct type.
type typeSchema struct {
	typ               reflect.Type
	nodeType          string
	mixins            []string
	classNameProperty string // empty when stamping is disabled
	discriminator     string
	isFile            bool

	fields    []*fieldSchema
	nameField *fieldSchema
	pathField *fieldSchema
	idField   *fieldSchema
}

type tagOptions struct {
	role          role
	name          string
	containerType string
	lazy          bool
	load          LoadMode
}

func parseTag(tag string) (tagOptions, error) {
	parts := strings.Split(tag, ",")
	opts := tagOptions{}

	r, ok := roleNames[strings.TrimSpace(parts[0])]
	if !ok {
		return opts, fmt.Errorf("%w: unknown role %q", ErrInvalidTag, parts[0])
	}
	opts.role = r

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		key, value, hasValue := strings.Cut(part, "=")
		switch {
		case key == "name" && hasValue && value != "":
			opts.name = value
		case key == "containerType" && hasValue && value != "":
			opts.containerType = value
		case key == "lazy" && !hasValue:
			opts.lazy = true
		case key == "load" && hasValue:
			switch value {
			case "stream":
				opts.load = LoadStream
			case "bytes":
				opts.load = LoadBytes
			case "none":
				opts.load = LoadNone
			default:
				return opts, fmt.Errorf("%w: unknown load mode %q", ErrInvalidTag, value)
			}
		default:
			return opts, fmt.Errorf("%w: unknown option %q", ErrInvalidTag, part)
		}
	}
	return opts, nil
}

// collectFields returns the tagged fields of t, own fields first, then the
// fields of embedded structs in declaration order.
func collectFields(t reflect.Type, index []int) ([]*fieldSchema, error) {
	var own, embedded []*fieldSchema

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		idx := append(append([]int(nil), index...), i)
		tag, tagged := sf.Tag.Lookup(tagName)

		if sf.Anonymous && !tagged && sf.Type.Kind() == reflect.Struct {
			fields, err := collectFields(sf.Type, idx)
			if err != nil {
				return nil, err
			}
			embedded = append(embedded, fields...)
			continue
		}

		if !tagged {
			// untagged Path string is filled with the node path
			if sf.Name == "Path" && sf.IsExported() && sf.Type.Kind() == reflect.String {
				own = append(own, &fieldSchema{
					goName: sf.Name,
					name:   sf.Name,
					index:  idx,
					typ:    sf.Type,
					role:   rolePath,
					elem:   sf.Type,
				})
			}
			continue
		}
		if tag == "-" {
			continue
		}
		if !sf.IsExported() {
			return nil, fmt.Errorf("%w: field %s.%s is not exported", ErrInvalidTag, t.Name(), sf.Name)
		}

		opts, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name(), sf.Name, err)
		}

		f := &fieldSchema{
			goName:        sf.Name,
			name:          sf.Name,
			index:         idx,
			typ:           sf.Type,
			role:          opts.role,
			containerType: opts.containerType,
			lazy:          opts.lazy,
			load:          opts.load,
		}
		if opts.name != "" {
			f.name = opts.name
		}
		if err := classify(f); err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name(), sf.Name, err)
		}
		own = append(own, f)
	}

	return append(own, embedded...), nil
}

// classify resolves shape and element type of a field and checks that its
// Go type fits the role.
func classify(f *fieldSchema) error {
	t := f.typ
	f.elem = t

	switch f.role {
	case roleName, rolePath, roleID, roleVersionName, roleBaseVersionName:
		if t.Kind() != reflect.String {
			return fmt.Errorf("%w: %s must be a string", ErrUnsupportedType, t)
		}

	case roleCheckedOut:
		if t.Kind() != reflect.Bool {
			return fmt.Errorf("%w: %s must be a bool", ErrUnsupportedType, t)
		}

	case roleVersionCreated, roleBaseVersionCreated, roleCreated:
		return classifyScalar(f, kindTime, kindTimestamp)

	case roleProperty:
		return classifyProperty(f)

	case roleSerialized:
		f.shape = shapeScalar

	case roleParent:
		if t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface {
			return fmt.Errorf("%w: parent field %s must be a pointer or interface", ErrUnsupportedType, t)
		}

	case roleChild:
		return classifyChild(f)

	case roleReference:
		return classifyEntityField(f, false)

	case roleFile:
		if err := classifyEntityField(f, true); err != nil {
			return err
		}
		if !isFileType(f.elem) {
			return fmt.Errorf("%w: file field %s does not embed mapper.File", ErrUnsupportedType, t)
		}
	}
	return nil
}

func classifyScalar(f *fieldSchema, allowed ...scalarKind) error {
	t := f.typ
	if t.Kind() == reflect.Pointer && scalarKindOf(t) == kindInvalid {
		t = t.Elem()
		f.nullable = true
	}
	k := scalarKindOf(t)
	for _, a := range allowed {
		if k == a {
			f.elem = t
			f.kind = k
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedType, f.typ)
}

func classifyProperty(f *fieldSchema) error {
	t := f.typ
	if k := scalarKindOf(t); k != kindInvalid {
		f.shape, f.kind = shapeScalar, k
		return nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		e := t.Elem()
		k := scalarKindOf(e)
		if k == kindInvalid || k == kindReader || k == kindBytes {
			return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
		}
		f.shape, f.kind, f.elem, f.nullable = shapeScalar, k, e, true
		return nil

	case reflect.Slice, reflect.Array:
		e := t.Elem()
		k := scalarKindOf(e)
		if k == kindInvalid || k == kindReader {
			return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
		}
		f.shape, f.kind, f.elem = shapeList, k, e
		if t.Kind() == reflect.Array {
			f.shape = shapeArray
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

func classifyChild(f *fieldSchema) error {
	t := f.typ
	switch t.Kind() {
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map keys of %s must be strings", ErrUnsupportedType, t)
		}
		v := t.Elem()
		k := scalarKindOf(v)
		if k == kindInvalid && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) {
			k = scalarKindOf(v.Elem())
			if k == kindBytes {
				k = kindInvalid
			}
		}
		if k == kindInvalid || k == kindReader {
			return fmt.Errorf("%w: map values of %s", ErrUnsupportedType, t)
		}
		f.shape, f.elem, f.kind = shapeMap, v, k
		return nil
	}
	return classifyEntityField(f, true)
}

// classifyEntityField accepts *T, T (when allowValue), interfaces and slices
// of those.
func classifyEntityField(f *fieldSchema, allowValue bool) error {
	t := f.typ
	f.shape = shapeScalar
	if t.Kind() == reflect.Slice {
		f.shape = shapeList
		t = t.Elem()
	}

	switch {
	case t.Kind() == reflect.Interface:
		f.elem = t
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		f.elem = t.Elem()
	case allowValue && t.Kind() == reflect.Struct && t != timeType && t != localeType:
		f.elem = t
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, f.typ)
	}
	return nil
}
