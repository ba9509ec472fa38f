// Package mapper maps tagged Go structs onto repository nodes and back.
package mapper

import (
	"fmt"
	"reflect"

	"github.com/i5heu/ouroboros-ocm/pkg/pathutil"
	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// CleanNames replaces characters that are not legal in node names.
	CleanNames bool
	// DynamicInstantiation creates the type recorded in the discriminator
	// property of a node instead of the declared field type.
	DynamicInstantiation bool
	Logger               *logrus.Logger
}

func DefaultOptions() Options {
	return Options{CleanNames: true}
}

// Mapper is safe for concurrent use. Each call runs on the caller's
// goroutine and keeps no state beyond the type registry.
type Mapper struct {
	registry   *registry
	cleanNames bool
	dynamic    bool
	log        *logrus.Logger
}

func New(opts Options) *Mapper {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Mapper{
		registry:   newRegistry(),
		cleanNames: opts.CleanNames,
		dynamic:    opts.DynamicInstantiation,
		log:        opts.Logger,
	}
}

// Register validates the struct type of prototype and every type reachable
// through its child, reference and file fields. Prototype may be a value, a
// pointer or a reflect.Type.
func (m *Mapper) Register(prototype any, opts ...TypeOption) error {
	t, err := structType(prototype)
	if err != nil {
		return err
	}
	s, err := m.registry.register(t, opts...)
	if err != nil {
		return fmt.Errorf("error registering %s: %w", t, err)
	}
	m.log.WithFields(logrus.Fields{
		"type":          t.String(),
		"discriminator": s.discriminator,
		"fields":        len(s.fields),
	}).Debug("type registered")
	return nil
}

// IsRegistered reports whether the struct type of prototype is known.
func (m *Mapper) IsRegistered(prototype any) bool {
	t, err := structType(prototype)
	if err != nil {
		return false
	}
	m.registry.mu.RLock()
	defer m.registry.mu.RUnlock()
	_, ok := m.registry.schemas[t]
	return ok
}

// NodeName returns the node name an entity name is stored under.
func (m *Mapper) NodeName(name string) string {
	if m.cleanNames {
		return pathutil.CreateValidName(name)
	}
	return name
}

// EntityName returns the value of the name field of entity.
func (m *Mapper) EntityName(entity any) (string, error) {
	sv, s, err := m.entity(entity)
	if err != nil {
		return "", err
	}
	return sv.FieldByIndex(s.nameField.index).String(), nil
}

// EntityID returns the value of the id field of entity, or "" when the type
// has none.
func (m *Mapper) EntityID(entity any) (string, error) {
	sv, s, err := m.entity(entity)
	if err != nil {
		return "", err
	}
	if s.idField == nil {
		return "", nil
	}
	return sv.FieldByIndex(s.idField.index).String(), nil
}

// entity checks that v is a non nil pointer to a struct and returns the
// struct value with its schema.
func (m *Mapper) entity(v any) (reflect.Value, *typeSchema, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, fmt.Errorf("%w: entity must be a non-nil pointer to a struct, got %T", ErrUnsupportedType, v)
	}
	sv := rv.Elem()
	s, err := m.registry.schema(sv.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return sv, s, nil
}

// structOf unwraps pointers and interfaces down to an addressable struct.
// A struct value held by an interface is copied; use elementOf when writes to
// it must reach the interface. ok is false for nil values.
func structOf(v reflect.Value) (reflect.Value, bool) {
	for {
		switch v.Kind() {
		case reflect.Interface:
			if v.IsNil() {
				return reflect.Value{}, false
			}
			inner := v.Elem()
			if inner.Kind() == reflect.Struct {
				ptr := reflect.New(inner.Type())
				ptr.Elem().Set(inner)
				inner = ptr
			}
			v = inner
		case reflect.Pointer:
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		case reflect.Struct:
			return v, true
		default:
			return reflect.Value{}, false
		}
	}
}

// elementOf is structOf for entities whose identity fields get written. When
// v is an interface holding a struct value, commit stores the modified copy
// back into v, keeping the dynamic type a struct.
func elementOf(v reflect.Value) (sv reflect.Value, commit func(), ok bool) {
	if v.Kind() == reflect.Interface && !v.IsNil() && v.Elem().Kind() == reflect.Struct {
		cp := reflect.New(v.Elem().Type()).Elem()
		cp.Set(v.Elem())
		return cp, func() {
			if v.CanSet() {
				v.Set(cp)
			}
		}, true
	}
	sv, ok = structOf(v)
	return sv, func() {}, ok
}

func (m *Mapper) schemaOf(sv reflect.Value) (*typeSchema, error) {
	return m.registry.schema(sv.Type())
}

func (m *Mapper) nameOf(sv reflect.Value, s *typeSchema) (string, error) {
	name := sv.FieldByIndex(s.nameField.index).String()
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyName, s.typ)
	}
	clean := m.NodeName(name)
	if clean == "" {
		return "", fmt.Errorf("%w: %s name %q", ErrEmptyName, s.typ, name)
	}
	return clean, nil
}

// setIdentity writes name, path and id of n onto the entity.
func setIdentity(n repository.Node, sv reflect.Value, s *typeSchema) {
	for _, f := range s.fields {
		fv := sv.FieldByIndex(f.index)
		switch f.role {
		case roleName:
			fv.SetString(n.Name())
		case rolePath:
			fv.SetString(n.Path())
		case roleID:
			if n.HasProperty(repository.PropertyUUID) {
				fv.SetString(n.Identifier())
			}
		}
	}
}

func stampDiscriminator(n repository.Node, s *typeSchema) error {
	if s.classNameProperty == "" {
		return nil
	}
	return n.SetProperty(s.classNameProperty, repository.StringValue(s.discriminator))
}

// removeChildren removes every child node of n named name.
func removeChildren(n repository.Node, name string) error {
	for n.HasNode(name) {
		child, err := n.Node(name)
		if err != nil {
			return err
		}
		if err := child.Remove(); err != nil {
			return err
		}
	}
	return nil
}

// containerName is the node name of the container holding a child or file
// field.
func (m *Mapper) containerName(f *fieldSchema) string {
	return m.NodeName(f.name)
}

// referenceID returns the identifier of the entity referenced by fv, or ""
// when the field is nil or the entity has no identifier.
func (m *Mapper) referenceID(fv reflect.Value) (string, error) {
	sv, ok := structOf(fv)
	if !ok {
		return "", nil
	}
	s, err := m.schemaOf(sv)
	if err != nil {
		return "", err
	}
	if s.idField == nil {
		return "", nil
	}
	return sv.FieldByIndex(s.idField.index).String(), nil
}

// writeReference stores the reference field fv. On update an unchanged
// reference is not written again.
func (m *Mapper) writeReference(n repository.Node, f *fieldSchema, fv reflect.Value, update bool) error {
	if f.shape == shapeList {
		if fv.IsNil() {
			if update {
				return n.SetProperty(f.name, repository.Value{})
			}
			return nil
		}
		ids := make([]string, 0, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			id, err := m.referenceID(fv.Index(i))
			if err != nil {
				return err
			}
			if id != "" {
				ids = append(ids, id)
			}
		}
		if update && storedReferences(n, f.name, ids) {
			return nil
		}
		values := make([]repository.Value, len(ids))
		for i, id := range ids {
			values[i] = repository.ReferenceValue(id)
		}
		return n.SetMultiProperty(f.name, values)
	}

	id, err := m.referenceID(fv)
	if err != nil {
		return err
	}
	if id == "" {
		if update && n.HasProperty(f.name) {
			return n.SetProperty(f.name, repository.Value{})
		}
		return nil
	}
	if update && storedReferences(n, f.name, []string{id}) {
		return nil
	}
	return n.SetProperty(f.name, repository.ReferenceValue(id))
}

// storedReferences reports whether property name already holds exactly ids.
func storedReferences(n repository.Node, name string, ids []string) bool {
	if !n.HasProperty(name) {
		return false
	}
	p, err := n.Property(name)
	if err != nil {
		return false
	}
	var values []repository.Value
	if p.IsMultiple() {
		values, err = p.Values()
	} else {
		var v repository.Value
		v, err = p.Value()
		values = []repository.Value{v}
	}
	if err != nil || len(values) != len(ids) {
		return false
	}
	for i, v := range values {
		s, err := v.String()
		if err != nil || s != ids[i] {
			return false
		}
	}
	return true
}
