package mapper

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/i5heu/ouroboros-ocm/pkg/repository"
)

const (
	// DefaultClassNameProperty is the property the discriminator is stored in.
	DefaultClassNameProperty = "className"
	// ClassNameNone disables stamping the discriminator.
	ClassNameNone = "none"
)

// TypeOption configures a registered type.
type TypeOption func(*typeSchema)

// WithNodeType sets the primary node type used for nodes of the type.
func WithNodeType(nodeType string) TypeOption {
	return func(s *typeSchema) {
		s.nodeType = nodeType
	}
}

// WithMixins adds mixins to every node created for the type.
func WithMixins(mixins ...string) TypeOption {
	return func(s *typeSchema) {
		s.mixins = append([]string(nil), mixins...)
	}
}

// WithClassNameProperty changes the discriminator property. ClassNameNone
// disables it.
func WithClassNameProperty(name string) TypeOption {
	return func(s *typeSchema) {
		if name == ClassNameNone {
			name = ""
		}
		s.classNameProperty = name
	}
}

// WithDiscriminator sets the token stored in the discriminator property.
// It defaults to the package qualified type name.
func WithDiscriminator(token string) TypeOption {
	return func(s *typeSchema) {
		s.discriminator = token
	}
}

// registry holds the schemas of all types known to one Mapper. Entries are
// never removed.
type registry struct {
	mu      sync.RWMutex
	schemas map[reflect.Type]*typeSchema
	tokens  map[string]reflect.Type
}

func newRegistry() *registry {
	return &registry{
		schemas: map[reflect.Type]*typeSchema{},
		tokens:  map[string]reflect.Type{},
	}
}

func structType(prototype any) (reflect.Type, error) {
	t, ok := prototype.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(prototype)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil prototype", ErrUnsupportedType)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrUnsupportedType, t)
	}
	return t, nil
}

func defaultDiscriminator(t reflect.Type) string {
	if t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func (r *registry) register(t reflect.Type, opts ...TypeOption) (*typeSchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []reflect.Type
	s, err := r.buildLocked(t, &added)
	if err != nil {
		r.rollbackLocked(added)
		return nil, err
	}
	if len(opts) == 0 {
		return s, nil
	}

	updated := *s
	for _, opt := range opts {
		opt(&updated)
	}
	if updated.discriminator != s.discriminator {
		if other, ok := r.tokens[updated.discriminator]; ok && other != t {
			return nil, fmt.Errorf("%w: discriminator %q is used by %s", ErrInvalidTag, updated.discriminator, other)
		}
		delete(r.tokens, s.discriminator)
		r.tokens[updated.discriminator] = t
	}
	r.schemas[t] = &updated
	return &updated, nil
}

// buildLocked creates the schema of t and of every struct type reachable
// through child, reference and file fields.
func (r *registry) buildLocked(t reflect.Type, added *[]reflect.Type) (*typeSchema, error) {
	if s, ok := r.schemas[t]; ok {
		return s, nil
	}

	s := &typeSchema{
		typ:               t,
		nodeType:          repository.NodeTypeUnstructured,
		classNameProperty: DefaultClassNameProperty,
		discriminator:     defaultDiscriminator(t),
		isFile:            isFileType(t),
	}
	if s.isFile {
		s.nodeType = repository.NodeTypeFile
	}
	r.schemas[t] = s
	*added = append(*added, t)

	fields, err := collectFields(t, nil)
	if err != nil {
		return nil, err
	}
	s.fields = fields

	for _, f := range fields {
		switch f.role {
		case roleName:
			if s.nameField == nil {
				s.nameField = f
			}
		case rolePath:
			if s.pathField == nil {
				s.pathField = f
			}
		case roleID:
			if s.idField == nil {
				s.idField = f
			}
		case roleChild, roleReference, roleFile:
			if f.shape != shapeMap && f.elem.Kind() == reflect.Struct {
				if _, err := r.buildLocked(f.elem, added); err != nil {
					return nil, fmt.Errorf("field %s.%s: %w", t.Name(), f.goName, err)
				}
			}
		}
	}

	if s.nameField == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingNameField, t)
	}
	if other, ok := r.tokens[s.discriminator]; ok && other != t {
		return nil, fmt.Errorf("%w: discriminator %q is used by %s", ErrInvalidTag, s.discriminator, other)
	}
	r.tokens[s.discriminator] = t
	return s, nil
}

func (r *registry) rollbackLocked(added []reflect.Type) {
	for _, t := range added {
		if s, ok := r.schemas[t]; ok {
			if r.tokens[s.discriminator] == t {
				delete(r.tokens, s.discriminator)
			}
			delete(r.schemas, t)
		}
	}
}

// schema returns the schema of t, registering it with defaults on first use.
func (r *registry) schema(t reflect.Type) (*typeSchema, error) {
	r.mu.RLock()
	s, ok := r.schemas[t]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	return r.register(t)
}

func (r *registry) typeForToken(token string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[token]
	return t, ok
}

// classNameProperties lists the discriminator properties used by registered
// types, the default first and the rest sorted.
func (r *registry) classNameProperties() []string {
	r.mu.RLock()
	seen := map[string]bool{}
	for _, s := range r.schemas {
		if s.classNameProperty != "" {
			seen[s.classNameProperty] = true
		}
	}
	r.mu.RUnlock()

	properties := []string{DefaultClassNameProperty}
	delete(seen, DefaultClassNameProperty)
	rest := make([]string, 0, len(seen))
	for p := range seen {
		rest = append(rest, p)
	}
	sort.Strings(rest)
	return append(properties, rest...)
}
