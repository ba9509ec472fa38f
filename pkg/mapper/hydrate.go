package mapper

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/i5heu/ouroboros-ocm/pkg/types"
	"github.com/sirupsen/logrus"
)

// reservedPrefixes mark repository internal properties, they never end up
// in map fields.
var reservedPrefixes = []string{"jcr:", "nt:"}

// FromNode creates an entity of type t from node and returns a pointer to
// it. t may be a struct type, a pointer to one, or an interface, in which
// case the concrete type is taken from the discriminator property.
func (m *Mapper) FromNode(t reflect.Type, node repository.Node, filter string, maxDepth int) (any, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	tr := traversal{op: opRead, filter: ParseFilter(filter), maxDepth: maxDepth}
	ptr, err := m.fromNode(t, node, tr, 0, reflect.Value{}, LoadStream)
	if err != nil {
		return nil, fmt.Errorf("error reading %s from %s: %w", t, node.Path(), err)
	}
	m.log.WithFields(logrus.Fields{
		"type":     ptr.Type().Elem().String(),
		"path":     node.Path(),
		"filter":   tr.filter.String(),
		"maxDepth": maxDepth,
	}).Debug("node read")
	return ptr.Interface(), nil
}

// Load is the typed form of FromNode.
func Load[T any](m *Mapper, node repository.Node, filter string, maxDepth int) (*T, error) {
	v, err := m.FromNode(reflect.TypeOf((*T)(nil)).Elem(), node, filter, maxDepth)
	if err != nil {
		return nil, err
	}
	out, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, v, reflect.TypeOf((*T)(nil)).Elem())
	}
	return out, nil
}

// resolveType picks the struct type to create for n when the field or call
// asks for declared.
func (m *Mapper) resolveType(declared reflect.Type, n repository.Node) (reflect.Type, error) {
	if declared.Kind() == reflect.Interface {
		return m.resolveInterface(declared, n)
	}
	if !m.dynamic {
		return declared, nil
	}
	s, err := m.registry.schema(declared)
	if err != nil {
		return nil, err
	}
	if s.classNameProperty == "" || !n.HasProperty(s.classNameProperty) {
		return declared, nil
	}
	concrete, err := m.typeFromProperty(n, s.classNameProperty)
	if err != nil {
		return nil, err
	}
	if concrete != declared {
		return nil, fmt.Errorf("%w: node holds %s, want %s", ErrTypeMismatch, concrete, declared)
	}
	return concrete, nil
}

// resolveInterface looks for a discriminator under every class name property
// in use by a registered type. A token only counts under the property its
// type stamps.
func (m *Mapper) resolveInterface(declared reflect.Type, n repository.Node) (reflect.Type, error) {
	properties := m.registry.classNameProperties()
	for _, property := range properties {
		if !n.HasProperty(property) {
			continue
		}
		concrete, err := m.typeFromProperty(n, property)
		if err != nil {
			return nil, err
		}
		s, err := m.registry.schema(concrete)
		if err != nil {
			return nil, err
		}
		if s.classNameProperty != property {
			continue
		}
		if !reflect.PointerTo(concrete).Implements(declared) {
			return nil, fmt.Errorf("%w: %s does not implement %s", ErrTypeMismatch, concrete, declared)
		}
		return concrete, nil
	}
	return nil, fmt.Errorf("%w: %s has no discriminator (%s) to resolve %s",
		ErrUnmappedType, n.Path(), strings.Join(properties, ", "), declared)
}

func (m *Mapper) typeFromProperty(n repository.Node, property string) (reflect.Type, error) {
	v, err := singleValue(n, property)
	if err != nil {
		return nil, err
	}
	token, err := v.String()
	if err != nil {
		return nil, err
	}
	concrete, ok := m.registry.typeForToken(token)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnmappedType, token)
	}
	return concrete, nil
}

// fromNode creates the entity for n and returns a pointer to it.
func (m *Mapper) fromNode(declared reflect.Type, n repository.Node, t traversal, depth int, parent reflect.Value, load LoadMode) (reflect.Value, error) {
	concrete, err := m.resolveType(declared, n)
	if err != nil {
		return reflect.Value{}, err
	}
	s, err := m.registry.schema(concrete)
	if err != nil {
		return reflect.Value{}, err
	}
	ptr := reflect.New(concrete)
	if err := m.hydrate(n, ptr.Elem(), s, t, depth, parent, load); err != nil {
		return reflect.Value{}, err
	}
	return ptr, nil
}

func (m *Mapper) hydrate(n repository.Node, sv reflect.Value, s *typeSchema, t traversal, depth int, parent reflect.Value, load LoadMode) error {
	if s.isFile {
		if n.HasNode(repository.NodeContent) {
			content, err := n.Node(repository.NodeContent)
			if err != nil {
				return err
			}
			if err := readFileContent(content, fileOf(sv), load); err != nil {
				return err
			}
		}
		depth++
	}

	for _, f := range s.fields {
		a := t.decide(f, depth)
		if a == skip {
			continue
		}
		fv := sv.FieldByIndex(f.index)

		var err error
		switch f.role {
		case roleName:
			fv.SetString(n.Name())
		case rolePath:
			fv.SetString(n.Path())
		case roleID:
			if n.HasProperty(repository.PropertyUUID) {
				fv.SetString(n.Identifier())
			}
		case roleParent:
			if parent.IsValid() && parent.Type().AssignableTo(f.typ) {
				fv.Set(parent)
			}
		case roleVersionName, roleVersionCreated, roleBaseVersionName, roleBaseVersionCreated:
			err = readVersion(n, f, fv)
		case roleCheckedOut:
			var checkedOut bool
			checkedOut, err = n.IsCheckedOut()
			fv.SetBool(checkedOut)
		case roleCreated:
			err = readCreated(n, f, fv)
		case roleProperty, roleSerialized:
			err = readProperty(n, f, fv)
		case roleChild:
			err = m.readChild(n, f, fv, t, depth, sv.Addr())
		case roleReference:
			err = m.readReference(n, f, fv, t, depth, a, sv.Addr())
		case roleFile:
			err = m.readFiles(n, f, fv, t, depth, sv.Addr())
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", f.goName, err)
		}
	}
	return nil
}

// baseVersion returns the base version of n. ok is false when n is not
// versionable.
func baseVersion(n repository.Node) (repository.Version, bool, error) {
	if !n.IsNodeType(repository.MixinVersionable) {
		return repository.Version{}, false, nil
	}
	v, err := n.BaseVersion()
	if errors.Is(err, repository.ErrVersion) {
		return repository.Version{}, false, nil
	}
	if err != nil {
		return repository.Version{}, false, err
	}
	return v, true, nil
}

// readVersion fills version metadata. A frozen node reports the version it
// belongs to, any other versionable node its base version.
func readVersion(n repository.Node, f *fieldSchema, fv reflect.Value) error {
	var (
		v  repository.Version
		ok bool
	)
	if f.role == roleVersionName || f.role == roleVersionCreated {
		v, ok = n.FrozenVersion()
	}
	if !ok {
		var err error
		if v, ok, err = baseVersion(n); err != nil {
			return err
		}
	}
	if !ok {
		return nil
	}

	switch f.role {
	case roleVersionName, roleBaseVersionName:
		fv.SetString(v.Name)
	default:
		setTime(fv, f, v.Created)
	}
	return nil
}

func readCreated(n repository.Node, f *fieldSchema, fv reflect.Value) error {
	if !n.HasProperty(repository.PropertyCreated) {
		return nil
	}
	v, err := singleValue(n, repository.PropertyCreated)
	if err != nil {
		return err
	}
	created, err := v.Date()
	if err != nil {
		return err
	}
	setTime(fv, f, created)
	return nil
}

func setTime(fv reflect.Value, f *fieldSchema, t time.Time) {
	target := fv
	if f.nullable {
		ptr := reflect.New(f.elem)
		fv.Set(ptr)
		target = ptr.Elem()
	}
	if f.kind == kindTimestamp {
		target.SetInt(int64(types.NewTimestamp(t)))
		return
	}
	target.Set(reflect.ValueOf(t))
}

// assignable converts the entity pointer ptr to the element type target.
func assignable(ptr reflect.Value, target reflect.Type) reflect.Value {
	if target.Kind() == reflect.Struct {
		return ptr.Elem()
	}
	return ptr
}

func (m *Mapper) readChild(n repository.Node, f *fieldSchema, fv reflect.Value, t traversal, depth int, parent reflect.Value) error {
	name := m.containerName(f)
	if !n.HasNode(name) {
		return nil
	}
	container, err := n.Node(name)
	if err != nil {
		return err
	}

	if f.shape == shapeMap {
		return readMap(container, f, fv)
	}

	nodes, err := container.Nodes()
	if err != nil {
		return err
	}

	if f.shape == shapeList {
		list := reflect.MakeSlice(f.typ, 0, len(nodes))
		for _, child := range nodes {
			ptr, err := m.fromNode(f.elem, child, t, depth+1, parent, LoadStream)
			if err != nil {
				return err
			}
			list = reflect.Append(list, assignable(ptr, f.typ.Elem()))
		}
		fv.Set(list)
		return nil
	}

	if len(nodes) == 0 {
		return nil
	}
	ptr, err := m.fromNode(f.elem, nodes[0], t, depth+1, parent, LoadStream)
	if err != nil {
		return err
	}
	fv.Set(assignable(ptr, f.typ))
	return nil
}

func readMap(container repository.Node, f *fieldSchema, fv reflect.Value) error {
	props, err := container.Properties()
	if err != nil {
		return err
	}

	out := reflect.MakeMap(f.typ)
	for _, p := range props {
		if reserved(p.Name()) {
			continue
		}
		v := reflect.New(f.elem).Elem()
		if err := readProperty(container, mapEntrySchema(f, p.Name()), v); err != nil {
			return err
		}
		out.SetMapIndex(reflect.ValueOf(p.Name()).Convert(f.typ.Key()), v)
	}
	fv.Set(out)
	return nil
}

func reserved(name string) bool {
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// readReference hydrates the referenced entities, or creates stubs holding
// only their identifier.
func (m *Mapper) readReference(n repository.Node, f *fieldSchema, fv reflect.Value, t traversal, depth int, a action, parent reflect.Value) error {
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

	var refs []reflect.Value
	for _, v := range values {
		id, err := v.String()
		if err != nil {
			return err
		}
		ptr, err := m.reference(id, n.Session(), f, t, depth, a, parent)
		if err != nil {
			return err
		}
		if ptr.IsValid() {
			refs = append(refs, ptr)
		}
	}

	if f.shape == shapeList {
		list := reflect.MakeSlice(f.typ, 0, len(refs))
		for _, ptr := range refs {
			list = reflect.Append(list, assignable(ptr, f.typ.Elem()))
		}
		fv.Set(list)
		return nil
	}
	if len(refs) > 0 {
		fv.Set(assignable(refs[0], f.typ))
	}
	return nil
}

func (m *Mapper) reference(id string, session repository.Session, f *fieldSchema, t traversal, depth int, a action, parent reflect.Value) (reflect.Value, error) {
	target, err := session.NodeByIdentifier(id)
	if errors.Is(err, repository.ErrItemNotFound) {
		target = nil
	} else if err != nil {
		return reflect.Value{}, err
	}

	if target != nil && a == descend {
		return m.fromNode(f.elem, target, t, depth+1, parent, LoadStream)
	}

	concrete := f.elem
	if target != nil {
		if concrete, err = m.resolveType(f.elem, target); err != nil {
			return reflect.Value{}, err
		}
	} else if concrete.Kind() != reflect.Struct {
		m.log.WithFields(logrus.Fields{
			"field": f.goName,
			"id":    id,
		}).Warn("dangling reference of unknown type skipped")
		return reflect.Value{}, nil
	}

	s, err := m.registry.schema(concrete)
	if err != nil {
		return reflect.Value{}, err
	}
	ptr := reflect.New(concrete)
	if s.idField != nil {
		ptr.Elem().FieldByIndex(s.idField.index).SetString(id)
	}
	return ptr, nil
}

func (m *Mapper) readFiles(n repository.Node, f *fieldSchema, fv reflect.Value, t traversal, depth int, parent reflect.Value) error {
	name := m.containerName(f)
	if !n.HasNode(name) {
		return nil
	}
	folder, err := n.Node(name)
	if err != nil {
		return err
	}
	nodes, err := folder.Nodes()
	if err != nil {
		return err
	}

	if f.shape == shapeList {
		list := reflect.MakeSlice(f.typ, 0, len(nodes))
		for _, child := range nodes {
			ptr, err := m.fromNode(f.elem, child, t, depth, parent, f.load)
			if err != nil {
				return err
			}
			list = reflect.Append(list, assignable(ptr, f.typ.Elem()))
		}
		fv.Set(list)
		return nil
	}

	if len(nodes) == 0 {
		return nil
	}
	ptr, err := m.fromNode(f.elem, nodes[0], t, depth, parent, f.load)
	if err != nil {
		return err
	}
	fv.Set(assignable(ptr, f.typ))
	return nil
}
