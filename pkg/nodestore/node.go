package nodestore

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/sirupsen/logrus"
)

var knownMixins = map[string]bool{
	repository.MixinReferenceable: true,
	repository.MixinVersionable:   true,
	repository.MixinLockable:      true,
	repository.MixinCreated:       true,
	repository.MixinLastModified:  true,
	repository.MixinTitle:         true,
}

var protectedProperties = map[string]bool{
	repository.PropertyUUID:        true,
	repository.PropertyCreated:     true,
	repository.PropertyPrimaryType: true,
	repository.PropertyMixinTypes:  true,
}

// node resolves its record through the session on every call, so it stays
// valid across Refresh and reports removal.
type node struct {
	s  *Session
	id string
}

var _ repository.Node = (*node)(nil)

func (n *node) record() (*record, error) {
	return n.s.load(n.id)
}

func (n *node) Name() string {
	r, err := n.record()
	if err != nil {
		return ""
	}
	return r.name
}

func (n *node) Path() string {
	r, err := n.record()
	if err != nil {
		return ""
	}
	return n.s.path(r)
}

func (n *node) Identifier() string {
	r, err := n.record()
	if err != nil {
		return n.id
	}
	if r.frozenUUID != "" {
		return r.frozenUUID
	}
	return r.id
}

func (n *node) PrimaryType() string {
	r, err := n.record()
	if err != nil {
		return ""
	}
	return r.primaryType
}

func (n *node) Session() repository.Session {
	return n.s
}

func (n *node) Parent() (repository.Node, error) {
	r, err := n.record()
	if err != nil {
		return nil, err
	}
	if r.parentID == "" {
		return nil, fmt.Errorf("parent of %s: %w", n.s.path(r), repository.ErrItemNotFound)
	}
	parent, err := n.s.load(r.parentID)
	if err != nil {
		return nil, err
	}
	return n.s.wrap(parent), nil
}

func (n *node) AddNode(name, primaryType string) (repository.Node, error) {
	parent, err := n.record()
	if err != nil {
		return nil, err
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := n.s.checkWritable(parent); err != nil {
		return nil, err
	}
	if _, err := n.s.childByName(parent, name); err == nil {
		return nil, fmt.Errorf("%s/%s: %w", n.s.path(parent), name, repository.ErrItemExists)
	}
	if primaryType == "" {
		primaryType = repository.NodeTypeUnstructured
	}

	child := newRecord(uuid.NewString(), name, parent.id, primaryType)
	parent.children = append(parent.children, child.id)
	n.s.markDirty(parent)
	n.s.put(child)

	n.s.log.WithFields(logrus.Fields{
		"path": n.s.path(child),
		"type": primaryType,
	}).Debug("node added")

	return n.s.wrap(child), nil
}

func (n *node) Node(relPath string) (repository.Node, error) {
	r, err := n.record()
	if err != nil {
		return nil, err
	}
	target, err := n.s.resolve(r, relPath)
	if err != nil {
		return nil, err
	}
	return n.s.wrap(target), nil
}

func (n *node) HasNode(relPath string) bool {
	_, err := n.Node(relPath)
	return err == nil
}

func (n *node) Nodes() ([]repository.Node, error) {
	r, err := n.record()
	if err != nil {
		return nil, err
	}
	out := make([]repository.Node, 0, len(r.children))
	for _, id := range r.children {
		child, err := n.s.load(id)
		if errors.Is(err, repository.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, n.s.wrap(child))
	}
	return out, nil
}

func (n *node) Remove() error {
	r, err := n.record()
	if err != nil {
		return err
	}
	if r.id == RootID {
		return fmt.Errorf("%w: cannot remove the root node", repository.ErrConstraint)
	}
	if r.frozen {
		return fmt.Errorf("%s: %w", n.s.path(r), repository.ErrReadOnly)
	}

	parent, err := n.s.load(r.parentID)
	if err != nil {
		return err
	}
	if err := n.s.checkWritable(parent); err != nil {
		return err
	}

	path := n.s.path(r)
	if i := parent.childIndex(r.id); i >= 0 {
		parent.children = append(parent.children[:i], parent.children[i+1:]...)
	}
	n.s.markDirty(parent)

	if err := n.s.removeSubtree(r); err != nil {
		return err
	}

	n.s.log.WithField("path", path).Debug("node removed")
	return nil
}

func (n *node) computedProperties(r *record) []repository.Property {
	props := []repository.Property{
		repository.NewProperty(repository.PropertyPrimaryType, repository.StringValue(r.primaryType)),
	}
	if len(r.mixins) > 0 {
		values := make([]repository.Value, len(r.mixins))
		for i, m := range r.mixins {
			values[i] = repository.StringValue(m)
		}
		props = append(props, repository.NewMultiProperty(repository.PropertyMixinTypes, repository.TypeString, values))
	}
	props = append(props, repository.NewProperty(repository.PropertyCreated, repository.DateValue(time.Unix(0, r.created))))
	if r.isReferenceable() {
		props = append(props, repository.NewProperty(repository.PropertyUUID, repository.StringValue(n.Identifier())))
	}
	return props
}

func (n *node) storedProperty(p *propertyRecord) repository.Property {
	values := make([]repository.Value, len(p.values))
	for i, v := range p.values {
		values[i] = n.s.store.fromValueRecord(p.typ, v)
	}
	if p.multiple {
		return repository.NewMultiProperty(p.name, p.typ, values)
	}
	return repository.NewProperty(p.name, values[0])
}

func (n *node) Properties() ([]repository.Property, error) {
	r, err := n.record()
	if err != nil {
		return nil, err
	}
	props := n.computedProperties(r)
	for _, name := range r.sortedPropertyNames() {
		props = append(props, n.storedProperty(r.properties[name]))
	}
	return props, nil
}

func (n *node) Property(name string) (repository.Property, error) {
	r, err := n.record()
	if err != nil {
		return repository.Property{}, err
	}
	if protectedProperties[name] {
		for _, p := range n.computedProperties(r) {
			if p.Name() == name {
				return p, nil
			}
		}
	} else if p, ok := r.properties[name]; ok {
		return n.storedProperty(p), nil
	}
	return repository.Property{}, fmt.Errorf("property %s of %s: %w", name, n.s.path(r), repository.ErrItemNotFound)
}

func (n *node) HasProperty(name string) bool {
	_, err := n.Property(name)
	return err == nil
}

func (n *node) writableRecord(name string) (*record, error) {
	r, err := n.record()
	if err != nil {
		return nil, err
	}
	if protectedProperties[name] {
		return nil, fmt.Errorf("%w: property %s is protected", repository.ErrConstraint, name)
	}
	if err := n.s.checkWritable(r); err != nil {
		return nil, err
	}
	return r, nil
}

// SetProperty stores a single value. The zero Value removes the property.
func (n *node) SetProperty(name string, value repository.Value) error {
	if value.IsZero() {
		err := n.RemoveProperty(name)
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil
		}
		return err
	}

	r, err := n.writableRecord(name)
	if err != nil {
		return err
	}
	vr, err := n.s.prepareValue(value)
	if err != nil {
		return fmt.Errorf("property %s: %w", name, err)
	}

	r.properties[name] = &propertyRecord{
		name:   name,
		typ:    value.Type(),
		values: []valueRecord{vr},
	}
	n.s.markDirty(r)
	return nil
}

// SetMultiProperty stores a multi valued property. All values must share one
// type; an empty list is stored as an empty String property.
func (n *node) SetMultiProperty(name string, values []repository.Value) error {
	r, err := n.writableRecord(name)
	if err != nil {
		return err
	}

	p := &propertyRecord{name: name, typ: repository.TypeString, multiple: true}
	for i, v := range values {
		if i == 0 {
			p.typ = v.Type()
		} else if v.Type() != p.typ {
			return fmt.Errorf("%w: property %s mixes %s and %s", repository.ErrValueFormat, name, p.typ, v.Type())
		}
		vr, err := n.s.prepareValue(v)
		if err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
		p.values = append(p.values, vr)
	}

	r.properties[name] = p
	n.s.markDirty(r)
	return nil
}

func (n *node) RemoveProperty(name string) error {
	r, err := n.writableRecord(name)
	if err != nil {
		return err
	}
	if _, ok := r.properties[name]; !ok {
		return fmt.Errorf("property %s of %s: %w", name, n.s.path(r), repository.ErrItemNotFound)
	}
	delete(r.properties, name)
	n.s.markDirty(r)
	return nil
}

func (s *Session) prepareValue(v repository.Value) (valueRecord, error) {
	switch v.Type() {
	case repository.TypeBinary:
		if sb, ok := v.Blob().(*storedBlob); ok && sb.store == s.store {
			ref := sb.ref
			return toValueRecord(v, &ref)
		}
		rc, err := v.Stream()
		if err != nil {
			return valueRecord{}, err
		}
		defer rc.Close()
		ref, err := s.store.writeBlob(rc)
		if err != nil {
			return valueRecord{}, err
		}
		return toValueRecord(v, ref)

	case repository.TypeReference:
		id, _ := v.String()
		target, err := s.load(id)
		if errors.Is(err, repository.ErrItemNotFound) {
			return valueRecord{}, fmt.Errorf("%w: reference target %s does not exist", repository.ErrConstraint, id)
		}
		if err != nil {
			return valueRecord{}, err
		}
		if !target.isReferenceable() {
			return valueRecord{}, fmt.Errorf("%w: reference target %s is not referenceable", repository.ErrConstraint, id)
		}
	}
	return toValueRecord(v, nil)
}

func (n *node) Mixins() []string {
	r, err := n.record()
	if err != nil {
		return nil
	}
	return append([]string(nil), r.mixins...)
}

func (n *node) CanAddMixin(name string) bool {
	r, err := n.record()
	if err != nil {
		return false
	}
	if !knownMixins[name] || n.IsNodeType(name) {
		return false
	}
	return n.s.checkWritable(r) == nil
}

func (n *node) AddMixin(name string) error {
	r, err := n.record()
	if err != nil {
		return err
	}
	if !knownMixins[name] {
		return fmt.Errorf("%w: unknown mixin %s", repository.ErrConstraint, name)
	}
	if err := n.s.checkWritable(r); err != nil {
		return err
	}
	if r.hasMixin(name) {
		return nil
	}

	r.mixins = append(r.mixins, name)
	if name == repository.MixinVersionable {
		r.checkedOut = true
	}
	n.s.markDirty(r)
	return nil
}

func (n *node) IsNodeType(name string) bool {
	r, err := n.record()
	if err != nil {
		return false
	}
	switch {
	case name == repository.NodeTypeBase, name == r.primaryType, r.hasMixin(name):
		return true
	case name == repository.MixinReferenceable:
		return r.isReferenceable()
	}
	return false
}

// IsCheckedOut reports the state of the nearest versionable node at or above
// this node. Nodes without one are always checked out.
func (n *node) IsCheckedOut() (bool, error) {
	r, err := n.record()
	if err != nil {
		return false, err
	}
	if r.frozen {
		return false, nil
	}
	for cur := r; ; {
		if cur.isVersionable() {
			return cur.checkedOut, nil
		}
		if cur.parentID == "" {
			return true, nil
		}
		cur, err = n.s.load(cur.parentID)
		if err != nil {
			return false, err
		}
	}
}

func (n *node) BaseVersion() (repository.Version, error) {
	r, err := n.record()
	if err != nil {
		return repository.Version{}, err
	}
	if !r.isVersionable() || r.frozen {
		return repository.Version{}, fmt.Errorf("%s is not versionable: %w", n.s.path(r), repository.ErrVersion)
	}
	if r.baseVersion == "" {
		return rootVersion(r), nil
	}
	v, ok := r.version(r.baseVersion)
	if !ok {
		return repository.Version{}, fmt.Errorf("base version %s of %s: %w", r.baseVersion, n.s.path(r), repository.ErrItemNotFound)
	}
	return toVersion(v), nil
}

func (n *node) FrozenVersion() (repository.Version, bool) {
	r, err := n.record()
	if err != nil || !r.frozen || r.frozenVersion == "" {
		return repository.Version{}, false
	}
	return repository.Version{
		Name:    r.frozenVersion,
		Created: time.Unix(0, r.frozenCreated),
	}, true
}
