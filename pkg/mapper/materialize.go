package mapper

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/sirupsen/logrus"
)

// AddNode creates a node for entity below parent. Name, path and id of the
// new node are written back onto entity. The mixins are added when the node
// accepts them, together with the mixins registered for the type.
func (m *Mapper) AddNode(parent repository.Node, entity any, mixins []string) (repository.Node, error) {
	sv, s, err := m.entity(entity)
	if err != nil {
		return nil, err
	}
	n, err := m.addNode(parent, sv, s, mixins)
	if err != nil {
		return nil, fmt.Errorf("error adding %s below %s: %w", s.typ, parent.Path(), err)
	}
	m.log.WithFields(logrus.Fields{
		"type": s.typ.String(),
		"path": n.Path(),
	}).Debug("node added")
	return n, nil
}

func (m *Mapper) addNode(parent repository.Node, sv reflect.Value, s *typeSchema, mixins []string) (repository.Node, error) {
	if s.isFile {
		return m.addFileNode(parent, sv, s)
	}

	name, err := m.nameOf(sv, s)
	if err != nil {
		return nil, err
	}
	n, err := parent.AddNode(name, s.nodeType)
	if err != nil {
		return nil, err
	}
	if err := addMixins(n, append(append([]string(nil), mixins...), s.mixins...)); err != nil {
		return nil, err
	}
	setIdentity(n, sv, s)

	if err := stampDiscriminator(n, s); err != nil {
		return nil, err
	}
	if err := m.addFields(n, sv, s); err != nil {
		return nil, err
	}
	return n, nil
}

func addMixins(n repository.Node, mixins []string) error {
	for _, mixin := range mixins {
		if !n.CanAddMixin(mixin) {
			continue
		}
		if err := n.AddMixin(mixin); err != nil {
			return err
		}
	}
	return nil
}

// addFields writes every mapped field of a freshly created node.
func (m *Mapper) addFields(n repository.Node, sv reflect.Value, s *typeSchema) error {
	t := traversal{op: opAdd}
	for _, f := range s.fields {
		if t.decide(f, 0) == skip {
			continue
		}
		fv := sv.FieldByIndex(f.index)

		var err error
		switch f.role {
		case roleProperty, roleSerialized:
			err = writeProperty(n, f, fv)
		case roleChild:
			err = m.addChild(n, f, fv)
		case roleReference:
			err = m.writeReference(n, f, fv, false)
		case roleFile:
			err = m.addFiles(n, f, fv)
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", f.goName, err)
		}
	}
	return nil
}

func (m *Mapper) addChild(n repository.Node, f *fieldSchema, fv reflect.Value) error {
	switch f.shape {
	case shapeMap:
		if fv.Len() == 0 {
			return nil
		}
		return m.addMap(n, f, fv)

	case shapeList:
		container, err := n.AddNode(m.containerName(f), f.containerType)
		if err != nil {
			return err
		}
		for i := 0; i < fv.Len(); i++ {
			if err := m.addElement(container, fv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}

	if _, ok := structOf(fv); !ok {
		return nil
	}
	container, err := n.AddNode(m.containerName(f), f.containerType)
	if err != nil {
		return err
	}
	return m.addElement(container, fv)
}

// addElement adds the entity held by ev below container. Nil elements are
// skipped.
func (m *Mapper) addElement(container repository.Node, ev reflect.Value) error {
	sv, commit, ok := elementOf(ev)
	if !ok {
		return nil
	}
	s, err := m.schemaOf(sv)
	if err != nil {
		return err
	}
	if _, err := m.addNode(container, sv, s, nil); err != nil {
		return err
	}
	commit()
	return nil
}

// addMap creates the map container with one property per entry, in key
// order.
func (m *Mapper) addMap(n repository.Node, f *fieldSchema, fv reflect.Value) error {
	container, err := n.AddNode(m.containerName(f), "")
	if err != nil {
		return err
	}

	keys := make([]string, 0, fv.Len())
	for _, k := range fv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := fv.MapIndex(reflect.ValueOf(key).Convert(fv.Type().Key()))
		entry := mapEntrySchema(f, key)
		if err := writeProperty(container, entry, v); err != nil {
			return err
		}
	}
	return nil
}

// mapEntrySchema describes the property holding one entry of a map field.
func mapEntrySchema(f *fieldSchema, key string) *fieldSchema {
	entry := &fieldSchema{name: key, typ: f.elem, elem: f.elem, kind: f.kind, role: roleProperty}
	if f.kind != kindBytes && (f.elem.Kind() == reflect.Slice || f.elem.Kind() == reflect.Array) {
		entry.shape = shapeList
		entry.elem = f.elem.Elem()
		if f.elem.Kind() == reflect.Array {
			entry.shape = shapeArray
		}
	}
	return entry
}

// addFiles creates the folder of a file field and one file node per entity.
func (m *Mapper) addFiles(n repository.Node, f *fieldSchema, fv reflect.Value) error {
	var elems []reflect.Value
	if f.shape == shapeList {
		for i := 0; i < fv.Len(); i++ {
			elems = append(elems, fv.Index(i))
		}
	} else {
		elems = append(elems, fv)
	}

	var folder repository.Node
	for _, ev := range elems {
		sv, commit, ok := elementOf(ev)
		if !ok {
			continue
		}
		s, err := m.schemaOf(sv)
		if err != nil {
			return err
		}
		if folder == nil {
			if folder, err = m.addFolder(n, f, s); err != nil {
				return err
			}
		}
		if _, err := m.addFileNode(folder, sv, s); err != nil {
			return err
		}
		commit()
	}
	return nil
}

func (m *Mapper) addFolder(n repository.Node, f *fieldSchema, s *typeSchema) (repository.Node, error) {
	folderType := repository.NodeTypeFolder
	if s.nodeType == repository.NodeTypeUnstructured {
		folderType = repository.NodeTypeUnstructured
	}
	return n.AddNode(m.containerName(f), folderType)
}

// addFileNode creates the file node, its jcr:content child and the custom
// fields of the file entity.
func (m *Mapper) addFileNode(folder repository.Node, sv reflect.Value, s *typeSchema) (repository.Node, error) {
	name, err := m.nameOf(sv, s)
	if err != nil {
		return nil, err
	}
	n, err := folder.AddNode(name, s.nodeType)
	if err != nil {
		return nil, err
	}
	if err := addMixins(n, s.mixins); err != nil {
		return nil, err
	}
	setIdentity(n, sv, s)

	content, err := n.AddNode(repository.NodeContent, repository.NodeTypeResource)
	if err != nil {
		return nil, err
	}
	if err := writeFileContent(content, fileOf(sv)); err != nil {
		return nil, err
	}
	if err := m.addFields(n, sv, s); err != nil {
		return nil, err
	}
	return n, nil
}
