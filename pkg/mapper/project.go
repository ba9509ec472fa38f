package mapper

import (
	"fmt"
	"reflect"

	"github.com/i5heu/ouroboros-ocm/pkg/pathutil"
	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/sirupsen/logrus"
)

// UpdateNode reconciles node and its subtree with entity and returns the
// node name, which changes when the entity was renamed. Only fields passing
// filter are written. Child and file fields are followed up to maxDepth
// levels, a negative maxDepth means no limit.
func (m *Mapper) UpdateNode(node repository.Node, entity any, filter string, maxDepth int) (string, error) {
	sv, s, err := m.entity(entity)
	if err != nil {
		return "", err
	}
	t := traversal{op: opUpdate, filter: ParseFilter(filter), maxDepth: maxDepth}
	if err := m.updateNode(node, sv, s, t, 0); err != nil {
		return "", fmt.Errorf("error updating %s at %s: %w", s.typ, node.Path(), err)
	}
	m.log.WithFields(logrus.Fields{
		"type":     s.typ.String(),
		"path":     node.Path(),
		"filter":   t.filter.String(),
		"maxDepth": maxDepth,
	}).Debug("node updated")
	return node.Name(), nil
}

func (m *Mapper) updateNode(n repository.Node, sv reflect.Value, s *typeSchema, t traversal, depth int) error {
	if s.isFile {
		return m.updateFileNode(n, sv, s, t, depth)
	}
	if err := m.rename(n, sv, s); err != nil {
		return err
	}
	if err := stampDiscriminator(n, s); err != nil {
		return err
	}
	return m.updateFields(n, sv, s, t, depth)
}

// rename moves n below its parent when the entity name changed and writes
// the new name and path back.
func (m *Mapper) rename(n repository.Node, sv reflect.Value, s *typeSchema) error {
	name, err := m.nameOf(sv, s)
	if err != nil {
		return err
	}
	if n.Name() == name {
		return nil
	}

	parent, err := n.Parent()
	if err != nil {
		return err
	}
	from := n.Path()
	if err := n.Session().Move(from, pathutil.Join(parent.Path(), name)); err != nil {
		return err
	}
	setIdentity(n, sv, s)

	m.log.WithFields(logrus.Fields{
		"from": from,
		"to":   n.Path(),
	}).Debug("node renamed")
	return nil
}

func (m *Mapper) updateFields(n repository.Node, sv reflect.Value, s *typeSchema, t traversal, depth int) error {
	for _, f := range s.fields {
		a := t.decide(f, depth)
		if a == skip {
			continue
		}
		fv := sv.FieldByIndex(f.index)

		var err error
		switch f.role {
		case roleProperty, roleSerialized:
			err = writeProperty(n, f, fv)
		case roleChild:
			err = m.updateChild(n, f, fv, t, depth)
		case roleReference:
			err = m.writeReference(n, f, fv, true)
		case roleFile:
			err = m.updateFiles(n, f, fv, t, depth)
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", f.goName, err)
		}
	}
	return nil
}

func (m *Mapper) updateChild(n repository.Node, f *fieldSchema, fv reflect.Value, t traversal, depth int) error {
	name := m.containerName(f)

	switch f.shape {
	case shapeMap:
		if err := removeChildren(n, name); err != nil {
			return err
		}
		if fv.Len() == 0 {
			return nil
		}
		return m.addMap(n, f, fv)

	case shapeList:
		if fv.Len() == 0 {
			return removeChildren(n, name)
		}
		if !n.HasNode(name) {
			return m.addChild(n, f, fv)
		}
		container, err := n.Node(name)
		if err != nil {
			return err
		}
		return m.reconcile(container, f, fv, t, depth, false)
	}

	sv, commit, ok := elementOf(fv)
	if !ok {
		return removeChildren(n, name)
	}
	if !n.HasNode(name) {
		return m.addChild(n, f, fv)
	}
	container, err := n.Node(name)
	if err != nil {
		return err
	}
	nodes, err := container.Nodes()
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return m.addElement(container, fv)
	}
	s, err := m.schemaOf(sv)
	if err != nil {
		return err
	}
	if err := m.updateNode(nodes[0], sv, s, t, depth+1); err != nil {
		return err
	}
	commit()
	return nil
}

type element struct {
	sv     reflect.Value
	s      *typeSchema
	commit func()
}

// reconcile matches the children of container to the list fv by node name.
// Children without a matching element are removed, matched ones are updated
// and elements without a node are appended.
func (m *Mapper) reconcile(container repository.Node, f *fieldSchema, fv reflect.Value, t traversal, depth int, files bool) error {
	byName := map[string]element{}
	var order []string
	for i := 0; i < fv.Len(); i++ {
		sv, commit, ok := elementOf(fv.Index(i))
		if !ok {
			continue
		}
		s, err := m.schemaOf(sv)
		if err != nil {
			return err
		}
		name, err := m.nameOf(sv, s)
		if err != nil {
			return err
		}
		if _, dup := byName[name]; !dup {
			order = append(order, name)
		}
		byName[name] = element{sv: sv, s: s, commit: commit}
	}

	nodes, err := container.Nodes()
	if err != nil {
		return err
	}
	existing := map[string]bool{}
	for _, child := range nodes {
		e, ok := byName[child.Name()]
		if !ok {
			if err := child.Remove(); err != nil {
				return err
			}
			continue
		}
		existing[child.Name()] = true
		if files {
			err = m.updateFileNode(child, e.sv, e.s, t, depth)
		} else {
			err = m.updateNode(child, e.sv, e.s, t, depth+1)
		}
		if err != nil {
			return err
		}
		e.commit()
	}

	for _, name := range order {
		if existing[name] {
			continue
		}
		e := byName[name]
		if files {
			_, err = m.addFileNode(container, e.sv, e.s)
		} else {
			_, err = m.addNode(container, e.sv, e.s, nil)
		}
		if err != nil {
			return err
		}
		e.commit()
	}
	return nil
}

func (m *Mapper) updateFiles(n repository.Node, f *fieldSchema, fv reflect.Value, t traversal, depth int) error {
	name := m.containerName(f)

	if f.shape == shapeList {
		if fv.Len() == 0 {
			return removeChildren(n, name)
		}
		if !n.HasNode(name) {
			return m.addFiles(n, f, fv)
		}
		folder, err := n.Node(name)
		if err != nil {
			return err
		}
		return m.reconcile(folder, f, fv, t, depth, true)
	}

	sv, commit, ok := elementOf(fv)
	if !ok {
		return removeChildren(n, name)
	}
	if !n.HasNode(name) {
		return m.addFiles(n, f, fv)
	}
	folder, err := n.Node(name)
	if err != nil {
		return err
	}
	nodes, err := folder.Nodes()
	if err != nil {
		return err
	}
	s, err := m.schemaOf(sv)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		_, err = m.addFileNode(folder, sv, s)
	} else {
		err = m.updateFileNode(nodes[0], sv, s, t, depth)
	}
	if err != nil {
		return err
	}
	commit()
	return nil
}

// updateFileNode overwrites the content of a file node and updates the
// custom fields of the file entity one level deeper.
func (m *Mapper) updateFileNode(n repository.Node, sv reflect.Value, s *typeSchema, t traversal, depth int) error {
	if err := m.rename(n, sv, s); err != nil {
		return err
	}

	var content repository.Node
	var err error
	if n.HasNode(repository.NodeContent) {
		content, err = n.Node(repository.NodeContent)
	} else {
		content, err = n.AddNode(repository.NodeContent, repository.NodeTypeResource)
	}
	if err != nil {
		return err
	}
	if err := writeFileContent(content, fileOf(sv)); err != nil {
		return err
	}
	return m.updateFields(n, sv, s, t, depth+1)
}
