package nodestore

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/i5heu/ouroboros-ocm/pkg/pathutil"
	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/sirupsen/logrus"
)

const versionStoragePath = "/jcr:system/jcr:versionStorage"

// Session stages changes in a working copy until Save. It is not safe for
// concurrent use.
type Session struct {
	store   *Store
	log     *logrus.Entry
	records map[string]*record
	dirty   map[string]bool
	removed map[string]bool // id -> record existed in the store
}

var _ repository.Session = (*Session)(nil)

func newSession(store *Store) *Session {
	return &Session{
		store:   store,
		log:     store.log.WithField("session", uuid.NewString()[:8]),
		records: map[string]*record{},
		dirty:   map[string]bool{},
		removed: map[string]bool{},
	}
}

func (s *Session) load(id string) (*record, error) {
	if _, ok := s.removed[id]; ok {
		return nil, fmt.Errorf("node %s: %w", id, repository.ErrItemNotFound)
	}
	if r, ok := s.records[id]; ok {
		return r, nil
	}

	r, err := s.store.loadRecord(id)
	if err != nil {
		return nil, err
	}
	s.records[id] = r
	return r, nil
}

func (s *Session) markDirty(r *record) {
	s.dirty[r.id] = true
}

func (s *Session) put(r *record) {
	delete(s.removed, r.id)
	s.records[r.id] = r
	s.markDirty(r)
}

func (s *Session) wrap(r *record) *node {
	return &node{s: s, id: r.id}
}

func (s *Session) unwrap(n repository.Node) (*node, *record, error) {
	nd, ok := n.(*node)
	if !ok || nd.s != s {
		return nil, nil, fmt.Errorf("%w: node does not belong to this session", repository.ErrConstraint)
	}
	r, err := nd.record()
	if err != nil {
		return nil, nil, err
	}
	return nd, r, nil
}

func (s *Session) path(r *record) string {
	if r.id == RootID {
		return pathutil.Separator
	}

	var names []string
	prefix := ""
	cur := r
	for cur.id != RootID {
		names = append(names, cur.name)
		if cur.parentID == "" {
			if cur.frozenOf != "" {
				prefix = versionStoragePath + pathutil.Separator + cur.frozenOf + pathutil.Separator + cur.frozenVersion
			}
			break
		}
		parent, err := s.load(cur.parentID)
		if err != nil {
			break
		}
		cur = parent
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return prefix + pathutil.Separator + strings.Join(names, pathutil.Separator)
}

func (s *Session) childByName(parent *record, name string) (*record, error) {
	for _, id := range parent.children {
		child, err := s.load(id)
		if errors.Is(err, repository.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if child.name == name {
			return child, nil
		}
	}
	return nil, fmt.Errorf("child %s: %w", name, repository.ErrItemNotFound)
}

func (s *Session) resolve(from *record, relPath string) (*record, error) {
	cur := from
	for _, name := range pathutil.Elements(relPath) {
		switch name {
		case ".":
			continue
		case "..":
			if cur.parentID == "" {
				return nil, fmt.Errorf("parent of %s: %w", s.path(cur), repository.ErrItemNotFound)
			}
			parent, err := s.load(cur.parentID)
			if err != nil {
				return nil, err
			}
			cur = parent
		default:
			child, err := s.childByName(cur, name)
			if err != nil {
				return nil, err
			}
			cur = child
		}
	}
	return cur, nil
}

// checkWritable fails when r is part of a frozen copy or lies below a
// checked in versionable node.
func (s *Session) checkWritable(r *record) error {
	if r.frozen {
		return fmt.Errorf("%s: %w", s.path(r), repository.ErrReadOnly)
	}
	for cur := r; ; {
		if cur.isVersionable() && !cur.checkedOut {
			return fmt.Errorf("%s is checked in: %w", s.path(cur), repository.ErrVersion)
		}
		if cur.parentID == "" {
			return nil
		}
		parent, err := s.load(cur.parentID)
		if err != nil {
			return err
		}
		cur = parent
	}
}

func (s *Session) removeSubtree(r *record) error {
	for _, id := range r.children {
		child, err := s.load(id)
		if errors.Is(err, repository.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.removeSubtree(child); err != nil {
			return err
		}
	}

	if !r.frozen {
		for _, v := range r.versions {
			frozen, err := s.load(v.frozenID)
			if errors.Is(err, repository.ErrItemNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := s.removeSubtree(frozen); err != nil {
				return err
			}
		}
	}

	s.removed[r.id] = r.persisted
	delete(s.dirty, r.id)
	delete(s.records, r.id)
	return nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/[]*|") {
		return fmt.Errorf("%w: %q", repository.ErrInvalidName, name)
	}
	return nil
}

func (s *Session) RootNode() (repository.Node, error) {
	r, err := s.load(RootID)
	if err != nil {
		return nil, err
	}
	return s.wrap(r), nil
}

func (s *Session) nodeByPath(absPath string) (*record, error) {
	if !strings.HasPrefix(absPath, pathutil.Separator) {
		return nil, fmt.Errorf("%w: path %q is not absolute", repository.ErrInvalidName, absPath)
	}
	root, err := s.load(RootID)
	if err != nil {
		return nil, err
	}
	r, err := s.resolve(root, absPath)
	if err != nil {
		return nil, fmt.Errorf("path %s: %w", absPath, err)
	}
	return r, nil
}

func (s *Session) NodeByPath(absPath string) (repository.Node, error) {
	r, err := s.nodeByPath(absPath)
	if err != nil {
		return nil, err
	}
	return s.wrap(r), nil
}

func (s *Session) NodeByIdentifier(id string) (repository.Node, error) {
	r, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return s.wrap(r), nil
}

func (s *Session) NodeExists(absPath string) bool {
	_, err := s.nodeByPath(absPath)
	return err == nil
}

// Move relocates the node at srcAbsPath. Moving within the same parent keeps
// the position among the siblings, otherwise the node is appended.
func (s *Session) Move(srcAbsPath, destAbsPath string) error {
	src, err := s.nodeByPath(srcAbsPath)
	if err != nil {
		return err
	}
	if src.id == RootID {
		return fmt.Errorf("%w: cannot move the root node", repository.ErrConstraint)
	}
	if srcAbsPath == destAbsPath {
		return nil
	}

	destParentPath, destName := pathutil.Split(destAbsPath)
	if err := validName(destName); err != nil {
		return err
	}
	if pathutil.IsAncestor(s.path(src), destParentPath) || s.path(src) == destParentPath {
		return fmt.Errorf("%w: cannot move %s below itself", repository.ErrConstraint, srcAbsPath)
	}

	destParent, err := s.nodeByPath(destParentPath)
	if err != nil {
		return err
	}
	if _, err := s.childByName(destParent, destName); err == nil {
		return fmt.Errorf("%s: %w", destAbsPath, repository.ErrItemExists)
	}

	srcParent, err := s.load(src.parentID)
	if err != nil {
		return err
	}
	if err := s.checkWritable(srcParent); err != nil {
		return err
	}
	if err := s.checkWritable(destParent); err != nil {
		return err
	}

	if srcParent.id != destParent.id {
		i := srcParent.childIndex(src.id)
		if i >= 0 {
			srcParent.children = append(srcParent.children[:i], srcParent.children[i+1:]...)
		}
		destParent.children = append(destParent.children, src.id)
		s.markDirty(srcParent)
		s.markDirty(destParent)
	}
	src.parentID = destParent.id
	src.name = destName
	s.markDirty(src)

	s.log.WithFields(logrus.Fields{
		"from": srcAbsPath,
		"to":   destAbsPath,
	}).Debug("node moved")
	return nil
}

// Save writes every staged change in one transaction.
func (s *Session) Save() error {
	if !s.HasPendingChanges() {
		return nil
	}

	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sets := make([]*record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			sets = append(sets, r)
		}
	}

	var deletes []string
	for id, persisted := range s.removed {
		if persisted {
			deletes = append(deletes, id)
		}
	}
	sort.Strings(deletes)

	if err := s.store.commit(sets, deletes); err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}

	for _, r := range sets {
		r.persisted = true
	}
	s.dirty = map[string]bool{}
	s.removed = map[string]bool{}
	return nil
}

func (s *Session) Refresh() {
	s.records = map[string]*record{}
	s.dirty = map[string]bool{}
	s.removed = map[string]bool{}
}

func (s *Session) HasPendingChanges() bool {
	return len(s.dirty) > 0 || len(s.removed) > 0
}
