package nodestore

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/sirupsen/logrus"
)

func rootVersion(r *record) repository.Version {
	return repository.Version{Name: repository.RootVersionName, Created: time.Unix(0, r.created)}
}

func toVersion(v versionRecord) repository.Version {
	return repository.Version{Name: v.name, Created: time.Unix(0, v.created)}
}

func (s *Session) versionable(n repository.Node) (*record, error) {
	_, r, err := s.unwrap(n)
	if err != nil {
		return nil, err
	}
	if r.frozen {
		return nil, fmt.Errorf("%s: %w", s.path(r), repository.ErrReadOnly)
	}
	if !r.isVersionable() {
		return nil, fmt.Errorf("%s is not versionable: %w", s.path(r), repository.ErrVersion)
	}
	return r, nil
}

// Checkin freezes the subtree of n into a new version and marks n checked
// in. Checking in a checked in node returns its base version.
func (s *Session) Checkin(n repository.Node) (repository.Version, error) {
	r, err := s.versionable(n)
	if err != nil {
		return repository.Version{}, err
	}
	if !r.checkedOut {
		return s.wrap(r).BaseVersion()
	}

	name := fmt.Sprintf("1.%d", r.nextVersion)
	created := time.Now().UnixNano()

	frozenID, err := s.freeze(r, r.id, "", name, created)
	if err != nil {
		return repository.Version{}, fmt.Errorf("error freezing %s: %w", s.path(r), err)
	}

	v := versionRecord{name: name, created: created, frozenID: frozenID}
	r.versions = append(r.versions, v)
	r.nextVersion++
	r.baseVersion = name
	r.checkedOut = false
	s.markDirty(r)

	s.log.WithFields(logrus.Fields{
		"path":    s.path(r),
		"version": name,
	}).Debug("node checked in")

	return toVersion(v), nil
}

// freeze copies src and its subtree into read-only records. The root of the
// copy carries the version facts.
func (s *Session) freeze(src *record, versionableID, parentID, versionName string, created int64) (string, error) {
	cp := newRecord(uuid.NewString(), src.name, parentID, src.primaryType)
	cp.mixins = append([]string(nil), src.mixins...)
	cp.created = src.created
	cp.checkedOut = false
	cp.frozen = true
	cp.frozenUUID = src.id
	for name, p := range src.properties {
		cp.properties[name] = cloneProperty(p)
	}
	if parentID == "" {
		cp.name = repository.NodeFrozen
		cp.frozenOf = versionableID
		cp.frozenVersion = versionName
		cp.frozenCreated = created
	}

	for _, id := range src.children {
		child, err := s.load(id)
		if errors.Is(err, repository.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		childID, err := s.freeze(child, versionableID, cp.id, versionName, created)
		if err != nil {
			return "", err
		}
		cp.children = append(cp.children, childID)
	}

	s.put(cp)
	return cp.id, nil
}

func (s *Session) Checkout(n repository.Node) error {
	r, err := s.versionable(n)
	if err != nil {
		return err
	}
	if r.checkedOut {
		return nil
	}
	r.checkedOut = true
	s.markDirty(r)
	return nil
}

func (s *Session) Versions(n repository.Node) ([]repository.Version, error) {
	r, err := s.versionable(n)
	if err != nil {
		return nil, err
	}
	out := make([]repository.Version, 0, len(r.versions)+1)
	out = append(out, rootVersion(r))
	for _, v := range r.versions {
		out = append(out, toVersion(v))
	}
	return out, nil
}

// VersionNode returns the frozen copy of version versionName. The root
// version has no content.
func (s *Session) VersionNode(n repository.Node, versionName string) (repository.Node, error) {
	r, err := s.versionable(n)
	if err != nil {
		return nil, err
	}
	v, ok := r.version(versionName)
	if !ok {
		return nil, fmt.Errorf("version %s of %s: %w", versionName, s.path(r), repository.ErrItemNotFound)
	}
	frozen, err := s.load(v.frozenID)
	if err != nil {
		return nil, err
	}
	return s.wrap(frozen), nil
}

// RestoreVersion replaces properties and children of n with the content of
// the version. Restored nodes keep their former identifiers when these are
// free. n is checked in afterwards.
func (s *Session) RestoreVersion(n repository.Node, versionName string) error {
	r, err := s.versionable(n)
	if err != nil {
		return err
	}
	if versionName == repository.RootVersionName {
		return fmt.Errorf("cannot restore the root version of %s: %w", s.path(r), repository.ErrVersion)
	}
	v, ok := r.version(versionName)
	if !ok {
		return fmt.Errorf("version %s of %s: %w", versionName, s.path(r), repository.ErrItemNotFound)
	}
	frozen, err := s.load(v.frozenID)
	if err != nil {
		return err
	}

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
	r.children = nil

	r.primaryType = frozen.primaryType
	r.mixins = append([]string(nil), frozen.mixins...)
	r.properties = map[string]*propertyRecord{}
	for name, p := range frozen.properties {
		r.properties[name] = cloneProperty(p)
	}

	for _, id := range frozen.children {
		fc, err := s.load(id)
		if err != nil {
			return err
		}
		childID, err := s.thaw(fc, r.id)
		if err != nil {
			return err
		}
		r.children = append(r.children, childID)
	}

	r.baseVersion = versionName
	r.checkedOut = false
	s.markDirty(r)

	s.log.WithFields(logrus.Fields{
		"path":    s.path(r),
		"version": versionName,
	}).Debug("version restored")
	return nil
}

func (s *Session) thaw(src *record, parentID string) (string, error) {
	id := src.frozenUUID
	if id == "" {
		id = uuid.NewString()
	} else if _, removed := s.removed[id]; !removed {
		if _, err := s.load(id); err == nil {
			id = uuid.NewString()
		} else if !errors.Is(err, repository.ErrItemNotFound) {
			return "", err
		}
	}

	cp := newRecord(id, src.name, parentID, src.primaryType)
	cp.mixins = append([]string(nil), src.mixins...)
	cp.created = src.created
	for name, p := range src.properties {
		cp.properties[name] = cloneProperty(p)
	}
	if persisted, removed := s.removed[id]; removed {
		cp.persisted = persisted
	}

	for _, childID := range src.children {
		fc, err := s.load(childID)
		if err != nil {
			return "", err
		}
		newID, err := s.thaw(fc, cp.id)
		if err != nil {
			return "", err
		}
		cp.children = append(cp.children, newID)
	}

	s.put(cp)
	return cp.id, nil
}

// RemoveVersion drops a version and its frozen content. The root version and
// the base version cannot be removed.
func (s *Session) RemoveVersion(n repository.Node, versionName string) error {
	r, err := s.versionable(n)
	if err != nil {
		return err
	}
	if versionName == repository.RootVersionName || versionName == r.baseVersion {
		return fmt.Errorf("cannot remove version %s of %s: %w", versionName, s.path(r), repository.ErrVersion)
	}

	idx := -1
	for i, v := range r.versions {
		if v.name == versionName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("version %s of %s: %w", versionName, s.path(r), repository.ErrItemNotFound)
	}

	frozen, err := s.load(r.versions[idx].frozenID)
	if err == nil {
		if err := s.removeSubtree(frozen); err != nil {
			return err
		}
	} else if !errors.Is(err, repository.ErrItemNotFound) {
		return err
	}

	r.versions = append(r.versions[:idx], r.versions[idx+1:]...)
	s.markDirty(r)
	return nil
}
