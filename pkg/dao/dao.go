// Package dao offers typed create, read, update and delete operations for
// entities stored as children of one repository path.
package dao

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/i5heu/ouroboros-ocm/pkg/mapper"
	"github.com/i5heu/ouroboros-ocm/pkg/pathutil"
	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/sirupsen/logrus"
)

const (
	// AllFields selects every field of an entity.
	AllFields = "*"
	// Unbounded lifts the depth limit of a read or update.
	Unbounded = -1
)

type Config struct {
	// RootPath is the parent of every entity handled by the DAO. It must
	// exist before the first call.
	RootPath string
	// Mixins are added to every created node. mix:versionable turns on
	// checkin after each write.
	Mixins []string
	Logger *logrus.Logger
}

// Dao is bound to one session and is not safe for concurrent use.
type Dao[T any] struct {
	session  repository.Session
	mapper   *mapper.Mapper
	rootPath string
	mixins   []string
	log      *logrus.Entry
}

func New[T any](session repository.Session, m *mapper.Mapper, conf Config) (*Dao[T], error) {
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}
	if err := m.Register(reflect.TypeOf((*T)(nil)).Elem()); err != nil {
		return nil, err
	}

	rootPath := conf.RootPath
	if rootPath == "" {
		rootPath = pathutil.Separator
	}
	if !strings.HasPrefix(rootPath, pathutil.Separator) {
		rootPath = pathutil.Separator + rootPath
	}
	if len(rootPath) > 1 {
		rootPath = strings.TrimSuffix(rootPath, pathutil.Separator)
	}

	return &Dao[T]{
		session:  session,
		mapper:   m,
		rootPath: rootPath,
		mixins:   append([]string(nil), conf.Mixins...),
		log: conf.Logger.WithFields(logrus.Fields{
			"dao":  reflect.TypeOf((*T)(nil)).Elem().String(),
			"root": rootPath,
		}),
	}, nil
}

func (d *Dao[T]) RootPath() string {
	return d.rootPath
}

func (d *Dao[T]) fullPath(name string) string {
	return pathutil.Join(d.rootPath, d.mapper.NodeName(name))
}

func versionable(n repository.Node) bool {
	return n.IsNodeType(repository.MixinVersionable)
}

// Create adds entity below the root path and saves the session. Versionable
// nodes are checked in afterwards.
func (d *Dao[T]) Create(entity *T) (repository.Node, error) {
	name, err := d.mapper.EntityName(entity)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("error creating entity: %w", mapper.ErrEmptyName)
	}

	parent, err := d.session.NodeByPath(d.rootPath)
	if err != nil {
		return nil, fmt.Errorf("error resolving root path: %w", err)
	}
	n, err := d.mapper.AddNode(parent, entity, d.mixins)
	if err != nil {
		d.session.Refresh()
		return nil, fmt.Errorf("error creating %s: %w", name, err)
	}
	if err := d.session.Save(); err != nil {
		return nil, err
	}
	if err := d.checkin(n); err != nil {
		return nil, err
	}

	d.log.WithField("path", n.Path()).Debug("entity created")
	return n, nil
}

func (d *Dao[T]) checkin(n repository.Node) error {
	if !versionable(n) {
		return nil
	}
	v, err := d.session.Checkin(n)
	if err != nil {
		return fmt.Errorf("error checking in %s: %w", n.Path(), err)
	}
	if err := d.session.Save(); err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{
		"path":    n.Path(),
		"version": v.Name,
	}).Debug("entity checked in")
	return nil
}

// Update writes entity onto the node named after it and returns the node
// name after the update.
func (d *Dao[T]) Update(entity *T, filter string, maxDepth int) (string, error) {
	name, err := d.mapper.EntityName(entity)
	if err != nil {
		return "", err
	}
	return d.UpdateByName(entity, name, filter, maxDepth)
}

// UpdateByName updates the node stored under oldName, renaming it when the
// entity name changed.
func (d *Dao[T]) UpdateByName(entity *T, oldName, filter string, maxDepth int) (string, error) {
	n, err := d.session.NodeByPath(d.fullPath(oldName))
	if err != nil {
		return "", err
	}
	return d.update(n, entity, filter, maxDepth)
}

func (d *Dao[T]) UpdateByPath(entity *T, absPath, filter string, maxDepth int) (string, error) {
	n, err := d.session.NodeByPath(absPath)
	if err != nil {
		return "", err
	}
	return d.update(n, entity, filter, maxDepth)
}

func (d *Dao[T]) UpdateByID(entity *T, id, filter string, maxDepth int) (string, error) {
	n, err := d.session.NodeByIdentifier(id)
	if err != nil {
		return "", err
	}
	return d.update(n, entity, filter, maxDepth)
}

func (d *Dao[T]) update(n repository.Node, entity *T, filter string, maxDepth int) (string, error) {
	if versionable(n) {
		if err := d.session.Checkout(n); err != nil {
			return "", fmt.Errorf("error checking out %s: %w", n.Path(), err)
		}
	}
	name, err := d.mapper.UpdateNode(n, entity, filter, maxDepth)
	if err != nil {
		d.session.Refresh()
		return "", fmt.Errorf("error updating %s: %w", n.Path(), err)
	}
	if err := d.session.Save(); err != nil {
		return "", err
	}
	if err := d.checkin(n); err != nil {
		return "", err
	}
	return name, nil
}

func (d *Dao[T]) Exists(name string) bool {
	return d.session.NodeExists(d.fullPath(name))
}

// Get loads the entity stored under name. A missing entity yields an error
// matching repository.ErrItemNotFound.
func (d *Dao[T]) Get(name, filter string, maxDepth int) (*T, error) {
	return d.GetByPath(d.fullPath(name), filter, maxDepth)
}

func (d *Dao[T]) GetByPath(absPath, filter string, maxDepth int) (*T, error) {
	n, err := d.session.NodeByPath(absPath)
	if err != nil {
		return nil, err
	}
	return mapper.Load[T](d.mapper, n, filter, maxDepth)
}

func (d *Dao[T]) LoadByID(id, filter string, maxDepth int) (*T, error) {
	n, err := d.session.NodeByIdentifier(id)
	if err != nil {
		return nil, err
	}
	return mapper.Load[T](d.mapper, n, filter, maxDepth)
}

func (d *Dao[T]) Delete(name string) error {
	return d.DeleteByPath(d.fullPath(name))
}

func (d *Dao[T]) DeleteByPath(absPath string) error {
	n, err := d.session.NodeByPath(absPath)
	if err != nil {
		return err
	}
	return d.remove(n)
}

func (d *Dao[T]) DeleteByID(id string) error {
	n, err := d.session.NodeByIdentifier(id)
	if err != nil {
		return err
	}
	return d.remove(n)
}

func (d *Dao[T]) remove(n repository.Node) error {
	path := n.Path()
	if err := n.Remove(); err != nil {
		return fmt.Errorf("error removing %s: %w", path, err)
	}
	if err := d.session.Save(); err != nil {
		return err
	}
	d.log.WithField("path", path).Debug("entity removed")
	return nil
}

func (d *Dao[T]) children() ([]repository.Node, error) {
	root, err := d.session.NodeByPath(d.rootPath)
	if err != nil {
		return nil, fmt.Errorf("error resolving root path: %w", err)
	}
	return root.Nodes()
}

// Size returns the number of nodes below the root path.
func (d *Dao[T]) Size() (int, error) {
	nodes, err := d.children()
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// FindAll loads every child of the root path in stored order.
func (d *Dao[T]) FindAll(filter string, maxDepth int) ([]*T, error) {
	return d.FindRange(filter, maxDepth, 0, -1)
}

// FindRange loads at most limit children starting at offset. A negative
// limit loads all remaining children.
func (d *Dao[T]) FindRange(filter string, maxDepth, offset, limit int) ([]*T, error) {
	nodes, err := d.children()
	if err != nil {
		return nil, err
	}
	return d.load(window(nodes, offset, limit), filter, maxDepth)
}

func (d *Dao[T]) load(nodes []repository.Node, filter string, maxDepth int) ([]*T, error) {
	out := make([]*T, 0, len(nodes))
	for _, n := range nodes {
		e, err := mapper.Load[T](d.mapper, n, filter, maxDepth)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", n.Path(), err)
		}
		out = append(out, e)
	}
	return out, nil
}

func window[E any](items []E, offset, limit int) []E {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var errNotVersionable = errors.New("dao: entity is not versionable")

func (d *Dao[T]) versionedNode(name string) (repository.Node, error) {
	n, err := d.session.NodeByPath(d.fullPath(name))
	if err != nil {
		return nil, err
	}
	if !versionable(n) {
		return nil, fmt.Errorf("%s: %w: %w", n.Path(), errNotVersionable, repository.ErrVersion)
	}
	return n, nil
}

// GetVersion loads the entity as it was recorded in versionName.
func (d *Dao[T]) GetVersion(name, versionName, filter string, maxDepth int) (*T, error) {
	n, err := d.versionedNode(name)
	if err != nil {
		return nil, err
	}
	frozen, err := d.session.VersionNode(n, versionName)
	if err != nil {
		return nil, err
	}
	return mapper.Load[T](d.mapper, frozen, filter, maxDepth)
}

// GetVersionList loads every recorded version of the entity, oldest first.
// The root version carries no content and is left out.
func (d *Dao[T]) GetVersionList(name, filter string, maxDepth int) ([]*T, error) {
	return d.GetVersionRange(name, filter, maxDepth, 0, -1)
}

func (d *Dao[T]) GetVersionRange(name, filter string, maxDepth, offset, limit int) ([]*T, error) {
	n, err := d.versionedNode(name)
	if err != nil {
		return nil, err
	}
	versions, err := d.session.Versions(n)
	if err != nil {
		return nil, err
	}

	var frozen []repository.Node
	for _, v := range window(versions[1:], offset, limit) {
		fn, err := d.session.VersionNode(n, v.Name)
		if err != nil {
			return nil, err
		}
		frozen = append(frozen, fn)
	}
	return d.load(frozen, filter, maxDepth)
}

// GetVersionSize returns the number of recorded versions, not counting the
// root version.
func (d *Dao[T]) GetVersionSize(name string) (int, error) {
	n, err := d.versionedNode(name)
	if err != nil {
		return 0, err
	}
	versions, err := d.session.Versions(n)
	if err != nil {
		return 0, err
	}
	return len(versions) - 1, nil
}

func (d *Dao[T]) RestoreVersion(name, versionName string) error {
	n, err := d.versionedNode(name)
	if err != nil {
		return err
	}
	if err := d.session.RestoreVersion(n, versionName); err != nil {
		d.session.Refresh()
		return fmt.Errorf("error restoring %s to %s: %w", n.Path(), versionName, err)
	}
	if err := d.session.Save(); err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{
		"path":    n.Path(),
		"version": versionName,
	}).Debug("entity restored")
	return nil
}

func (d *Dao[T]) RemoveVersion(name, versionName string) error {
	n, err := d.versionedNode(name)
	if err != nil {
		return err
	}
	if err := d.session.RemoveVersion(n, versionName); err != nil {
		return fmt.Errorf("error removing version %s of %s: %w", versionName, n.Path(), err)
	}
	return d.session.Save()
}
