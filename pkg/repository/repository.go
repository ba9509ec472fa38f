// Package repository declares the content repository the mapper works
// against: a tree of named nodes carrying typed properties, with mixins,
// references, binary content and a version history per node.
package repository

import (
	"errors"
	"time"
)

const (
	NodeTypeBase         = "nt:base"
	NodeTypeUnstructured = "nt:unstructured"
	NodeTypeFolder       = "nt:folder"
	NodeTypeFile         = "nt:file"
	NodeTypeResource     = "nt:resource"

	MixinReferenceable = "mix:referenceable"
	MixinVersionable   = "mix:versionable"
	MixinLockable      = "mix:lockable"
	MixinCreated       = "mix:created"
	MixinLastModified  = "mix:lastModified"
	MixinTitle         = "mix:title"

	PropertyUUID         = "jcr:uuid"
	PropertyCreated      = "jcr:created"
	PropertyPrimaryType  = "jcr:primaryType"
	PropertyMixinTypes   = "jcr:mixinTypes"
	PropertyData         = "jcr:data"
	PropertyMimeType     = "jcr:mimeType"
	PropertyLastModified = "jcr:lastModified"
	PropertyEncoding     = "jcr:encoding"

	NodeContent = "jcr:content"
	NodeFrozen  = "jcr:frozenNode"

	// RootVersionName names the version every versionable node starts with.
	// It carries no content.
	RootVersionName = "jcr:rootVersion"
)

var (
	ErrItemNotFound = errors.New("repository: item not found")
	ErrItemExists   = errors.New("repository: item exists")
	ErrConstraint   = errors.New("repository: constraint violation")
	ErrVersion      = errors.New("repository: version exception")
	ErrReadOnly     = errors.New("repository: item is read-only")
	ErrValueFormat  = errors.New("repository: value format")
	ErrInvalidName  = errors.New("repository: invalid name")
)

// Version describes one entry of a node's version history.
type Version struct {
	Name    string
	Created time.Time
}

// Node is a named entry of the repository tree. Changes made through a Node
// are staged in its Session and become durable with Session.Save.
type Node interface {
	Name() string
	Path() string
	// Identifier is stable for the lifetime of the node and survives moves.
	Identifier() string
	PrimaryType() string
	Session() Session
	Parent() (Node, error)

	// AddNode creates a child. An empty primaryType selects nt:unstructured.
	AddNode(name, primaryType string) (Node, error)
	// Node resolves a relative path below this node.
	Node(relPath string) (Node, error)
	HasNode(relPath string) bool
	// Nodes returns the children in stored order.
	Nodes() ([]Node, error)
	Remove() error

	Properties() ([]Property, error)
	Property(name string) (Property, error)
	HasProperty(name string) bool
	SetProperty(name string, value Value) error
	SetMultiProperty(name string, values []Value) error
	RemoveProperty(name string) error

	Mixins() []string
	CanAddMixin(name string) bool
	AddMixin(name string) error
	IsNodeType(name string) bool

	IsCheckedOut() (bool, error)
	// BaseVersion is the version the node is currently based on. It fails
	// with ErrVersion when the node is not versionable.
	BaseVersion() (Version, error)
	// FrozenVersion reports the version a frozen node belongs to. ok is false
	// for nodes that are not the root of a frozen copy.
	FrozenVersion() (version Version, ok bool)
}

// Session is a unit of work against the repository.
type Session interface {
	RootNode() (Node, error)
	NodeByPath(absPath string) (Node, error)
	NodeByIdentifier(id string) (Node, error)
	NodeExists(absPath string) bool
	Move(srcAbsPath, destAbsPath string) error

	Save() error
	// Refresh drops every staged change.
	Refresh()
	HasPendingChanges() bool

	Checkin(n Node) (Version, error)
	Checkout(n Node) error
	// Versions lists the history of n, starting with the root version.
	Versions(n Node) ([]Version, error)
	VersionNode(n Node, versionName string) (Node, error)
	RestoreVersion(n Node, versionName string) error
	RemoveVersion(n Node, versionName string) error
}
