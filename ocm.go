// Package ocm maps tagged Go structs onto a hierarchical content repository
// persisted in badger.
//
// A handle owns the store and the mapper:
//
//	o, err := ocm.New(ocm.Config{Paths: []string{"/var/lib/ocm"}, CleanNames: true})
//	if err != nil { ... }
//	defer o.Close()
//
//	s, err := o.Login()
//	root, _ := s.RootNode()
//	n, err := o.Mapper().AddNode(root, &article, nil)
//	err = s.Save()
package ocm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/i5heu/ouroboros-ocm/internal/compression"
	"github.com/i5heu/ouroboros-ocm/pkg/logging"
	"github.com/i5heu/ouroboros-ocm/pkg/mapper"
	"github.com/i5heu/ouroboros-ocm/pkg/nodestore"
	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("ocm: handle closed")

// OCM is safe for concurrent use. Sessions obtained from Login are not.
type OCM struct {
	log    *logrus.Logger
	store  *nodestore.Store
	mapper *mapper.Mapper

	mu     sync.RWMutex
	closed bool
}

func New(conf Config) (*OCM, error) {
	if !conf.InMemory && len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	if conf.Logger == nil {
		conf.Logger = logging.New(conf.LogLevel)
	}

	kind, err := compression.ParseKind(conf.Compression)
	if err != nil {
		return nil, err
	}

	store, err := nodestore.Open(nodestore.Config{
		Paths:         conf.Paths,
		InMemory:      conf.InMemory,
		MinimumFreeGB: conf.MinimumFreeGB,
		Compression:   kind,
		Logger:        conf.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening store: %w", err)
	}

	return &OCM{
		log:   conf.Logger,
		store: store,
		mapper: mapper.New(mapper.Options{
			CleanNames:           conf.CleanNames,
			DynamicInstantiation: conf.DynamicInstantiation,
			Logger:               conf.Logger,
		}),
	}, nil
}

// Register makes the struct type of prototype known to the mapper.
func (o *OCM) Register(prototype any, opts ...mapper.TypeOption) error {
	return o.mapper.Register(prototype, opts...)
}

func (o *OCM) Mapper() *mapper.Mapper {
	return o.mapper
}

func (o *OCM) Store() *nodestore.Store {
	return o.store
}

// Login starts a session. It fails once the handle is closed.
func (o *OCM) Login() (*nodestore.Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return nil, ErrClosed
	}
	return o.store.Login(), nil
}

// Close releases the store. Calling Close more than once returns ErrClosed.
func (o *OCM) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.closed = true
	return o.store.Close()
}
