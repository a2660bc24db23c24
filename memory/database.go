package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/asaidimu/go-odm/core/persistence"
	"go.uber.org/zap"
)

// ErrClosed is returned by a closed database.
var ErrClosed = errors.New("database is closed")

// Database is a set of in-memory collections.
type Database struct {
	mu          sync.Mutex
	name        string
	collections map[string]*Store
	closed      bool
	logger      *zap.Logger
}

// NewDatabase creates an empty database.
func NewDatabase(name string, logger *zap.Logger) *Database {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Database{
		name:        name,
		collections: make(map[string]*Store),
		logger:      logger,
	}
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.name
}

// Collection returns the named collection, creating it on first use.
func (d *Database) Collection(name string) (persistence.Store, error) {
	return d.Store(name)
}

// Store is Collection with the concrete type.
func (d *Database) Store(name string) (*Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	s, ok := d.collections[name]
	if !ok {
		s = NewStore(d.name+"."+name, d.logger)
		d.collections[name] = s
		d.logger.Debug("Created collection", zap.String("namespace", s.Namespace()))
	}
	return s, nil
}

// Close drops every collection.
func (d *Database) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.collections = make(map[string]*Store)
	d.closed = true
	return nil
}

var _ persistence.Database = (*Database)(nil)
