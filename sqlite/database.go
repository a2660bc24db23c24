package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/asaidimu/go-odm/core/persistence"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrClosed is returned by a closed database.
var ErrClosed = errors.New("database is closed")

// Database hands out table-backed collections of one SQLite database.
type Database struct {
	db      *sql.DB
	name    string
	options *persistence.InteractorOptions
	logger  *zap.Logger

	mu     sync.Mutex
	stores map[string]*Store
	closed bool
}

var _ persistence.Database = (*Database)(nil)

// NewDatabase wraps an open connection pool.
func NewDatabase(db *sql.DB, name string, logger *zap.Logger, options *persistence.InteractorOptions) *Database {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultInteractorOptions()
	}
	return &Database{
		db:      db,
		name:    name,
		options: options,
		logger:  logger,
		stores:  make(map[string]*Store),
	}
}

// Open opens the SQLite file at path. ":memory:" opens a private in-memory
// database. The pool is limited to one connection, which in-memory
// databases need and which serializes writers.
func Open(path string, logger *zap.Logger, options *persistence.InteractorOptions) (*Database, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if path == ":memory:" {
		name = "memory"
	}
	return NewDatabase(db, name, logger, options), nil
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.name
}

// Collection returns the named collection, creating its table on first use.
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
	if s, ok := d.stores[name]; ok {
		return s, nil
	}
	if err := d.createCollection(name); err != nil {
		return nil, err
	}
	s := newStore(d.db, d.tableName(name), d.name+"."+name, d.logger)
	d.stores[name] = s
	d.logger.Debug("Opened collection", zap.String("namespace", s.Namespace()), zap.String("table", d.tableName(name)))
	return s, nil
}

// Drop removes a collection and its table.
func (d *Database) Drop(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.stores, name)
	return d.dropCollection(name)
}

// Close closes the connection pool.
func (d *Database) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}
