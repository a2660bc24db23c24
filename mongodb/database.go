package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asaidimu/go-odm/core/persistence"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Database hands out collections of one MongoDB database.
type Database struct {
	db     *mongo.Database
	logger *zap.Logger
	owned  bool

	mu     sync.Mutex
	stores map[string]*Store
}

var _ persistence.Database = (*Database)(nil)

// NewDatabase wraps a database handle. Closing the returned Database does not
// disconnect the client.
func NewDatabase(db *mongo.Database, logger *zap.Logger) *Database {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Database{
		db:     db,
		logger: logger,
		stores: make(map[string]*Store),
	}
}

// Connect dials uri and opens the named database. Closing the returned
// Database disconnects the client.
func Connect(ctx context.Context, uri, name string, logger *zap.Logger) (*Database, error) {
	opts := mopt.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	d := NewDatabase(client.Database(name), logger)
	d.owned = true
	return d, nil
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.db.Name()
}

// Collection returns a handle on the named collection.
func (d *Database) Collection(name string) (persistence.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.stores[name]; ok {
		return s, nil
	}
	s := &Store{
		db:        d.db,
		name:      name,
		namespace: d.db.Name() + "." + name,
		logger:    d.logger,
	}
	d.stores[name] = s
	return s, nil
}

// Close disconnects the client when it was opened by Connect.
func (d *Database) Close(ctx context.Context) error {
	if !d.owned {
		return nil
	}
	return d.db.Client().Disconnect(ctx)
}
