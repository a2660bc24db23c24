package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asaidimu/go-odm/core/cache"
	"github.com/asaidimu/go-odm/core/cursor"
	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/schema"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// ManagerOptions configures a Manager. Nil fields get defaults.
type ManagerOptions struct {
	// Schemas resolves nested schemas and directive functions.
	Schemas *schema.Registry
	// Dispatcher delivers lifecycle events.
	Dispatcher *persistence.Dispatcher
	// Cache backs cacheable cursors. Without it, cacheable reads go to the
	// store.
	Cache         cache.Backend
	CacheTTL      time.Duration
	DocumentLimit int64
	Logger        *zap.Logger
}

// DefaultManagerOptions returns options with an in-memory cache.
func DefaultManagerOptions() *ManagerOptions {
	defaults := cursor.DefaultCacheOptions()
	return &ManagerOptions{
		Cache:         cache.NewMemoryBackend(cache.DefaultMemorySize),
		CacheTTL:      defaults.TTL,
		DocumentLimit: defaults.DocumentLimit,
	}
}

// Manager is the entry point of the mapper. It owns the registered
// definitions and hands out builders bound to their collections.
type Manager struct {
	db         persistence.Database
	registry   *schema.Registry
	mapper     *schema.Mapper
	dispatcher *persistence.Dispatcher
	cache      cache.Backend
	cacheOpts  cursor.CacheOptions
	logger     *zap.Logger

	mu          sync.RWMutex
	definitions map[string]*Definition
	stores      map[string]persistence.Store
}

// NewManager creates a manager over db.
func NewManager(db persistence.Database, opts *ManagerOptions) (*Manager, error) {
	if opts == nil {
		opts = DefaultManagerOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Schemas
	if registry == nil {
		registry = schema.NewRegistry(logger)
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		d, err := persistence.NewDispatcher(logger)
		if err != nil {
			return nil, err
		}
		dispatcher = d
	}
	limit := opts.DocumentLimit
	if limit <= 0 {
		limit = cursor.DocumentLimit
	}

	return &Manager{
		db:         db,
		registry:   registry,
		mapper:     schema.NewMapper(registry, logger),
		dispatcher: dispatcher,
		cache:      opts.Cache,
		cacheOpts: cursor.CacheOptions{
			TTL:           opts.CacheTTL,
			DocumentLimit: limit,
			Logger:        logger,
		},
		logger:      logger,
		definitions: make(map[string]*Definition),
		stores:      make(map[string]persistence.Store),
	}, nil
}

// Schemas returns the schema registry.
func (m *Manager) Schemas() *schema.Registry {
	return m.registry
}

// Mapper returns the schema mapper.
func (m *Manager) Mapper() *schema.Mapper {
	return m.mapper
}

// Dispatcher returns the lifecycle event dispatcher.
func (m *Manager) Dispatcher() *persistence.Dispatcher {
	return m.dispatcher
}

// Listen registers a synchronous lifecycle listener.
func (m *Manager) Listen(event persistence.PersistenceEventType, callback persistence.EventCallbackFunction) {
	m.dispatcher.Listen(event, callback)
}

// Register adds a definition. Its schema is registered with the schema
// registry and every directive must resolve.
func (m *Manager) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	if err := def.validate(); err != nil {
		return err
	}
	if def.Schema != nil {
		if def.Schema.Name == "" {
			def.Schema.Name = def.Name
		}
		if err := m.registry.Register(def.Schema); err != nil {
			return err
		}
		if err := m.registry.Validate(def.Schema); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.Name] = def
	m.logger.Debug("Registered model definition",
		zap.String("model", def.Name),
		zap.String("collection", def.Collection),
		zap.Int("relations", len(def.Relations)))
	return nil
}

// Definition returns the definition registered under name.
func (m *Manager) Definition(name string) (*Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDefinition, name)
	}
	return def, nil
}

// New creates an empty model.
func (m *Manager) New(name string) (*Model, error) {
	def, err := m.Definition(name)
	if err != nil {
		return nil, err
	}
	return newModel(m, def), nil
}

// Make creates a model and mass-assigns attrs.
func (m *Manager) Make(name string, attrs map[string]any) (*Model, error) {
	mdl, err := m.New(name)
	if err != nil {
		return nil, err
	}
	mdl.Fill(attrs, false)
	return mdl, nil
}

// Hydrate builds a persisted model from a stored document.
func (m *Manager) Hydrate(name string, doc schema.Document) (*Model, error) {
	def, err := m.Definition(name)
	if err != nil {
		return nil, err
	}
	return m.hydrate(def, doc, true)
}

// hydrate builds a model for doc, letting Classify pick the definition.
func (m *Manager) hydrate(def *Definition, doc schema.Document, persisted bool) (*Model, error) {
	if def.Classify != nil {
		if variant := def.Classify(doc); variant != "" && variant != def.Name {
			v, err := m.Definition(variant)
			if err != nil {
				return nil, fmt.Errorf("classify %q: %w", def.Name, err)
			}
			def = v
		}
	}
	mdl := newModel(m, def)
	mdl.Replace(doc.Clone())
	mdl.SyncOriginal()
	mdl.persists = persisted
	return mdl, nil
}

// Query returns a builder for the named definition.
func (m *Manager) Query(name string) (*Builder, error) {
	def, err := m.Definition(name)
	if err != nil {
		return nil, err
	}
	return m.builder(def)
}

func (m *Manager) builder(def *Definition) (*Builder, error) {
	store, err := m.store(def)
	if err != nil {
		return nil, err
	}
	return &Builder{manager: m, def: def, store: store}, nil
}

func (m *Manager) store(def *Definition) (persistence.Store, error) {
	if def.Collection == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCollection, def.Name)
	}

	m.mu.RLock()
	s, ok := m.stores[def.Collection]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[def.Collection]; ok {
		return s, nil
	}
	raw, err := m.db.Collection(def.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", def.Collection, err)
	}
	s = persistence.NewExecutor(raw, m.logger)
	m.stores[def.Collection] = s
	return s, nil
}

// Close closes the database and, when it can be closed, the cache backend.
func (m *Manager) Close(ctx context.Context) error {
	var errs *multierror.Error
	if err := m.db.Close(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if closer, ok := m.cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
