package cursor

import (
	"context"
	"errors"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/asaidimu/go-odm/core/cache"
	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	"go.uber.org/zap"
)

// DocumentLimit is the default number of leading documents of a result set
// held in the cache.
const DocumentLimit = 100

var (
	cacheHits   = metrics.GetOrCreateCounter(`odm_cursor_cache_hits_total`)
	cacheMisses = metrics.GetOrCreateCounter(`odm_cursor_cache_misses_total`)
	cacheErrors = metrics.GetOrCreateCounter(`odm_cursor_cache_errors_total`)
	cacheBypass = metrics.GetOrCreateCounter(`odm_cursor_cache_bypass_total`)
)

// CacheOptions configures a CacheableCursor.
type CacheOptions struct {
	// TTL is the lifetime of cached entries. Zero keeps them until evicted.
	TTL time.Duration
	// DocumentLimit bounds the number of documents cached per query.
	DocumentLimit int64
	Logger        *zap.Logger
}

// DefaultCacheOptions returns the default cache configuration.
func DefaultCacheOptions() *CacheOptions {
	return &CacheOptions{
		TTL:           5 * time.Minute,
		DocumentLimit: DocumentLimit,
	}
}

// CacheableCursor caches the first DocumentLimit documents of a query under a
// key derived from the collection, filter, projection and sort. Skip and limit
// are applied to the cached window; documents past the window are always read
// from the store. Cache failures are logged and treated as misses.
type CacheableCursor[T any] struct {
	iteration[T]
	store   persistence.Store
	backend cache.Backend
	filter  query.Filter
	opts    query.FindOptions
	ttl     time.Duration
	limit   int64
	logger  *zap.Logger

	window []schema.Document
	loaded bool
}

// NewCacheableCursor creates a cursor whose leading results are served from
// backend.
func NewCacheableCursor[T any](
	store persistence.Store,
	backend cache.Backend,
	filter query.Filter,
	projection query.Projection,
	hydrate Hydrator[T],
	opts *CacheOptions,
) *CacheableCursor[T] {
	if opts == nil {
		opts = DefaultCacheOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := opts.DocumentLimit
	if limit <= 0 {
		limit = DocumentLimit
	}

	c := &CacheableCursor[T]{
		store:   store,
		backend: backend,
		filter:  filter,
		opts:    query.FindOptions{Projection: projection},
		ttl:     opts.TTL,
		limit:   limit,
		logger:  logger.With(zap.String("namespace", store.Namespace())),
	}
	c.hydrate = hydrate
	c.open = c.openIterator
	return c
}

// Sort sets the sort order.
func (c *CacheableCursor[T]) Sort(sorts ...query.SortConfiguration) Cursor[T] {
	c.opts.Sort = sorts
	return c
}

// Skip sets the number of documents to skip.
func (c *CacheableCursor[T]) Skip(n int64) Cursor[T] {
	c.opts.Skip = n
	return c
}

// Limit caps the number of documents returned. Zero means no limit.
func (c *CacheableCursor[T]) Limit(n int64) Cursor[T] {
	c.opts.Limit = n
	return c
}

// DisableTimeout asks the store not to expire the server side cursor.
func (c *CacheableCursor[T]) DisableTimeout() Cursor[T] {
	c.opts.NoCursorTimeout = true
	return c
}

// SetReadPreference sets the read preference mode passed to the store.
func (c *CacheableCursor[T]) SetReadPreference(mode string) Cursor[T] {
	c.opts.ReadPreference = mode
	return c
}

// Fresh discards the underlying iterator and the loaded window so the next
// pass consults the cache again.
func (c *CacheableCursor[T]) Fresh() {
	c.Rewind()
	c.window = nil
	c.loaded = false
}

// Key returns the cache key of the cursor's result window.
func (c *CacheableCursor[T]) Key() (string, error) {
	return cache.Key("find", c.store.Namespace(), c.filter, c.opts.Projection, c.opts.Sort)
}

// Count returns the cached count for the filter, querying the store on a
// miss.
func (c *CacheableCursor[T]) Count(ctx context.Context) (int64, error) {
	key, err := cache.Key("count", c.store.Namespace(), c.filter)
	if err != nil {
		c.logger.Warn("Could not derive count cache key", zap.Error(err))
		return c.store.Count(ctx, c.filter)
	}

	if b, ok := c.get(key); ok {
		n, err := cache.DecodeCount(b)
		if err == nil {
			cacheHits.Inc()
			return n, nil
		}
		cacheErrors.Inc()
		c.logger.Warn("Discarding unreadable cached count", zap.String("key", key), zap.Error(err))
	}

	n, err := c.store.Count(ctx, c.filter)
	if err != nil {
		return 0, err
	}
	if b, err := cache.EncodeCount(n); err == nil {
		c.put(key, b)
	}
	return n, nil
}

func (c *CacheableCursor[T]) openIterator(ctx context.Context) (persistence.Iterator, error) {
	skip, limit := c.opts.Skip, c.opts.Limit
	if skip >= c.limit {
		cacheBypass.Inc()
		c.logger.Debug("Offset beyond cached window, reading from store", zap.Int64("skip", skip))
		opts := c.opts
		return c.store.Find(ctx, c.filter, &opts)
	}

	if !c.loaded {
		window, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		c.window = window
		c.loaded = true
	}

	end := int64(len(c.window))
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	var head []schema.Document
	if skip < int64(len(c.window)) {
		head = c.window[skip:end]
	}

	// The window is full and the caller wants more than it holds.
	needsOverflow := int64(len(c.window)) == c.limit && (limit == 0 || skip+limit > c.limit)
	if !needsOverflow {
		return persistence.NewSliceIterator(head), nil
	}

	overflow := c.opts
	overflow.Skip = c.limit
	overflow.Limit = 0
	if limit > 0 {
		overflow.Limit = skip + limit - c.limit
	}
	return &chainIterator{
		head: persistence.NewSliceIterator(head),
		tail: func(ctx context.Context) (persistence.Iterator, error) {
			return c.store.Find(ctx, c.filter, &overflow)
		},
	}, nil
}

// load returns the cached window, fetching and caching it on a miss.
func (c *CacheableCursor[T]) load(ctx context.Context) ([]schema.Document, error) {
	key, err := c.Key()
	if err != nil {
		c.logger.Warn("Could not derive cache key", zap.Error(err))
		return c.fetchWindow(ctx)
	}

	if b, ok := c.get(key); ok {
		docs, err := cache.DecodeDocuments(b)
		if err == nil {
			cacheHits.Inc()
			return docs, nil
		}
		cacheErrors.Inc()
		c.logger.Warn("Discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
	}

	docs, err := c.fetchWindow(ctx)
	if err != nil {
		return nil, err
	}
	b, err := cache.EncodeDocuments(docs)
	if err != nil {
		c.logger.Warn("Could not encode result window", zap.Error(err))
		return docs, nil
	}
	c.put(key, b)
	// Serve the window as a later hit will, so value types do not depend on
	// the cache state.
	if cached, err := cache.DecodeDocuments(b); err == nil {
		return cached, nil
	}
	return docs, nil
}

func (c *CacheableCursor[T]) fetchWindow(ctx context.Context) ([]schema.Document, error) {
	opts := c.opts
	opts.Skip = 0
	opts.Limit = c.limit
	it, err := c.store.Find(ctx, c.filter, &opts)
	if err != nil {
		return nil, err
	}
	return persistence.Drain(ctx, it)
}

func (c *CacheableCursor[T]) get(key string) ([]byte, bool) {
	b, err := c.backend.Get(key)
	switch {
	case err == nil:
		return b, true
	case errors.Is(err, cache.ErrMiss):
		cacheMisses.Inc()
	default:
		cacheErrors.Inc()
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	}
	return nil, false
}

func (c *CacheableCursor[T]) put(key string, b []byte) {
	if err := c.backend.Put(key, b, c.ttl); err != nil {
		cacheErrors.Inc()
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// chainIterator yields the documents of head followed by those of a lazily
// opened tail iterator.
type chainIterator struct {
	head   persistence.Iterator
	tail   opener
	active persistence.Iterator
	err    error
}

func (it *chainIterator) Next(ctx context.Context) bool {
	if it.active == nil {
		if it.head.Next(ctx) {
			return true
		}
		if it.tail == nil {
			return false
		}
		tail, err := it.tail(ctx)
		it.tail = nil
		if err != nil {
			it.err = err
			return false
		}
		it.active = tail
	}
	return it.active.Next(ctx)
}

func (it *chainIterator) Document() schema.Document {
	if it.active != nil {
		return it.active.Document()
	}
	return it.head.Document()
}

func (it *chainIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	if it.active != nil {
		return it.active.Err()
	}
	return it.head.Err()
}

func (it *chainIterator) Close(ctx context.Context) error {
	err := it.head.Close(ctx)
	if it.active != nil {
		if cerr := it.active.Close(ctx); cerr != nil {
			err = cerr
		}
	}
	return err
}

var _ Cursor[any] = (*CacheableCursor[any])(nil)
