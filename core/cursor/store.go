package cursor

import (
	"context"

	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
)

// StoreCursor iterates over documents fetched directly from a store.
type StoreCursor[T any] struct {
	iteration[T]
	store  persistence.Store
	filter query.Filter
	opts   query.FindOptions
}

// NewStoreCursor creates a cursor over the documents in store matching filter.
func NewStoreCursor[T any](store persistence.Store, filter query.Filter, projection query.Projection, hydrate Hydrator[T]) *StoreCursor[T] {
	c := &StoreCursor[T]{
		store:  store,
		filter: filter,
		opts:   query.FindOptions{Projection: projection},
	}
	c.hydrate = hydrate
	c.open = func(ctx context.Context) (persistence.Iterator, error) {
		opts := c.opts
		return c.store.Find(ctx, c.filter, &opts)
	}
	return c
}

// Sort sets the sort order.
func (c *StoreCursor[T]) Sort(sorts ...query.SortConfiguration) Cursor[T] {
	c.opts.Sort = sorts
	return c
}

// Skip sets the number of documents to skip.
func (c *StoreCursor[T]) Skip(n int64) Cursor[T] {
	c.opts.Skip = n
	return c
}

// Limit caps the number of documents returned. Zero means no limit.
func (c *StoreCursor[T]) Limit(n int64) Cursor[T] {
	c.opts.Limit = n
	return c
}

// DisableTimeout asks the store not to expire the server side cursor.
func (c *StoreCursor[T]) DisableTimeout() Cursor[T] {
	c.opts.NoCursorTimeout = true
	return c
}

// SetReadPreference sets the read preference mode passed to the store.
func (c *StoreCursor[T]) SetReadPreference(mode string) Cursor[T] {
	c.opts.ReadPreference = mode
	return c
}

// Count counts the matching documents.
func (c *StoreCursor[T]) Count(ctx context.Context) (int64, error) {
	return c.store.Count(ctx, c.filter)
}

// Fresh discards the underlying iterator.
func (c *StoreCursor[T]) Fresh() {
	c.Rewind()
}

// Options returns a copy of the cursor's find options.
func (c *StoreCursor[T]) Options() query.FindOptions {
	return c.opts
}

var _ Cursor[any] = (*StoreCursor[any])(nil)
