// Package cursor provides lazy, replayable iteration over query results,
// materializing raw documents into typed values on demand.
package cursor

import (
	"context"
	"errors"

	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
)

// ErrNoCurrent is returned by Current when the cursor is not positioned on a
// document.
var ErrNoCurrent = errors.New("cursor is not positioned on a document")

// Hydrator turns a raw document into a typed value.
type Hydrator[T any] func(doc schema.Document) (T, error)

// Raw is the identity hydrator.
func Raw(doc schema.Document) (schema.Document, error) {
	return doc, nil
}

// Cursor is a replayable view over a result set. Parameter setters must be
// called before the first iteration; changing them afterwards takes effect
// only after Fresh.
type Cursor[T any] interface {
	Sort(sorts ...query.SortConfiguration) Cursor[T]
	Skip(n int64) Cursor[T]
	Limit(n int64) Cursor[T]
	DisableTimeout() Cursor[T]
	SetReadPreference(mode string) Cursor[T]

	// Count returns the number of matching documents, ignoring skip and
	// limit.
	Count(ctx context.Context) (int64, error)

	// Next advances the cursor. Calling Next after it has returned false
	// starts a new pass over the results.
	Next(ctx context.Context) bool
	Current() (T, error)
	Document() schema.Document
	// Rewind returns to the first document on the next call to Next.
	Rewind()
	// Fresh discards the underlying iterator and any buffered results.
	Fresh()

	// First returns the first result, or the zero T when there is none.
	First(ctx context.Context) (T, error)
	All(ctx context.Context) ([]T, error)
	ToArray(ctx context.Context) ([]schema.Document, error)

	Err() error
	Close(ctx context.Context) error
}

type opener func(ctx context.Context) (persistence.Iterator, error)

// iteration tracks the unstarted, active, exhausted and rewound states
// shared by store backed cursors.
type iteration[T any] struct {
	hydrate Hydrator[T]
	open    opener

	it     persistence.Iterator
	doc    schema.Document
	err    error
	done   bool
	rewind bool
}

func (c *iteration[T]) reset(ctx context.Context) {
	if c.it != nil {
		_ = c.it.Close(ctx)
		c.it = nil
	}
	c.doc = nil
	c.err = nil
	c.done = false
	c.rewind = false
}

func (c *iteration[T]) Next(ctx context.Context) bool {
	if c.done || c.rewind {
		c.reset(ctx)
	}
	if c.it == nil {
		it, err := c.open(ctx)
		if err != nil {
			c.err = err
			c.done = true
			return false
		}
		c.it = it
	}
	if c.it.Next(ctx) {
		c.doc = c.it.Document()
		return true
	}
	c.err = c.it.Err()
	c.doc = nil
	c.done = true
	return false
}

func (c *iteration[T]) Current() (T, error) {
	var zero T
	if c.doc == nil {
		return zero, ErrNoCurrent
	}
	return c.hydrate(c.doc)
}

func (c *iteration[T]) Document() schema.Document {
	return c.doc
}

func (c *iteration[T]) Rewind() {
	c.rewind = true
}

func (c *iteration[T]) Err() error {
	return c.err
}

func (c *iteration[T]) Close(ctx context.Context) error {
	var err error
	if c.it != nil {
		err = c.it.Close(ctx)
		c.it = nil
	}
	c.doc = nil
	c.done = true
	return err
}

func (c *iteration[T]) First(ctx context.Context) (T, error) {
	var zero T
	c.Rewind()
	if !c.Next(ctx) {
		return zero, c.err
	}
	return c.Current()
}

func (c *iteration[T]) All(ctx context.Context) ([]T, error) {
	c.Rewind()
	var out []T
	for c.Next(ctx) {
		v, err := c.Current()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, c.err
}

func (c *iteration[T]) ToArray(ctx context.Context) ([]schema.Document, error) {
	c.Rewind()
	var out []schema.Document
	for c.Next(ctx) {
		out = append(out, c.doc)
	}
	return out, c.err
}
