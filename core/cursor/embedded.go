package cursor

import (
	"context"
	"slices"

	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
)

var processor = query.NewDataProcessor(nil)

type entry struct {
	item any
	doc  schema.Document
}

// EmbeddedCursor iterates over an in-memory list. Items may be raw documents
// or values already of type T, which are returned as they are.
type EmbeddedCursor[T any] struct {
	items   []any
	hydrate Hydrator[T]
	filter  query.Filter
	opts    query.FindOptions

	view []entry
	pos  int
	err  error
}

// NewEmbeddedCursor creates a cursor over items.
func NewEmbeddedCursor[T any](items []any, hydrate Hydrator[T]) *EmbeddedCursor[T] {
	return &EmbeddedCursor[T]{
		items:   items,
		hydrate: hydrate,
		pos:     -1,
	}
}

// Where restricts the cursor to items matching filter.
func (c *EmbeddedCursor[T]) Where(filter query.Filter) *EmbeddedCursor[T] {
	c.filter = filter
	c.Fresh()
	return c
}

// Sort sets the sort order.
func (c *EmbeddedCursor[T]) Sort(sorts ...query.SortConfiguration) Cursor[T] {
	c.opts.Sort = sorts
	return c
}

// Skip sets the number of items to skip.
func (c *EmbeddedCursor[T]) Skip(n int64) Cursor[T] {
	c.opts.Skip = n
	return c
}

// Limit caps the number of items returned. Zero means no limit.
func (c *EmbeddedCursor[T]) Limit(n int64) Cursor[T] {
	c.opts.Limit = n
	return c
}

// DisableTimeout has no effect on in-memory cursors.
func (c *EmbeddedCursor[T]) DisableTimeout() Cursor[T] {
	return c
}

// SetReadPreference has no effect on in-memory cursors.
func (c *EmbeddedCursor[T]) SetReadPreference(string) Cursor[T] {
	return c
}

func documentOf(item any) schema.Document {
	if a, ok := item.(schema.Attributable); ok {
		return a.Attributes()
	}
	doc, _ := schema.ToDocument(item)
	return doc
}

func (c *EmbeddedCursor[T]) matching(ctx context.Context) ([]entry, error) {
	out := make([]entry, 0, len(c.items))
	for _, item := range c.items {
		e := entry{item: item, doc: documentOf(item)}
		if len(c.filter) > 0 {
			ok, err := processor.Match(ctx, c.filter, e.doc)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *EmbeddedCursor[T]) build(ctx context.Context) error {
	entries, err := c.matching(ctx)
	if err != nil {
		return err
	}
	if len(c.opts.Sort) > 0 {
		slices.SortStableFunc(entries, func(a, b entry) int {
			for _, s := range c.opts.Sort {
				av, _ := query.Lookup(a.doc, s.Field)
				bv, _ := query.Lookup(b.doc, s.Field)
				if r := query.Compare(av, bv); r != 0 {
					return r * s.Sign()
				}
			}
			return 0
		})
	}
	c.view = query.Page(entries, c.opts.Skip, c.opts.Limit)
	return nil
}

// Count returns the number of matching items, ignoring skip and limit.
func (c *EmbeddedCursor[T]) Count(ctx context.Context) (int64, error) {
	entries, err := c.matching(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

// Next advances the cursor.
func (c *EmbeddedCursor[T]) Next(ctx context.Context) bool {
	if c.view == nil || c.pos >= len(c.view) {
		if err := c.build(ctx); err != nil {
			c.err = err
			c.view = nil
			return false
		}
		c.err = nil
		c.pos = -1
	}
	c.pos++
	return c.pos < len(c.view)
}

// Current returns the current item as a T.
func (c *EmbeddedCursor[T]) Current() (T, error) {
	var zero T
	if c.pos < 0 || c.pos >= len(c.view) {
		return zero, ErrNoCurrent
	}
	e := c.view[c.pos]
	if v, ok := e.item.(T); ok {
		return v, nil
	}
	return c.hydrate(e.doc)
}

// Document returns the current item as a document.
func (c *EmbeddedCursor[T]) Document() schema.Document {
	if c.pos < 0 || c.pos >= len(c.view) {
		return nil
	}
	return c.view[c.pos].doc
}

// Rewind returns to the first item.
func (c *EmbeddedCursor[T]) Rewind() {
	c.pos = -1
}

// Fresh discards the computed view so parameters are applied again.
func (c *EmbeddedCursor[T]) Fresh() {
	c.view = nil
	c.pos = -1
}

// First returns the first item or the zero T.
func (c *EmbeddedCursor[T]) First(ctx context.Context) (T, error) {
	var zero T
	c.Fresh()
	if !c.Next(ctx) {
		return zero, c.err
	}
	return c.Current()
}

// All returns every item as a T.
func (c *EmbeddedCursor[T]) All(ctx context.Context) ([]T, error) {
	c.Fresh()
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

// ToArray returns every item as a document.
func (c *EmbeddedCursor[T]) ToArray(ctx context.Context) ([]schema.Document, error) {
	c.Fresh()
	var out []schema.Document
	for c.Next(ctx) {
		out = append(out, c.Document())
	}
	return out, c.err
}

// Err returns the error that stopped the last pass, if any.
func (c *EmbeddedCursor[T]) Err() error {
	return c.err
}

// Close releases the computed view.
func (c *EmbeddedCursor[T]) Close(context.Context) error {
	c.Fresh()
	return nil
}

var _ Cursor[any] = (*EmbeddedCursor[any])(nil)
