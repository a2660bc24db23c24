package model

import (
	"context"

	"github.com/asaidimu/go-odm/core/cursor"
	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	"go.uber.org/zap"
)

type trashedMode int

const (
	excludeTrashed trashedMode = iota
	withTrashed
	onlyTrashed
)

// Builder reads and writes the documents of one definition.
type Builder struct {
	manager *Manager
	def     *Definition
	store   persistence.Store
	trashed trashedMode
}

// Definition returns the definition the builder serves.
func (b *Builder) Definition() *Definition {
	return b.def
}

// Store returns the collection handle.
func (b *Builder) Store() persistence.Store {
	return b.store
}

// WithTrashed returns a builder whose reads include soft-deleted documents.
func (b *Builder) WithTrashed() *Builder {
	c := *b
	c.trashed = withTrashed
	return &c
}

// OnlyTrashed returns a builder whose reads return only soft-deleted
// documents.
func (b *Builder) OnlyTrashed() *Builder {
	c := *b
	c.trashed = onlyTrashed
	return &c
}

// scope adds the soft-delete condition to filter.
func (b *Builder) scope(filter query.Filter) query.Filter {
	if !b.def.SoftDelete {
		return filter
	}
	field := b.def.deletedAtField()
	switch b.trashed {
	case excludeTrashed:
		return filter.And(query.Filter{field: map[string]any{string(query.ComparisonOperatorExists): false}})
	case onlyTrashed:
		return filter.And(query.Filter{field: map[string]any{string(query.ComparisonOperatorExists): true}})
	default:
		return filter
	}
}

// normalizeFilter accepts filters, plain maps, query builders and shorthand
// ids. Anything that is not a filter is treated as an _id value.
func normalizeFilter(filter any) (query.Filter, *query.FindOptions) {
	switch f := filter.(type) {
	case nil:
		return query.Filter{}, nil
	case query.Filter:
		return f, nil
	case map[string]any:
		return query.Filter(f), nil
	case schema.Document:
		return query.Filter(f), nil
	case *query.QueryBuilder:
		dsl := f.Build()
		return dsl.Filter, &dsl.Options
	case query.QueryDSL:
		return f.Filter, &f.Options
	case *Model:
		return query.IDFilter(f.ID()), nil
	default:
		return query.IDFilter(schema.CanonicalID(f)), nil
	}
}

// isNilFilter reports whether filter is nil, including typed nils such as a
// nil query.Filter or *Model.
func isNilFilter(filter any) bool {
	switch f := filter.(type) {
	case nil:
		return true
	case query.Filter:
		return f == nil
	case map[string]any:
		return f == nil
	case schema.Document:
		return f == nil
	case *query.QueryBuilder:
		return f == nil
	case *Model:
		return f == nil
	}
	return false
}

func (b *Builder) hydrator() cursor.Hydrator[*Model] {
	return func(doc schema.Document) (*Model, error) {
		return b.manager.hydrate(b.def, doc, true)
	}
}

// Where returns a cursor over the matching models. Shorthand ids become
// {_id: id} filters. With useCache, the leading results are served from the
// manager's cache backend when one is configured.
func (b *Builder) Where(filter any, projection query.Projection, useCache bool) (cursor.Cursor[*Model], error) {
	f, opts := normalizeFilter(filter)
	f = b.scope(f)
	if projection == nil && opts != nil {
		projection = opts.Projection
	}

	var c cursor.Cursor[*Model]
	if useCache && b.manager.cache != nil {
		cacheOpts := b.manager.cacheOpts
		c = cursor.NewCacheableCursor(b.store, b.manager.cache, f, projection, b.hydrator(), &cacheOpts)
	} else {
		if useCache {
			b.manager.logger.Debug("No cache backend configured, reading from store",
				zap.String("collection", b.def.Collection))
		}
		c = cursor.NewStoreCursor(b.store, f, projection, b.hydrator())
	}

	if opts != nil {
		if len(opts.Sort) > 0 {
			c.Sort(opts.Sort...)
		}
		if opts.Skip > 0 {
			c.Skip(opts.Skip)
		}
		if opts.Limit > 0 {
			c.Limit(opts.Limit)
		}
		if opts.NoCursorTimeout {
			c.DisableTimeout()
		}
		if opts.ReadPreference != "" {
			c.SetReadPreference(opts.ReadPreference)
		}
	}
	return c, nil
}

// All returns a cursor over every model.
func (b *Builder) All() (cursor.Cursor[*Model], error) {
	return b.Where(query.Filter{}, nil, false)
}

// First returns the first matching model. A nil filter, typed or not, returns
// nil without touching the store; pass an empty filter to match everything.
func (b *Builder) First(ctx context.Context, filter any, projection query.Projection, useCache bool) (*Model, error) {
	if isNilFilter(filter) {
		return nil, nil
	}
	if useCache {
		c, err := b.Where(filter, projection, true)
		if err != nil {
			return nil, err
		}
		return c.First(ctx)
	}

	f, opts := normalizeFilter(filter)
	findOpts := query.FindOptions{Projection: projection}
	if opts != nil {
		findOpts = *opts
		if projection != nil {
			findOpts.Projection = projection
		}
	}
	doc, err := b.store.FindOne(ctx, b.scope(f), &findOpts)
	if err != nil || doc == nil {
		return nil, err
	}
	return b.manager.hydrate(b.def, doc, true)
}

// FirstOrFail is First returning a *NotFoundError when nothing matches.
func (b *Builder) FirstOrFail(ctx context.Context, filter any, projection query.Projection, useCache bool) (*Model, error) {
	m, err := b.First(ctx, filter, projection, useCache)
	if err != nil {
		return nil, err
	}
	if m == nil {
		f, _ := normalizeFilter(filter)
		return nil, &NotFoundError{Collection: b.def.Collection, Filter: f}
	}
	return m, nil
}

// Count counts the matching documents.
func (b *Builder) Count(ctx context.Context, filter any) (int64, error) {
	f, _ := normalizeFilter(filter)
	return b.store.Count(ctx, b.scope(f))
}
