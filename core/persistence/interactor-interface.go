package persistence

import (
	"context"

	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
)

// Write concern levels.
const (
	// Unacknowledged writes are sent without waiting for the store.
	Unacknowledged = 0
	// Acknowledged writes wait for the store to confirm.
	Acknowledged = 1
)

// InteractorOptions provides configuration for table-backed stores.
type InteractorOptions struct {
	// IfNotExists adds IF NOT EXISTS clause to CREATE TABLE statements.
	IfNotExists bool

	// DropIfExists drops a collection's table before creating it the first
	// time the collection is opened.
	DropIfExists bool

	// TablePrefix adds a prefix to all table names.
	TablePrefix string
}

// WriteOptions accompany every write.
type WriteOptions struct {
	// WriteConcern is the acknowledgement level: 0 fire-and-forget, >= 1
	// wait for the store.
	WriteConcern int
	// Upsert inserts the replacement when nothing matches (ReplaceOne and
	// UpdateOne only).
	Upsert bool
}

// WriteResult reports the outcome of a write. When Acknowledged is false the
// counters carry no information.
type WriteResult struct {
	Acknowledged  bool
	InsertedID    any
	InsertedCount int64
	MatchedCount  int64
	ModifiedCount int64
	UpsertedCount int64
	DeletedCount  int64
}

// Iterator walks the documents returned by Find. It must be closed.
type Iterator interface {
	Next(ctx context.Context) bool
	Document() schema.Document
	Err() error
	Close(ctx context.Context) error
}

// Store is a handle on one collection.
type Store interface {
	// Namespace identifies the collection, e.g. "app.users".
	Namespace() string

	// FindOne returns the first matching document or nil when none match.
	FindOne(ctx context.Context, filter query.Filter, opts *query.FindOptions) (schema.Document, error)
	Find(ctx context.Context, filter query.Filter, opts *query.FindOptions) (Iterator, error)
	// Count ignores skip and limit.
	Count(ctx context.Context, filter query.Filter) (int64, error)

	InsertOne(ctx context.Context, doc schema.Document, opts WriteOptions) (WriteResult, error)
	ReplaceOne(ctx context.Context, filter query.Filter, doc schema.Document, opts WriteOptions) (WriteResult, error)
	// UpdateOne applies a {$set, $unset} update document.
	UpdateOne(ctx context.Context, filter query.Filter, update schema.Document, opts WriteOptions) (WriteResult, error)
	DeleteOne(ctx context.Context, filter query.Filter, opts WriteOptions) (WriteResult, error)
}

// Database hands out collection handles.
type Database interface {
	Name() string
	Collection(name string) (Store, error)
	Close(ctx context.Context) error
}

// SliceIterator iterates over documents already in memory.
type SliceIterator struct {
	docs []schema.Document
	pos  int
}

// NewSliceIterator creates an iterator over docs.
func NewSliceIterator(docs []schema.Document) *SliceIterator {
	return &SliceIterator{docs: docs, pos: -1}
}

// Next advances to the next document.
func (it *SliceIterator) Next(ctx context.Context) bool {
	if ctx.Err() != nil || it.pos+1 >= len(it.docs) {
		it.pos = len(it.docs)
		return false
	}
	it.pos++
	return true
}

// Document returns the current document.
func (it *SliceIterator) Document() schema.Document {
	if it.pos < 0 || it.pos >= len(it.docs) {
		return nil
	}
	return it.docs[it.pos]
}

// Err always returns nil.
func (it *SliceIterator) Err() error { return nil }

// Close releases the documents.
func (it *SliceIterator) Close(context.Context) error {
	it.docs = nil
	return nil
}

// Drain reads every remaining document from it and closes it.
func Drain(ctx context.Context, it Iterator) ([]schema.Document, error) {
	defer it.Close(ctx)
	var docs []schema.Document
	for it.Next(ctx) {
		docs = append(docs, it.Document())
	}
	return docs, it.Err()
}
