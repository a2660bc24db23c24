// Package memory provides an in-process persistence.Database. Documents are
// kept in insertion order and queried with the core query processor.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	"go.uber.org/zap"
)

// ErrDuplicateKey is returned when an insert reuses an existing _id.
var ErrDuplicateKey = errors.New("duplicate key")

// Store is a collection held in memory.
type Store struct {
	mu        sync.RWMutex
	namespace string
	docs      []schema.Document
	processor *query.DataProcessor
	logger    *zap.Logger
}

// NewStore creates an empty collection.
func NewStore(namespace string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		namespace: namespace,
		processor: query.NewDataProcessor(logger),
		logger:    logger,
	}
}

// Processor exposes the query processor so custom operators can be
// registered.
func (s *Store) Processor() *query.DataProcessor {
	return s.processor
}

// Namespace returns the collection namespace.
func (s *Store) Namespace() string {
	return s.namespace
}

func findOptions(opts *query.FindOptions) query.FindOptions {
	if opts == nil {
		return query.FindOptions{}
	}
	return *opts
}

func cloneAll(docs []schema.Document) []schema.Document {
	out := make([]schema.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}

// FindOne returns the first matching document or nil.
func (s *Store) FindOne(ctx context.Context, filter query.Filter, opts *query.FindOptions) (schema.Document, error) {
	o := findOptions(opts)
	o.Limit = 1
	s.mu.RLock()
	docs, err := s.processor.Process(ctx, s.docs, filter, o)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0].Clone(), nil
}

// Find returns an iterator over a snapshot of the matching documents.
func (s *Store) Find(ctx context.Context, filter query.Filter, opts *query.FindOptions) (persistence.Iterator, error) {
	s.mu.RLock()
	docs, err := s.processor.Process(ctx, s.docs, filter, findOptions(opts))
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return persistence.NewSliceIterator(cloneAll(docs)), nil
}

// Count returns the number of matching documents.
func (s *Store) Count(ctx context.Context, filter query.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs, err := s.processor.Filter(ctx, s.docs, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// firstMatch returns the index of the first matching document or -1. The
// caller holds the lock.
func (s *Store) firstMatch(ctx context.Context, filter query.Filter) (int, error) {
	for i, doc := range s.docs {
		ok, err := s.processor.Match(ctx, filter, doc)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

func (s *Store) indexOf(id any) int {
	for i, doc := range s.docs {
		if schema.IDsEqual(doc[schema.IDField], id) {
			return i
		}
	}
	return -1
}

// insert adds doc, generating an _id when absent. The caller holds the lock.
func (s *Store) insert(doc schema.Document) (any, error) {
	doc = doc.Clone()
	id, ok := doc[schema.IDField]
	if !ok || id == nil {
		id = schema.NewID()
		doc[schema.IDField] = id
	}
	if s.indexOf(id) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, schema.IDString(id))
	}
	s.docs = append(s.docs, doc)
	return id, nil
}

func acknowledge(res persistence.WriteResult, opts persistence.WriteOptions) persistence.WriteResult {
	if opts.WriteConcern < persistence.Acknowledged {
		return persistence.WriteResult{}
	}
	res.Acknowledged = true
	return res
}

// InsertOne inserts doc.
func (s *Store) InsertOne(ctx context.Context, doc schema.Document, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.insert(doc)
	if err != nil {
		return persistence.WriteResult{}, err
	}
	s.logger.Debug("Inserted document", zap.String("namespace", s.namespace), zap.String("id", schema.IDString(id)))
	return acknowledge(persistence.WriteResult{InsertedID: id, InsertedCount: 1}, opts), nil
}

// ReplaceOne replaces the first matching document, keeping its _id.
func (s *Store) ReplaceOne(ctx context.Context, filter query.Filter, doc schema.Document, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.firstMatch(ctx, filter)
	if err != nil {
		return persistence.WriteResult{}, err
	}
	if idx < 0 {
		if !opts.Upsert {
			return acknowledge(persistence.WriteResult{}, opts), nil
		}
		seed := doc.Clone()
		if _, ok := seed[schema.IDField]; !ok {
			if id, ok := filter[schema.IDField]; ok && schema.IsScalar(id) {
				seed[schema.IDField] = id
			}
		}
		id, err := s.insert(seed)
		if err != nil {
			return persistence.WriteResult{}, err
		}
		return acknowledge(persistence.WriteResult{InsertedID: id, UpsertedCount: 1}, opts), nil
	}

	replacement := doc.Clone()
	replacement[schema.IDField] = s.docs[idx][schema.IDField]
	modified := int64(0)
	if !schema.Equal(map[string]any(replacement), map[string]any(s.docs[idx])) {
		modified = 1
	}
	s.docs[idx] = replacement
	return acknowledge(persistence.WriteResult{MatchedCount: 1, ModifiedCount: modified}, opts), nil
}

// UpdateOne applies a $set/$unset update to the first matching document.
func (s *Store) UpdateOne(ctx context.Context, filter query.Filter, update schema.Document, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.firstMatch(ctx, filter)
	if err != nil {
		return persistence.WriteResult{}, err
	}
	if idx < 0 {
		if !opts.Upsert {
			return acknowledge(persistence.WriteResult{}, opts), nil
		}
		seed := schema.Document{}
		if id, ok := filter[schema.IDField]; ok && schema.IsScalar(id) {
			seed[schema.IDField] = id
		}
		updated, err := query.ApplyUpdate(seed, update)
		if err != nil {
			return persistence.WriteResult{}, err
		}
		id, err := s.insert(updated)
		if err != nil {
			return persistence.WriteResult{}, err
		}
		return acknowledge(persistence.WriteResult{InsertedID: id, UpsertedCount: 1}, opts), nil
	}

	updated, err := query.ApplyUpdate(s.docs[idx], update)
	if err != nil {
		return persistence.WriteResult{}, err
	}
	modified := int64(0)
	if !schema.Equal(map[string]any(updated), map[string]any(s.docs[idx])) {
		modified = 1
	}
	s.docs[idx] = updated
	return acknowledge(persistence.WriteResult{MatchedCount: 1, ModifiedCount: modified}, opts), nil
}

// DeleteOne removes the first matching document.
func (s *Store) DeleteOne(ctx context.Context, filter query.Filter, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.firstMatch(ctx, filter)
	if err != nil {
		return persistence.WriteResult{}, err
	}
	if idx < 0 {
		return acknowledge(persistence.WriteResult{}, opts), nil
	}
	s.docs = append(s.docs[:idx], s.docs[idx+1:]...)
	return acknowledge(persistence.WriteResult{DeletedCount: 1}, opts), nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

var _ persistence.Store = (*Store)(nil)
