// Package sqlite stores collections in SQLite. Each collection is a table of
// BSON-encoded documents keyed by their _id; filters, sorting and projection
// are evaluated with the core query processor.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrDuplicateKey is returned when an insert reuses an existing _id.
var ErrDuplicateKey = errors.New("duplicate key")

// dbRunner abstracts the methods shared by *sql.DB and *sql.Tx, so reads can
// run inside the transaction of a write.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a collection backed by one SQLite table.
type Store struct {
	db        *sql.DB
	table     string
	namespace string
	processor *query.DataProcessor
	logger    *zap.Logger
}

var _ persistence.Store = (*Store)(nil)

func newStore(db *sql.DB, table, namespace string, logger *zap.Logger) *Store {
	return &Store{
		db:        db,
		table:     quoteIdentifier(table),
		namespace: namespace,
		processor: query.NewDataProcessor(logger),
		logger:    logger,
	}
}

// Namespace returns the collection namespace.
func (s *Store) Namespace() string {
	return s.namespace
}

// Processor exposes the query processor so custom operators can be
// registered.
func (s *Store) Processor() *query.DataProcessor {
	return s.processor
}

type row struct {
	key string
	doc schema.Document
}

// idOnly returns the encoded key when filter is a plain {_id: value} lookup.
func idOnly(filter query.Filter) (string, bool) {
	if len(filter) != 1 {
		return "", false
	}
	id, ok := filter[schema.IDField]
	if !ok {
		return "", false
	}
	switch id.(type) {
	case primitive.ObjectID:
	default:
		if !schema.IsScalar(id) {
			return "", false
		}
	}
	key, err := idKey(id)
	return key, err == nil
}

// rows loads the candidate rows of filter in insertion order. A plain _id
// lookup reads a single row; any other filter scans the table and leaves
// matching to the caller.
func (s *Store) rows(ctx context.Context, r dbRunner, filter query.Filter) ([]row, error) {
	stmt := fmt.Sprintf("SELECT id, document FROM %s ORDER BY seq", s.table)
	var args []any
	if key, ok := idOnly(filter); ok {
		stmt = fmt.Sprintf("SELECT id, document FROM %s WHERE id = ?", s.table)
		args = append(args, key)
	}

	s.logger.Debug("Executing SQL SELECT", zap.String("sql", stmt), zap.Any("params", args))
	rs, err := r.QueryContext(ctx, stmt, args...)
	if err != nil {
		s.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", stmt))
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	defer rs.Close()

	var out []row
	for rs.Next() {
		var (
			key  string
			blob []byte
		)
		if err := rs.Scan(&key, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		doc, err := decodeDocument(blob)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", key, err)
		}
		out = append(out, row{key: key, doc: doc})
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return out, nil
}

func (s *Store) documents(ctx context.Context, filter query.Filter) ([]schema.Document, error) {
	rows, err := s.rows(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	docs := make([]schema.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.doc
	}
	return docs, nil
}

func findOptions(opts *query.FindOptions) query.FindOptions {
	if opts == nil {
		return query.FindOptions{}
	}
	return *opts
}

// FindOne returns the first matching document or nil.
func (s *Store) FindOne(ctx context.Context, filter query.Filter, opts *query.FindOptions) (schema.Document, error) {
	docs, err := s.documents(ctx, filter)
	if err != nil {
		return nil, err
	}
	o := findOptions(opts)
	o.Limit = 1
	docs, err = s.processor.Process(ctx, docs, filter, o)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Find returns an iterator over the matching documents.
func (s *Store) Find(ctx context.Context, filter query.Filter, opts *query.FindOptions) (persistence.Iterator, error) {
	docs, err := s.documents(ctx, filter)
	if err != nil {
		return nil, err
	}
	docs, err = s.processor.Process(ctx, docs, filter, findOptions(opts))
	if err != nil {
		return nil, err
	}
	return persistence.NewSliceIterator(docs), nil
}

// Count returns the number of matching documents. An empty filter is
// counted by SQLite.
func (s *Store) Count(ctx context.Context, filter query.Filter) (int64, error) {
	if len(filter) == 0 {
		var n int64
		stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)
		if err := s.db.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to count documents: %w", err)
		}
		return n, nil
	}
	docs, err := s.documents(ctx, filter)
	if err != nil {
		return 0, err
	}
	docs, err = s.processor.Filter(ctx, docs, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func acknowledge(res persistence.WriteResult, opts persistence.WriteOptions) persistence.WriteResult {
	if opts.WriteConcern < persistence.Acknowledged {
		return persistence.WriteResult{}
	}
	res.Acknowledged = true
	return res
}

func duplicate(err error, id any) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, schema.IDString(id))
	}
	return err
}

// insert writes doc, generating an _id when absent.
func (s *Store) insert(ctx context.Context, r dbRunner, doc schema.Document) (any, error) {
	doc = doc.Clone()
	id, ok := doc[schema.IDField]
	if !ok || id == nil {
		id = schema.NewID()
		doc[schema.IDField] = id
	}
	key, err := idKey(id)
	if err != nil {
		return nil, err
	}
	blob, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("INSERT INTO %s (id, document) VALUES (?, ?)", s.table)
	s.logger.Debug("Executing SQL INSERT", zap.String("sql", stmt), zap.String("id", key))
	if _, err := r.ExecContext(ctx, stmt, key, blob); err != nil {
		s.logger.Error("Failed to execute INSERT query", zap.Error(err), zap.String("sql", stmt))
		return nil, duplicate(err, id)
	}
	return id, nil
}

// write replaces the row stored under key with doc.
func (s *Store) write(ctx context.Context, r dbRunner, key string, doc schema.Document) error {
	newKey, err := idKey(doc[schema.IDField])
	if err != nil {
		return err
	}
	blob, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("UPDATE %s SET id = ?, document = ? WHERE id = ?", s.table)
	s.logger.Debug("Executing SQL UPDATE", zap.String("sql", stmt), zap.String("id", key))
	if _, err := r.ExecContext(ctx, stmt, newKey, blob, key); err != nil {
		s.logger.Error("Failed to execute UPDATE query", zap.Error(err), zap.String("sql", stmt))
		return duplicate(err, doc[schema.IDField])
	}
	return nil
}

// firstMatch returns the first row matching filter, or nil.
func (s *Store) firstMatch(ctx context.Context, r dbRunner, filter query.Filter) (*row, error) {
	rows, err := s.rows(ctx, r, filter)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		ok, err := s.processor.Match(ctx, filter, rows[i].doc)
		if err != nil {
			return nil, err
		}
		if ok {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// inTx runs fn in a transaction, committing when it returns no error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) (persistence.WriteResult, error)) (persistence.WriteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.WriteResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	res, err := fn(tx)
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.Warn("Failed to roll back transaction", zap.Error(rerr))
		}
		return persistence.WriteResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return persistence.WriteResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

// InsertOne inserts doc.
func (s *Store) InsertOne(ctx context.Context, doc schema.Document, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	id, err := s.insert(ctx, s.db, doc)
	if err != nil {
		return persistence.WriteResult{}, err
	}
	return acknowledge(persistence.WriteResult{InsertedID: id, InsertedCount: 1}, opts), nil
}

// upsertSeed returns the _id an upsert should use when filter pins one.
func upsertSeed(filter query.Filter) schema.Document {
	seed := schema.Document{}
	if id, ok := filter[schema.IDField]; ok {
		if _, isOID := id.(primitive.ObjectID); isOID || schema.IsScalar(id) {
			seed[schema.IDField] = id
		}
	}
	return seed
}

// ReplaceOne replaces the first matching document, keeping its _id.
func (s *Store) ReplaceOne(ctx context.Context, filter query.Filter, doc schema.Document, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (persistence.WriteResult, error) {
		match, err := s.firstMatch(ctx, tx, filter)
		if err != nil {
			return persistence.WriteResult{}, err
		}
		if match == nil {
			if !opts.Upsert {
				return acknowledge(persistence.WriteResult{}, opts), nil
			}
			seed := doc.Clone()
			if _, ok := seed[schema.IDField]; !ok {
				for k, v := range upsertSeed(filter) {
					seed[k] = v
				}
			}
			id, err := s.insert(ctx, tx, seed)
			if err != nil {
				return persistence.WriteResult{}, err
			}
			return acknowledge(persistence.WriteResult{InsertedID: id, UpsertedCount: 1}, opts), nil
		}

		replacement := doc.Clone()
		replacement[schema.IDField] = match.doc[schema.IDField]
		modified := int64(0)
		if !schema.Equal(map[string]any(replacement), map[string]any(match.doc)) {
			modified = 1
			if err := s.write(ctx, tx, match.key, replacement); err != nil {
				return persistence.WriteResult{}, err
			}
		}
		return acknowledge(persistence.WriteResult{MatchedCount: 1, ModifiedCount: modified}, opts), nil
	})
}

// UpdateOne applies a $set/$unset update to the first matching document.
func (s *Store) UpdateOne(ctx context.Context, filter query.Filter, update schema.Document, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (persistence.WriteResult, error) {
		match, err := s.firstMatch(ctx, tx, filter)
		if err != nil {
			return persistence.WriteResult{}, err
		}
		if match == nil {
			if !opts.Upsert {
				return acknowledge(persistence.WriteResult{}, opts), nil
			}
			updated, err := query.ApplyUpdate(upsertSeed(filter), update)
			if err != nil {
				return persistence.WriteResult{}, err
			}
			id, err := s.insert(ctx, tx, updated)
			if err != nil {
				return persistence.WriteResult{}, err
			}
			return acknowledge(persistence.WriteResult{InsertedID: id, UpsertedCount: 1}, opts), nil
		}

		updated, err := query.ApplyUpdate(match.doc, update)
		if err != nil {
			return persistence.WriteResult{}, err
		}
		modified := int64(0)
		if !schema.Equal(map[string]any(updated), map[string]any(match.doc)) {
			modified = 1
			if err := s.write(ctx, tx, match.key, updated); err != nil {
				return persistence.WriteResult{}, err
			}
		}
		return acknowledge(persistence.WriteResult{MatchedCount: 1, ModifiedCount: modified}, opts), nil
	})
}

// DeleteOne removes the first matching document.
func (s *Store) DeleteOne(ctx context.Context, filter query.Filter, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (persistence.WriteResult, error) {
		match, err := s.firstMatch(ctx, tx, filter)
		if err != nil {
			return persistence.WriteResult{}, err
		}
		if match == nil {
			return acknowledge(persistence.WriteResult{}, opts), nil
		}
		stmt := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table)
		s.logger.Debug("Executing SQL DELETE", zap.String("sql", stmt), zap.String("id", match.key))
		if _, err := tx.ExecContext(ctx, stmt, match.key); err != nil {
			s.logger.Error("Failed to execute DELETE query", zap.Error(err), zap.String("sql", stmt))
			return persistence.WriteResult{}, fmt.Errorf("failed to execute DELETE query: %w", err)
		}
		return acknowledge(persistence.WriteResult{DeletedCount: 1}, opts), nil
	})
}
