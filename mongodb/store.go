// Package mongodb stores collections in MongoDB. Filters and update documents
// are passed through unchanged; write concern and read preference are
// applied per operation.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	"github.com/asaidimu/go-odm/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

// ErrDuplicateKey is returned when an insert reuses an existing _id.
var ErrDuplicateKey = errors.New("duplicate key")

// Store is a handle on one MongoDB collection.
type Store struct {
	db        *mongo.Database
	name      string
	namespace string
	logger    *zap.Logger
}

var _ persistence.Store = (*Store)(nil)

// Namespace returns "database.collection".
func (s *Store) Namespace() string {
	return s.namespace
}

// coll returns the collection configured with the given write concern and
// read preference. A nil argument keeps the database default.
func (s *Store) coll(wc *writeconcern.WriteConcern, rp *readpref.ReadPref) *mongo.Collection {
	opts := mopt.Collection()
	if wc != nil {
		opts.SetWriteConcern(wc)
	}
	if rp != nil {
		opts.SetReadPreference(rp)
	}
	return s.db.Collection(s.name, opts)
}

// writeConcern maps the numeric acknowledgement level onto the driver's.
func writeConcern(level int) *writeconcern.WriteConcern {
	if level < persistence.Acknowledged {
		return writeconcern.Unacknowledged()
	}
	return &writeconcern.WriteConcern{W: level}
}

// readPreference parses a mode name such as "secondaryPreferred". The empty
// string keeps the default.
func readPreference(mode string) (*readpref.ReadPref, error) {
	if mode == "" {
		return nil, nil
	}
	m, err := readpref.ModeFromString(mode)
	if err != nil {
		return nil, fmt.Errorf("invalid read preference %q: %w", mode, err)
	}
	return readpref.New(m)
}

// sortDocument converts sort configurations into an ordered sort spec.
func sortDocument(sorts []query.SortConfiguration) bson.D {
	if len(sorts) == 0 {
		return nil
	}
	d := make(bson.D, 0, len(sorts))
	for _, s := range sorts {
		d = append(d, bson.E{Key: s.Field, Value: s.Sign()})
	}
	return d
}

func findOptions(opts *query.FindOptions) *mopt.FindOptions {
	fo := mopt.Find()
	if opts == nil {
		return fo
	}
	if len(opts.Projection) > 0 {
		fo.SetProjection(bson.M(opts.Projection))
	}
	if sort := sortDocument(opts.Sort); sort != nil {
		fo.SetSort(sort)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if opts.NoCursorTimeout {
		fo.SetNoCursorTimeout(true)
	}
	return fo
}

func findOneOptions(opts *query.FindOptions) *mopt.FindOneOptions {
	fo := mopt.FindOne()
	if opts == nil {
		return fo
	}
	if len(opts.Projection) > 0 {
		fo.SetProjection(bson.M(opts.Projection))
	}
	if sort := sortDocument(opts.Sort); sort != nil {
		fo.SetSort(sort)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	return fo
}

func (s *Store) readColl(opts *query.FindOptions) (*mongo.Collection, error) {
	if opts == nil {
		return s.coll(nil, nil), nil
	}
	rp, err := readPreference(opts.ReadPreference)
	if err != nil {
		return nil, err
	}
	return s.coll(nil, rp), nil
}

func filterDocument(filter query.Filter) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M(filter)
}

func decode(raw bson.M) schema.Document {
	doc, _ := utils.FromBSON(raw).(map[string]any)
	return schema.Document(doc)
}

func (s *Store) observe(operation string, start time.Time, err error) {
	if err != nil {
		s.logger.Error("MongoDB operation failed",
			zap.String("namespace", s.namespace),
			zap.String("operation", operation),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Debug("MongoDB operation",
		zap.String("namespace", s.namespace),
		zap.String("operation", operation),
		zap.Duration("duration", time.Since(start)))
}

// FindOne returns the first matching document or nil.
func (s *Store) FindOne(ctx context.Context, filter query.Filter, opts *query.FindOptions) (doc schema.Document, err error) {
	defer func(start time.Time) { s.observe("findOne", start, err) }(time.Now())
	coll, err := s.readColl(opts)
	if err != nil {
		return nil, err
	}
	var raw bson.M
	if err := coll.FindOne(ctx, filterDocument(filter), findOneOptions(opts)).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return decode(raw), nil
}

// Find returns an iterator over a server cursor.
func (s *Store) Find(ctx context.Context, filter query.Filter, opts *query.FindOptions) (it persistence.Iterator, err error) {
	defer func(start time.Time) { s.observe("find", start, err) }(time.Now())
	coll, err := s.readColl(opts)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, filterDocument(filter), findOptions(opts))
	if err != nil {
		return nil, err
	}
	return &iterator{cursor: cur}, nil
}

// Count returns the number of matching documents.
func (s *Store) Count(ctx context.Context, filter query.Filter) (n int64, err error) {
	defer func(start time.Time) { s.observe("count", start, err) }(time.Now())
	return s.coll(nil, nil).CountDocuments(ctx, filterDocument(filter))
}

// unacknowledged reports whether err only signals a write sent without
// acknowledgement.
func unacknowledged(err error) bool {
	return errors.Is(err, mongo.ErrUnacknowledgedWrite)
}

// InsertOne inserts doc.
func (s *Store) InsertOne(ctx context.Context, doc schema.Document, opts persistence.WriteOptions) (res persistence.WriteResult, err error) {
	defer func(start time.Time) { s.observe("insertOne", start, err) }(time.Now())
	out, err := s.coll(writeConcern(opts.WriteConcern), nil).InsertOne(ctx, bson.M(doc))
	if unacknowledged(err) {
		return persistence.WriteResult{}, nil
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return persistence.WriteResult{}, fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
		return persistence.WriteResult{}, err
	}
	if opts.WriteConcern < persistence.Acknowledged {
		return persistence.WriteResult{}, nil
	}
	return persistence.WriteResult{Acknowledged: true, InsertedID: out.InsertedID, InsertedCount: 1}, nil
}

func updateResult(out *mongo.UpdateResult, opts persistence.WriteOptions) persistence.WriteResult {
	if out == nil || opts.WriteConcern < persistence.Acknowledged {
		return persistence.WriteResult{}
	}
	return persistence.WriteResult{
		Acknowledged:  true,
		InsertedID:    out.UpsertedID,
		MatchedCount:  out.MatchedCount,
		ModifiedCount: out.ModifiedCount,
		UpsertedCount: out.UpsertedCount,
	}
}

// ReplaceOne replaces the first matching document.
func (s *Store) ReplaceOne(ctx context.Context, filter query.Filter, doc schema.Document, opts persistence.WriteOptions) (res persistence.WriteResult, err error) {
	defer func(start time.Time) { s.observe("replaceOne", start, err) }(time.Now())
	out, err := s.coll(writeConcern(opts.WriteConcern), nil).
		ReplaceOne(ctx, filterDocument(filter), bson.M(doc), mopt.Replace().SetUpsert(opts.Upsert))
	if unacknowledged(err) {
		return persistence.WriteResult{}, nil
	}
	if err != nil {
		return persistence.WriteResult{}, err
	}
	return updateResult(out, opts), nil
}

// UpdateOne applies an update document to the first matching document.
func (s *Store) UpdateOne(ctx context.Context, filter query.Filter, update schema.Document, opts persistence.WriteOptions) (res persistence.WriteResult, err error) {
	defer func(start time.Time) { s.observe("updateOne", start, err) }(time.Now())
	out, err := s.coll(writeConcern(opts.WriteConcern), nil).
		UpdateOne(ctx, filterDocument(filter), bson.M(update), mopt.Update().SetUpsert(opts.Upsert))
	if unacknowledged(err) {
		return persistence.WriteResult{}, nil
	}
	if err != nil {
		return persistence.WriteResult{}, err
	}
	return updateResult(out, opts), nil
}

// DeleteOne removes the first matching document.
func (s *Store) DeleteOne(ctx context.Context, filter query.Filter, opts persistence.WriteOptions) (res persistence.WriteResult, err error) {
	defer func(start time.Time) { s.observe("deleteOne", start, err) }(time.Now())
	out, err := s.coll(writeConcern(opts.WriteConcern), nil).DeleteOne(ctx, filterDocument(filter))
	if unacknowledged(err) {
		return persistence.WriteResult{}, nil
	}
	if err != nil {
		return persistence.WriteResult{}, err
	}
	if opts.WriteConcern < persistence.Acknowledged {
		return persistence.WriteResult{}, nil
	}
	return persistence.WriteResult{Acknowledged: true, DeletedCount: out.DeletedCount}, nil
}

// iterator adapts a driver cursor.
type iterator struct {
	cursor *mongo.Cursor
	doc    schema.Document
	err    error
}

func (it *iterator) Next(ctx context.Context) bool {
	if it.err != nil || !it.cursor.Next(ctx) {
		it.doc = nil
		return false
	}
	var raw bson.M
	if err := it.cursor.Decode(&raw); err != nil {
		it.err = err
		it.doc = nil
		return false
	}
	it.doc = decode(raw)
	return true
}

func (it *iterator) Document() schema.Document {
	return it.doc
}

func (it *iterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.cursor.Err()
}

func (it *iterator) Close(ctx context.Context) error {
	return it.cursor.Close(ctx)
}
