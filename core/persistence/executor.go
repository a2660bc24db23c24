package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	"go.uber.org/zap"
)

// Executor wraps a Store and records every operation it forwards: a debug
// log line with the elapsed time and per-namespace operation and error
// counters.
type Executor struct {
	store  Store
	logger *zap.Logger
}

// NewExecutor wraps store. A nil logger disables logging.
func NewExecutor(store Store, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:  store,
		logger: logger.With(zap.String("namespace", store.Namespace())),
	}
}

// Unwrap returns the wrapped store.
func (e *Executor) Unwrap() Store {
	return e.store
}

func (e *Executor) observe(operation string, start time.Time, err error) {
	ns := e.store.Namespace()
	metrics.GetOrCreateCounter(fmt.Sprintf(`odm_store_operations_total{namespace=%q,operation=%q}`, ns, operation)).Inc()
	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`odm_store_errors_total{namespace=%q,operation=%q}`, ns, operation)).Inc()
		e.logger.Error("Store operation failed",
			zap.String("operation", operation),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	e.logger.Debug("Store operation completed",
		zap.String("operation", operation),
		zap.Duration("duration", time.Since(start)))
}

// Namespace returns the namespace of the wrapped store.
func (e *Executor) Namespace() string {
	return e.store.Namespace()
}

// FindOne forwards to the wrapped store.
func (e *Executor) FindOne(ctx context.Context, filter query.Filter, opts *query.FindOptions) (schema.Document, error) {
	start := time.Now()
	doc, err := e.store.FindOne(ctx, filter, opts)
	e.observe("findOne", start, err)
	return doc, err
}

// Find forwards to the wrapped store.
func (e *Executor) Find(ctx context.Context, filter query.Filter, opts *query.FindOptions) (Iterator, error) {
	start := time.Now()
	it, err := e.store.Find(ctx, filter, opts)
	e.observe("find", start, err)
	return it, err
}

// Count forwards to the wrapped store.
func (e *Executor) Count(ctx context.Context, filter query.Filter) (int64, error) {
	start := time.Now()
	n, err := e.store.Count(ctx, filter)
	e.observe("count", start, err)
	return n, err
}

// InsertOne forwards to the wrapped store.
func (e *Executor) InsertOne(ctx context.Context, doc schema.Document, opts WriteOptions) (WriteResult, error) {
	start := time.Now()
	res, err := e.store.InsertOne(ctx, doc, opts)
	e.observe("insertOne", start, err)
	return res, err
}

// ReplaceOne forwards to the wrapped store.
func (e *Executor) ReplaceOne(ctx context.Context, filter query.Filter, doc schema.Document, opts WriteOptions) (WriteResult, error) {
	start := time.Now()
	res, err := e.store.ReplaceOne(ctx, filter, doc, opts)
	e.observe("replaceOne", start, err)
	return res, err
}

// UpdateOne forwards to the wrapped store.
func (e *Executor) UpdateOne(ctx context.Context, filter query.Filter, update schema.Document, opts WriteOptions) (WriteResult, error) {
	start := time.Now()
	res, err := e.store.UpdateOne(ctx, filter, update, opts)
	e.observe("updateOne", start, err)
	return res, err
}

// DeleteOne forwards to the wrapped store.
func (e *Executor) DeleteOne(ctx context.Context, filter query.Filter, opts WriteOptions) (WriteResult, error) {
	start := time.Now()
	res, err := e.store.DeleteOne(ctx, filter, opts)
	e.observe("deleteOne", start, err)
	return res, err
}

var _ Store = (*Executor)(nil)
