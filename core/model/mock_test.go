package model

import (
	"context"

	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Namespace() string { return "test.mock" }

func (m *mockStore) FindOne(ctx context.Context, filter query.Filter, opts *query.FindOptions) (schema.Document, error) {
	args := m.Called(ctx, filter, opts)
	doc, _ := args.Get(0).(schema.Document)
	return doc, args.Error(1)
}

func (m *mockStore) Find(ctx context.Context, filter query.Filter, opts *query.FindOptions) (persistence.Iterator, error) {
	args := m.Called(ctx, filter, opts)
	it, _ := args.Get(0).(persistence.Iterator)
	return it, args.Error(1)
}

func (m *mockStore) Count(ctx context.Context, filter query.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) InsertOne(ctx context.Context, doc schema.Document, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	args := m.Called(ctx, doc, opts)
	return args.Get(0).(persistence.WriteResult), args.Error(1)
}

func (m *mockStore) ReplaceOne(ctx context.Context, filter query.Filter, doc schema.Document, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	args := m.Called(ctx, filter, doc, opts)
	return args.Get(0).(persistence.WriteResult), args.Error(1)
}

func (m *mockStore) UpdateOne(ctx context.Context, filter query.Filter, update schema.Document, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	args := m.Called(ctx, filter, update, opts)
	return args.Get(0).(persistence.WriteResult), args.Error(1)
}

func (m *mockStore) DeleteOne(ctx context.Context, filter query.Filter, opts persistence.WriteOptions) (persistence.WriteResult, error) {
	args := m.Called(ctx, filter, opts)
	return args.Get(0).(persistence.WriteResult), args.Error(1)
}

// mockDatabase hands out the same mock store for every collection.
type mockDatabase struct {
	store *mockStore
}

func (d *mockDatabase) Name() string { return "test" }

func (d *mockDatabase) Collection(string) (persistence.Store, error) { return d.store, nil }

func (d *mockDatabase) Close(context.Context) error { return nil }
