package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Namespace() string { return "test.users" }

func (m *mockStore) FindOne(ctx context.Context, filter query.Filter, opts *query.FindOptions) (schema.Document, error) {
	args := m.Called(ctx, filter, opts)
	doc, _ := args.Get(0).(schema.Document)
	return doc, args.Error(1)
}

func (m *mockStore) Find(ctx context.Context, filter query.Filter, opts *query.FindOptions) (Iterator, error) {
	args := m.Called(ctx, filter, opts)
	it, _ := args.Get(0).(Iterator)
	return it, args.Error(1)
}

func (m *mockStore) Count(ctx context.Context, filter query.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) InsertOne(ctx context.Context, doc schema.Document, opts WriteOptions) (WriteResult, error) {
	args := m.Called(ctx, doc, opts)
	return args.Get(0).(WriteResult), args.Error(1)
}

func (m *mockStore) ReplaceOne(ctx context.Context, filter query.Filter, doc schema.Document, opts WriteOptions) (WriteResult, error) {
	args := m.Called(ctx, filter, doc, opts)
	return args.Get(0).(WriteResult), args.Error(1)
}

func (m *mockStore) UpdateOne(ctx context.Context, filter query.Filter, update schema.Document, opts WriteOptions) (WriteResult, error) {
	args := m.Called(ctx, filter, update, opts)
	return args.Get(0).(WriteResult), args.Error(1)
}

func (m *mockStore) DeleteOne(ctx context.Context, filter query.Filter, opts WriteOptions) (WriteResult, error) {
	args := m.Called(ctx, filter, opts)
	return args.Get(0).(WriteResult), args.Error(1)
}

func TestExecutor_Forwards(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	ex := NewExecutor(store, nil)
	assert.Equal(t, "test.users", ex.Namespace())
	assert.Same(t, store, ex.Unwrap())

	filter := query.Filter{"name": "Ada"}
	doc := schema.Document{"_id": "1", "name": "Ada"}
	opts := WriteOptions{WriteConcern: Acknowledged}

	store.On("FindOne", ctx, filter, (*query.FindOptions)(nil)).Return(doc, nil)
	store.On("Find", ctx, filter, (*query.FindOptions)(nil)).Return(NewSliceIterator([]schema.Document{doc}), nil)
	store.On("Count", ctx, filter).Return(int64(1), nil)
	store.On("InsertOne", ctx, doc, opts).Return(WriteResult{Acknowledged: true, InsertedCount: 1}, nil)
	store.On("ReplaceOne", ctx, filter, doc, opts).Return(WriteResult{Acknowledged: true, MatchedCount: 1}, nil)
	store.On("UpdateOne", ctx, filter, doc, opts).Return(WriteResult{Acknowledged: true, MatchedCount: 1}, nil)
	store.On("DeleteOne", ctx, filter, opts).Return(WriteResult{}, errors.New("offline"))

	got, err := ex.FindOne(ctx, filter, nil)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	it, err := ex.Find(ctx, filter, nil)
	require.NoError(t, err)
	docs, err := Drain(ctx, it)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	n, err := ex.Count(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err := ex.InsertOne(ctx, doc, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.InsertedCount)

	_, err = ex.ReplaceOne(ctx, filter, doc, opts)
	require.NoError(t, err)
	_, err = ex.UpdateOne(ctx, filter, doc, opts)
	require.NoError(t, err)

	_, err = ex.DeleteOne(ctx, filter, opts)
	assert.EqualError(t, err, "offline")

	store.AssertExpectations(t)
}

func TestSliceIterator(t *testing.T) {
	ctx := context.Background()
	it := NewSliceIterator([]schema.Document{{"a": 1}, {"a": 2}})
	assert.Nil(t, it.Document())

	require.True(t, it.Next(ctx))
	assert.Equal(t, schema.Document{"a": 1}, it.Document())
	require.True(t, it.Next(ctx))
	assert.False(t, it.Next(ctx))
	assert.Nil(t, it.Document())
	assert.NoError(t, it.Err())
	assert.NoError(t, it.Close(ctx))
}

func TestSliceIterator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	it := NewSliceIterator([]schema.Document{{"a": 1}})
	assert.False(t, it.Next(ctx))
}
