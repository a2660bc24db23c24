package memory

import (
	"context"
	"testing"

	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ack = persistence.WriteOptions{WriteConcern: persistence.Acknowledged}

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore("test.people", nil)
	for _, doc := range []schema.Document{
		{"_id": "1", "name": "Ada", "age": 36},
		{"_id": "2", "name": "Alan", "age": 41},
		{"_id": "3", "name": "Grace", "age": 30},
	} {
		_, err := s.InsertOne(context.Background(), doc, ack)
		require.NoError(t, err)
	}
	return s
}

func TestStore_InsertOne(t *testing.T) {
	ctx := context.Background()
	s := NewStore("test.people", nil)

	doc := schema.Document{"name": "Ada"}
	res, err := s.InsertOne(ctx, doc, ack)
	require.NoError(t, err)
	assert.True(t, res.Acknowledged)
	assert.Equal(t, int64(1), res.InsertedCount)
	assert.NotNil(t, res.InsertedID)
	assert.NotContains(t, doc, "_id")

	_, err = s.InsertOne(ctx, schema.Document{"_id": res.InsertedID}, ack)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestStore_UnacknowledgedWritesStillApply(t *testing.T) {
	ctx := context.Background()
	s := NewStore("test.people", nil)

	res, err := s.InsertOne(ctx, schema.Document{"_id": "x"}, persistence.WriteOptions{WriteConcern: persistence.Unacknowledged})
	require.NoError(t, err)
	assert.False(t, res.Acknowledged)
	assert.Zero(t, res.InsertedCount)
	assert.Equal(t, 1, s.Len())
}

func TestStore_Find(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	it, err := s.Find(ctx, query.Filter{"age": map[string]any{"$gt": 31}}, &query.FindOptions{
		Sort: []query.SortConfiguration{{Field: "age", Direction: query.SortDirectionDesc}},
	})
	require.NoError(t, err)
	docs, err := persistence.Drain(ctx, it)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Alan", docs[0]["name"])

	docs[0]["name"] = "changed"
	doc, err := s.FindOne(ctx, query.IDFilter("2"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Alan", doc["name"])

	doc, err = s.FindOne(ctx, query.Filter{"name": "nobody"}, nil)
	require.NoError(t, err)
	assert.Nil(t, doc)

	n, err := s.Count(ctx, query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestStore_UpdateOne(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	res, err := s.UpdateOne(ctx, query.IDFilter("1"), schema.Document{
		"$set":   map[string]any{"age": 37},
		"$unset": map[string]any{"name": ""},
	}, ack)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)
	assert.Equal(t, int64(1), res.ModifiedCount)

	doc, err := s.FindOne(ctx, query.IDFilter("1"), nil)
	require.NoError(t, err)
	assert.Equal(t, schema.Document{"_id": "1", "age": 37}, doc)

	res, err = s.UpdateOne(ctx, query.IDFilter("1"), schema.Document{"$set": map[string]any{"_id": "1"}}, ack)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)
	assert.Zero(t, res.ModifiedCount)

	res, err = s.UpdateOne(ctx, query.IDFilter("9"), schema.Document{"$set": map[string]any{"age": 1}}, ack)
	require.NoError(t, err)
	assert.True(t, res.Acknowledged)
	assert.Zero(t, res.MatchedCount)

	res, err = s.UpdateOne(ctx, query.IDFilter("9"), schema.Document{"$set": map[string]any{"age": 1}},
		persistence.WriteOptions{WriteConcern: 1, Upsert: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.UpsertedCount)
	assert.Equal(t, "9", res.InsertedID)
}

func TestStore_ReplaceOne(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	res, err := s.ReplaceOne(ctx, query.IDFilter("3"), schema.Document{"name": "Grace Hopper"}, ack)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)

	doc, err := s.FindOne(ctx, query.IDFilter("3"), nil)
	require.NoError(t, err)
	assert.Equal(t, schema.Document{"_id": "3", "name": "Grace Hopper"}, doc)

	res, err = s.ReplaceOne(ctx, query.IDFilter("4"), schema.Document{"name": "Barbara"},
		persistence.WriteOptions{WriteConcern: 1, Upsert: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.UpsertedCount)
	assert.Equal(t, 4, s.Len())
}

func TestStore_DeleteOne(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	res, err := s.DeleteOne(ctx, query.IDFilter("2"), ack)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DeletedCount)
	assert.Equal(t, 2, s.Len())

	res, err = s.DeleteOne(ctx, query.IDFilter("2"), ack)
	require.NoError(t, err)
	assert.Zero(t, res.DeletedCount)
}

func TestDatabase(t *testing.T) {
	ctx := context.Background()
	db := NewDatabase("app", nil)
	assert.Equal(t, "app", db.Name())

	a, err := db.Collection("users")
	require.NoError(t, err)
	b, err := db.Collection("users")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "app.users", a.Namespace())

	require.NoError(t, db.Close(ctx))
	_, err = db.Collection("users")
	assert.ErrorIs(t, err, ErrClosed)
}
