package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asaidimu/go-odm/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestNewDataProcessor(t *testing.T) {
	p := NewDataProcessor(nil)
	assert.NotNil(t, p)
	assert.NotNil(t, p.filterFunctions)
	assert.NotNil(t, p.logger)

	p = NewDataProcessor(zap.NewNop())
	assert.NotNil(t, p)
}

func TestDataProcessor_RegisterFilterFunction(t *testing.T) {
	p := NewDataProcessor(nil)
	fn := func(doc schema.Document, field string, args any) (bool, error) { return true, nil }
	p.RegisterFilterFunction("customOp", fn)
	p.RegisterFilterFunctions(map[ComparisonOperator]PredicateFunction{"$other": fn})
	assert.Contains(t, p.filterFunctions, ComparisonOperator("$customOp"))
	assert.Contains(t, p.filterFunctions, ComparisonOperator("$other"))
}

func TestDataProcessor_Match(t *testing.T) {
	ctx := context.Background()
	p := NewDataProcessor(nil)
	oid := primitive.NewObjectID()
	born := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := schema.Document{
		"_id":    oid,
		"name":   "Ada Lovelace",
		"age":    int64(36),
		"score":  9.5,
		"tags":   []any{"math", "poetry"},
		"born":   born,
		"active": true,
		"address": map[string]any{
			"city": "London",
		},
		"pets": []any{
			map[string]any{"kind": "cat", "age": 3},
			map[string]any{"kind": "dog", "age": 7},
		},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"implicit eq", Filter{"name": "Ada Lovelace"}, true},
		{"implicit eq is not a regex", Filter{"name": "Ada"}, false},
		{"numeric eq across kinds", Filter{"age": 36}, true},
		{"id by hex", Filter{"_id": oid.Hex()}, true},
		{"array contains", Filter{"tags": "math"}, true},
		{"whole array", Filter{"tags": []any{"math", "poetry"}}, true},
		{"nested path", Filter{"address.city": "London"}, true},
		{"list index path", Filter{"tags.1": "poetry"}, true},
		{"fan out path", Filter{"pets.kind": "dog"}, true},
		{"missing equals nil", Filter{"nickname": nil}, true},
		{"$eq", Filter{"age": map[string]any{"$eq": 36}}, true},
		{"$ne", Filter{"age": map[string]any{"$ne": 36}}, false},
		{"$gt", Filter{"age": map[string]any{"$gt": 30}}, true},
		{"$gte", Filter{"age": map[string]any{"$gte": 36}}, true},
		{"$lt", Filter{"score": map[string]any{"$lt": 9}}, false},
		{"$lte on dates", Filter{"born": map[string]any{"$lte": born}}, true},
		{"$gt different types never match", Filter{"name": map[string]any{"$gt": 1}}, false},
		{"range", Filter{"age": map[string]any{"$gt": 30, "$lt": 40}}, true},
		{"$gt over fan out", Filter{"pets.age": map[string]any{"$gt": 5}}, true},
		{"$in", Filter{"age": map[string]any{"$in": []any{1, 36}}}, true},
		{"$in with array field", Filter{"tags": map[string]any{"$in": []any{"poetry"}}}, true},
		{"$nin", Filter{"age": map[string]any{"$nin": []any{36}}}, false},
		{"$exists true", Filter{"address": map[string]any{"$exists": true}}, true},
		{"$exists false", Filter{"deleted_at": map[string]any{"$exists": false}}, true},
		{"$exists false on present", Filter{"name": map[string]any{"$exists": false}}, false},
		{"$regex", Filter{"name": map[string]any{"$regex": "^ada", "$options": "i"}}, true},
		{"bson regex value", Filter{"name": primitive.Regex{Pattern: "Love"}}, true},
		{"$not", Filter{"age": map[string]any{"$not": map[string]any{"$gt": 40}}}, true},
		{"$size", Filter{"tags": map[string]any{"$size": 2}}, true},
		{"$and", Filter{"$and": []any{map[string]any{"age": 36}, map[string]any{"active": true}}}, true},
		{"$or", Filter{"$or": []Filter{{"age": 1}, {"active": true}}}, true},
		{"$or none", Filter{"$or": []any{map[string]any{"age": 1}}}, false},
		{"$nor", Filter{"$nor": []any{map[string]any{"age": 1}}}, true},
		{"all conditions must hold", Filter{"age": 36, "active": false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Match(ctx, tt.filter, doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDataProcessor_MatchErrors(t *testing.T) {
	ctx := context.Background()
	p := NewDataProcessor(nil)
	doc := schema.Document{"a": 1}

	_, err := p.Match(ctx, Filter{"a": map[string]any{"$unknown": 1}}, doc)
	assert.Error(t, err)

	_, err = p.Match(ctx, Filter{"$where": "x"}, doc)
	assert.Error(t, err)

	_, err = p.Match(ctx, Filter{"a": map[string]any{"$in": 1}}, doc)
	assert.Error(t, err)

	_, err = p.Match(ctx, Filter{"$or": "nope"}, doc)
	assert.Error(t, err)
}

func TestDataProcessor_CustomOperator(t *testing.T) {
	ctx := context.Background()
	p := NewDataProcessor(nil)
	p.RegisterFilterFunction("even", func(doc schema.Document, field string, args any) (bool, error) {
		n, _ := schema.ToFloat64(doc[field])
		return int(n)%2 == 0, nil
	})
	p.RegisterFilterFunction("fail", func(schema.Document, string, any) (bool, error) {
		return false, errors.New("boom")
	})

	ok, err := p.Match(ctx, Filter{"n": map[string]any{"$even": true}}, schema.Document{"n": 4})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = p.Match(ctx, Filter{"n": map[string]any{"$fail": true}}, schema.Document{"n": 4})
	assert.Error(t, err)
}

func TestDataProcessor_Sort(t *testing.T) {
	p := NewDataProcessor(nil)
	docs := []schema.Document{
		{"name": "c", "age": 30},
		{"name": "a"},
		{"name": "b", "age": 25},
		{"name": "d", "age": 30},
	}

	t.Run("ascending with missing lowest and stable ties", func(t *testing.T) {
		out := p.Sort(docs, []SortConfiguration{{Field: "age", Direction: SortDirectionAsc}})
		assert.Equal(t, []string{"a", "b", "c", "d"}, names(out))
	})

	t.Run("multi key", func(t *testing.T) {
		out := p.Sort(docs, []SortConfiguration{
			{Field: "age", Direction: SortDirectionDesc},
			{Field: "name", Direction: SortDirectionDesc},
		})
		assert.Equal(t, []string{"d", "c", "b", "a"}, names(out))
	})

	t.Run("input untouched", func(t *testing.T) {
		assert.Equal(t, []string{"c", "a", "b", "d"}, names(docs))
	})
}

func names(docs []schema.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d["name"].(string)
	}
	return out
}

func TestDataProcessor_Project(t *testing.T) {
	p := NewDataProcessor(nil)
	doc := schema.Document{"_id": 1, "name": "Ada", "age": 36, "address": map[string]any{"city": "London", "zip": "N1"}}

	t.Run("inclusion keeps _id", func(t *testing.T) {
		assert.Equal(t, schema.Document{"_id": 1, "name": "Ada"}, p.Project(doc, ProjectionOf("name")))
	})

	t.Run("inclusion without _id", func(t *testing.T) {
		assert.Equal(t, schema.Document{"name": "Ada"}, p.Project(doc, Projection{"name": 1, "_id": 0}))
	})

	t.Run("nested inclusion", func(t *testing.T) {
		assert.Equal(t, schema.Document{"_id": 1, "address": map[string]any{"city": "London"}},
			p.Project(doc, ProjectionOf("address.city")))
	})

	t.Run("exclusion", func(t *testing.T) {
		assert.Equal(t, schema.Document{"_id": 1, "name": "Ada", "address": map[string]any{"city": "London"}},
			p.Project(doc, Projection{"age": 0, "address.zip": 0}))
		assert.Contains(t, doc["address"], "zip")
	})
}

func TestDataProcessor_Process(t *testing.T) {
	p := NewDataProcessor(nil)
	docs := []schema.Document{
		{"_id": 1, "age": 30},
		{"_id": 2, "age": 40},
		{"_id": 3, "age": 50},
		{"_id": 4, "age": 10},
	}
	out, err := p.Process(context.Background(), docs, Filter{"age": map[string]any{"$gte": 30}}, FindOptions{
		Sort:       []SortConfiguration{{Field: "age", Direction: SortDirectionDesc}},
		Skip:       1,
		Limit:      1,
		Projection: Projection{"_id": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []schema.Document{{"_id": 2}}, out)
}

func TestApplyUpdate(t *testing.T) {
	doc := schema.Document{
		"name": "Ada",
		"tags": []any{"a", "b"},
		"meta": map[string]any{"x": 1},
	}

	t.Run("set and unset paths", func(t *testing.T) {
		out, err := ApplyUpdate(doc, schema.Document{
			"$set":   map[string]any{"tags.1": "z", "meta.y": 2, "new.deep": true, "tags.3": "d"},
			"$unset": map[string]any{"name": ""},
		})
		require.NoError(t, err)
		assert.Equal(t, schema.Document{
			"tags": []any{"a", "z", nil, "d"},
			"meta": map[string]any{"x": 1, "y": 2},
			"new":  map[string]any{"deep": true},
		}, out)
		assert.Equal(t, "Ada", doc["name"])
		assert.Equal(t, []any{"a", "b"}, doc["tags"])
	})

	t.Run("rejects replacement documents", func(t *testing.T) {
		_, err := ApplyUpdate(doc, schema.Document{"name": "x"})
		assert.Error(t, err)
	})

	t.Run("rejects unknown operators", func(t *testing.T) {
		_, err := ApplyUpdate(doc, schema.Document{"$push": map[string]any{"tags": "c"}})
		assert.Error(t, err)
	})

	t.Run("cannot set field inside scalar", func(t *testing.T) {
		_, err := ApplyUpdate(doc, schema.Document{"$set": map[string]any{"name.first": "A"}})
		assert.Error(t, err)
	})
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(nil, 1))
	assert.Equal(t, -1, Compare(1, "a"))
	assert.Equal(t, 0, Compare(int64(2), 2.0))
	assert.Equal(t, 1, Compare("b", "a"))
	assert.Equal(t, -1, Compare(false, true))
	assert.Equal(t, -1, Compare([]any{1}, []any{1, 2}))
}
