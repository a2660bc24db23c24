package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCast(t *testing.T) {
	oid := primitive.NewObjectID()
	tests := []struct {
		name  string
		ft    FieldType
		input any
		want  any
	}{
		{"int to string", FieldTypeString, 12, "12"},
		{"float to string", FieldTypeString, 1.5, "1.5"},
		{"bool to string", FieldTypeString, true, "true"},
		{"id to string", FieldTypeString, oid, oid.Hex()},
		{"string to int", FieldTypeInteger, "42", int64(42)},
		{"float string to int", FieldTypeInteger, "4.9", int64(4)},
		{"garbage to int", FieldTypeInteger, "abc", int64(0)},
		{"bool to int", FieldTypeInteger, true, int64(1)},
		{"int32 to int", FieldTypeInteger, int32(7), int64(7)},
		{"string to float", FieldTypeNumber, "2.25", 2.25},
		{"int to float", FieldTypeDecimal, 3, float64(3)},
		{"garbage to float", FieldTypeNumber, "x", float64(0)},
		{"string to bool", FieldTypeBoolean, "false", false},
		{"nonempty to bool", FieldTypeBoolean, "yes please", true},
		{"zero to bool", FieldTypeBoolean, 0, false},
		{"scalar to array", FieldTypeArray, "a", []any{"a"}},
		{"array stays", FieldTypeArray, []string{"a", "b"}, []any{"a", "b"}},
		{"object normalized", FieldTypeObject, bson.M{"a": bson.A{1}}, map[string]any{"a": []any{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cast(tt.ft, tt.input))
		})
	}
}

func TestCast_NonScalarPassesThrough(t *testing.T) {
	m := map[string]any{"k": "v"}
	assert.Equal(t, m, Cast(FieldTypeInteger, m))
	assert.Equal(t, m, Cast(FieldTypeString, m))
}

func TestNormalize(t *testing.T) {
	type inner struct {
		Label string `bson:"label"`
	}
	type outer struct {
		Name  string   `bson:"name"`
		Inner inner    `bson:"inner"`
		Tags  []string `bson:"tags"`
	}
	now := time.Now()

	t.Run("structs become plain maps", func(t *testing.T) {
		got := Normalize(outer{Name: "n", Inner: inner{Label: "l"}, Tags: []string{"x"}})
		assert.Equal(t, map[string]any{
			"name":  "n",
			"inner": map[string]any{"label": "l"},
			"tags":  []any{"x"},
		}, got)
	})

	t.Run("bson document keeps order-independent content", func(t *testing.T) {
		got := Normalize(bson.D{{Key: "a", Value: 1}, {Key: "b", Value: bson.D{{Key: "c", Value: 2}}}})
		assert.Equal(t, map[string]any{"a": 1, "b": map[string]any{"c": 2}}, got)
	})

	t.Run("opaque values are kept", func(t *testing.T) {
		assert.Equal(t, now, Normalize(now))
		oid := primitive.NewObjectID()
		assert.Equal(t, oid, Normalize(oid))
	})
}

func TestEqual(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.True(t, Equal(int64(3), 3.0))
	assert.True(t, Equal(oid, oid.Hex()))
	assert.True(t, Equal(map[string]any{"a": []any{1}}, Document{"a": []any{int64(1)}}))
	assert.False(t, Equal([]any{1, 2}, []any{1}))
	assert.False(t, Equal("1", 1))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, 0))
}
