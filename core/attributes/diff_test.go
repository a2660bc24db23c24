package attributes

import (
	"testing"

	"github.com/asaidimu/go-odm/core/schema"
	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	base := func() schema.Document {
		return schema.Document{
			"name":  "Ada",
			"age":   int64(36),
			"ratio": 2.0,
			"tags":  []any{"a", "b", "c"},
			"address": map[string]any{
				"city": "London",
				"geo":  map[string]any{"lat": 51.5},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(d schema.Document)
		set    schema.Document
		unset  []string
	}{
		{
			name:   "no change",
			mutate: func(schema.Document) {},
			set:    schema.Document{},
		},
		{
			name:   "scalar leaf",
			mutate: func(d schema.Document) { d["age"] = int64(37) },
			set:    schema.Document{"age": int64(37)},
		},
		{
			name:   "int assigned over loaded int64",
			mutate: func(d schema.Document) { d["age"] = 36 },
			set:    schema.Document{},
		},
		{
			name:   "integral float assigned as int",
			mutate: func(d schema.Document) { d["ratio"] = 2 },
			set:    schema.Document{},
		},
		{
			name:   "int of another value",
			mutate: func(d schema.Document) { d["age"] = 37 },
			set:    schema.Document{"age": 37},
		},
		{
			name:   "single list index",
			mutate: func(d schema.Document) { d["tags"] = []any{"a", "x", "c"} },
			set:    schema.Document{"tags.1": "x"},
		},
		{
			name:   "list append",
			mutate: func(d schema.Document) { d["tags"] = []any{"a", "b", "c", "d"} },
			set:    schema.Document{"tags.3": "d"},
		},
		{
			name:   "list shrink replaces whole list",
			mutate: func(d schema.Document) { d["tags"] = []any{"a"} },
			set:    schema.Document{"tags": []any{"a"}},
		},
		{
			name: "nested map leaf",
			mutate: func(d schema.Document) {
				d["address"] = map[string]any{"city": "London", "geo": map[string]any{"lat": 52.0}}
			},
			set: schema.Document{"address.geo.lat": 52.0},
		},
		{
			name:   "removed key is unset only",
			mutate: func(d schema.Document) { delete(d, "name") },
			set:    schema.Document{},
			unset:  []string{"name"},
		},
		{
			name: "removed nested key",
			mutate: func(d schema.Document) {
				d["address"] = map[string]any{"geo": map[string]any{"lat": 51.5}}
			},
			set:   schema.Document{},
			unset: []string{"address.city"},
		},
		{
			name:   "new key",
			mutate: func(d schema.Document) { d["email"] = "a@b.c" },
			set:    schema.Document{"email": "a@b.c"},
		},
		{
			name:   "shape change",
			mutate: func(d schema.Document) { d["tags"] = "none" },
			set:    schema.Document{"tags": "none"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := base()
			current := base()
			tt.mutate(current)

			ch := Diff(original, current)
			assert.Equal(t, tt.set, ch.Set)
			assert.Equal(t, tt.unset, ch.Unset)
			for _, path := range ch.Unset {
				assert.NotContains(t, ch.Set, path)
			}
		})
	}
}

func TestChanges_UpdateDocument(t *testing.T) {
	ch := Changes{Set: schema.Document{"a": 1}, Unset: []string{"b"}}
	assert.Equal(t, schema.Document{
		"$set":   map[string]any{"a": 1},
		"$unset": map[string]any{"b": ""},
	}, ch.UpdateDocument())

	assert.True(t, Changes{}.Empty())
	assert.Equal(t, schema.Document{}, Changes{}.UpdateDocument())
}
