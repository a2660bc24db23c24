package attributes

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/asaidimu/go-odm/core/schema"
	"github.com/mitchellh/copystructure"
	"github.com/stretchr/testify/assert"
)

func TestStore_GetSet(t *testing.T) {
	s := NewStore(nil)

	t.Run("missing keys are nil", func(t *testing.T) {
		assert.Nil(t, s.Get("missing"))
		assert.False(t, s.Has("missing"))
	})

	t.Run("nil removes the key", func(t *testing.T) {
		s.Set("name", "Ada")
		assert.True(t, s.Has("name"))
		s.Set("name", nil)
		assert.False(t, s.Has("name"))
		_, ok := s.Attributes()["name"]
		assert.False(t, ok)
	})

	t.Run("unset removes the key", func(t *testing.T) {
		s.Set("age", 3)
		s.Unset("age")
		assert.Nil(t, s.Get("age"))
	})
}

func TestStore_Mutators(t *testing.T) {
	upper := Mutator{
		Get: func(v any) any {
			if v == nil {
				return nil
			}
			return strings.ToUpper(v.(string))
		},
		Set: func(v any) any {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
			return v
		},
	}

	t.Run("applied when mutable", func(t *testing.T) {
		s := NewStore(&Options{Mutable: true, Mutators: map[string]Mutator{"name": upper}})
		s.Set("name", "  ada ")
		assert.Equal(t, "ADA", s.Get("name"))
		raw, _ := s.Lookup("name")
		assert.Equal(t, "ada", raw)
	})

	t.Run("ignored when not mutable", func(t *testing.T) {
		s := NewStore(&Options{Mutators: map[string]Mutator{"name": upper}})
		s.Set("name", "  ada ")
		assert.Equal(t, "  ada ", s.Get("name"))
	})

	t.Run("setter returning nil removes", func(t *testing.T) {
		s := NewStore(&Options{Mutable: true, Mutators: map[string]Mutator{
			"blank": {Set: func(any) any { return nil }},
		}})
		s.Set("blank", "x")
		assert.False(t, s.Has("blank"))
	})
}

func TestStore_Fill(t *testing.T) {
	tests := []struct {
		name     string
		fillable []string
		guarded  []string
		force    bool
		want     schema.Document
	}{
		{"guarded key skipped", nil, []string{"x"}, false, schema.Document{"y": 2}},
		{"fillable and guarded", []string{"y"}, []string{"y"}, false, schema.Document{}},
		{"fillable only", []string{"x"}, nil, false, schema.Document{"x": 1}},
		{"force ignores rules", []string{"y"}, []string{"y"}, true, schema.Document{"x": 1, "y": 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(&Options{Fillable: tt.fillable, Guarded: tt.guarded})
			s.Fill(map[string]any{"x": 1, "y": 2}, tt.force)
			assert.Equal(t, tt.want, s.Attributes())
		})
	}

	t.Run("object values are normalized", func(t *testing.T) {
		type address struct {
			City string `bson:"city"`
		}
		s := NewStore(nil)
		s.Fill(map[string]any{"address": address{City: "Nairobi"}}, false)
		assert.Equal(t, map[string]any{"city": "Nairobi"}, s.Get("address"))
	})
}

func TestStore_OnChange(t *testing.T) {
	var changed []string
	s := NewStore(&Options{OnChange: func(k string) { changed = append(changed, k) }})
	s.Set("a", 1)
	s.Unset("b")
	s.Fill(map[string]any{"c": 1}, true)
	assert.Equal(t, []string{"a", "b", "c"}, changed)
}

// opaque is a value the deep copier is told it cannot copy.
type opaque struct {
	N int
}

func TestStore_SyncOriginal(t *testing.T) {
	t.Run("deep copy", func(t *testing.T) {
		s := NewStore(nil)
		s.Set("tags", []any{"a", "b"})
		s.Set("meta", map[string]any{"k": "v"})
		s.SyncOriginal()

		assert.False(t, s.Dirty())
		assert.Equal(t, s.Attributes(), s.Original())

		s.Get("tags").([]any)[0] = "z"
		s.Get("meta").(map[string]any)["k"] = "w"

		assert.Equal(t, []any{"a", "b"}, s.Original()["tags"])
		assert.Equal(t, map[string]any{"k": "v"}, s.Original()["meta"])
		assert.True(t, s.Dirty())
		assert.Equal(t, schema.Document{"tags.0": "z", "meta.k": "w"}, s.Changes().Set)
	})

	failures := map[string]copystructure.CopierFunc{
		"copy error": func(any) (any, error) { return nil, errors.New("cannot copy") },
		"copy panic": func(any) (any, error) { panic("cannot copy") },
	}
	for name, copier := range failures {
		t.Run(name, func(t *testing.T) {
			typ := reflect.TypeOf(opaque{})
			copystructure.Copiers[typ] = copier
			defer delete(copystructure.Copiers, typ)

			s := NewStore(nil)
			s.Set("name", "Ada")
			s.Set("blob", opaque{N: 1})
			assert.NotPanics(t, s.SyncOriginal)

			assert.Equal(t, schema.Document{"name": "Ada", "blob": opaque{N: 1}}, s.Original())
			assert.False(t, s.Dirty())

			s.Set("name", "Grace")
			assert.Equal(t, "Ada", s.Original()["name"])
			assert.Equal(t, schema.Document{"name": "Grace"}, s.Changes().Set)
		})
	}
}

func TestStore_Keys(t *testing.T) {
	s := NewStore(nil)
	s.Set("b", 1)
	s.Set("a", 1)
	s.Set("c", 1)
	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
}
