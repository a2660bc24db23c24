package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type attributed struct{ attrs Document }

func (a attributed) Attributes() Document { return a.attrs }

func newTestMapper(t *testing.T) *Mapper {
	t.Helper()
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&SchemaDefinition{
		Name:   "Address",
		Fields: map[string]string{"street": "string", "zip": "int"},
	}))
	return NewMapper(r, nil)
}

func TestMapper_Map(t *testing.T) {
	m := newTestMapper(t)
	user := &SchemaDefinition{
		Name: "User",
		Fields: map[string]string{
			"name":      "string",
			"age":       "int",
			"score":     "float",
			"active":    "bool",
			"addresses": "schema.Address",
		},
	}

	t.Run("coerces declared fields and drops undeclared", func(t *testing.T) {
		out, err := m.Map(Document{
			"name":   42,
			"age":    "31",
			"score":  "4.5",
			"active": "true",
			"extra":  "dropped",
		}, user)
		require.NoError(t, err)
		assert.Equal(t, Document{
			"name":   "42",
			"age":    int64(31),
			"score":  4.5,
			"active": true,
		}, out)
	})

	t.Run("nil is absent and empty string is kept", func(t *testing.T) {
		out, err := m.Map(Document{"name": "", "age": nil}, user)
		require.NoError(t, err)
		assert.Equal(t, Document{"name": ""}, out)
	})

	t.Run("single nested object becomes a one element list", func(t *testing.T) {
		out, err := m.Map(Document{
			"addresses": map[string]any{"street": "Main", "zip": "100", "junk": true},
		}, user)
		require.NoError(t, err)
		assert.Equal(t, []any{map[string]any{"street": "Main", "zip": int64(100)}}, out["addresses"])
	})

	t.Run("nested list maps element-wise", func(t *testing.T) {
		out, err := m.Map(Document{
			"addresses": []any{
				map[string]any{"street": "A"},
				attributed{attrs: Document{"street": "B", "zip": 7}},
			},
		}, user)
		require.NoError(t, err)
		assert.Equal(t, []any{
			map[string]any{"street": "A"},
			map[string]any{"street": "B", "zip": int64(7)},
		}, out["addresses"])
	})

	t.Run("dynamic schema keeps undeclared fields", func(t *testing.T) {
		dyn := &SchemaDefinition{Name: "Dyn", Dynamic: true, Fields: map[string]string{"age": "int"}}
		out, err := m.Map(Document{"age": 3.9, "other": "x", "gone": nil}, dyn)
		require.NoError(t, err)
		assert.Equal(t, Document{"age": int64(3), "other": "x"}, out)
	})

	t.Run("mapping is idempotent", func(t *testing.T) {
		raw := Document{
			"name":      "Ada",
			"age":       36.0,
			"active":    1,
			"addresses": map[string]any{"street": "Main", "zip": 1},
		}
		once, err := m.Map(raw, user)
		require.NoError(t, err)
		twice, err := m.Map(once, user)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	})
}

func TestMapper_Functions(t *testing.T) {
	r := NewRegistry(nil)
	m := NewMapper(r, nil)

	t.Run("schema function takes precedence", func(t *testing.T) {
		s := &SchemaDefinition{
			Name:   "Shout",
			Fields: map[string]string{"word": "upper"},
			Functions: FunctionMap{
				"upper": func(v any) (any, error) {
					if v == nil {
						return nil, nil
					}
					return v.(string) + "!", nil
				},
			},
		}
		out, err := m.Map(Document{"word": "hey"}, s)
		require.NoError(t, err)
		assert.Equal(t, "hey!", out["word"])
	})

	t.Run("built in generators run for absent fields", func(t *testing.T) {
		s := &SchemaDefinition{
			Name: "Stamped",
			Fields: map[string]string{
				"_id":        "objectId",
				"created_at": "createdAtTimestamp",
			},
		}
		out, err := m.Map(Document{}, s)
		require.NoError(t, err)
		assert.IsType(t, primitive.ObjectID{}, out["_id"])
		assert.IsType(t, time.Time{}, out["created_at"])
	})

	t.Run("objectId keeps and canonicalizes", func(t *testing.T) {
		s := &SchemaDefinition{Name: "Ref", Fields: map[string]string{"_id": "objectId"}}
		hex := "5f1d7f3c2b9e4a6d8c0b1a2f"
		out, err := m.Map(Document{"_id": hex}, s)
		require.NoError(t, err)
		assert.Equal(t, hex, out["_id"].(primitive.ObjectID).Hex())
	})

	t.Run("unknown function fails fast", func(t *testing.T) {
		s := &SchemaDefinition{Name: "Bad", Fields: map[string]string{"x": "nope"}}
		_, err := m.Map(Document{"x": 1}, s)
		assert.ErrorIs(t, err, ErrUnknownDirective)
	})

	t.Run("function errors are wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		r.RegisterFunction("explode", func(any) (any, error) { return nil, boom })
		s := &SchemaDefinition{Name: "Explode", Fields: map[string]string{"x": "explode"}}
		_, err := m.Map(Document{"x": 1}, s)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("unknown nested schema", func(t *testing.T) {
		s := &SchemaDefinition{Name: "Outer", Fields: map[string]string{"in": "schema.Missing"}}
		_, err := m.Map(Document{"in": map[string]any{}}, s)
		assert.ErrorIs(t, err, ErrUnknownSchema)
	})
}

func TestRegistry_Validate(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&SchemaDefinition{Name: "Tag", Fields: map[string]string{"label": "string"}}))

	ok := &SchemaDefinition{Name: "Post", Fields: map[string]string{
		"tags": "schema.Tag", "_id": "objectId", "title": "string",
	}}
	assert.NoError(t, r.Validate(ok))

	bad := &SchemaDefinition{Name: "Post", Fields: map[string]string{"tags": "schema.Nope"}}
	assert.ErrorIs(t, r.Validate(bad), ErrUnknownSchema)

	assert.ErrorIs(t, r.Register(&SchemaDefinition{}), ErrInvalidSchema)
}

func TestParseDirective(t *testing.T) {
	tests := []struct {
		directive string
		kind      DirectiveKind
		name      string
	}{
		{"int", DirectivePrimitive, "integer"},
		{"Boolean", DirectivePrimitive, "boolean"},
		{"float", DirectivePrimitive, "number"},
		{"schema.Address", DirectiveSchema, "Address"},
		{"schema.", DirectiveFunction, "schema."},
		{"createdAtTimestamp", DirectiveFunction, "createdAtTimestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.directive, func(t *testing.T) {
			kind, name := ParseDirective(tt.directive)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.name, name)
		})
	}
}
