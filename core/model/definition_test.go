package model

import (
	"errors"
	"testing"

	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/stretchr/testify/assert"
)

func TestRelationKind(t *testing.T) {
	assert.Equal(t, "embedsMany", EmbedsMany.String())
	assert.Equal(t, "RelationKind(9)", RelationKind(9).String())
	assert.True(t, EmbedsOne.Embedded())
	assert.False(t, ReferencesMany.Embedded())
	assert.True(t, ReferencesMany.Many())
	assert.False(t, ReferencesOne.Many())
}

func TestDefinition_Defaults(t *testing.T) {
	d := &Definition{Name: "x"}
	assert.Equal(t, persistence.Acknowledged, d.writeConcern())
	assert.Equal(t, DefaultDeletedAtField, d.deletedAtField())
	assert.Equal(t, "_id", Relation{}.key())

	d.WriteConcern = IntPtr(0)
	d.DeletedAtField = "removed"
	assert.Equal(t, 0, d.writeConcern())
	assert.Equal(t, "removed", d.deletedAtField())
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		ok   bool
	}{
		{"valid", Definition{Name: "a", Relations: map[string]Relation{"r": {Kind: EmbedsOne, Target: "b", Field: "r"}}}, true},
		{"no name", Definition{}, false},
		{"bad kind", Definition{Name: "a", Relations: map[string]Relation{"r": {Target: "b", Field: "r"}}}, false},
		{"no target", Definition{Name: "a", Relations: map[string]Relation{"r": {Kind: EmbedsOne, Field: "r"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestNotFoundError(t *testing.T) {
	err := error(&NotFoundError{Collection: "users", Filter: query.Filter{"name": "x"}})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "users")
}

func TestNormalizeFilter(t *testing.T) {
	f, opts := normalizeFilter(nil)
	assert.Equal(t, query.Filter{}, f)
	assert.Nil(t, opts)

	f, _ = normalizeFilter(map[string]any{"a": 1})
	assert.Equal(t, query.Filter{"a": 1}, f)

	f, _ = normalizeFilter(42)
	assert.Equal(t, query.IDFilter(42), f)

	f, opts = normalizeFilter(query.NewQueryBuilder().Where("a").Eq(1).Limit(5))
	assert.NotEmpty(t, f)
	if assert.NotNil(t, opts) {
		assert.Equal(t, int64(5), opts.Limit)
	}
}
