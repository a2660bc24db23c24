package relations

import (
	"testing"

	"github.com/asaidimu/go-odm/core/attributes"
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCanonicalOne(t *testing.T) {
	oid := primitive.NewObjectID()

	tests := []struct {
		name string
		raw  any
		want any
	}{
		{"hex string", oid.Hex(), oid},
		{"object id", oid, oid},
		{"plain string", "alice", "alice"},
		{"short hex", "abc123", "abc123"},
		{"number", 42, 42},
		{"list takes first", []any{oid.Hex(), "x"}, oid},
		{"typed list", []string{"a", "b"}, "a"},
		{"empty list", []any{}, nil},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalOne(tt.raw))
		})
	}
}

func TestCanonicalOne_HexAndObjectIDAgree(t *testing.T) {
	for i := 0; i < 10; i++ {
		oid := primitive.NewObjectID()
		assert.True(t, schema.IDsEqual(CanonicalOne(oid.Hex()), CanonicalOne(oid)))
	}
}

func TestCanonicalMany(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.Equal(t, []any{}, CanonicalMany(nil))
	assert.Equal(t, []any{"a"}, CanonicalMany("a"))
	assert.Equal(t, []any{oid, 7}, CanonicalMany([]any{oid.Hex(), 7}))
}

func TestFilters(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.Equal(t, query.Filter{"_id": oid}, FilterOne("_id", []any{oid.Hex()}))
	assert.Equal(t, query.Filter{"_id": map[string]any{"$in": []any{oid, "b"}}}, FilterMany("_id", []any{oid.Hex(), "b"}))
	assert.Equal(t, query.Filter{"_id": map[string]any{"$in": []any{}}}, FilterMany("_id", nil))
}

func TestEmbed(t *testing.T) {
	h := attributes.NewStore(nil)

	first := map[string]any{"name": "home"}
	id, err := Embed(h, "addresses", first)
	require.NoError(t, err)
	assert.Equal(t, id, first["_id"], "id is assigned on the embedded document")

	_, err = Embed(h, "addresses", map[string]any{"_id": "work", "name": "office"})
	require.NoError(t, err)

	_, err = Embed(h, "addresses", map[string]any{"_id": id, "name": "new home"})
	require.NoError(t, err)

	got := h.Get("addresses").([]any)
	require.Len(t, got, 2)
	assert.Equal(t, "office", got[0].(map[string]any)["name"])
	assert.Equal(t, "new home", got[1].(map[string]any)["name"])

	Unembed(h, "addresses", map[string]any{"_id": "work"})
	got = h.Get("addresses").([]any)
	require.Len(t, got, 1)
	assert.Equal(t, "new home", got[0].(map[string]any)["name"])

	Unembed(h, "addresses", id.(primitive.ObjectID).Hex())
	assert.Empty(t, h.Get("addresses"))

	_, err = Embed(h, "addresses", 12)
	assert.ErrorIs(t, err, ErrNotDocument)
}

func TestEmbed_HolderTarget(t *testing.T) {
	owner := attributes.NewStore(nil)
	child := attributes.NewStore(nil)
	child.Set("name", "nested")

	id, err := Embed(owner, "children", child)
	require.NoError(t, err)
	assert.Equal(t, id, child.Get("_id"))
	assert.Equal(t, []any{map[string]any{"_id": id, "name": "nested"}}, owner.Get("children"))
}

func TestAttachDetach(t *testing.T) {
	h := attributes.NewStore(nil)
	oid := primitive.NewObjectID()

	_, err := Attach(h, "friends", oid.Hex())
	require.NoError(t, err)
	_, err = Attach(h, "friends", oid)
	require.NoError(t, err)
	assert.Equal(t, []any{oid}, h.Get("friends"), "attach is idempotent")

	doc := map[string]any{"name": "bob"}
	id, err := Attach(h, "friends", doc)
	require.NoError(t, err)
	assert.Equal(t, id, doc["_id"])
	assert.Equal(t, []any{oid, id}, h.Get("friends"))

	Detach(h, "friends", oid.Hex())
	assert.Equal(t, []any{id}, h.Get("friends"))

	Detach(h, "friends", doc)
	assert.Equal(t, []any{}, h.Get("friends"))
}

func TestAttach_ScalarField(t *testing.T) {
	h := attributes.NewStore(nil)
	h.Set("friends", "a")
	_, err := Attach(h, "friends", "b")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, h.Get("friends"))
}

func TestOneVariants(t *testing.T) {
	h := attributes.NewStore(nil)
	h.Set("profile", []any{map[string]any{"_id": "old"}, map[string]any{"_id": "older"}})

	id, err := EmbedOne(h, "profile", map[string]any{"bio": "hi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_id": id, "bio": "hi"}, h.Get("profile"))

	h.Set("owner", []any{"a", "b"})
	id, err = ReferenceOne(h, "owner", map[string]any{"_id": "c"})
	require.NoError(t, err)
	assert.Equal(t, "c", id)
	assert.Equal(t, "c", h.Get("owner"))
}

func TestMutationsNotifyOwner(t *testing.T) {
	var changed []string
	h := attributes.NewStore(&attributes.Options{OnChange: func(key string) { changed = append(changed, key) }})

	_, err := Attach(h, "tags", "x")
	require.NoError(t, err)
	Detach(h, "tags", "x")
	assert.Equal(t, []string{"tags", "tags"}, changed)
}
