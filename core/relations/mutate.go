package relations

import (
	"errors"
	"fmt"

	"github.com/asaidimu/go-odm/core/schema"
)

// ErrNotDocument is returned when a value that must be embedded is not
// document shaped.
var ErrNotDocument = errors.New("value is not a document")

// Holder is the owner of a relation's backing field. attributes.Store
// satisfies it.
type Holder interface {
	Lookup(key string) (any, bool)
	Set(key string, value any)
}

// ensureID returns the id of target, generating and assigning one when it is
// missing, together with target's document form.
func ensureID(target any) (any, schema.Document, error) {
	if h, ok := target.(Holder); ok {
		id, found := h.Lookup(schema.IDField)
		if !found || id == nil {
			id = schema.NewID()
			h.Set(schema.IDField, id)
		}
		doc, _ := schema.ToDocument(target)
		return id, doc, nil
	}

	m, ok := schema.AsMap(target)
	if !ok {
		if doc, converted := schema.ToDocument(target); converted {
			m = doc
		} else {
			return nil, nil, fmt.Errorf("%w: %T", ErrNotDocument, target)
		}
	}
	id, found := m[schema.IDField]
	if !found || id == nil {
		id = schema.NewID()
		m[schema.IDField] = id
	}
	doc, _ := schema.ToDocument(m)
	return id, doc, nil
}

// referenceID returns the id to store for target: its _id when it is a
// document, otherwise the canonical form of target itself.
func referenceID(target any) (any, error) {
	switch target.(type) {
	case string, int, int32, int64, float64:
		return schema.CanonicalID(target), nil
	}
	if _, ok := schema.AsMap(target); ok {
		id, _, err := ensureID(target)
		return id, err
	}
	if _, ok := target.(Holder); ok {
		id, _, err := ensureID(target)
		return id, err
	}
	return schema.CanonicalID(target), nil
}

func list(h Holder, field string) []any {
	raw, _ := h.Lookup(field)
	switch v := schema.Normalize(raw).(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// without returns a new contiguous list holding the items of l whose id does
// not equal id.
func without(l []any, id any) []any {
	out := make([]any, 0, len(l))
	for _, item := range l {
		if schema.IDsEqual(IDOf(item), id) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Embed stores doc inside field, replacing any embedded document with the
// same id. doc receives a generated id when it has none. The id is returned.
func Embed(h Holder, field string, doc any) (any, error) {
	id, d, err := ensureID(doc)
	if err != nil {
		return nil, err
	}
	l := append(without(list(h, field), id), map[string]any(d))
	h.Set(field, l)
	return id, nil
}

// Unembed removes the embedded document sharing doc's id from field. doc may
// also be a bare id.
func Unembed(h Holder, field string, doc any) {
	id := IDOf(schema.Normalize(doc))
	h.Set(field, without(list(h, field), id))
}

// Attach appends target's id to field unless it is already present. Documents
// without an id receive a generated one. The id is returned.
func Attach(h Holder, field string, target any) (any, error) {
	id, err := referenceID(target)
	if err != nil {
		return nil, err
	}
	l := list(h, field)
	for _, existing := range l {
		if schema.IDsEqual(existing, id) {
			h.Set(field, append([]any(nil), l...))
			return id, nil
		}
	}
	h.Set(field, append(append(make([]any, 0, len(l)+1), l...), id))
	return id, nil
}

// Detach removes target's id from field.
func Detach(h Holder, field string, target any) {
	id := IDOf(schema.Normalize(target))
	h.Set(field, without(list(h, field), id))
}

// EmbedOne replaces the content of field with doc.
func EmbedOne(h Holder, field string, doc any) (any, error) {
	id, d, err := ensureID(doc)
	if err != nil {
		return nil, err
	}
	h.Set(field, nil)
	h.Set(field, map[string]any(d))
	return id, nil
}

// ReferenceOne replaces the content of field with target's id.
func ReferenceOne(h Holder, field string, target any) (any, error) {
	id, err := referenceID(target)
	if err != nil {
		return nil, err
	}
	h.Set(field, nil)
	h.Set(field, id)
	return id, nil
}
