// Package relations normalizes reference values into query filters and
// mutates the raw fields that back embedded and referenced relations.
package relations

import (
	"github.com/asaidimu/go-odm/core/query"
	"github.com/asaidimu/go-odm/core/schema"
)

// CanonicalOne canonicalizes the value of a to-one reference. A list yields
// its first element; 24-hex strings become ObjectIDs; anything else is
// returned unchanged.
func CanonicalOne(raw any) any {
	raw = schema.Normalize(raw)
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		raw = list[0]
	}
	return schema.CanonicalID(raw)
}

// CanonicalMany canonicalizes the value of a to-many reference. Absent values
// yield an empty list and scalars a one-element list.
func CanonicalMany(raw any) []any {
	raw = schema.Normalize(raw)
	var list []any
	switch v := raw.(type) {
	case nil:
		return []any{}
	case []any:
		list = v
	default:
		list = []any{v}
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		out = append(out, schema.CanonicalID(item))
	}
	return out
}

// FilterOne builds {key: canonical} for a to-one reference.
func FilterOne(key string, raw any) query.Filter {
	return query.Filter{key: CanonicalOne(raw)}
}

// FilterMany builds {key: {$in: [...]}} for a to-many reference.
func FilterMany(key string, raw any) query.Filter {
	return query.Filter{key: map[string]any{string(query.ComparisonOperatorIn): CanonicalMany(raw)}}
}

// IDOf returns the identifier of an embedded document, or target itself when
// it is not a document.
func IDOf(target any) any {
	if doc, ok := schema.AsMap(target); ok {
		return doc[schema.IDField]
	}
	return target
}
