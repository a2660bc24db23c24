package schema

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDField is the document key holding the primary identifier.
const IDField = "_id"

// NewID generates a fresh opaque identifier.
func NewID() primitive.ObjectID {
	return primitive.NewObjectID()
}

// IsObjectIDHex reports whether v is a 24 character hexadecimal string.
func IsObjectIDHex(v any) bool {
	s, ok := v.(string)
	return ok && len(s) == 24 && primitive.IsValidObjectID(s)
}

// CanonicalID converts 24-hex strings to ObjectIDs and returns every other
// value unchanged.
func CanonicalID(v any) any {
	if s, ok := v.(string); ok && IsObjectIDHex(s) {
		oid, err := primitive.ObjectIDFromHex(s)
		if err == nil {
			return oid
		}
	}
	return v
}

// IDString returns the canonical textual form of an identifier.
func IDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case primitive.ObjectID:
		return id.Hex()
	case *primitive.ObjectID:
		if id == nil {
			return ""
		}
		return id.Hex()
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// IDsEqual compares two identifiers by their canonical textual form.
func IDsEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return IDString(CanonicalID(a)) == IDString(CanonicalID(b))
}
