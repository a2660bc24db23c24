package schema

import (
	"reflect"
	"time"

	"github.com/asaidimu/go-odm/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const primitivePkg = "go.mongodb.org/mongo-driver/bson/primitive"

// Normalize turns attributables, BSON containers, structs and any other
// string-keyed map or slice into plain map[string]any and []any values,
// recursively. Opaque values (ids, times, BSON primitives) are kept as is.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Attributable:
		return Normalize(map[string]any(val.Attributes()))
	case Document:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case string, bool, []byte, time.Time, primitive.ObjectID:
		return val
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		if rv.Elem().Kind() == reflect.Struct {
			return Normalize(rv.Elem().Interface())
		}
		return v
	case reflect.Struct:
		if rv.Type().PkgPath() == primitivePkg {
			return v
		}
		m, err := utils.StructToMap(v)
		if err != nil {
			return v
		}
		return Normalize(m)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, item := range m {
		out[k] = Normalize(item)
	}
	return out
}

// AsMap returns v as a plain map when it is map-shaped.
func AsMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case Document:
		return map[string]any(val), true
	case Attributable:
		return map[string]any(val.Attributes()), true
	case primitive.M:
		return map[string]any(val), true
	case primitive.D:
		m, _ := Normalize(val).(map[string]any)
		return m, true
	}
	return nil, false
}

// ToDocument normalizes v and returns it as a Document.
func ToDocument(v any) (Document, bool) {
	m, ok := Normalize(v).(map[string]any)
	if !ok {
		return nil, false
	}
	return Document(m), true
}

// Clone returns a value-independent copy of the document's plain containers.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneValue(map[string]any(d)).(map[string]any))
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Document:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// Equal compares two values structurally. Numbers compare by value across
// integer and float kinds, ids by their canonical text.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := ToFloat64(a); ok {
		fb, ok := ToFloat64(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case primitive.ObjectID:
		if bv, ok := b.(primitive.ObjectID); ok {
			return av == bv
		}
		return IDsEqual(av, b)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	if am, ok := AsMap(a); ok {
		bm, ok := AsMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			w, present := bm[k]
			if !present || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	if _, ok := b.(primitive.ObjectID); ok {
		return IDsEqual(a, b)
	}
	return reflect.DeepEqual(a, b)
}
