// Package utils converts between Go structs and the plain nested maps the
// mapper works with. BSON tags drive the conversion so ids and timestamps keep
// their concrete types.
package utils

import (
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StructToMap converts a struct, or a pointer to one, into a plain
// map[string]any. Nested documents become map[string]any and arrays []any.
//
// Example:
//
//	type Profile struct {
//		Name string `bson:"name"`
//		Tags []string `bson:"tags"`
//	}
//	m, err := StructToMap(Profile{Name: "Jane", Tags: []string{"a"}})
//	// m == map[string]any{"name": "Jane", "tags": []any{"a"}}
func StructToMap[T any](record T) (map[string]any, error) {
	val := reflect.ValueOf(record)
	if !val.IsValid() {
		return nil, fmt.Errorf("input record cannot be nil")
	}
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("input record cannot be a nil pointer to a struct")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	raw, err := bson.Marshal(val.Interface())
	if err != nil {
		return nil, fmt.Errorf("StructToMap: failed to marshal input record: %w", err)
	}

	var decoded bson.M
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("StructToMap: failed to unmarshal record: %w", err)
	}

	result, _ := Plain(decoded).(map[string]any)
	return result, nil
}

// MapToStruct is the inverse of StructToMap: it decodes a map into a new T.
// T must be a struct type or a pointer to one.
func MapToStruct[T any](input map[string]any) (T, error) {
	var zero T
	if input == nil {
		return zero, fmt.Errorf("MapToStruct: input map cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	isPtr := typ.Kind() == reflect.Ptr
	if isPtr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("MapToStruct: generic type T must be a struct type (or pointer to struct), got %s", typ.Kind())
	}

	raw, err := bson.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("MapToStruct: failed to marshal input map: %w", err)
	}

	target := reflect.New(typ)
	if err := bson.Unmarshal(raw, target.Interface()); err != nil {
		return zero, fmt.Errorf("MapToStruct: failed to unmarshal into target struct: %w", err)
	}

	if isPtr {
		return target.Interface().(T), nil
	}
	return target.Elem().Interface().(T), nil
}

// Plain rewrites BSON container types (bson.M, bson.D, bson.A) and any other
// string-keyed map or slice into map[string]any and []any, recursively.
// Scalars and opaque values such as ObjectIDs are returned unchanged.
func Plain(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Plain(item)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = Plain(e.Value)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	case []byte, string:
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
			out[iter.Key().String()] = Plain(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Plain(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}

// FromBSON converts a value decoded by the BSON driver into the shapes the
// mapper expects: documents become map[string]any, arrays []any, 32-bit
// integers int64 and dates time.Time in UTC.
func FromBSON(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = FromBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = FromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = FromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = FromBSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = FromBSON(item)
		}
		return out
	case int32:
		return int64(val)
	case primitive.DateTime:
		return val.Time().UTC()
	case time.Time:
		return val.UTC()
	default:
		return val
	}
}
