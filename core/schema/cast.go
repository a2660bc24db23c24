package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Cast applies a primitive directive to a value. Casts never fail: scalar
// input always yields a value of the target type and non-scalar input is
// returned normalized but otherwise unchanged.
func Cast(ft FieldType, value any) any {
	value = Normalize(value)
	switch ft {
	case FieldTypeString:
		return ToString(value)
	case FieldTypeInteger:
		return ToInteger(value)
	case FieldTypeNumber, FieldTypeDecimal:
		return ToFloat(value)
	case FieldTypeBoolean:
		return ToBool(value)
	case FieldTypeArray:
		return ToList(value)
	default:
		return value
	}
}

// IsScalar reports whether v is a string, number or boolean.
func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// ToString stringifies scalars and ids.
func ToString(v any) any {
	switch val := v.(type) {
	case string:
		return val
	case primitive.ObjectID:
		return val.Hex()
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	if IsScalar(v) {
		return fmt.Sprint(v)
	}
	return v
}

// ToInteger converts scalars to int64. Unparseable strings become 0.
func ToInteger(v any) any {
	if i, ok := toInt64(v); ok {
		return i
	}
	switch val := v.(type) {
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f)
		}
		return int64(0)
	case float32:
		return int64(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return int64(0)
		}
		return int64(val)
	}
	return v
}

// ToFloat converts scalars to float64. Unparseable strings become 0.
func ToFloat(v any) any {
	if f, ok := ToFloat64(v); ok {
		return f
	}
	switch val := v.(type) {
	case bool:
		if val {
			return float64(1)
		}
		return float64(0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return float64(0)
		}
		return f
	}
	return v
}

// ToBool converts scalars to bool. Strings are parsed with strconv.ParseBool
// and otherwise judged by emptiness.
func ToBool(v any) any {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
		return val != ""
	}
	if f, ok := ToFloat64(v); ok {
		return f != 0
	}
	return v
}

// ToList wraps a non-list value in a one-element list.
func ToList(v any) any {
	switch val := v.(type) {
	case nil:
		return []any{}
	case []any:
		return val
	}
	return []any{v}
}

// ToFloat64 converts numeric values to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	}
	return 0, false
}
