// Package query defines the flat filter, projection and find-option shapes
// passed through to document stores, a fluent builder for them, and an
// in-memory processor that evaluates them for stores without a native query
// engine.
package query

import (
	"maps"
	"slices"

	"github.com/asaidimu/go-odm/core/schema"
)

// Logical operators for combining filters.
const (
	LogicalOperatorAnd schema.LogicalOperator = schema.LogicalAnd
	LogicalOperatorOr  schema.LogicalOperator = schema.LogicalOr
	LogicalOperatorNor schema.LogicalOperator = schema.LogicalNor
)

// ComparisonOperator is a filter operator key such as "$gt".
type ComparisonOperator string

// Supported comparison operators.
const (
	ComparisonOperatorEq     ComparisonOperator = "$eq"
	ComparisonOperatorNeq    ComparisonOperator = "$ne"
	ComparisonOperatorLt     ComparisonOperator = "$lt"
	ComparisonOperatorLte    ComparisonOperator = "$lte"
	ComparisonOperatorGt     ComparisonOperator = "$gt"
	ComparisonOperatorGte    ComparisonOperator = "$gte"
	ComparisonOperatorIn     ComparisonOperator = "$in"
	ComparisonOperatorNin    ComparisonOperator = "$nin"
	ComparisonOperatorExists ComparisonOperator = "$exists"
	ComparisonOperatorRegex  ComparisonOperator = "$regex"
	ComparisonOperatorNot    ComparisonOperator = "$not"
	ComparisonOperatorSize   ComparisonOperator = "$size"
)

// Filter keys that combine nested filters.
const (
	FilterAnd = "$and"
	FilterOr  = "$or"
	FilterNor = "$nor"
)

// standardComparisonOperators is a set of all the standard, built-in comparison operators.
var standardComparisonOperators = map[ComparisonOperator]struct{}{
	ComparisonOperatorEq:     {},
	ComparisonOperatorNeq:    {},
	ComparisonOperatorLt:     {},
	ComparisonOperatorLte:    {},
	ComparisonOperatorGt:     {},
	ComparisonOperatorGte:    {},
	ComparisonOperatorIn:     {},
	ComparisonOperatorNin:    {},
	ComparisonOperatorExists: {},
	ComparisonOperatorRegex:  {},
	ComparisonOperatorNot:    {},
	ComparisonOperatorSize:   {},
}

// IsStandard checks if a comparison operator is one of the standard, built-in operators.
func (c ComparisonOperator) IsStandard() bool {
	_, ok := standardComparisonOperators[c]
	return ok
}

// GetStandardComparisonOperators returns a copy of the standard operator set.
func GetStandardComparisonOperators() map[ComparisonOperator]struct{} {
	return maps.Clone(standardComparisonOperators)
}

// Filter is a document-store filter, e.g. {"age": {"$gt": 30}}.
type Filter map[string]any

// IDFilter matches a single document by primary id.
func IDFilter(id any) Filter {
	return Filter{schema.IDField: schema.CanonicalID(id)}
}

// Clone returns a shallow copy of the filter.
func (f Filter) Clone() Filter {
	if f == nil {
		return Filter{}
	}
	return maps.Clone(f)
}

// And combines two filters. Disjoint filters are merged key by key, others
// are wrapped in $and.
func (f Filter) And(other Filter) Filter {
	if len(other) == 0 {
		return f.Clone()
	}
	if len(f) == 0 {
		return other.Clone()
	}
	merged := f.Clone()
	for k, v := range other {
		if _, clash := merged[k]; clash {
			return Filter{FilterAnd: []any{map[string]any(f), map[string]any(other)}}
		}
		merged[k] = v
	}
	return merged
}

// Projection selects fields: 1 includes, 0 excludes.
type Projection map[string]any

// ProjectionOf builds an inclusion projection for the given fields.
func ProjectionOf(fields ...string) Projection {
	if len(fields) == 0 {
		return nil
	}
	p := make(Projection, len(fields))
	for _, f := range fields {
		p[f] = 1
	}
	return p
}

// Fields returns the projected field names in sorted order.
func (p Projection) Fields() []string {
	return slices.Sorted(maps.Keys(p))
}

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortConfiguration defines the sorting order for a specific field.
type SortConfiguration struct {
	Field     string        // The field to sort by.
	Direction SortDirection // The direction of the sort (ascending or descending).
}

// Sign returns 1 for ascending and -1 for descending.
func (s SortConfiguration) Sign() int {
	if s.Direction == SortDirectionDesc {
		return -1
	}
	return 1
}

// FindOptions carries the read parameters that accompany a filter.
type FindOptions struct {
	Projection      Projection          `json:",omitempty"`
	Sort            []SortConfiguration `json:",omitempty"`
	Skip            int64               `json:",omitempty"`
	Limit           int64               `json:",omitempty"` // 0 means no limit.
	NoCursorTimeout bool                `json:",omitempty"`
	ReadPreference  string              `json:",omitempty"` // e.g. "primary", "secondaryPreferred".
}

// QueryDSL is a filter together with its find options.
type QueryDSL struct {
	Filter  Filter
	Options FindOptions
}
