package query

import (
	"regexp"
	"strings"

	"github.com/asaidimu/go-odm/core/schema"
)

// QueryBuilder provides a fluent API for building filters and find options.
// Conditions added with Where are combined with AND.
//
//	q := NewQueryBuilder().Where("age").Gte(18).OrderByDesc("age").Limit(10).Build()
//	// q.Filter == Filter{"age": map[string]any{"$gte": 18}}
type QueryBuilder struct {
	conditions []Filter
	options    FindOptions
}

// NewQueryBuilder creates a new, empty query builder instance.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Build returns the constructed QueryDSL object.
func (qb *QueryBuilder) Build() QueryDSL {
	return QueryDSL{Filter: combine(qb.conditions), Options: qb.options}
}

// Filter returns only the filter part of the query.
func (qb *QueryBuilder) Filter() Filter {
	return combine(qb.conditions)
}

// combine merges conditions on distinct fields into one filter and falls
// back to $and when two conditions share a key.
func combine(conditions []Filter) Filter {
	out := Filter{}
	for _, c := range conditions {
		out = out.And(c)
	}
	return out
}

// Clone creates a copy of the builder that can be extended independently.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	clone := &QueryBuilder{
		conditions: make([]Filter, len(qb.conditions)),
		options:    qb.options,
	}
	for i, c := range qb.conditions {
		clone.conditions[i] = c.Clone()
	}
	clone.options.Sort = append([]SortConfiguration(nil), qb.options.Sort...)
	if qb.options.Projection != nil {
		clone.options.Projection = make(Projection, len(qb.options.Projection))
		for k, v := range qb.options.Projection {
			clone.options.Projection[k] = v
		}
	}
	return clone
}

// Reset clears all configurations from the query builder, returning it to its initial state.
func (qb *QueryBuilder) Reset() *QueryBuilder {
	qb.conditions = nil
	qb.options = FindOptions{}
	return qb
}

// WhereFilter adds a raw filter to the query.
func (qb *QueryBuilder) WhereFilter(f Filter) *QueryBuilder {
	if len(f) > 0 {
		qb.conditions = append(qb.conditions, f.Clone())
	}
	return qb
}

// Where begins the construction of a filter condition for a specific field.
func (qb *QueryBuilder) Where(field string) *FilterConditionBuilder {
	return &FilterConditionBuilder{
		field: field,
		add: func(f Filter) {
			qb.conditions = append(qb.conditions, f)
		},
		parent: qb,
	}
}

// WhereGroup begins a group of conditions combined with a logical operator.
func (qb *QueryBuilder) WhereGroup(operator schema.LogicalOperator) *FilterGroupBuilder {
	return &FilterGroupBuilder{parent: qb, operator: operator}
}

// FilterConditionBuilder is used to build a single filter condition (e.g., field = value).
type FilterConditionBuilder struct {
	field  string
	add    func(Filter)
	parent *QueryBuilder
}

func (fcb *FilterConditionBuilder) addCondition(operator ComparisonOperator, value any) *QueryBuilder {
	fcb.add(condition(fcb.field, operator, value))
	return fcb.parent
}

func condition(field string, operator ComparisonOperator, value any) Filter {
	return Filter{field: map[string]any{string(operator): value}}
}

// Eq adds an equality condition to the query.
func (fcb *FilterConditionBuilder) Eq(value any) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorEq, value)
}

// Neq adds a not-equal condition to the query.
func (fcb *FilterConditionBuilder) Neq(value any) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorNeq, value)
}

// Lt adds a less-than condition to the query.
func (fcb *FilterConditionBuilder) Lt(value any) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorLt, value)
}

// Lte adds a less-than-or-equal condition to the query.
func (fcb *FilterConditionBuilder) Lte(value any) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorLte, value)
}

// Gt adds a greater-than condition to the query.
func (fcb *FilterConditionBuilder) Gt(value any) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorGt, value)
}

// Gte adds a greater-than-or-equal condition to the query.
func (fcb *FilterConditionBuilder) Gte(value any) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorGte, value)
}

// In adds an "in" condition, checking if a field's value is within a set of values.
func (fcb *FilterConditionBuilder) In(values ...any) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorIn, values)
}

// Nin adds a "not in" condition, checking if a field's value is not within a set of values.
func (fcb *FilterConditionBuilder) Nin(values ...any) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorNin, values)
}

// Contains adds a substring condition.
func (fcb *FilterConditionBuilder) Contains(value string) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorRegex, regexp.QuoteMeta(value))
}

// NotContains adds a negated substring condition.
func (fcb *FilterConditionBuilder) NotContains(value string) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorNot, map[string]any{
		string(ComparisonOperatorRegex): regexp.QuoteMeta(value),
	})
}

// StartsWith adds a prefix condition.
func (fcb *FilterConditionBuilder) StartsWith(value string) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorRegex, "^"+regexp.QuoteMeta(value))
}

// EndsWith adds a suffix condition.
func (fcb *FilterConditionBuilder) EndsWith(value string) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorRegex, regexp.QuoteMeta(value)+"$")
}

// Exists adds a condition to check if a field exists.
func (fcb *FilterConditionBuilder) Exists() *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorExists, true)
}

// NotExists adds a condition to check if a field does not exist.
func (fcb *FilterConditionBuilder) NotExists() *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorExists, false)
}

// Custom allows for the use of a custom comparison operator.
func (fcb *FilterConditionBuilder) Custom(operator ComparisonOperator, value any) *QueryBuilder {
	if !strings.HasPrefix(string(operator), "$") {
		operator = "$" + operator
	}
	return fcb.addCondition(operator, value)
}

// FilterGroupBuilder is used to build a group of filter conditions.
type FilterGroupBuilder struct {
	parent     *QueryBuilder
	outer      *FilterGroupBuilder
	operator   schema.LogicalOperator
	conditions []any
}

// Where adds a new condition to the current filter group.
func (fgb *FilterGroupBuilder) Where(field string) *FilterConditionBuilderInGroup {
	return &FilterConditionBuilderInGroup{groupBuilder: fgb, field: field}
}

// WhereGroup opens a nested group inside the current group.
func (fgb *FilterGroupBuilder) WhereGroup(operator schema.LogicalOperator) *FilterGroupBuilder {
	return &FilterGroupBuilder{parent: fgb.parent, outer: fgb, operator: operator}
}

// EndGroup closes a nested group and returns to the enclosing group. It is a
// no-op on a top-level group.
func (fgb *FilterGroupBuilder) EndGroup() *FilterGroupBuilder {
	if fgb.outer == nil {
		return fgb
	}
	fgb.outer.conditions = append(fgb.outer.conditions, map[string]any(fgb.filter()))
	return fgb.outer
}

// End closes this group and every enclosing one and returns to the query builder.
func (fgb *FilterGroupBuilder) End() *QueryBuilder {
	if fgb.outer != nil {
		return fgb.EndGroup().End()
	}
	if f := fgb.filter(); len(f) > 0 {
		fgb.parent.conditions = append(fgb.parent.conditions, f)
	}
	return fgb.parent
}

func (fgb *FilterGroupBuilder) filter() Filter {
	if len(fgb.conditions) == 0 {
		return Filter{}
	}
	key := FilterAnd
	switch fgb.operator {
	case LogicalOperatorOr:
		key = FilterOr
	case LogicalOperatorNor:
		key = FilterNor
	}
	return Filter{key: append([]any(nil), fgb.conditions...)}
}

// FilterConditionBuilderInGroup is used to build a filter condition within a group.
type FilterConditionBuilderInGroup struct {
	groupBuilder *FilterGroupBuilder
	field        string
}

func (fcbg *FilterConditionBuilderInGroup) addConditionToGroup(operator ComparisonOperator, value any) *FilterGroupBuilder {
	c := condition(fcbg.field, operator, value)
	fcbg.groupBuilder.conditions = append(fcbg.groupBuilder.conditions, map[string]any(c))
	return fcbg.groupBuilder
}

// Eq adds an equality condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Eq(value any) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorEq, value)
}

// Neq adds a not-equal condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Neq(value any) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorNeq, value)
}

// Lt adds a less-than condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Lt(value any) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorLt, value)
}

// Lte adds a less-than-or-equal condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Lte(value any) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorLte, value)
}

// Gt adds a greater-than condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Gt(value any) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorGt, value)
}

// Gte adds a greater-than-or-equal condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Gte(value any) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorGte, value)
}

// In adds an "in" condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) In(values ...any) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorIn, values)
}

// Nin adds a "not in" condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Nin(values ...any) *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorNin, values)
}

// Exists adds an exists condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) Exists() *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorExists, true)
}

// NotExists adds a not-exists condition to the current filter group.
func (fcbg *FilterConditionBuilderInGroup) NotExists() *FilterGroupBuilder {
	return fcbg.addConditionToGroup(ComparisonOperatorExists, false)
}

// Custom allows for custom comparison operators within a filter group.
func (fcbg *FilterConditionBuilderInGroup) Custom(operator ComparisonOperator, value any) *FilterGroupBuilder {
	if !strings.HasPrefix(string(operator), "$") {
		operator = "$" + operator
	}
	return fcbg.addConditionToGroup(operator, value)
}

// OrderBy adds a sorting configuration to the query.
func (qb *QueryBuilder) OrderBy(field string, direction SortDirection) *QueryBuilder {
	qb.options.Sort = append(qb.options.Sort, SortConfiguration{Field: field, Direction: direction})
	return qb
}

// OrderByAsc adds an ascending sort order for a specific field.
func (qb *QueryBuilder) OrderByAsc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDirectionAsc)
}

// OrderByDesc adds a descending sort order for a specific field.
func (qb *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDirectionDesc)
}

// Limit sets the maximum number of documents to be returned by the query.
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder {
	qb.options.Limit = int64(limit)
	return qb
}

// Offset sets how many matching documents to skip.
func (qb *QueryBuilder) Offset(offset int) *QueryBuilder {
	qb.options.Skip = int64(offset)
	return qb
}

// Select includes only the given fields in results.
func (qb *QueryBuilder) Select(fields ...string) *QueryBuilder {
	if qb.options.Projection == nil {
		qb.options.Projection = Projection{}
	}
	for _, f := range fields {
		qb.options.Projection[f] = 1
	}
	return qb
}

// Exclude removes the given fields from results.
func (qb *QueryBuilder) Exclude(fields ...string) *QueryBuilder {
	if qb.options.Projection == nil {
		qb.options.Projection = Projection{}
	}
	for _, f := range fields {
		qb.options.Projection[f] = 0
	}
	return qb
}

// NoCursorTimeout asks the store to keep the server cursor alive.
func (qb *QueryBuilder) NoCursorTimeout() *QueryBuilder {
	qb.options.NoCursorTimeout = true
	return qb
}

// ReadPreference sets the read preference mode, e.g. "secondaryPreferred".
func (qb *QueryBuilder) ReadPreference(mode string) *QueryBuilder {
	qb.options.ReadPreference = mode
	return qb
}
