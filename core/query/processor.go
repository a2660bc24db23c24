package query

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-odm/core/schema"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// PredicateFunction performs custom filtering logic for a registered operator.
// It receives the whole document, the field the operator was applied to and
// the operator's argument.
type PredicateFunction func(doc schema.Document, field string, args any) (bool, error)

// DataProcessor evaluates filters, sorts, projections and updates against
// in-memory documents.
type DataProcessor struct {
	filterFunctions map[ComparisonOperator]PredicateFunction
	mu              sync.RWMutex
	logger          *zap.Logger
}

// NewDataProcessor creates a new DataProcessor instance.
func NewDataProcessor(logger *zap.Logger) *DataProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataProcessor{
		filterFunctions: make(map[ComparisonOperator]PredicateFunction),
		logger:          logger,
	}
}

func operatorKey(op ComparisonOperator) ComparisonOperator {
	if !strings.HasPrefix(string(op), "$") {
		return "$" + op
	}
	return op
}

// RegisterFilterFunction registers a Go function for a custom operator.
func (p *DataProcessor) RegisterFilterFunction(operator ComparisonOperator, fn PredicateFunction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filterFunctions[operatorKey(operator)] = fn
	p.logger.Info("Registered filter function", zap.String("operator", string(operator)))
}

// RegisterFilterFunctions registers multiple custom operators from a map.
func (p *DataProcessor) RegisterFilterFunctions(functionMap map[ComparisonOperator]PredicateFunction) {
	for operator, fn := range functionMap {
		p.RegisterFilterFunction(operator, fn)
	}
}

// Process filters, sorts, pages and projects docs according to the options.
func (p *DataProcessor) Process(ctx context.Context, docs []schema.Document, filter Filter, opts FindOptions) ([]schema.Document, error) {
	matched, err := p.Filter(ctx, docs, filter)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Documents remaining after filter", zap.Int("count", len(matched)))

	if len(opts.Sort) > 0 {
		matched = p.Sort(matched, opts.Sort)
	}
	matched = Page(matched, opts.Skip, opts.Limit)

	if len(opts.Projection) == 0 {
		return matched, nil
	}
	out := make([]schema.Document, len(matched))
	for i, doc := range matched {
		out[i] = p.Project(doc, opts.Projection)
	}
	return out, nil
}

// Filter returns the documents matching filter, in their original order.
func (p *DataProcessor) Filter(ctx context.Context, docs []schema.Document, filter Filter) ([]schema.Document, error) {
	out := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		ok, err := p.Match(ctx, filter, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Match evaluates a filter against a single document.
func (p *DataProcessor) Match(ctx context.Context, filter Filter, doc schema.Document) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.matchFilter(doc, map[string]any(filter))
}

func (p *DataProcessor) matchFilter(doc schema.Document, filter map[string]any) (bool, error) {
	for key, cond := range filter {
		var (
			ok  bool
			err error
		)
		switch key {
		case FilterAnd, FilterOr, FilterNor:
			ok, err = p.matchLogical(doc, key, cond)
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("unsupported top-level operator: %s", key)
			}
			ok, err = p.matchField(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (p *DataProcessor) matchLogical(doc schema.Document, key string, cond any) (bool, error) {
	list, ok := schema.Normalize(cond).([]any)
	if !ok {
		return false, fmt.Errorf("%s requires a list of filters, got %T", key, cond)
	}
	for _, item := range list {
		sub, ok := schema.AsMap(item)
		if !ok {
			return false, fmt.Errorf("%s entries must be filters, got %T", key, item)
		}
		matched, err := p.matchFilter(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case key == FilterAnd && !matched:
			return false, nil
		case key == FilterOr && matched:
			return true, nil
		case key == FilterNor && matched:
			return false, nil
		}
	}
	return key != FilterOr, nil
}

// operatorDocument returns cond as an operator map when every key is an operator.
func operatorDocument(cond any) (map[string]any, bool) {
	m, ok := schema.AsMap(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func (p *DataProcessor) matchField(doc schema.Document, field string, cond any) (bool, error) {
	values := resolve(map[string]any(doc), strings.Split(field, "."))
	ops, isOps := operatorDocument(cond)
	if !isOps {
		if re, ok := regexValue(cond); ok {
			return matchRegex(values, re), nil
		}
		return matchEq(values, cond), nil
	}
	return p.matchOperators(doc, field, values, ops)
}

func (p *DataProcessor) matchOperators(doc schema.Document, field string, values []any, ops map[string]any) (bool, error) {
	for key, arg := range ops {
		op := ComparisonOperator(key)
		var ok bool
		switch op {
		case "$options":
			continue
		case ComparisonOperatorEq:
			ok = matchEq(values, arg)
		case ComparisonOperatorNeq:
			ok = !matchEq(values, arg)
		case ComparisonOperatorGt:
			ok = matchCompare(values, arg, func(c int) bool { return c > 0 })
		case ComparisonOperatorGte:
			ok = matchCompare(values, arg, func(c int) bool { return c >= 0 })
		case ComparisonOperatorLt:
			ok = matchCompare(values, arg, func(c int) bool { return c < 0 })
		case ComparisonOperatorLte:
			ok = matchCompare(values, arg, func(c int) bool { return c <= 0 })
		case ComparisonOperatorIn, ComparisonOperatorNin:
			list, isList := schema.Normalize(arg).([]any)
			if !isList {
				return false, fmt.Errorf("%s requires a list, got %T", op, arg)
			}
			ok = matchIn(values, list)
			if op == ComparisonOperatorNin {
				ok = !ok
			}
		case ComparisonOperatorExists:
			want, _ := schema.ToBool(arg).(bool)
			ok = (len(values) > 0) == want
		case ComparisonOperatorRegex:
			options, _ := ops["$options"].(string)
			re, valid := asRegex(arg, options)
			if !valid {
				return false, fmt.Errorf("invalid $regex argument %v", arg)
			}
			ok = matchRegex(values, re)
		case ComparisonOperatorSize:
			n, isNum := schema.ToFloat64(arg)
			if !isNum {
				return false, fmt.Errorf("$size requires a number, got %T", arg)
			}
			for _, v := range values {
				if list, isList := v.([]any); isList && float64(len(list)) == n {
					ok = true
				}
			}
		case ComparisonOperatorNot:
			if re, isRe := regexValue(arg); isRe {
				ok = !matchRegex(values, re)
				break
			}
			inner, isOps := operatorDocument(arg)
			if !isOps {
				return false, fmt.Errorf("$not requires an operator document or regex, got %T", arg)
			}
			matched, err := p.matchOperators(doc, field, values, inner)
			if err != nil {
				return false, err
			}
			ok = !matched
		default:
			fn, registered := p.filterFunctions[op]
			if !registered {
				return false, fmt.Errorf("unregistered filter function for operator: %s", op)
			}
			matched, err := fn(doc, field, arg)
			if err != nil {
				return false, fmt.Errorf("filter function %s: %w", op, err)
			}
			ok = matched
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// resolve collects every value reachable at path. Lists are traversed by
// numeric index or, for other keys, by fanning out over their elements.
func resolve(node any, parts []string) []any {
	if len(parts) == 0 {
		return []any{node}
	}
	if m, ok := schema.AsMap(node); ok {
		child, present := m[parts[0]]
		if !present {
			return nil
		}
		return resolve(child, parts[1:])
	}
	list, ok := node.([]any)
	if !ok {
		return nil
	}
	if idx, err := strconv.Atoi(parts[0]); err == nil {
		if idx < 0 || idx >= len(list) {
			return nil
		}
		return resolve(list[idx], parts[1:])
	}
	var out []any
	for _, item := range list {
		if _, isMap := schema.AsMap(item); isMap {
			out = append(out, resolve(item, parts)...)
		}
	}
	return out
}

// Lookup returns the single value at a dotted path, without fanning out.
func Lookup(doc schema.Document, path string) (any, bool) {
	var node any = map[string]any(doc)
	for _, part := range strings.Split(path, ".") {
		if m, ok := schema.AsMap(node); ok {
			child, present := m[part]
			if !present {
				return nil, false
			}
			node = child
			continue
		}
		list, ok := node.([]any)
		if !ok {
			return nil, false
		}
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || idx >= len(list) {
			return nil, false
		}
		node = list[idx]
	}
	return node, true
}

func expand(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
		if list, ok := v.([]any); ok {
			out = append(out, list...)
		}
	}
	return out
}

func matchEq(values []any, target any) bool {
	if target == nil {
		if len(values) == 0 {
			return true
		}
		for _, v := range values {
			if v == nil {
				return true
			}
		}
		return false
	}
	for _, v := range expand(values) {
		if schema.Equal(v, target) {
			return true
		}
	}
	return false
}

func matchIn(values []any, list []any) bool {
	for _, candidate := range list {
		if re, ok := regexValue(candidate); ok {
			if matchRegex(values, re) {
				return true
			}
			continue
		}
		if matchEq(values, candidate) {
			return true
		}
	}
	return false
}

func matchCompare(values []any, target any, pred func(int) bool) bool {
	target = schema.Normalize(target)
	for _, v := range expand(values) {
		if typeRank(v) != typeRank(target) {
			continue
		}
		if pred(Compare(v, target)) {
			return true
		}
	}
	return false
}

func asRegex(arg any, options string) (*regexp.Regexp, bool) {
	var pattern string
	switch v := arg.(type) {
	case string:
		pattern = v
	case primitive.Regex:
		pattern, options = v.Pattern, v.Options+options
	case *regexp.Regexp:
		return v, true
	default:
		return nil, false
	}
	flags := ""
	for _, o := range options {
		if strings.ContainsRune("ims", o) && !strings.ContainsRune(flags, o) {
			flags += string(o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	return re, true
}

// regexValue accepts values that are regular expressions in their own right.
// Plain strings are not: they compare by equality.
func regexValue(v any) (*regexp.Regexp, bool) {
	switch v.(type) {
	case primitive.Regex, *regexp.Regexp:
		return asRegex(v, "")
	}
	return nil, false
}

func matchRegex(values []any, re *regexp.Regexp) bool {
	for _, v := range expand(values) {
		if s, ok := v.(string); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}

const (
	rankNull = iota
	rankNumber
	rankString
	rankObject
	rankArray
	rankBinary
	rankObjectID
	rankBool
	rankDate
	rankOther
)

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case string:
		return rankString
	case []any:
		return rankArray
	case []byte:
		return rankBinary
	case primitive.ObjectID:
		return rankObjectID
	case bool:
		return rankBool
	case time.Time, primitive.DateTime:
		return rankDate
	}
	if _, ok := schema.ToFloat64(v); ok {
		return rankNumber
	}
	if _, ok := schema.AsMap(v); ok {
		return rankObject
	}
	return rankOther
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	}
	return time.Time{}
}

// Compare orders two values the way document stores do: first by type
// (null, numbers, strings, objects, arrays, binary, ids, booleans, dates),
// then by value.
func Compare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNumber:
		fa, _ := schema.ToFloat64(a)
		fb, _ := schema.ToFloat64(b)
		return cmp.Compare(fa, fb)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankArray:
		la, lb := a.([]any), b.([]any)
		for i := 0; i < len(la) && i < len(lb); i++ {
			if c := Compare(la[i], lb[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(la), len(lb))
	case rankBinary:
		return bytes.Compare(a.([]byte), b.([]byte))
	case rankObjectID:
		ia, ib := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return bytes.Compare(ia[:], ib[:])
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case rankDate:
		return asTime(a).Compare(asTime(b))
	}
	return 0
}

// Sort returns a stably sorted copy of docs. A document missing a sort key
// orders as if the key held the lowest possible value.
func (p *DataProcessor) Sort(docs []schema.Document, sorts []SortConfiguration) []schema.Document {
	out := slices.Clone(docs)
	slices.SortStableFunc(out, func(a, b schema.Document) int {
		for _, s := range sorts {
			av, _ := Lookup(a, s.Field)
			bv, _ := Lookup(b, s.Field)
			if c := Compare(av, bv); c != 0 {
				return c * s.Sign()
			}
		}
		return 0
	})
	return out
}

func truthy(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if f, ok := schema.ToFloat64(v); ok {
		return f != 0
	}
	return true
}

// Project applies an inclusion or exclusion projection. In inclusion mode
// _id is kept unless explicitly excluded.
func (p *DataProcessor) Project(doc schema.Document, projection Projection) schema.Document {
	if len(projection) == 0 {
		return doc
	}

	include := false
	for _, v := range projection {
		if truthy(v) {
			include = true
			break
		}
	}

	if !include {
		out := doc.Clone()
		for field := range projection {
			_ = unsetPath(out, field)
		}
		return out
	}

	out := schema.Document{}
	if v, ok := projection[schema.IDField]; !ok || truthy(v) {
		if id, present := doc[schema.IDField]; present {
			out[schema.IDField] = id
		}
	}
	for _, field := range projection.Fields() {
		if field == schema.IDField || !truthy(projection[field]) {
			continue
		}
		if v, ok := Lookup(doc, field); ok {
			_ = setPath(out, field, v)
		}
	}
	return out
}

// IsUpdateDocument reports whether every key of update is an update operator.
func IsUpdateDocument(update schema.Document) bool {
	if len(update) == 0 {
		return false
	}
	_, ok := operatorDocument(map[string]any(update))
	return ok
}

// ApplyUpdate returns a copy of doc with a {$set, $unset} update applied.
// Paths may be dotted and may address list elements by index.
func ApplyUpdate(doc schema.Document, update schema.Document) (schema.Document, error) {
	if !IsUpdateDocument(update) {
		return nil, fmt.Errorf("update document must only contain operators")
	}
	out := doc.Clone()
	if out == nil {
		out = schema.Document{}
	}
	for op, arg := range update {
		fields, ok := schema.AsMap(arg)
		if !ok {
			return nil, fmt.Errorf("%s requires a document, got %T", op, arg)
		}
		switch op {
		case "$set":
			for path, v := range fields {
				if err := setPath(out, path, schema.Normalize(v)); err != nil {
					return nil, err
				}
			}
		case "$unset":
			for path := range fields {
				if err := unsetPath(out, path); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("unsupported update operator: %s", op)
		}
	}
	return out, nil
}

func setPath(doc schema.Document, path string, value any) error {
	_, err := setIn(map[string]any(doc), strings.Split(path, "."), value)
	return err
}

func setIn(node any, parts []string, value any) (any, error) {
	if len(parts) == 0 {
		return value, nil
	}
	key := parts[0]
	if node == nil {
		node = map[string]any{}
	}
	if m, ok := mutableMap(node); ok {
		child, err := setIn(m[key], parts[1:], value)
		if err != nil {
			return nil, err
		}
		m[key] = child
		return m, nil
	}
	if list, ok := node.([]any); ok {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("cannot create field %q in a list", key)
		}
		for len(list) <= idx {
			list = append(list, nil)
		}
		child, err := setIn(list[idx], parts[1:], value)
		if err != nil {
			return nil, err
		}
		list[idx] = child
		return list, nil
	}
	return nil, fmt.Errorf("cannot create field %q in %T", key, node)
}

func unsetPath(doc schema.Document, path string) error {
	return unsetIn(map[string]any(doc), strings.Split(path, "."))
}

func unsetIn(node any, parts []string) error {
	key := parts[0]
	if m, ok := mutableMap(node); ok {
		if len(parts) == 1 {
			delete(m, key)
			return nil
		}
		child, present := m[key]
		if !present {
			return nil
		}
		return unsetIn(child, parts[1:])
	}
	if list, ok := node.([]any); ok {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(list) {
			return nil
		}
		if len(parts) == 1 {
			list[idx] = nil
			return nil
		}
		return unsetIn(list[idx], parts[1:])
	}
	return nil
}

// mutableMap returns map-shaped nodes that can be written in place.
func mutableMap(node any) (map[string]any, bool) {
	switch m := node.(type) {
	case map[string]any:
		return m, true
	case schema.Document:
		return map[string]any(m), true
	case primitive.M:
		return map[string]any(m), true
	}
	return nil, false
}
