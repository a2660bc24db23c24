// Package schema describes how a model's raw attribute map becomes a persisted
// document. A schema is a table of field name to coercion directive; the Mapper
// applies that table, recursing into nested schemas resolved from a Registry.
package schema

import (
	"errors"
	"strings"
)

// LogicalOperator for combining conditions.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and" // All conditions must be true
	LogicalOr  LogicalOperator = "or"  // At least one condition must be true
	LogicalNor LogicalOperator = "nor" // None of the conditions must be true
)

// FieldType represents the primitive directives understood by the mapper.
type FieldType string

const (
	FieldTypeString  FieldType = "string"  // Text data
	FieldTypeNumber  FieldType = "number"  // Floating point data
	FieldTypeInteger FieldType = "integer" // Whole numbers
	FieldTypeDecimal FieldType = "decimal" // Floating point data
	FieldTypeBoolean FieldType = "boolean" // True/false values
	FieldTypeArray   FieldType = "array"   // Ordered list of items
	FieldTypeObject  FieldType = "object"  // Nested key-value data
	FieldTypeRecord  FieldType = "record"  // Unstructured key-value data, resolves to Document
)

// primitiveAliases maps every accepted primitive spelling to its canonical type.
var primitiveAliases = map[string]FieldType{
	"string":  FieldTypeString,
	"str":     FieldTypeString,
	"number":  FieldTypeNumber,
	"float":   FieldTypeNumber,
	"double":  FieldTypeNumber,
	"decimal": FieldTypeDecimal,
	"integer": FieldTypeInteger,
	"int":     FieldTypeInteger,
	"boolean": FieldTypeBoolean,
	"bool":    FieldTypeBoolean,
	"array":   FieldTypeArray,
	"list":    FieldTypeArray,
	"object":  FieldTypeObject,
	"record":  FieldTypeRecord,
}

// SchemaDirectivePrefix marks a directive that references another schema by name.
const SchemaDirectivePrefix = "schema."

// Document is one persisted record: a nested key-value structure whose values
// are scalars, []any, nested Documents or opaque values such as ids and times.
type Document map[string]any

// Attributable is implemented by values that expose their attributes as a
// plain map, e.g. models. The mapper flattens them before coercion.
type Attributable interface {
	Attributes() Document
}

// CoercionFunc is a custom directive. It receives the raw field value, nil when
// the field is absent, and returns the value to persist. A nil result drops
// the field.
type CoercionFunc func(value any) (any, error)

// FunctionMap is a map of directive names to coercion functions.
type FunctionMap map[string]CoercionFunc

// SchemaDefinition is the directive table for one document shape.
type SchemaDefinition struct {
	// Name is the registry key; nested references use "schema.<Name>".
	Name string `json:"name"`
	// Dynamic schemas keep fields that are not declared in Fields.
	Dynamic bool `json:"dynamic,omitempty"`
	// Fields maps field names to directives.
	Fields map[string]string `json:"fields"`
	// Functions holds directives owned by this schema. They take precedence
	// over the registry's global functions.
	Functions FunctionMap `json:"-"`
}

// Directive returns the directive declared for a field.
func (s *SchemaDefinition) Directive(field string) (string, bool) {
	if s == nil {
		return "", false
	}
	d, ok := s.Fields[field]
	return d, ok
}

// DirectiveKind classifies a directive string.
type DirectiveKind int

const (
	DirectivePrimitive DirectiveKind = iota
	DirectiveSchema
	DirectiveFunction
)

// ParseDirective classifies a directive in resolution order: primitive cast,
// nested schema reference, then function name.
func ParseDirective(directive string) (DirectiveKind, string) {
	if ft, ok := primitiveAliases[strings.ToLower(directive)]; ok {
		return DirectivePrimitive, string(ft)
	}
	if name, ok := strings.CutPrefix(directive, SchemaDirectivePrefix); ok && name != "" {
		return DirectiveSchema, name
	}
	return DirectiveFunction, directive
}

var (
	// ErrUnknownSchema is returned when a schema name cannot be resolved.
	ErrUnknownSchema = errors.New("schema: unknown schema")
	// ErrUnknownDirective is returned when a function directive has no implementation.
	ErrUnknownDirective = errors.New("schema: unknown directive")
	// ErrInvalidSchema is returned when a schema definition cannot be registered.
	ErrInvalidSchema = errors.New("schema: invalid definition")
)
