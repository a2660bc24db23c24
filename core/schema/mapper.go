package schema

import (
	"fmt"

	"go.uber.org/zap"
)

// Mapper projects raw attribute maps onto schema definitions.
type Mapper struct {
	registry *Registry
	logger   *zap.Logger
}

// NewMapper creates a mapper over the given registry. A nil registry gets a
// fresh one with only the built-in functions.
func NewMapper(registry *Registry, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry(logger)
	}
	return &Mapper{registry: registry, logger: logger}
}

// Registry returns the registry the mapper resolves against.
func (m *Mapper) Registry() *Registry {
	return m.registry
}

// Map coerces every declared field of raw through its directive and returns
// the resulting document. Nil values are treated as absent and omitted; empty
// strings are kept. Undeclared fields survive only when the schema is
// dynamic. A nil schema behaves as a dynamic schema with no declarations.
func (m *Mapper) Map(raw Document, s *SchemaDefinition) (Document, error) {
	out := make(Document, len(raw))
	if s == nil {
		s = &SchemaDefinition{Dynamic: true}
	}

	for field, directive := range s.Fields {
		value, present := raw[field]
		if value == nil {
			present = false
		}

		kind, name := ParseDirective(directive)
		switch kind {
		case DirectivePrimitive:
			if !present {
				continue
			}
			out[field] = Cast(FieldType(name), value)

		case DirectiveSchema:
			if !present {
				continue
			}
			nested, err := m.registry.Resolve(name)
			if err != nil {
				return nil, fmt.Errorf("mapping field %q: %w", field, err)
			}
			mapped, err := m.mapNested(value, nested)
			if err != nil {
				return nil, fmt.Errorf("mapping field %q: %w", field, err)
			}
			out[field] = mapped

		case DirectiveFunction:
			fn, ok := m.registry.Function(s, name)
			if !ok {
				return nil, fmt.Errorf("mapping field %q: %w: %s", field, ErrUnknownDirective, name)
			}
			var arg any
			if present {
				arg = Normalize(value)
			}
			result, err := fn(arg)
			if err != nil {
				return nil, fmt.Errorf("mapping field %q with %s: %w", field, name, err)
			}
			if result != nil {
				out[field] = Normalize(result)
			}
		}
	}

	if s.Dynamic {
		for field, value := range raw {
			if _, declared := s.Fields[field]; declared || value == nil {
				continue
			}
			out[field] = Normalize(value)
		}
	}

	return out, nil
}

// mapNested maps a single nested object into a one-element list and a list
// of objects element-wise. Other values pass through unchanged.
func (m *Mapper) mapNested(value any, nested *SchemaDefinition) (any, error) {
	switch val := Normalize(value).(type) {
	case map[string]any:
		doc, err := m.Map(Document(val), nested)
		if err != nil {
			return nil, err
		}
		return []any{map[string]any(doc)}, nil
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			obj, ok := item.(map[string]any)
			if !ok {
				out = append(out, item)
				continue
			}
			doc, err := m.Map(Document(obj), nested)
			if err != nil {
				return nil, err
			}
			out = append(out, map[string]any(doc))
		}
		return out, nil
	default:
		m.logger.Debug("Nested schema value is not an object", zap.String("schema", nested.Name))
		return val, nil
	}
}
