package schema

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry resolves schemas by name and holds the global directive functions.
// It is populated at startup and read-mostly afterwards.
type Registry struct {
	mu        sync.RWMutex
	schemas   map[string]*SchemaDefinition
	functions FunctionMap
	logger    *zap.Logger
}

// NewRegistry creates a registry preloaded with the built-in functions
// objectId, createdAtTimestamp and updatedAtTimestamp.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		schemas:   make(map[string]*SchemaDefinition),
		functions: make(FunctionMap),
		logger:    logger,
	}
	r.functions["objectId"] = ObjectIDDirective
	r.functions["createdAtTimestamp"] = CreatedAtDirective
	r.functions["updatedAtTimestamp"] = UpdatedAtDirective
	return r
}

// Register adds or replaces a schema definition.
func (r *Registry) Register(s *SchemaDefinition) error {
	if s == nil || s.Name == "" {
		return fmt.Errorf("%w: schema must have a name", ErrInvalidSchema)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Name] = s
	r.logger.Debug("Registered schema", zap.String("schema", s.Name), zap.Int("fields", len(s.Fields)))
	return nil
}

// Resolve returns the schema registered under name.
func (r *Registry) Resolve(name string) (*SchemaDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	return s, nil
}

// RegisterFunction adds a global directive function.
func (r *Registry) RegisterFunction(name string, fn CoercionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[name] = fn
	r.logger.Info("Registered coercion function", zap.String("name", name))
}

// Function looks up a directive function, preferring the schema's own.
func (r *Registry) Function(s *SchemaDefinition, name string) (CoercionFunc, bool) {
	if s != nil {
		if fn, ok := s.Functions[name]; ok && fn != nil {
			return fn, true
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[name]
	return fn, ok && fn != nil
}

// Validate checks that every directive of s can be resolved.
func (r *Registry) Validate(s *SchemaDefinition) error {
	for field, directive := range s.Fields {
		kind, name := ParseDirective(directive)
		switch kind {
		case DirectiveSchema:
			if _, err := r.Resolve(name); err != nil {
				return fmt.Errorf("field %q of schema %q: %w", field, s.Name, err)
			}
		case DirectiveFunction:
			if _, ok := r.Function(s, name); !ok {
				return fmt.Errorf("field %q of schema %q: %w: %s", field, s.Name, ErrUnknownDirective, name)
			}
		}
	}
	return nil
}

// ObjectIDDirective keeps an existing id, converting 24-hex strings to
// ObjectIDs, and generates one when the value is absent.
func ObjectIDDirective(value any) (any, error) {
	if value == nil || value == "" {
		return NewID(), nil
	}
	return CanonicalID(value), nil
}

// stamp rounds t to the millisecond precision of stored BSON dates, so a
// timestamp reads back equal from every store and from the cache.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// CreatedAtDirective keeps an existing timestamp and stamps absent ones.
func CreatedAtDirective(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return stamp(time.Now()), nil
	case time.Time:
		return stamp(v), nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return stamp(t), nil
		}
	}
	return value, nil
}

// UpdatedAtDirective always stamps the current time.
func UpdatedAtDirective(any) (any, error) {
	return stamp(time.Now()), nil
}
