// Package attributes implements the key-value attribute store behind every
// model: current values, the original snapshot taken at load or save time,
// mass-assignment rules, per-field mutators and the dirty diff between the
// two snapshots.
package attributes

import (
	"maps"
	"slices"

	"github.com/asaidimu/go-odm/core/schema"
	"github.com/mitchellh/copystructure"
	"go.uber.org/zap"
)

// Mutator transforms a field on the way in (Set) or out (Get). Either side
// may be nil.
type Mutator struct {
	Get func(value any) any
	Set func(value any) any
}

// Options configures a Store.
type Options struct {
	Fillable []string
	Guarded  []string
	// Mutable enables the Mutators table.
	Mutable  bool
	Mutators map[string]Mutator
	// OnChange is called with the key after every Set or Unset.
	OnChange func(key string)
	Logger   *zap.Logger
}

// Store holds the attributes of one model instance. Absence is modelled by
// a missing key; nil is never stored.
type Store struct {
	attributes schema.Document
	original   schema.Document
	fillable   map[string]struct{}
	guarded    map[string]struct{}
	mutable    bool
	mutators   map[string]Mutator
	onChange   func(key string)
	logger     *zap.Logger
}

// NewStore creates an empty store.
func NewStore(opts *Options) *Store {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		attributes: make(schema.Document),
		original:   make(schema.Document),
		fillable:   toSet(opts.Fillable),
		guarded:    toSet(opts.Guarded),
		mutable:    opts.Mutable,
		mutators:   maps.Clone(opts.Mutators),
		onChange:   opts.OnChange,
		logger:     logger,
	}
	return s
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// SetOnChange replaces the change hook.
func (s *Store) SetOnChange(fn func(key string)) {
	s.onChange = fn
}

// Get returns the value for key, passed through the getter mutator when
// mutation is enabled. Missing keys yield nil.
func (s *Store) Get(key string) any {
	value := s.attributes[key]
	if m, ok := s.mutator(key); ok && m.Get != nil {
		return m.Get(value)
	}
	return value
}

// Lookup returns the stored value without mutators and whether it exists.
func (s *Store) Lookup(key string) (any, bool) {
	v, ok := s.attributes[key]
	return v, ok
}

// Has reports whether key holds a value.
func (s *Store) Has(key string) bool {
	_, ok := s.attributes[key]
	return ok
}

// Set stores value under key after the setter mutator. A nil result removes
// the key.
func (s *Store) Set(key string, value any) {
	if m, ok := s.mutator(key); ok && m.Set != nil {
		value = m.Set(value)
	}
	if value == nil {
		delete(s.attributes, key)
	} else {
		s.attributes[key] = value
	}
	s.changed(key)
}

// Unset removes key.
func (s *Store) Unset(key string) {
	delete(s.attributes, key)
	s.changed(key)
}

func (s *Store) changed(key string) {
	if s.onChange != nil {
		s.onChange(key)
	}
}

func (s *Store) mutator(key string) (Mutator, bool) {
	if !s.mutable {
		return Mutator{}, false
	}
	m, ok := s.mutators[key]
	return m, ok
}

// Fillable reports whether key may be mass-assigned.
func (s *Store) Fillable(key string) bool {
	if _, guarded := s.guarded[key]; guarded {
		return false
	}
	if len(s.fillable) == 0 {
		return true
	}
	_, ok := s.fillable[key]
	return ok
}

// Fill mass-assigns values. Without force, only fillable keys are written.
// Object-shaped values are normalized to plain nested maps.
func (s *Store) Fill(values map[string]any, force bool) {
	for key, value := range values {
		if !force && !s.Fillable(key) {
			continue
		}
		s.Set(key, schema.Normalize(value))
	}
}

// Attributes returns the current attribute map. Callers must not mutate it.
func (s *Store) Attributes() schema.Document {
	return s.attributes
}

// Original returns the snapshot taken by the last SyncOriginal.
func (s *Store) Original() schema.Document {
	return s.original
}

// Keys returns the attribute names in sorted order.
func (s *Store) Keys() []string {
	return slices.Sorted(maps.Keys(s.attributes))
}

// Replace swaps the whole attribute map without touching the original.
func (s *Store) Replace(doc schema.Document) {
	s.attributes = make(schema.Document, len(doc))
	for k, v := range doc {
		if v != nil {
			s.attributes[k] = v
		}
	}
	for k := range doc {
		s.changed(k)
	}
}

// SyncOriginal snapshots the current attributes. The snapshot is a deep copy;
// if copying fails it degrades to a shallow copy.
func (s *Store) SyncOriginal() {
	s.original = snapshot(s.attributes, s.logger)
}

// Dirty reports whether the attributes differ from the original snapshot.
func (s *Store) Dirty() bool {
	return !Diff(s.original, s.attributes).Empty()
}

// Changes returns the diff from the original snapshot to the current values.
func (s *Store) Changes() Changes {
	return Diff(s.original, s.attributes)
}

func snapshot(doc schema.Document, logger *zap.Logger) (out schema.Document) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Deep copy of attributes panicked, using shallow copy", zap.Any("panic", r))
			out = maps.Clone(doc)
		}
	}()

	copied, err := copystructure.Copy(doc)
	if err != nil {
		logger.Warn("Deep copy of attributes failed, using shallow copy", zap.Error(err))
		return maps.Clone(doc)
	}
	result, ok := copied.(schema.Document)
	if !ok {
		return maps.Clone(doc)
	}
	if result == nil {
		result = make(schema.Document)
	}
	return result
}
