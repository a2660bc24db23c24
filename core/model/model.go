package model

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-odm/core/attributes"
	"github.com/asaidimu/go-odm/core/cursor"
	"github.com/asaidimu/go-odm/core/relations"
	"github.com/asaidimu/go-odm/core/schema"
	"github.com/asaidimu/go-odm/utils"
	"go.uber.org/zap"
)

// Model is an instance of a Definition. Attribute access goes through the
// embedded attribute store; declared relations resolve lazily and are cached
// on the instance until their backing field changes.
type Model struct {
	*attributes.Store
	def      *Definition
	manager  *Manager
	related  map[string]any
	persists bool
}

func newModel(m *Manager, def *Definition) *Model {
	mdl := &Model{
		def:     def,
		manager: m,
		related: make(map[string]any),
	}
	mdl.Store = attributes.NewStore(&attributes.Options{
		Fillable: def.Fillable,
		Guarded:  def.Guarded,
		Mutable:  def.Mutable,
		Mutators: def.Mutators,
		OnChange: mdl.invalidate,
		Logger:   m.logger,
	})
	return mdl
}

// Definition returns the model's definition.
func (m *Model) Definition() *Definition {
	return m.def
}

// ID returns the model's _id, or nil.
func (m *Model) ID() any {
	id, _ := m.Lookup(schema.IDField)
	return id
}

// Exists reports whether the model was loaded from or written to the store.
func (m *Model) Exists() bool {
	return m.persists
}

// invalidate drops cached relations backed by key.
func (m *Model) invalidate(key string) {
	for name, rel := range m.def.Relations {
		if rel.Field == key {
			delete(m.related, name)
		}
	}
}

// Get returns an attribute. When the key holds no attribute and names a
// declared relation, the relation is resolved instead. Resolution errors
// are logged and yield nil; use Related to observe them.
func (m *Model) Get(key string) any {
	if m.Has(key) {
		return m.Store.Get(key)
	}
	if _, ok := m.def.Relations[key]; ok {
		v, err := m.Related(context.Background(), key)
		if err != nil {
			m.manager.logger.Warn("Could not resolve relation",
				zap.String("model", m.def.Name),
				zap.String("relation", key),
				zap.Error(err))
			return nil
		}
		return v
	}
	return m.Store.Get(key)
}

func (m *Model) relation(name string) (Relation, error) {
	rel, ok := m.def.Relations[name]
	if !ok {
		return Relation{}, fmt.Errorf("%w: %q is not declared on %q", ErrNotRelation, name, m.def.Name)
	}
	return rel, nil
}

// Related resolves a relation. To-one relations yield a *Model or nil;
// to-many relations yield a cursor.Cursor[*Model]. The result is cached
// until the backing field changes.
func (m *Model) Related(ctx context.Context, name string) (any, error) {
	rel, err := m.relation(name)
	if err != nil {
		return nil, err
	}
	if v, ok := m.related[name]; ok {
		return v, nil
	}

	target, err := m.manager.Definition(rel.Target)
	if err != nil {
		return nil, fmt.Errorf("relation %q of %q: %w", name, m.def.Name, err)
	}
	raw, _ := m.Lookup(rel.Field)

	var result any
	switch rel.Kind {
	case EmbedsOne:
		result, err = m.embeddedOne(target, raw)
	case EmbedsMany:
		result = m.embeddedMany(target, raw)
	case ReferencesOne:
		result, err = m.referencedOne(ctx, target, rel, raw)
	case ReferencesMany:
		result, err = m.referencedMany(target, rel, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("relation %q of %q: %w", name, m.def.Name, err)
	}

	m.related[name] = result
	return result, nil
}

func (m *Model) embeddedOne(target *Definition, raw any) (*Model, error) {
	raw = schema.Normalize(raw)
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return nil, nil
		}
		raw = list[0]
	}
	doc, ok := schema.ToDocument(raw)
	if !ok {
		return nil, nil
	}
	return m.manager.hydrate(target, doc, false)
}

func (m *Model) embeddedMany(target *Definition, raw any) cursor.Cursor[*Model] {
	var items []any
	switch v := schema.Normalize(raw).(type) {
	case nil:
	case []any:
		items = v
	default:
		items = []any{v}
	}
	return cursor.NewEmbeddedCursor(items, func(doc schema.Document) (*Model, error) {
		return m.manager.hydrate(target, doc, false)
	})
}

func (m *Model) referencedOne(ctx context.Context, target *Definition, rel Relation, raw any) (*Model, error) {
	// An absent field, an empty list or an empty id references nothing.
	if id := relations.CanonicalOne(raw); id == nil || id == "" {
		return nil, nil
	}
	b, err := m.manager.builder(target)
	if err != nil {
		return nil, err
	}
	return b.First(ctx, relations.FilterOne(rel.key(), raw), nil, rel.UseCache)
}

func (m *Model) referencedMany(target *Definition, rel Relation, raw any) (cursor.Cursor[*Model], error) {
	b, err := m.manager.builder(target)
	if err != nil {
		return nil, err
	}
	return b.Where(relations.FilterMany(rel.key(), raw), nil, rel.UseCache)
}

// RelatedOne resolves a to-one relation.
func (m *Model) RelatedOne(ctx context.Context, name string) (*Model, error) {
	v, err := m.Related(ctx, name)
	if err != nil {
		return nil, err
	}
	one, ok := v.(*Model)
	if !ok && v != nil {
		return nil, fmt.Errorf("%w: %q is a to-many relation", ErrNotRelation, name)
	}
	return one, nil
}

// RelatedMany resolves a to-many relation.
func (m *Model) RelatedMany(ctx context.Context, name string) (cursor.Cursor[*Model], error) {
	v, err := m.Related(ctx, name)
	if err != nil {
		return nil, err
	}
	many, ok := v.(cursor.Cursor[*Model])
	if !ok {
		return nil, fmt.Errorf("%w: %q is a to-one relation", ErrNotRelation, name)
	}
	return many, nil
}

func (m *Model) mutable(name string, kinds ...RelationKind) (Relation, error) {
	rel, err := m.relation(name)
	if err != nil {
		return rel, err
	}
	for _, k := range kinds {
		if rel.Kind == k {
			return rel, nil
		}
	}
	return rel, fmt.Errorf("%w: %q is a %s relation", ErrNotRelation, name, rel.Kind)
}

// Embed adds doc to an embedsMany relation, replacing the embedded document
// with the same id. It returns the id of doc.
func (m *Model) Embed(name string, doc any) (any, error) {
	rel, err := m.mutable(name, EmbedsMany)
	if err != nil {
		return nil, err
	}
	defer delete(m.related, name)
	return relations.Embed(m, rel.Field, doc)
}

// Unembed removes doc from an embedsMany relation.
func (m *Model) Unembed(name string, doc any) error {
	rel, err := m.mutable(name, EmbedsMany)
	if err != nil {
		return err
	}
	relations.Unembed(m, rel.Field, doc)
	delete(m.related, name)
	return nil
}

// Attach adds target's id to a referencesMany relation.
func (m *Model) Attach(name string, target any) (any, error) {
	rel, err := m.mutable(name, ReferencesMany)
	if err != nil {
		return nil, err
	}
	defer delete(m.related, name)
	return relations.Attach(m, rel.Field, target)
}

// Detach removes target's id from a referencesMany relation.
func (m *Model) Detach(name string, target any) error {
	rel, err := m.mutable(name, ReferencesMany)
	if err != nil {
		return err
	}
	relations.Detach(m, rel.Field, target)
	delete(m.related, name)
	return nil
}

// EmbedOne sets the document of an embedsOne relation.
func (m *Model) EmbedOne(name string, doc any) (any, error) {
	rel, err := m.mutable(name, EmbedsOne)
	if err != nil {
		return nil, err
	}
	defer delete(m.related, name)
	return relations.EmbedOne(m, rel.Field, doc)
}

// ReferenceOne sets the target of a referencesOne relation.
func (m *Model) ReferenceOne(name string, target any) (any, error) {
	rel, err := m.mutable(name, ReferencesOne)
	if err != nil {
		return nil, err
	}
	defer delete(m.related, name)
	return relations.ReferenceOne(m, rel.Field, target)
}

func (m *Model) query() (*Builder, error) {
	return m.manager.builder(m.def)
}

// Save persists the model, inserting it when it was never stored.
func (m *Model) Save(ctx context.Context) (bool, error) {
	b, err := m.query()
	if err != nil {
		return false, err
	}
	return b.Save(ctx, m)
}

// Insert writes the model as a new document.
func (m *Model) Insert(ctx context.Context) (bool, error) {
	b, err := m.query()
	if err != nil {
		return false, err
	}
	return b.Insert(ctx, m)
}

// Update writes the model's changes.
func (m *Model) Update(ctx context.Context) (bool, error) {
	b, err := m.query()
	if err != nil {
		return false, err
	}
	return b.Update(ctx, m)
}

// Delete removes the model, or marks it deleted when soft delete is enabled.
func (m *Model) Delete(ctx context.Context) (bool, error) {
	b, err := m.query()
	if err != nil {
		return false, err
	}
	return b.Delete(ctx, m)
}

// ForceDelete removes the model even when soft delete is enabled.
func (m *Model) ForceDelete(ctx context.Context) (bool, error) {
	b, err := m.query()
	if err != nil {
		return false, err
	}
	return b.ForceDelete(ctx, m)
}

// Restore clears the soft-delete marker.
func (m *Model) Restore(ctx context.Context) (bool, error) {
	b, err := m.query()
	if err != nil {
		return false, err
	}
	return b.Restore(ctx, m)
}

// Trashed reports whether the model carries a soft-delete marker.
func (m *Model) Trashed() bool {
	return m.def.SoftDelete && m.Has(m.def.deletedAtField())
}

// Decode copies the attributes of m into a new T, a struct or pointer to a
// struct with bson tags.
func Decode[T any](m *Model) (T, error) {
	return utils.MapToStruct[T](m.Attributes())
}

var (
	_ relations.Holder    = (*Model)(nil)
	_ schema.Attributable = (*Model)(nil)
)
