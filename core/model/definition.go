// Package model maps model instances to documents: definitions, the model
// type with its attribute store and relation cache, the Manager entry point
// and the Builder that performs reads and writes.
package model

import (
	"fmt"

	"github.com/asaidimu/go-odm/core/attributes"
	"github.com/asaidimu/go-odm/core/persistence"
	"github.com/asaidimu/go-odm/core/schema"
)

// DefaultDeletedAtField is the soft-delete marker field used when none is
// configured.
const DefaultDeletedAtField = "deleted_at"

// RelationKind is the cardinality and storage mode of a relation.
type RelationKind int

const (
	EmbedsOne RelationKind = iota + 1
	EmbedsMany
	ReferencesOne
	ReferencesMany
)

func (k RelationKind) String() string {
	switch k {
	case EmbedsOne:
		return "embedsOne"
	case EmbedsMany:
		return "embedsMany"
	case ReferencesOne:
		return "referencesOne"
	case ReferencesMany:
		return "referencesMany"
	default:
		return fmt.Sprintf("RelationKind(%d)", int(k))
	}
}

// Embedded reports whether the related documents live inside the owner.
func (k RelationKind) Embedded() bool {
	return k == EmbedsOne || k == EmbedsMany
}

// Many reports whether the relation holds a list.
func (k RelationKind) Many() bool {
	return k == EmbedsMany || k == ReferencesMany
}

// Relation declares an association to another definition.
type Relation struct {
	Kind RelationKind
	// Target is the name of the related definition.
	Target string
	// Field holds the embedded documents or the referenced ids on the owner.
	Field string
	// Key is the field of the target matched by referenced ids. Defaults to
	// "_id".
	Key string
	// UseCache resolves references through a cacheable cursor.
	UseCache bool
}

func (r Relation) key() string {
	if r.Key == "" {
		return schema.IDField
	}
	return r.Key
}

// Definition describes a kind of model.
type Definition struct {
	Name string
	// Collection is the store collection. Embedded-only definitions may
	// leave it empty.
	Collection string
	// Schema maps attributes to documents. Nil means fully dynamic.
	Schema *schema.SchemaDefinition

	Fillable []string
	Guarded  []string
	Mutable  bool
	Mutators map[string]attributes.Mutator

	// WriteConcern is the acknowledgement level of writes. Nil means
	// acknowledged.
	WriteConcern *int

	SoftDelete     bool
	DeletedAtField string

	Relations map[string]Relation

	// Classify returns the name of the definition a loaded document should
	// be hydrated as. An empty result keeps this definition.
	Classify func(doc schema.Document) string
}

func (d *Definition) writeConcern() int {
	if d.WriteConcern == nil {
		return persistence.Acknowledged
	}
	return *d.WriteConcern
}

func (d *Definition) deletedAtField() string {
	if d.DeletedAtField == "" {
		return DefaultDeletedAtField
	}
	return d.DeletedAtField
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	for name, rel := range d.Relations {
		if rel.Kind < EmbedsOne || rel.Kind > ReferencesMany {
			return fmt.Errorf("%w: relation %q of %q has invalid kind %d", ErrInvalidDefinition, name, d.Name, int(rel.Kind))
		}
		if rel.Field == "" {
			return fmt.Errorf("%w: relation %q of %q has no field", ErrInvalidDefinition, name, d.Name)
		}
		if rel.Target == "" {
			return fmt.Errorf("%w: relation %q of %q has no target", ErrInvalidDefinition, name, d.Name)
		}
	}
	return nil
}

// IntPtr returns a pointer to v, for WriteConcern.
func IntPtr(v int) *int {
	return &v
}
