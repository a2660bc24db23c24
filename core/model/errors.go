package model

import (
	"errors"
	"fmt"

	"github.com/asaidimu/go-odm/core/query"
)

var (
	// ErrNoCollection is returned when a store operation is attempted on a
	// definition without a collection.
	ErrNoCollection = errors.New("model has no collection configured")
	// ErrUnknownDefinition is returned when a definition name is not
	// registered.
	ErrUnknownDefinition = errors.New("unknown model definition")
	// ErrInvalidDefinition is returned by Register for malformed definitions.
	ErrInvalidDefinition = errors.New("invalid model definition")
	// ErrNotRelation is returned when a name does not refer to a declared
	// relation.
	ErrNotRelation = errors.New("not a relation")
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("document not found")
)

// NotFoundError is returned by FirstOrFail.
type NotFoundError struct {
	Collection string
	Filter     query.Filter
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no document in %q matches %v", e.Collection, map[string]any(e.Filter))
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
