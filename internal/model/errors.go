package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that no record exists for a local id.
	ErrNotFound = errors.New("not found")

	// ErrUnknownKind indicates a collection name that is not a Kind.
	ErrUnknownKind = errors.New("unknown kind")
)

// NotFoundError reports a missing record of a given kind.
type NotFoundError struct {
	Kind Kind
	ID   int64
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %d not found", e.Kind.Singular(), e.ID)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
