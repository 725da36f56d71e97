package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested item does not exist in the
// store. Callers translate it into their own entity-specific sentinels.
var ErrNotFound = errors.New("item not found")

// IsNotFoundError checks if the error is a "not found" error, including
// anything wrapping ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError is a custom error type for store-specific failures with
// additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "RUN_STATUS")
	Operation string // The operation that failed (e.g., "put", "decode")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation,
// message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
