package settings

import (
	"errors"
	"fmt"
)

// Sentinel errors for settings operations
var (
	// ErrInvalidPath indicates a path with empty segments or a write to the root
	ErrInvalidPath = errors.New("invalid settings path")

	// ErrCoercion indicates a value that could not be coerced to the requested type
	ErrCoercion = errors.New("type coercion failed")

	// ErrUnsupportedValue indicates a value with no place in the settings tree
	ErrUnsupportedValue = errors.New("unsupported settings value")

	// ErrPersistence indicates the durable commit failed
	ErrPersistence = errors.New("settings persistence failed")

	// ErrTxClosed indicates a write to a transaction that was committed,
	// rolled back or sealed
	ErrTxClosed = errors.New("settings transaction closed")

	// ErrForeignTx indicates Adopt was called with a fork of another transaction
	ErrForeignTx = errors.New("transaction was not forked from this transaction")
)

// CoercionError is returned by the typed setters when the incoming value
// cannot be parsed. The stored value is left unchanged.
type CoercionError struct {
	Path  Path
	Kind  string
	Value any
}

// Error implements the error interface
func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot coerce %#v to %s at %s", e.Value, e.Kind, e.Path)
}

// Is matches ErrCoercion
func (e *CoercionError) Is(target error) bool {
	return target == ErrCoercion
}

// IsCoercionError reports whether err is a coercion failure
func IsCoercionError(err error) bool {
	return errors.Is(err, ErrCoercion)
}

// PersistenceError wraps a storage failure during Save
type PersistenceError struct {
	Err error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPersistence, e.Err)
}

// Unwrap returns the underlying storage error
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is matches ErrPersistence
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
