package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentifier indicates an identifier that is not a single path segment
	ErrInvalidIdentifier = errors.New("invalid plugin identifier")

	// ErrDuplicateIdentifier indicates a second registration under the same identifier
	ErrDuplicateIdentifier = errors.New("plugin already registered")

	// ErrHookPanic wraps a value recovered from a panicking hook
	ErrHookPanic = errors.New("hook panicked")

	// ErrInvalidPayload indicates a write sub-payload that is not an object
	ErrInvalidPayload = errors.New("plugin payload is not an object")
)

// HookError describes a failed extension hook
type HookError struct {
	Plugin  string
	Hook    string
	Err     error
	Timeout bool
}

func (e *HookError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("plugin %s: %s timed out", e.Plugin, e.Hook)
	}
	return fmt.Sprintf("plugin %s: %s failed: %v", e.Plugin, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a HookError caused by a timeout
func IsTimeout(err error) bool {
	var hookErr *HookError
	return errors.As(err, &hookErr) && hookErr.Timeout
}
