package storage

import "fmt"

// Error is returned by every backend operation that fails.
type Error struct {
	Backend   string // "sqlite" or "memory"
	Operation string // "open", "record", "upsert", ...
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(backend, operation string, cause error) *Error {
	return &Error{Backend: backend, Operation: operation, Cause: cause}
}
