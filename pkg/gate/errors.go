package gate

import (
	"errors"
	"fmt"

	"mercator-hq/epigate/pkg/policy"
)

// ErrInvalidInput is matched by malformed rule definitions.
var ErrInvalidInput = policy.ErrInvalidInput

// InvalidInputError names the offending rule field.
type InvalidInputError = policy.InvalidInputError

// ErrStorageUnavailable is matched by every StorageUnavailableError.
var ErrStorageUnavailable = errors.New("storage unavailable")

// StorageUnavailableError reports that the persistence layer failed during
// Evaluate or DefineRule. When Evaluate returns it, no decision was
// recorded and the counters are unchanged.
type StorageUnavailableError struct {
	// Operation is the step that failed: "lookup", "record", "upsert",
	// "list", "recent" or "counters".
	Operation string

	// Cause is the backend error.
	Cause error
}

// Error implements the error interface.
func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable [operation=%s]: %v", e.Operation, e.Cause)
}

// Unwrap returns the backend error.
func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrStorageUnavailable.
func (e *StorageUnavailableError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func storageUnavailable(op string, err error) error {
	return &StorageUnavailableError{Operation: op, Cause: err}
}
