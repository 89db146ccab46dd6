package policy

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every InvalidInputError via errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports a malformed rule definition. Nothing is written
// to a Store when it is returned.
type InvalidInputError struct {
	// Field is the offending rule field ("sector", "threshold", "keyword").
	Field string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrInvalidInput.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// RulesFileError reports a rules file that could not be read or parsed.
type RulesFileError struct {
	// Path is the rules file location.
	Path string

	// Index is the zero-based position of the offending rule, or -1 when the
	// whole file is at fault.
	Index int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *RulesFileError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("rules file %q: rule %d: %v", e.Path, e.Index, e.Cause)
	}
	return fmt.Sprintf("rules file %q: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RulesFileError) Unwrap() error {
	return e.Cause
}
