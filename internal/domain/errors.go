package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: a referenced hotel, room, or reservation does not exist
	// or is inactive.
	ErrNotFound = errors.New("not found")

	// ErrConflict: an availability or idempotency race detected at commit
	// time. The coordinator retries these; handlers map them to 409.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState: an operation attempted from a lifecycle state that
	// forbids it (e.g. cancelling a checked-out reservation).
	ErrInvalidState = errors.New("invalid state")
)

// ValidationError is malformed input, rejected before any transaction is
// opened and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
