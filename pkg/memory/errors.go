package memory

import (
	"errors"
	"fmt"
)

// ErrIndexNotInitialized is returned by every SearchIndex operation once the
// index has been closed or was never opened. An uninitialized index must not
// masquerade as an empty one.
var ErrIndexNotInitialized = errors.New("search index not initialized")

// ValidationError rejects a request before any mutation happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PathCollisionError signals that a create would land on a file already
// occupied by a different memory. Collisions fail loudly, never merge.
type PathCollisionError struct {
	Path       string
	ExistingID string
	NewID      string
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("path %s already holds memory %s (refusing to overwrite with %s)",
		e.Path, e.ExistingID, e.NewID)
}
