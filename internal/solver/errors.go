package solver

import (
	"fmt"

	"github.com/Faultbox/flexsync/internal/scene"
)

// ValidationError describes a malformed solver input. It matches
// scene.ErrConfiguration so callers handle every malformed input alike.
type ValidationError struct {
	Input  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Input, e.Field, e.Reason)
}

// Is reports whether target is scene.ErrConfiguration.
func (e *ValidationError) Is(target error) bool {
	return target == scene.ErrConfiguration
}

func invalid(input, field, format string, args ...any) *ValidationError {
	return &ValidationError{Input: input, Field: field, Reason: fmt.Sprintf(format, args...)}
}
