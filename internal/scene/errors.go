package scene

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrConfiguration marks malformed input; the offending element is skipped.
	ErrConfiguration = errors.New("configuration error")

	// ErrCountMismatch marks an in-place update against a resized object.
	ErrCountMismatch = errors.New("count mismatch")

	// ErrStaleReference marks indices beyond the current buffer.
	ErrStaleReference = errors.New("stale reference")

	// ErrAlreadyRegistered is returned when an object that already owns an
	// offset is registered again.
	ErrAlreadyRegistered = errors.New("object already registered")

	// ErrIndexingOrigin is returned when a constraint set carries the wrong
	// indexing tag for the operation.
	ErrIndexingOrigin = errors.New("wrong constraint indexing origin")

	// ErrCapacityExceeded is returned when a registration would exceed the
	// configured particle cap.
	ErrCapacityExceeded = errors.New("particle capacity exceeded")

	// ErrUnknownOffset is returned by Alter when no registration starts at the
	// given offset.
	ErrUnknownOffset = errors.New("no registration at offset")
)

// ConfigurationError describes malformed object or constraint input.
type ConfigurationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErr(kind Kind, field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Kind: kind, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// CountMismatchError is returned when Alter receives an object whose
// topology differs from the registered slice.
type CountMismatchError struct {
	Offset int
	Field  string
	Want   int
	Got    int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("alter at offset %d: %s count %d, registered %d", e.Offset, e.Field, e.Got, e.Want)
}

// Is reports whether target is ErrCountMismatch.
func (e *CountMismatchError) Is(target error) bool {
	return target == ErrCountMismatch
}

// StaleReferenceError describes one entry referencing an index outside the
// range it may address.
type StaleReferenceError struct {
	Field string
	Entry int
	Ref   int
	Limit int
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("%s[%d] references %d, limit %d", e.Field, e.Entry, e.Ref, e.Limit)
}

// Is reports whether target is ErrStaleReference.
func (e *StaleReferenceError) Is(target error) bool {
	return target == ErrStaleReference
}
