package engine

import (
	"errors"
	"fmt"

	"github.com/Faultbox/flexsync/internal/tracker"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrSolver marks a backend failure. The session is faulted and only a
	// reset recovers it.
	ErrSolver = errors.New("solver error")

	// ErrFaulted is returned by go cycles against a faulted session.
	ErrFaulted = errors.New("session faulted")

	// ErrNotReady is returned when no session exists yet or the backend
	// reports its handle as not ready. Nothing is pushed or stepped.
	ErrNotReady = errors.New("session not ready")

	// ErrListShrank marks an input list with fewer elements than tracked.
	ErrListShrank = errors.New("input list shrank")

	// ErrStepInFlight is returned if a step is requested while another one
	// is still running against the same handle.
	ErrStepInFlight = errors.New("solver step already in flight")
)

// SolverError wraps a failed backend operation.
type SolverError struct {
	Op  string
	Err error
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("solver %s: %v", e.Op, e.Err)
}

func (e *SolverError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSolver.
func (e *SolverError) Is(target error) bool {
	return target == ErrSolver
}

// ShrinkError reports a tracked list that got shorter between cycles. The
// surviving positions are still processed and nothing is removed.
type ShrinkError struct {
	Category tracker.Category
	Was      int
	Now      int
}

func (e *ShrinkError) Error() string {
	return fmt.Sprintf("%s list shrank from %d to %d elements", e.Category, e.Was, e.Now)
}

// Is reports whether target is ErrListShrank.
func (e *ShrinkError) Is(target error) bool {
	return target == ErrListShrank
}

// SlotError attributes an element-level error to its list position.
type SlotError struct {
	Slot tracker.SlotKey
	Err  error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("%s: %v", e.Slot, e.Err)
}

func (e *SlotError) Unwrap() error {
	return e.Err
}
