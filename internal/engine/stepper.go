package engine

import (
	"context"
	"time"

	"github.com/Faultbox/flexsync/internal/solver"
)

type stepResult struct {
	elapsed time.Duration
	err     error
}

// stepper dispatches solver steps one at a time. The step runs on its own
// goroutine so the caller can stop waiting, but run never returns before that
// goroutine has finished.
type stepper struct {
	backend solver.Backend
	timeout time.Duration
	slot    chan struct{}
}

func newStepper(b solver.Backend, timeout time.Duration) *stepper {
	return &stepper{backend: b, timeout: timeout, slot: make(chan struct{}, 1)}
}

// run performs one step. A ctx that is already done returns ctx.Err() without
// dispatching. Once dispatched, every failure is a SolverError, including a
// step interrupted by ctx or by the step timeout; run returns only after the
// backend has let go of the handle.
func (s *stepper) run(ctx context.Context, h solver.Handle) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	select {
	case s.slot <- struct{}{}:
	default:
		return 0, ErrStepInFlight
	}
	defer func() { <-s.slot }()

	var (
		stepCtx context.Context
		cancel  context.CancelFunc
	)
	if s.timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		stepCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan stepResult, 1)
	go func() {
		elapsed, err := s.backend.Step(stepCtx, h)
		done <- stepResult{elapsed: elapsed, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.elapsed, &SolverError{Op: "step", Err: r.err}
		}
		return r.elapsed, nil
	case <-ctx.Done():
		cancel()
		r := <-done
		return r.elapsed, &SolverError{Op: "step", Err: ctx.Err()}
	}
}
