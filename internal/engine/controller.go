// Package engine drives the external solver from per-cycle host input. A
// Controller owns at most one session, diffs every input list against the
// previous cycle and pushes only what changed before stepping.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/flexsync/internal/logger"
	"github.com/Faultbox/flexsync/internal/scene"
	"github.com/Faultbox/flexsync/internal/solver"
	"github.com/Faultbox/flexsync/internal/tracker"
)

// State is the controller lifecycle state.
type State int

const (
	// Uninitialized means no session exists.
	Uninitialized State = iota
	// Idle means the session is valid and ready for the next cycle.
	Idle
	// Faulted means a backend operation failed. Only a reset recovers.
	Faulted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Idle:
		return "idle"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger replaces the default engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithStepTimeout bounds every solver step. Zero disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.stepTimeout = d
	}
}

// Controller is the session state machine. Cycle calls are serialised.
type Controller struct {
	mu sync.Mutex

	backend     solver.Backend
	log         *zap.Logger
	stepTimeout time.Duration
	stepper     *stepper

	state State
	sess  *session
	fault error
	cycle int
	stats Stats
}

// New creates a controller in the Uninitialized state.
func New(b solver.Backend, opts ...Option) *Controller {
	c := &Controller{
		backend: b,
		log:     logger.Named("engine"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stepper = newStepper(b, c.stepTimeout)
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that faulted the session, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fault
}

// Stats returns the instrumentation of the current session.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Cycle runs one recomputation cycle. Reset wins over Go. Recoverable
// problems are collected in Report.Diagnostics; the returned error is reserved
// for backend failures, cancellation and calls against a missing or faulted
// session.
func (c *Controller) Cycle(ctx context.Context, in Input) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	c.cycle++
	rep := Report{Cycle: c.cycle}

	var (
		cs      cycleState
		err     error
		stepped bool
	)
	switch {
	case in.Reset:
		rep.Reset = true
		err = c.reset(ctx, in, &cs)
	case in.Go:
		stepped = c.state == Idle
		err = c.step(ctx, in, &cs, &rep)
		if errors.Is(err, ErrNotReady) {
			stepped = false
		}
	}

	rep.Pushes = cs.pushes
	rep.Diagnostics = cs.diag
	rep.Elapsed = time.Since(start)
	if stepped {
		c.stats.record(rep)
	}
	rep.State = c.state
	return rep, err
}

func (c *Controller) teardown() {
	if c.sess == nil {
		return
	}
	if err := c.sess.destroy(); err != nil {
		c.log.Warn("session teardown failed", zap.Error(err))
	}
	c.sess = nil
	c.state = Uninitialized
	c.fault = nil
	c.stats = Stats{}
}

func (c *Controller) setFault(err error) error {
	c.state = Faulted
	c.fault = err
	c.log.Error("session faulted", zap.Int("cycle", c.cycle), zap.Error(err))
	return err
}

func (c *Controller) reset(ctx context.Context, in Input, cs *cycleState) error {
	c.teardown()

	opts := solver.DefaultSolverOptions()
	if in.Options != nil {
		opts = *in.Options
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	h, err := c.backend.Create(ctx, opts)
	if err != nil {
		return &SolverError{Op: "create", Err: err}
	}
	c.sess = newSession(c.backend, h, opts, c.log)
	c.sess.tracker.Commit(tracker.Key(tracker.SolverOptions, 0), opts.Token)

	if err := c.sess.sync(in, solver.Update, cs); err != nil {
		return c.setFault(err)
	}
	c.state = Idle
	c.log.Info("session reset",
		zap.Int("cycle", c.cycle),
		zap.Int("objects", len(in.Objects)),
		zap.Int("particles", c.sess.composer.Len()))
	return nil
}

func (c *Controller) step(ctx context.Context, in Input, cs *cycleState, rep *Report) error {
	switch c.state {
	case Uninitialized:
		return ErrNotReady
	case Faulted:
		return fmt.Errorf("%w: %w", ErrFaulted, c.fault)
	}
	s := c.sess
	if !c.backend.IsReady(s.handle) {
		return fmt.Errorf("%w: solver handle is not ready", ErrNotReady)
	}

	if err := s.syncOptions(in.Options, cs); err != nil {
		return c.setFault(err)
	}
	mode := s.opts.SceneMode
	if in.Lock {
		mode = solver.Lock
	}
	rep.Mode = mode
	if err := s.sync(in, mode, cs); err != nil {
		return c.setFault(err)
	}

	for i := 0; i < s.opts.StepsPerCycle(); i++ {
		begin := time.Now()
		_, err := c.stepper.run(ctx, s.handle)
		rep.StepTime += time.Since(begin)
		if err != nil {
			// a step that never started leaves the handle consistent
			if ctx.Err() != nil && !errors.Is(err, ErrSolver) {
				c.log.Info("cycle cancelled before step", zap.Int("cycle", c.cycle), zap.Int("steps", rep.Steps))
				return err
			}
			return c.setFault(err)
		}
		rep.Steps++
		if err := s.readBack(); err != nil {
			return c.setFault(err)
		}
	}
	c.log.Debug("cycle done",
		zap.Int("cycle", c.cycle),
		zap.Stringer("mode", mode),
		zap.Int("steps", rep.Steps))
	return nil
}

// Close destroys the session, if any, and returns to Uninitialized.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	err := c.sess.destroy()
	c.sess = nil
	c.state = Uninitialized
	c.fault = nil
	c.stats = Stats{}
	return err
}

func (c *Controller) composer() (*scene.Composer, error) {
	if c.sess == nil {
		return nil, ErrNotReady
	}
	return c.sess.composer, nil
}

// Len returns the number of particles in the session buffer.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return 0
	}
	return c.sess.composer.Len()
}

// Offset returns the newest offset of the object at slot.
func (c *Controller) Offset(slot int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || slot < 0 || slot >= len(c.sess.offsets) || c.sess.offsets[slot] == unbound {
		return scene.Unregistered, false
	}
	return c.sess.offsets[slot], true
}

// Snapshot returns a copy of the particles in [offset, offset+count).
func (c *Controller) Snapshot(offset, count int) (scene.Slice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, err := c.composer()
	if err != nil {
		return scene.Slice{}, err
	}
	return comp.Snapshot(offset, count)
}

// Constraints returns a copy of the merged global constraint set.
func (c *Controller) Constraints() (scene.ConstraintSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, err := c.composer()
	if err != nil {
		return scene.ConstraintSet{}, err
	}
	return comp.Constraints(), nil
}

// Registrations lists every registered slice, superseded ones included.
func (c *Controller) Registrations() ([]scene.Registration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, err := c.composer()
	if err != nil {
		return nil, err
	}
	return comp.Registrations(), nil
}

// Indices returns the global particle indices registered by objects of kind.
func (c *Controller) Indices(kind scene.Kind) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, err := c.composer()
	if err != nil {
		return nil, err
	}
	return comp.Indices(kind), nil
}

// RigidTransforms returns the backend's shape transforms when it exposes
// them.
func (c *Controller) RigidTransforms() (translations, rotations []float32, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, nil, ErrNotReady
	}
	rr, ok := c.backend.(solver.RigidReader)
	if !ok {
		return nil, nil, nil
	}
	translations, rotations, err = rr.RigidTransforms(c.sess.handle)
	if err != nil {
		return nil, nil, &SolverError{Op: "rigid_transforms", Err: err}
	}
	return translations, rotations, nil
}
