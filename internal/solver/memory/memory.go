// Package memory implements solver.Backend in process with a small
// position-based integrator. It is meant for headless runs and tests, not for
// physical accuracy.
package memory

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
	"github.com/Faultbox/flexsync/pkg/math"
)

// ErrUnknownHandle is returned for handles that were never created or have
// been destroyed.
var ErrUnknownHandle = errors.New("unknown solver handle")

type session struct {
	opts   solver.SolverOptions
	params solver.Params
	geom   solver.CollisionGeometry
	fields []solver.ForceField
	scene  scene.FlatScene
	steps  int
}

// Backend is an in-process solver.
type Backend struct {
	// StepDelay is added to every step, to emulate solver cost.
	StepDelay time.Duration

	mu       sync.Mutex
	next     solver.Handle
	sessions map[solver.Handle]*session
	log      *zap.Logger
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		sessions: make(map[solver.Handle]*session),
		log:      logger.Named("memory"),
	}
}

func (b *Backend) get(h solver.Handle) (*session, error) {
	s, ok := b.sessions[h]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownHandle, h)
	}
	return s, nil
}

// Create opens a session.
func (b *Backend) Create(ctx context.Context, opts solver.SolverOptions) (solver.Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.sessions[b.next] = &session{opts: opts, params: solver.DefaultParams()}
	b.log.Debug("session created", zap.Uint64("handle", uint64(b.next)))
	return b.next, nil
}

// Destroy closes a session.
func (b *Backend) Destroy(h solver.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.get(h); err != nil {
		return err
	}
	delete(b.sessions, h)
	b.log.Debug("session destroyed", zap.Uint64("handle", uint64(h)))
	return nil
}

// SetSolverOptions replaces the stepping options.
func (b *Backend) SetSolverOptions(h solver.Handle, opts solver.SolverOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return b.update(h, func(s *session) error {
		s.opts = opts
		return nil
	})
}

// SetParams replaces the parameters.
func (b *Backend) SetParams(h solver.Handle, p solver.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return b.update(h, func(s *session) error {
		s.params = p
		return nil
	})
}

// SetCollisionGeometry replaces every collider.
func (b *Backend) SetCollisionGeometry(h solver.Handle, g solver.CollisionGeometry) error {
	return b.update(h, func(s *session) error {
		s.geom = g
		return nil
	})
}

// SetForceFields replaces the force field list.
func (b *Backend) SetForceFields(h solver.Handle, fields []solver.ForceField) error {
	return b.update(h, func(s *session) error {
		s.fields = append([]solver.ForceField(nil), fields...)
		return nil
	})
}

// SetScene replaces the particles and constraints.
func (b *Backend) SetScene(h solver.Handle, fs scene.FlatScene) error {
	return b.update(h, func(s *session) error {
		if limit := s.opts.MaxParticles; limit > 0 && fs.NumParticles() > limit {
			return fmt.Errorf("%w: %d particles, limit %d", scene.ErrCapacityExceeded, fs.NumParticles(), limit)
		}
		s.scene = copyScene(fs)
		return nil
	})
}

func (b *Backend) update(h solver.Handle, fn func(*session) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.get(h)
	if err != nil {
		return err
	}
	return fn(s)
}

// IsReady reports whether h is a live session.
func (b *Backend) IsReady(h solver.Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[h]
	return ok
}

// Step integrates one time step split into the configured substeps.
func (b *Backend) Step(ctx context.Context, h solver.Handle) (time.Duration, error) {
	start := time.Now()
	if b.StepDelay > 0 {
		timer := time.NewTimer(b.StepDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Since(start), ctx.Err()
		case <-timer.C:
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.get(h)
	if err != nil {
		return 0, err
	}
	dt := s.opts.DT / float32(s.opts.SubSteps)
	for i := 0; i < s.opts.SubSteps; i++ {
		if err := ctx.Err(); err != nil {
			return time.Since(start), err
		}
		s.substep(dt)
	}
	s.steps++
	return time.Since(start), nil
}

// Steps returns how many steps have completed on h.
func (b *Backend) Steps(h solver.Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[h]; ok {
		return s.steps
	}
	return 0
}

// ReadBack returns copies of the current positions and velocities.
func (b *Backend) ReadBack(h solver.Handle) ([]float32, []float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.get(h)
	if err != nil {
		return nil, nil, err
	}
	return append([]float32(nil), s.scene.Positions...), append([]float32(nil), s.scene.Velocities...), nil
}

// RigidTransforms returns the current center of every shape group and an
// identity rotation; the integrator does not track orientation.
func (b *Backend) RigidTransforms(h solver.Handle) ([]float32, []float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.get(h)
	if err != nil {
		return nil, nil, err
	}
	fs := s.scene
	var translations, rotations []float32
	identity := math.QuatIdentity().Array()
	start := int32(0)
	for _, end := range fs.ShapeOffsets {
		indices := make([]int, 0, end-start)
		for _, idx := range fs.ShapeIndices[start:end] {
			indices = append(indices, int(idx))
		}
		c := math.Centroid(fs.Positions, indices)
		translations = append(translations, c.X, c.Y, c.Z)
		rotations = append(rotations, identity[:]...)
		start = end
	}
	return translations, rotations, nil
}

func copyScene(fs scene.FlatScene) scene.FlatScene {
	out := fs
	out.Positions = append([]float32(nil), fs.Positions...)
	out.Velocities = append([]float32(nil), fs.Velocities...)
	out.InvMasses = append([]float32(nil), fs.InvMasses...)
	return out
}

var (
	_ solver.Backend     = (*Backend)(nil)
	_ solver.ReadBacker  = (*Backend)(nil)
	_ solver.RigidReader = (*Backend)(nil)
)
