package solver

import (
	"context"
	"time"

	"github.com/Faultbox/flexsync/internal/scene"
)

// Handle identifies one live backend session.
type Handle uint64

// Backend is the external particle solver. A handle is owned by exactly one
// session and at most one Step runs against it at any time.
type Backend interface {
	Create(ctx context.Context, opts SolverOptions) (Handle, error)
	Destroy(h Handle) error

	SetSolverOptions(h Handle, opts SolverOptions) error
	SetParams(h Handle, p Params) error
	SetCollisionGeometry(h Handle, g CollisionGeometry) error
	SetForceFields(h Handle, fields []ForceField) error
	SetScene(h Handle, s scene.FlatScene) error

	// Step advances the simulation by one time step and returns the time the
	// solver spent. It must return promptly once ctx is done.
	Step(ctx context.Context, h Handle) (time.Duration, error)
	IsReady(h Handle) bool
}

// ReadBacker is implemented by backends that expose particle state after a
// step. Both slices are xyz per particle over the whole scene.
type ReadBacker interface {
	ReadBack(h Handle) (positions, velocities []float32, err error)
}

// RigidReader is implemented by backends that expose the transform of every
// shape-matching group: xyz translations and xyzw rotations.
type RigidReader interface {
	RigidTransforms(h Handle) (translations, rotations []float32, err error)
}
