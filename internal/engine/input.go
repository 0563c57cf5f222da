package engine

import (
	"time"

	"github.com/Faultbox/flexsync/internal/scene"
	"github.com/Faultbox/flexsync/internal/solver"
	"github.com/Faultbox/flexsync/internal/tracker"
)

// Overlay is a globally indexed constraint set supplied as one list element.
type Overlay struct {
	Token tracker.Token
	Set   scene.ConstraintSet
}

// Input is everything the host supplies for one cycle. Lists are diffed by
// position, so a producer that reorders its output is seen as editing every
// moved slot.
type Input struct {
	Reset bool
	Go    bool

	// Lock freezes params, geometry, force fields, objects and overlays
	// regardless of the configured scene mode.
	Lock bool

	// Options falls back to solver.DefaultSolverOptions when nil.
	Options *solver.SolverOptions

	// Params and Geometry are optional. A geometry that disappears is
	// replaced by an empty one on the backend.
	Params   *solver.Params
	Geometry *solver.CollisionGeometry

	ForceFields []solver.ForceField
	Objects     []scene.Object
	Overlays    []Overlay
}

// Pushes counts what one cycle sent to the backend or the composer.
type Pushes struct {
	Options     int
	Params      int
	Geometry    int
	ForceFields int
	Registers   int
	Alters      int
	Overlays    int
	Scene       int
}

// Total sums every counter.
func (p Pushes) Total() int {
	return p.Options + p.Params + p.Geometry + p.ForceFields + p.Registers + p.Alters + p.Overlays + p.Scene
}

// Report describes one completed cycle.
type Report struct {
	Cycle   int
	State   State
	Mode    solver.SceneMode
	Reset   bool
	Pushes  Pushes
	Steps   int
	Elapsed time.Duration

	// StepTime is the wall time spent waiting for solver steps.
	StepTime time.Duration

	// Diagnostics aggregates the recoverable errors of the cycle. Use
	// multierr.Errors to list them.
	Diagnostics error
}
