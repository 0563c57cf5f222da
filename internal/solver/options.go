package solver

import (
	"fmt"
	"strings"

	"github.com/Faultbox/flexsync/internal/tracker"
)

// SceneMode decides how changed scene objects are pushed.
type SceneMode int

const (
	// Update alters changed objects in place; topology must not change.
	Update SceneMode = iota
	// Append registers changed objects again, growing the buffer.
	Append
	// Lock freezes every scene input after the initial reset.
	Lock
)

var sceneModeNames = [...]string{"update", "append", "lock"}

func (m SceneMode) String() string {
	if m >= 0 && int(m) < len(sceneModeNames) {
		return sceneModeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseSceneMode accepts a mode name or its number.
func ParseSceneMode(s string) (SceneMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range sceneModeNames {
		if s == name || s == fmt.Sprint(i) {
			return SceneMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scene mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m SceneMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SceneMode) UnmarshalText(text []byte) error {
	mode, err := ParseSceneMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// SolverOptions control stepping and memory limits of a session.
type SolverOptions struct {
	Token tracker.Token `yaml:"-" toml:"-"`

	DT         float32   `yaml:"dt" toml:"dt"`
	SubSteps   int       `yaml:"substeps" toml:"substeps"`
	Iterations int       `yaml:"iterations" toml:"iterations"`
	SceneMode  SceneMode `yaml:"scene_mode" toml:"scene_mode"`

	// FixedTotalIterations >= 2 runs that many steps per cycle.
	FixedTotalIterations int     `yaml:"fixed_total_iterations" toml:"fixed_total_iterations"`
	StabilityScaling     float32 `yaml:"stability_scaling" toml:"stability_scaling"`

	MaxParticles        int `yaml:"max_particles" toml:"max_particles"`
	MaxNeighbors        int `yaml:"max_neighbors" toml:"max_neighbors"`
	MaxCollisionShapes  int `yaml:"max_collision_shapes" toml:"max_collision_shapes"`
	MaxMeshVertices     int `yaml:"max_mesh_vertices" toml:"max_mesh_vertices"`
	MaxMeshIndices      int `yaml:"max_mesh_indices" toml:"max_mesh_indices"`
	MaxConvexPlanes     int `yaml:"max_convex_planes" toml:"max_convex_planes"`
	MaxRigidBodies      int `yaml:"max_rigid_bodies" toml:"max_rigid_bodies"`
	MaxSprings          int `yaml:"max_springs" toml:"max_springs"`
	MaxDynamicTriangles int `yaml:"max_dynamic_triangles" toml:"max_dynamic_triangles"`
}

// DefaultSolverOptions returns 60 Hz stepping with three substeps.
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		DT:                   1.0 / 60,
		SubSteps:             3,
		Iterations:           3,
		SceneMode:            Update,
		FixedTotalIterations: -1,
		StabilityScaling:     1,
		MaxParticles:         131072,
		MaxNeighbors:         96,
		MaxCollisionShapes:   65536,
		MaxMeshVertices:      65536,
		MaxMeshIndices:       65536,
		MaxConvexPlanes:      65536,
		MaxRigidBodies:       65536,
		MaxSprings:           196608,
		MaxDynamicTriangles:  131072,
	}
}

// StepsPerCycle returns how many solver steps one go cycle runs.
func (o SolverOptions) StepsPerCycle() int {
	if o.FixedTotalIterations >= 2 {
		return o.FixedTotalIterations
	}
	return 1
}

// Validate reports whether the options can be used.
func (o SolverOptions) Validate() error {
	switch {
	case o.DT <= 0:
		return invalid("solver_options", "dt", "%v must be > 0", o.DT)
	case o.SubSteps <= 0:
		return invalid("solver_options", "substeps", "%d must be > 0", o.SubSteps)
	case o.Iterations <= 0:
		return invalid("solver_options", "iterations", "%d must be > 0", o.Iterations)
	case o.SceneMode < Update || o.SceneMode > Lock:
		return invalid("solver_options", "scene_mode", "unknown mode %d", int(o.SceneMode))
	case o.MaxParticles < 0:
		return invalid("solver_options", "max_particles", "%d must be >= 0", o.MaxParticles)
	}
	return nil
}
