package solver

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/Faultbox/flexsync/internal/tracker"
	"github.com/Faultbox/flexsync/pkg/math"
)

// FieldMode selects how a force field acts on particles.
type FieldMode int

const (
	FieldForce FieldMode = iota
	FieldImpulse
	FieldVelocityChange
)

func (m FieldMode) String() string {
	switch m {
	case FieldForce:
		return "force"
	case FieldImpulse:
		return "impulse"
	case FieldVelocityChange:
		return "velocity_change"
	default:
		return fmt.Sprintf("field_mode(%d)", int(m))
	}
}

// ForceField is a radial force around a point.
type ForceField struct {
	Token tracker.Token

	Position      math.Vec3
	Radius        float32
	Strength      float32
	LinearFallOff bool
	Mode          FieldMode
}

// Validate reports whether the field can be pushed.
func (f ForceField) Validate() error {
	if f.Mode < FieldForce || f.Mode > FieldVelocityChange {
		return invalid("force_field", "mode", "unknown mode %d", int(f.Mode))
	}
	if f.Radius <= 0 {
		return invalid("force_field", "radius", "%v must be > 0", f.Radius)
	}
	return nil
}

// ValidateForceFields validates a whole list. Force fields are pushed as a
// list, so any invalid element rejects the list.
func ValidateForceFields(fields []ForceField) error {
	var err error
	for i, f := range fields {
		if e := f.Validate(); e != nil {
			err = multierr.Append(err, fmt.Errorf("force field %d: %w", i, e))
		}
	}
	return err
}
