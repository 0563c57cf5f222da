// Package scene composes independently authored sub-scenes into one flat
// particle buffer and one globally indexed constraint set.
package scene

import (
	"fmt"

	"github.com/Faultbox/flexsync/pkg/math"
)

// Phase bits, matching the solver's packed phase word.
const (
	PhaseGroupMask   = 1<<24 - 1
	PhaseSelfCollide = 1 << 24
	PhaseFluid       = 1 << 26

	// MaxGroup is the largest usable group id.
	MaxGroup = PhaseGroupMask
)

// MakePhase packs a group id and collision flags into a phase word.
func MakePhase(group int32, selfCollide, fluid bool) int32 {
	phase := group & PhaseGroupMask
	if selfCollide {
		phase |= PhaseSelfCollide
	}
	if fluid {
		phase |= PhaseFluid
	}
	return phase
}

// DecomposePhase unpacks a phase word.
func DecomposePhase(phase int32) (group int32, selfCollide, fluid bool) {
	return phase & PhaseGroupMask, phase&PhaseSelfCollide != 0, phase&PhaseFluid != 0
}

// Particle is one row of the buffer.
type Particle struct {
	Position      math.Vec3
	Velocity      math.Vec3
	InvMass       float32
	Group         int32
	Fluid         bool
	SelfCollision bool
}

// Slice is a contiguous run of particles in structure-of-arrays form.
type Slice struct {
	Positions  []float32 // xyz per particle
	Velocities []float32 // xyz per particle
	InvMasses  []float32
	Phases     []int32
}

// Len returns the number of particles in the slice.
func (s Slice) Len() int {
	return len(s.InvMasses)
}

// Particle returns the i-th particle of the slice.
func (s Slice) Particle(i int) Particle {
	group, self, fluid := DecomposePhase(s.Phases[i])
	return Particle{
		Position:      math.At(s.Positions, i),
		Velocity:      math.At(s.Velocities, i),
		InvMass:       s.InvMasses[i],
		Group:         group,
		Fluid:         fluid,
		SelfCollision: self,
	}
}

// ParticleBuffer is the append-only arena holding every registered particle.
// A particle's identity is its index; the buffer never shrinks and never moves
// an existing row.
type ParticleBuffer struct {
	positions  []float32
	velocities []float32
	invMasses  []float32
	phases     []int32
}

// Len returns the number of particles (the high-water mark).
func (b *ParticleBuffer) Len() int {
	return len(b.invMasses)
}

// Append copies s onto the end of the buffer and returns the offset of its
// first particle.
func (b *ParticleBuffer) Append(s Slice) int {
	offset := b.Len()
	b.positions = append(b.positions, s.Positions...)
	b.velocities = append(b.velocities, s.Velocities...)
	b.invMasses = append(b.invMasses, s.InvMasses...)
	b.phases = append(b.phases, s.Phases...)
	return offset
}

func (b *ParticleBuffer) checkRange(offset, count int) error {
	if offset < 0 || count < 0 || offset+count > b.Len() {
		return fmt.Errorf("range [%d,%d) outside buffer of %d particles", offset, offset+count, b.Len())
	}
	return nil
}

// Slice returns a copy of the particles in [offset, offset+count).
func (b *ParticleBuffer) Slice(offset, count int) (Slice, error) {
	if err := b.checkRange(offset, count); err != nil {
		return Slice{}, err
	}
	out := Slice{
		Positions:  make([]float32, 3*count),
		Velocities: make([]float32, 3*count),
		InvMasses:  make([]float32, count),
		Phases:     make([]int32, count),
	}
	copy(out.Positions, b.positions[3*offset:3*(offset+count)])
	copy(out.Velocities, b.velocities[3*offset:3*(offset+count)])
	copy(out.InvMasses, b.invMasses[offset:offset+count])
	copy(out.Phases, b.phases[offset:offset+count])
	return out, nil
}

// Position returns the position of the particle at global index i.
func (b *ParticleBuffer) Position(i int) math.Vec3 {
	return math.At(b.positions, i)
}

// overwriteAttributes rewrites inverse masses and phases of a slice in place.
func (b *ParticleBuffer) overwriteAttributes(offset int, invMasses []float32, phases []int32) {
	copy(b.invMasses[offset:offset+len(invMasses)], invMasses)
	copy(b.phases[offset:offset+len(phases)], phases)
}

// setPosition overwrites one particle's position.
func (b *ParticleBuffer) setPosition(i int, p math.Vec3) {
	math.Put(b.positions, i, p)
}

// Overwrite replaces the positions and velocities of every particle, for
// example with solver read-back. The lengths must match the buffer exactly.
func (b *ParticleBuffer) Overwrite(positions, velocities []float32) error {
	if len(positions) != len(b.positions) || len(velocities) != len(b.velocities) {
		return fmt.Errorf("read-back of %d/%d floats does not match buffer of %d particles",
			len(positions), len(velocities), b.Len())
	}
	copy(b.positions, positions)
	copy(b.velocities, velocities)
	return nil
}

// snapshot copies the whole buffer.
func (b *ParticleBuffer) snapshot() Slice {
	s, _ := b.Slice(0, b.Len())
	return s
}
