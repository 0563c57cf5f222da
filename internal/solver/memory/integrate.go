package memory

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/flexsync/internal/solver"
	"github.com/Faultbox/flexsync/pkg/math"
)

func (s *session) substep(dt float32) {
	fs := &s.scene
	n := fs.NumParticles()
	p := s.params
	gravity := math.Vec3{X: p.GravityX + p.WindX, Y: p.GravityY + p.WindY, Z: p.GravityZ + p.WindZ}
	damping := 1 - math32.Min(1, p.Damping*dt)

	prev := append([]float32(nil), fs.Positions...)
	for i := 0; i < n; i++ {
		w := fs.InvMasses[i]
		if w == 0 {
			math.Put(fs.Velocities, i, math.Vec3{})
			continue
		}
		pos := math.At(fs.Positions, i)
		v := math.At(fs.Velocities, i).Add(gravity.Scale(dt))
		v = v.Add(s.fieldVelocity(pos, w, dt)).Scale(damping)
		if speed := v.Length(); speed > p.MaxSpeed && speed > 0 {
			v = v.Scale(p.MaxSpeed / speed)
		}
		math.Put(fs.Velocities, i, v)
		math.Put(fs.Positions, i, pos.Add(v.Scale(dt)))
	}

	iterations := s.opts.Iterations
	for it := 0; it < iterations; it++ {
		s.solveSprings()
	}
	s.collidePlanes(p.Radius)
	s.collideSpheres(p.Radius)
	s.collideBoxes(p.Radius)

	// velocities follow the corrected positions
	if dt > 0 {
		for i := 0; i < n; i++ {
			if fs.InvMasses[i] == 0 {
				continue
			}
			v := math.At(fs.Positions, i).Sub(math.At(prev, i)).Scale(1 / dt)
			math.Put(fs.Velocities, i, v)
		}
	}
}

func (s *session) fieldVelocity(pos math.Vec3, w, dt float32) math.Vec3 {
	var dv math.Vec3
	for _, f := range s.fields {
		d := pos.Sub(f.Position)
		dist := d.Length()
		if dist == 0 || dist > f.Radius {
			continue
		}
		strength := f.Strength
		if f.LinearFallOff {
			strength *= 1 - dist/f.Radius
		}
		dir := d.Scale(1 / dist)
		switch f.Mode {
		case solver.FieldForce:
			dv = dv.Add(dir.Scale(strength * w * dt))
		case solver.FieldImpulse:
			dv = dv.Add(dir.Scale(strength * w))
		case solver.FieldVelocityChange:
			dv = dv.Add(dir.Scale(strength))
		}
	}
	return dv
}

func (s *session) solveSprings() {
	fs := &s.scene
	for i := 0; i < fs.NumSprings(); i++ {
		a, b := int(fs.SpringIndices[2*i]), int(fs.SpringIndices[2*i+1])
		wa, wb := fs.InvMasses[a], fs.InvMasses[b]
		if wa+wb == 0 {
			continue
		}
		pa, pb := math.At(fs.Positions, a), math.At(fs.Positions, b)
		d := pb.Sub(pa)
		dist := d.Length()
		if dist == 0 {
			continue
		}
		k := math32.Min(1, math32.Max(0, fs.SpringStiffness[i]))
		corr := d.Scale(k * (dist - fs.SpringLengths[i]) / (dist * (wa + wb)))
		math.Put(fs.Positions, a, pa.Add(corr.Scale(wa)))
		math.Put(fs.Positions, b, pb.Sub(corr.Scale(wb)))
	}
}

// collidePlanes pushes particles out of every plane by at least radius.
func (s *session) collidePlanes(radius float32) {
	fs := &s.scene
	for _, pl := range s.geom.Planes {
		normal := math.Vec3{X: pl.A, Y: pl.B, Z: pl.C}
		length := normal.Length()
		if length == 0 {
			continue
		}
		normal = normal.Scale(1 / length)
		offset := pl.D / length
		for i := 0; i < fs.NumParticles(); i++ {
			if fs.InvMasses[i] == 0 {
				continue
			}
			pos := math.At(fs.Positions, i)
			if depth := pos.Dot(normal) + offset - radius; depth < 0 {
				math.Put(fs.Positions, i, pos.Sub(normal.Scale(depth)))
			}
		}
	}
}

// collideSpheres pushes particles out of every sphere collider.
func (s *session) collideSpheres(radius float32) {
	fs := &s.scene
	for _, sp := range s.geom.Spheres {
		reach := sp.Radius + radius
		for i := 0; i < fs.NumParticles(); i++ {
			if fs.InvMasses[i] == 0 {
				continue
			}
			d := math.At(fs.Positions, i).Sub(sp.Center)
			dist := d.Length()
			if dist >= reach || dist == 0 {
				continue
			}
			math.Put(fs.Positions, i, sp.Center.Add(d.Scale(reach/dist)))
		}
	}
}

// collideBoxes pushes particles inside an inflated box out through the
// nearest face, working in the box frame.
func (s *session) collideBoxes(radius float32) {
	fs := &s.scene
	for _, b := range s.geom.Boxes {
		rot := math.QuatFromArray(b.Rotation)
		inv := rot.Conjugate()
		ext := b.HalfExtents.Add(math.Vec3{X: radius, Y: radius, Z: radius})
		for i := 0; i < fs.NumParticles(); i++ {
			if fs.InvMasses[i] == 0 {
				continue
			}
			local := inv.Rotate(math.At(fs.Positions, i).Sub(b.Center))
			if out, ok := pushOut(local, ext); ok {
				math.Put(fs.Positions, i, b.Center.Add(rot.Rotate(out)))
			}
		}
	}
}

// pushOut moves p, given in the box frame, to the closest face of the box
// with half extents ext. It reports false when p is outside.
func pushOut(p, ext math.Vec3) (math.Vec3, bool) {
	dx, dy, dz := ext.X-math32.Abs(p.X), ext.Y-math32.Abs(p.Y), ext.Z-math32.Abs(p.Z)
	if dx <= 0 || dy <= 0 || dz <= 0 {
		return p, false
	}
	switch {
	case dx <= dy && dx <= dz:
		p.X = math32.Copysign(ext.X, p.X)
	case dy <= dz:
		p.Y = math32.Copysign(ext.Y, p.Y)
	default:
		p.Z = math32.Copysign(ext.Z, p.Z)
	}
	return p, true
}
