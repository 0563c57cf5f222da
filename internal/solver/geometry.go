package solver

import (
	"go.uber.org/multierr"

	"github.com/Faultbox/flexsync/internal/scene"
	"github.com/Faultbox/flexsync/internal/tracker"
	"github.com/Faultbox/flexsync/pkg/math"
)

// MaxPlanes is the number of collision planes the solver accepts.
const MaxPlanes = 8

// Plane is Ax + By + Cz + D = 0.
type Plane struct {
	A, B, C, D float32
}

// Sphere is a static collision sphere.
type Sphere struct {
	Center math.Vec3
	Radius float32
}

// Box is an oriented collision box.
type Box struct {
	HalfExtents math.Vec3
	Center      math.Vec3
	Rotation    [4]float32 // quaternion xyzw
}

// Capsule is an oriented collision capsule along its local x axis.
type Capsule struct {
	HalfHeight float32
	Radius     float32
	Center     math.Vec3
	Rotation   [4]float32
}

// Mesh is a static triangle mesh collider. Lower and Upper are filled in by
// Sanitize.
type Mesh struct {
	Vertices []float32 // xyz
	Faces    []int     // three vertex indices per face
	Lower    math.Vec3
	Upper    math.Vec3
}

// Convex is a convex collider given by its face planes.
type Convex struct {
	Planes []Plane
	Lower  math.Vec3
	Upper  math.Vec3
}

// CollisionGeometry is the full set of static colliders of a session.
type CollisionGeometry struct {
	Token tracker.Token

	Planes   []Plane
	Spheres  []Sphere
	Boxes    []Box
	Capsules []Capsule
	Meshes   []Mesh
	Convexes []Convex
}

// Empty reports whether the geometry holds no colliders.
func (g CollisionGeometry) Empty() bool {
	return len(g.Planes) == 0 && len(g.Spheres) == 0 && len(g.Boxes) == 0 &&
		len(g.Capsules) == 0 && len(g.Meshes) == 0 && len(g.Convexes) == 0
}

func positive(v math.Vec3) bool {
	return v.X > 0 && v.Y > 0 && v.Z > 0
}

// Sanitize returns a copy of g without the entries the solver cannot accept,
// together with one diagnostic per dropped entry. Planes beyond MaxPlanes are
// dropped. Mesh faces that reference vertices beyond the mesh are reported as
// *scene.StaleReferenceError and skipped; mesh bounds are computed.
func (g CollisionGeometry) Sanitize() (CollisionGeometry, error) {
	var diag error
	out := CollisionGeometry{Token: g.Token}

	for i, p := range g.Planes {
		if i >= MaxPlanes {
			diag = multierr.Append(diag, invalid("geometry", "planes", "plane %d beyond the limit of %d", i, MaxPlanes))
			continue
		}
		out.Planes = append(out.Planes, p)
	}

	for i, s := range g.Spheres {
		if s.Radius <= 0 {
			diag = multierr.Append(diag, invalid("geometry", "spheres", "sphere %d radius %v must be > 0", i, s.Radius))
			continue
		}
		out.Spheres = append(out.Spheres, s)
	}

	for i, b := range g.Boxes {
		if !positive(b.HalfExtents) {
			diag = multierr.Append(diag, invalid("geometry", "boxes", "box %d half extents must be > 0", i))
			continue
		}
		out.Boxes = append(out.Boxes, b)
	}

	for i, c := range g.Capsules {
		if c.HalfHeight <= 0 || c.Radius <= 0 {
			diag = multierr.Append(diag, invalid("geometry", "capsules", "capsule %d half height and radius must be > 0", i))
			continue
		}
		out.Capsules = append(out.Capsules, c)
	}

	for i, m := range g.Meshes {
		if len(m.Vertices) == 0 || len(m.Vertices)%3 != 0 || len(m.Faces)%3 != 0 {
			diag = multierr.Append(diag, invalid("geometry", "meshes", "mesh %d arrays are not xyz triples", i))
			continue
		}
		n := len(m.Vertices) / 3
		clean := Mesh{Vertices: append([]float32(nil), m.Vertices...)}
		for f := 0; f < len(m.Faces); f += 3 {
			face := m.Faces[f : f+3]
			if ref, ok := outOfRange(face, n); ok {
				diag = multierr.Append(diag, &scene.StaleReferenceError{Field: "mesh_faces", Entry: f / 3, Ref: ref, Limit: n})
				continue
			}
			clean.Faces = append(clean.Faces, face...)
		}
		clean.Lower, clean.Upper = math.Bounds(clean.Vertices)
		out.Meshes = append(out.Meshes, clean)
	}

	for i, c := range g.Convexes {
		if len(c.Planes) == 0 {
			diag = multierr.Append(diag, invalid("geometry", "convexes", "convex %d has no planes", i))
			continue
		}
		out.Convexes = append(out.Convexes, c)
	}

	return out, diag
}

func outOfRange(indices []int, n int) (int, bool) {
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return idx, true
		}
	}
	return 0, false
}
