package scene

import (
	"fmt"

	"github.com/Faultbox/flexsync/internal/tracker"
	"github.com/Faultbox/flexsync/pkg/math"
)

// Kind identifies the variant of a sub-scene object.
type Kind int

// Object kinds. KindOverlay tags standalone constraint overlays, which are not
// objects and cannot be registered.
const (
	KindParticleGroup Kind = iota // free particles
	KindFluid                     // fluid particles
	KindRigidBody                 // one shape-matching group
	KindSoftBody                  // clustered shapes plus links
	KindSpringSystem              // explicit springs
	KindCloth                     // triangle mesh springs
	KindInflatable                // cloth with pressure
	KindOverlay                   // global constraint overlay
)

var kindNames = [...]string{
	KindParticleGroup: "particle_group",
	KindFluid:         "fluid",
	KindRigidBody:     "rigid_body",
	KindSoftBody:      "soft_body",
	KindSpringSystem:  "spring_system",
	KindCloth:         "cloth",
	KindInflatable:    "inflatable",
	KindOverlay:       "overlay",
}

// String returns the document name of the kind.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown object kind %q", name)
}

// Unregistered is the offset reported by an object that has not been
// registered yet.
const Unregistered = -1

// Header carries the per-cycle change token and the registration offset of an
// object. The offset is assigned at most once.
type Header struct {
	Token tracker.Token

	offset     int
	registered bool
}

// Meta returns the header itself; embedding structs inherit it.
func (h *Header) Meta() *Header {
	return h
}

// Offset returns the registered offset or Unregistered.
func (h *Header) Offset() int {
	if !h.registered {
		return Unregistered
	}
	return h.offset
}

// Registered reports whether an offset has been assigned.
func (h *Header) Registered() bool {
	return h.registered
}

// bind assigns offset once. Binding the same offset again is a no-op.
func (h *Header) bind(offset int) error {
	if h.registered {
		if h.offset == offset {
			return nil
		}
		return fmt.Errorf("%w: offset %d, requested %d", ErrAlreadyRegistered, h.offset, offset)
	}
	h.offset = offset
	h.registered = true
	return nil
}

// Object is one user-authored physical entity. Emit returns its particle
// slice and its constraints tagged LocalIndexed.
type Object interface {
	Kind() Kind
	Meta() *Header
	Emit() (Slice, ConstraintSet, error)
}

// particleSource holds the per-particle arrays shared by most kinds.
type particleSource struct {
	Positions  []float32 // xyz per particle
	Velocities []float32 // xyz per particle, nil means at rest
	InvMasses  []float32 // one per particle, or a single value for all
}

func (p particleSource) count() int {
	return len(p.Positions) / 3
}

// slice validates the arrays and builds a Slice with one phase for all
// particles. Anchored particles get zero inverse mass.
func (p particleSource) slice(kind Kind, phase int32, anchors []int) (Slice, error) {
	if len(p.Positions)%3 != 0 {
		return Slice{}, configErr(kind, "positions", "length %d is not a multiple of 3", len(p.Positions))
	}
	n := p.count()
	if p.Velocities != nil && len(p.Velocities) != len(p.Positions) {
		return Slice{}, configErr(kind, "velocities", "length %d, want %d", len(p.Velocities), len(p.Positions))
	}
	if len(p.InvMasses) != 1 && len(p.InvMasses) != n {
		return Slice{}, configErr(kind, "inverse_masses", "length %d, want 1 or %d", len(p.InvMasses), n)
	}
	for i, im := range p.InvMasses {
		if im < 0 {
			return Slice{}, configErr(kind, "inverse_masses", "entry %d is negative", i)
		}
	}

	s := Slice{
		Positions:  append([]float32(nil), p.Positions...),
		Velocities: make([]float32, 3*n),
		InvMasses:  make([]float32, n),
		Phases:     make([]int32, n),
	}
	copy(s.Velocities, p.Velocities)
	for i := 0; i < n; i++ {
		if len(p.InvMasses) == 1 {
			s.InvMasses[i] = p.InvMasses[0]
		} else {
			s.InvMasses[i] = p.InvMasses[i]
		}
		s.Phases[i] = phase
	}
	for _, a := range anchors {
		if a >= 0 && a < n {
			s.InvMasses[a] = 0
		}
	}
	return s, nil
}

func checkGroup(kind Kind, group int32) error {
	if group < 0 || group > MaxGroup {
		return configErr(kind, "group", "%d outside [0, %d]", group, MaxGroup)
	}
	return nil
}

// ParticleGroup is a set of free particles with explicit flags.
type ParticleGroup struct {
	Header
	Positions     []float32
	Velocities    []float32
	InvMasses     []float32
	Fluid         bool
	SelfCollision bool
	Group         int32
}

// Kind returns KindParticleGroup.
func (o *ParticleGroup) Kind() Kind { return KindParticleGroup }

// Emit returns the particles with no constraints.
func (o *ParticleGroup) Emit() (Slice, ConstraintSet, error) {
	if err := checkGroup(o.Kind(), o.Group); err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	src := particleSource{o.Positions, o.Velocities, o.InvMasses}
	s, err := src.slice(o.Kind(), MakePhase(o.Group, o.SelfCollision, o.Fluid), nil)
	return s, Local(), err
}

// Fluid is a group of self-colliding fluid particles.
type Fluid struct {
	Header
	Positions  []float32
	Velocities []float32
	InvMasses  []float32
	Group      int32
}

// Kind returns KindFluid.
func (o *Fluid) Kind() Kind { return KindFluid }

// Emit returns fluid particles with no constraints.
func (o *Fluid) Emit() (Slice, ConstraintSet, error) {
	if err := checkGroup(o.Kind(), o.Group); err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	src := particleSource{o.Positions, o.Velocities, o.InvMasses}
	s, err := src.slice(o.Kind(), MakePhase(o.Group, true, true), nil)
	return s, Local(), err
}

// RigidBody is one shape-matching group over all of its vertices.
type RigidBody struct {
	Header
	Vertices  []float32
	Normals   []float32 // xyz per vertex, optional
	Velocity  math.Vec3
	InvMasses []float32
	Stiffness float32
	Group     int32
}

// Kind returns KindRigidBody.
func (o *RigidBody) Kind() Kind { return KindRigidBody }

// Emit returns the vertices and a single shape group in local indices.
func (o *RigidBody) Emit() (Slice, ConstraintSet, error) {
	if err := checkGroup(o.Kind(), o.Group); err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	if o.Stiffness < 0 || o.Stiffness > 1 {
		return Slice{}, ConstraintSet{}, configErr(o.Kind(), "stiffness", "%v outside [0, 1]", o.Stiffness)
	}
	if len(o.Normals) != 0 && len(o.Normals) != len(o.Vertices) {
		return Slice{}, ConstraintSet{}, configErr(o.Kind(), "normals", "length %d, want %d", len(o.Normals), len(o.Vertices))
	}
	src := particleSource{Positions: o.Vertices, InvMasses: o.InvMasses}
	s, err := src.slice(o.Kind(), MakePhase(o.Group, false, false), nil)
	if err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	n := s.Len()
	if n == 0 {
		return s, Local(), nil
	}
	for i := 0; i < n; i++ {
		math.Put(s.Velocities, i, o.Velocity)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	set := Local()
	set.Shapes = []ShapeGroup{shapeGroup(s.Positions, indices, o.Stiffness, o.Normals)}
	return s, set, nil
}

// Cluster is one shape-matching cluster of a soft body asset.
type Cluster struct {
	Indices   []int
	Stiffness float32
}

// SoftBody is a pre-sampled soft body asset: particles, clusters and links.
// Sampling a mesh into the asset happens upstream.
type SoftBody struct {
	Header
	Positions     []float32
	Velocities    []float32
	InvMasses     []float32
	Clusters      []Cluster
	LinkPairs     []int
	LinkLengths   []float32
	LinkStiffness []float32
	Anchors       []int
	SelfCollision bool
	Group         int32
}

// Kind returns KindSoftBody.
func (o *SoftBody) Kind() Kind { return KindSoftBody }

// Emit returns the asset particles, cluster shapes and link springs.
func (o *SoftBody) Emit() (Slice, ConstraintSet, error) {
	if err := checkGroup(o.Kind(), o.Group); err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	springs, err := springsFromArrays(o.Kind(), o.LinkPairs, o.LinkLengths, o.LinkStiffness)
	if err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	src := particleSource{o.Positions, o.Velocities, o.InvMasses}
	s, err := src.slice(o.Kind(), MakePhase(o.Group, o.SelfCollision, false), o.Anchors)
	if err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	set := Local()
	set.Anchors = append([]int(nil), o.Anchors...)
	set.Springs = springs
	for _, c := range o.Clusters {
		set.Shapes = append(set.Shapes, shapeGroup(s.Positions, c.Indices, c.Stiffness, nil))
	}
	return s, set, nil
}

// SpringSystem is a set of particles joined by explicit springs.
type SpringSystem struct {
	Header
	Positions     []float32
	Velocities    []float32
	InvMasses     []float32
	SpringPairs   []int // two local indices per spring
	Stiffnesses   []float32
	TargetLengths []float32
	SelfCollision bool
	Anchors       []int
	Group         int32
}

// Kind returns KindSpringSystem.
func (o *SpringSystem) Kind() Kind { return KindSpringSystem }

// Emit returns the particles, springs and anchors.
func (o *SpringSystem) Emit() (Slice, ConstraintSet, error) {
	if err := checkGroup(o.Kind(), o.Group); err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	springs, err := springsFromArrays(o.Kind(), o.SpringPairs, o.TargetLengths, o.Stiffnesses)
	if err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	src := particleSource{o.Positions, o.Velocities, o.InvMasses}
	s, err := src.slice(o.Kind(), MakePhase(o.Group, o.SelfCollision, false), o.Anchors)
	if err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	set := Local()
	set.Anchors = append([]int(nil), o.Anchors...)
	set.Springs = springs
	return s, set, nil
}

// Cloth is a triangle mesh whose edges become stretch springs and whose
// adjacent triangles get bending springs.
type Cloth struct {
	Header
	Positions        []float32
	Velocities       []float32
	InvMasses        []float32
	Triangles        []int     // three local indices per triangle
	TriangleNormals  []float32 // xyz per triangle, optional
	StretchStiffness float32
	BendingStiffness float32
	PreTension       float32 // rest length scale, 0 means 1
	Anchors          []int
	SelfCollision    bool
	Group            int32
}

// Kind returns KindCloth.
func (o *Cloth) Kind() Kind { return KindCloth }

// Emit returns the particles, edge and bending springs, triangles and anchors.
func (o *Cloth) Emit() (Slice, ConstraintSet, error) {
	return o.emit(o.Kind())
}

func (o *Cloth) emit(kind Kind) (Slice, ConstraintSet, error) {
	if err := checkGroup(kind, o.Group); err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	if len(o.Triangles)%3 != 0 {
		return Slice{}, ConstraintSet{}, configErr(kind, "triangles", "length %d is not a multiple of 3", len(o.Triangles))
	}
	if o.StretchStiffness < 0 || o.BendingStiffness < 0 {
		return Slice{}, ConstraintSet{}, configErr(kind, "stiffness", "stretch %v, bending %v must be >= 0", o.StretchStiffness, o.BendingStiffness)
	}
	src := particleSource{o.Positions, o.Velocities, o.InvMasses}
	s, err := src.slice(kind, MakePhase(o.Group, o.SelfCollision, false), o.Anchors)
	if err != nil {
		return Slice{}, ConstraintSet{}, err
	}

	set := Local()
	set.Anchors = append([]int(nil), o.Anchors...)
	set.Triangles = triangles(o.Triangles, o.TriangleNormals)
	preTension := o.PreTension
	if preTension == 0 {
		preTension = 1
	}
	set.Springs = clothSprings(s.Positions, o.Triangles, o.StretchStiffness, o.BendingStiffness, preTension)
	return s, set, nil
}

// Inflatable is a closed cloth with a pressure constraint.
type Inflatable struct {
	Cloth
	RestVolume      float32
	OverPressure    float32
	ConstraintScale float32
}

// Kind returns KindInflatable.
func (o *Inflatable) Kind() Kind { return KindInflatable }

// Emit returns the cloth constraints plus one pressure entry.
func (o *Inflatable) Emit() (Slice, ConstraintSet, error) {
	if o.RestVolume < 0 || o.ConstraintScale < 0 {
		return Slice{}, ConstraintSet{}, configErr(o.Kind(), "pressure", "rest volume %v, constraint scale %v must be >= 0", o.RestVolume, o.ConstraintScale)
	}
	if len(o.TriangleNormals) != len(o.Triangles) {
		return Slice{}, ConstraintSet{}, configErr(o.Kind(), "triangle_normals", "length %d, want %d", len(o.TriangleNormals), len(o.Triangles))
	}
	s, set, err := o.Cloth.emit(o.Kind())
	if err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	set.Pressures = []Pressure{{
		StartTriangle:   0,
		NumTriangles:    len(set.Triangles),
		RestVolume:      o.RestVolume,
		OverPressure:    o.OverPressure,
		ConstraintScale: o.ConstraintScale,
	}}
	return s, set, nil
}

func springsFromArrays(kind Kind, pairs []int, lengths, stiffness []float32) ([]Spring, error) {
	if len(pairs)%2 != 0 {
		return nil, configErr(kind, "spring_pairs", "length %d is not even", len(pairs))
	}
	n := len(pairs) / 2
	if len(lengths) != n || len(stiffness) != n {
		return nil, configErr(kind, "springs", "%d pairs, %d lengths, %d stiffnesses", n, len(lengths), len(stiffness))
	}
	springs := make([]Spring, n)
	for i := range springs {
		springs[i] = Spring{A: pairs[2*i], B: pairs[2*i+1], Length: lengths[i], Stiffness: stiffness[i]}
	}
	return springs, nil
}

func triangles(indices []int, normals []float32) []Triangle {
	n := len(indices) / 3
	out := make([]Triangle, n)
	for i := range out {
		out[i] = Triangle{A: indices[3*i], B: indices[3*i+1], C: indices[3*i+2]}
		if len(normals) == len(indices) {
			out[i].Normal = math.At(normals, i)
		}
	}
	return out
}

// shapeGroup builds a shape-matching group whose rest positions are relative
// to the centroid of its members. Groups referencing particles outside
// positions are returned without rest data; the composer drops them.
func shapeGroup(positions []float32, indices []int, stiffness float32, normals []float32) ShapeGroup {
	g := ShapeGroup{Indices: append([]int(nil), indices...), Stiffness: stiffness}
	n := len(positions) / 3
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return g
		}
	}
	center := math.Centroid(positions, indices)
	g.RestPositions = make([]float32, 0, 3*len(indices))
	g.RestNormals = make([]float32, 0, 4*len(indices))
	for _, idx := range indices {
		rel := math.At(positions, idx).Sub(center)
		g.RestPositions = append(g.RestPositions, rel.X, rel.Y, rel.Z)
		var nrm math.Vec3
		if len(normals) == len(positions) {
			nrm = math.At(normals, idx)
		}
		g.RestNormals = append(g.RestNormals, nrm.X, nrm.Y, nrm.Z, -0.5)
	}
	return g
}
