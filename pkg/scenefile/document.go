// Package scenefile reads declarative scene documents and turns them into
// engine cycle inputs.
//
// Every element gets a change token derived from its content, so re-reading
// an unchanged file produces identical tokens and the engine pushes nothing.
//
// Document layout (YAML):
//
//	solver:
//	  scene_mode: update
//	params:
//	  radius: 0.1
//	geometry:
//	  planes: [[0, 0, 1, 0]]
//	force_fields:
//	  - position: [0, 0, 1]
//	    radius: 2
//	    mode: impulse
//	objects:
//	  - kind: cloth
//	    positions: [0, 0, 0, 1, 0, 0, 1, 1, 0]
//	    triangles: [0, 1, 2]
//	overlays:
//	  - anchors: [0]
package scenefile

// Document is the decoded form of a scene file.
type Document struct {
	Solver      map[string]any `yaml:"solver,omitempty" toml:"solver,omitempty"`
	Params      map[string]any `yaml:"params,omitempty" toml:"params,omitempty"`
	Geometry    *Geometry      `yaml:"geometry,omitempty" toml:"geometry,omitempty"`
	ForceFields []ForceField   `yaml:"force_fields,omitempty" toml:"force_fields,omitempty"`
	Objects     []Object       `yaml:"objects,omitempty" toml:"objects,omitempty"`
	Overlays    []Overlay      `yaml:"overlays,omitempty" toml:"overlays,omitempty"`
}

// Geometry lists static colliders. Planes are [a, b, c, d].
type Geometry struct {
	Planes   [][4]float32 `yaml:"planes,omitempty" toml:"planes,omitempty"`
	Spheres  []Sphere     `yaml:"spheres,omitempty" toml:"spheres,omitempty"`
	Boxes    []Box        `yaml:"boxes,omitempty" toml:"boxes,omitempty"`
	Capsules []Capsule    `yaml:"capsules,omitempty" toml:"capsules,omitempty"`
	Meshes   []Mesh       `yaml:"meshes,omitempty" toml:"meshes,omitempty"`
	Convexes []Convex     `yaml:"convexes,omitempty" toml:"convexes,omitempty"`
}

// Sphere is a static sphere collider.
type Sphere struct {
	Center [3]float32 `yaml:"center" toml:"center"`
	Radius float32    `yaml:"radius" toml:"radius"`
}

// Box is an oriented box collider.
type Box struct {
	Center      [3]float32 `yaml:"center" toml:"center"`
	HalfExtents [3]float32 `yaml:"half_extents" toml:"half_extents"`
	Rotation    [4]float32 `yaml:"rotation,omitempty" toml:"rotation,omitempty"` // xyzw, zero means identity
}

// Capsule is an oriented capsule collider along its local x axis.
type Capsule struct {
	Center     [3]float32 `yaml:"center" toml:"center"`
	HalfHeight float32    `yaml:"half_height" toml:"half_height"`
	Radius     float32    `yaml:"radius" toml:"radius"`
	Rotation   [4]float32 `yaml:"rotation,omitempty" toml:"rotation,omitempty"`
}

// Mesh is a triangle mesh collider. Faces index into Vertices.
type Mesh struct {
	Vertices []float32 `yaml:"vertices" toml:"vertices"`
	Faces    []int     `yaml:"faces" toml:"faces"`
}

// Convex is a convex collider bounded by planes.
type Convex struct {
	Planes [][4]float32 `yaml:"planes" toml:"planes"`
}

// ForceField is one radial field. Mode is force, impulse or velocity_change.
type ForceField struct {
	Position      [3]float32 `yaml:"position" toml:"position"`
	Radius        float32    `yaml:"radius" toml:"radius"`
	Strength      float32    `yaml:"strength" toml:"strength"`
	LinearFallOff bool       `yaml:"linear_fall_off,omitempty" toml:"linear_fall_off,omitempty"`
	Mode          string     `yaml:"mode,omitempty" toml:"mode,omitempty"`
}

// Object is one scene object. Kind selects which of the fields apply.
type Object struct {
	Kind          string    `yaml:"kind" toml:"kind"`
	Group         int32     `yaml:"group,omitempty" toml:"group,omitempty"`
	SelfCollision bool      `yaml:"self_collision,omitempty" toml:"self_collision,omitempty"`
	Fluid         bool      `yaml:"fluid,omitempty" toml:"fluid,omitempty"`
	Positions     []float32 `yaml:"positions,omitempty" toml:"positions,omitempty"`
	Velocities    []float32 `yaml:"velocities,omitempty" toml:"velocities,omitempty"`
	InvMasses     []float32 `yaml:"inv_masses,omitempty" toml:"inv_masses,omitempty"`
	Anchors       []int     `yaml:"anchors,omitempty" toml:"anchors,omitempty"`

	// rigid_body
	Normals   []float32  `yaml:"normals,omitempty" toml:"normals,omitempty"`
	Velocity  [3]float32 `yaml:"velocity,omitempty" toml:"velocity,omitempty"`
	Stiffness float32    `yaml:"stiffness,omitempty" toml:"stiffness,omitempty"`

	// spring_system and soft_body links
	Springs     []int     `yaml:"springs,omitempty" toml:"springs,omitempty"`
	Lengths     []float32 `yaml:"lengths,omitempty" toml:"lengths,omitempty"`
	Stiffnesses []float32 `yaml:"stiffnesses,omitempty" toml:"stiffnesses,omitempty"`
	Clusters    []Cluster `yaml:"clusters,omitempty" toml:"clusters,omitempty"`

	// cloth and inflatable
	Triangles        []int     `yaml:"triangles,omitempty" toml:"triangles,omitempty"`
	TriangleNormals  []float32 `yaml:"triangle_normals,omitempty" toml:"triangle_normals,omitempty"`
	StretchStiffness float32   `yaml:"stretch_stiffness,omitempty" toml:"stretch_stiffness,omitempty"`
	BendingStiffness float32   `yaml:"bending_stiffness,omitempty" toml:"bending_stiffness,omitempty"`
	PreTension       float32   `yaml:"pre_tension,omitempty" toml:"pre_tension,omitempty"`
	RestVolume       float32   `yaml:"rest_volume,omitempty" toml:"rest_volume,omitempty"`
	OverPressure     float32   `yaml:"over_pressure,omitempty" toml:"over_pressure,omitempty"`
	ConstraintScale  float32   `yaml:"constraint_scale,omitempty" toml:"constraint_scale,omitempty"`
}

// Cluster is one soft body shape group.
type Cluster struct {
	Indices   []int   `yaml:"indices" toml:"indices"`
	Stiffness float32 `yaml:"stiffness" toml:"stiffness"`
}

// Overlay is a constraint set written against session-wide particle indices.
// A negative spring length means that many times the current distance.
type Overlay struct {
	Anchors        []int     `yaml:"anchors,omitempty" toml:"anchors,omitempty"`
	Springs        []Spring  `yaml:"springs,omitempty" toml:"springs,omitempty"`
	Shape          []int     `yaml:"shape,omitempty" toml:"shape,omitempty"`
	ShapeStiffness float32   `yaml:"shape_stiffness,omitempty" toml:"shape_stiffness,omitempty"`
	Triangles      []int     `yaml:"triangles,omitempty" toml:"triangles,omitempty"`
	Normals        []float32 `yaml:"normals,omitempty" toml:"normals,omitempty"`
}

// Spring is one overlay spring between two global particle indices.
type Spring struct {
	A         int     `yaml:"a" toml:"a"`
	B         int     `yaml:"b" toml:"b"`
	Length    float32 `yaml:"length" toml:"length"`
	Stiffness float32 `yaml:"stiffness" toml:"stiffness"`
}
