package scenefile

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/flexsync/internal/engine"
	"github.com/Faultbox/flexsync/internal/scene"
	"github.com/Faultbox/flexsync/internal/solver"
	"github.com/Faultbox/flexsync/internal/tracker"
	"github.com/Faultbox/flexsync/pkg/math"
)

// Parse decodes a document. Only FormatYAML and FormatTOML are supported.
func Parse(data []byte, format solver.Format) (*Document, error) {
	doc := &Document{}
	var err error
	switch format {
	case solver.FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(doc); err != nil && len(bytes.TrimSpace(data)) == 0 {
			err = nil
		}
	case solver.FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(doc)
	default:
		err = errors.New("scene documents must be yaml or toml")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse scene: %w", err)
	}
	return doc, nil
}

// Load reads a document in the format given by its extension.
func Load(path string) (*Document, error) {
	format, err := solver.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene: %w", err)
	}
	return Parse(data, format)
}

// token hashes the canonical YAML form of v, so the same content read from
// YAML or TOML gets the same token.
func token(v any) tracker.Token {
	data, err := yaml.Marshal(v)
	if err != nil {
		return tracker.Next()
	}
	return tracker.Hash(data)
}

// reencode turns a decoded section back into YAML for typed decoding.
func reencode(section map[string]any) ([]byte, error) {
	if len(section) == 0 {
		return nil, nil
	}
	return yaml.Marshal(section)
}

// SolverOptions decodes the solver section on top of base.
func (d *Document) SolverOptions(base solver.SolverOptions) (solver.SolverOptions, error) {
	data, err := reencode(d.Solver)
	if err != nil || data == nil {
		return base, err
	}
	opts := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		return base, fmt.Errorf("solver: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return base, err
	}
	opts.Token = tracker.Hash(data)
	return opts, nil
}

// ParamsSection decodes the params section on top of solver.DefaultParams,
// or returns nil when there is none.
func (d *Document) ParamsSection() (*solver.Params, error) {
	data, err := reencode(d.Params)
	if err != nil || data == nil {
		return nil, err
	}
	p, err := solver.ParseParams(data, solver.FormatYAML)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var fieldModes = map[string]solver.FieldMode{
	"":                solver.FieldForce,
	"force":           solver.FieldForce,
	"impulse":         solver.FieldImpulse,
	"velocity_change": solver.FieldVelocityChange,
}

func vec(v [3]float32) math.Vec3 {
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

func rotation(q [4]float32) [4]float32 {
	if q == [4]float32{} {
		return [4]float32{0, 0, 0, 1}
	}
	return q
}

func planes(in [][4]float32) []solver.Plane {
	var out []solver.Plane
	for _, p := range in {
		out = append(out, solver.Plane{A: p[0], B: p[1], C: p[2], D: p[3]})
	}
	return out
}

// CollisionGeometry converts the geometry section, or returns nil when there
// is none.
func (g *Geometry) CollisionGeometry() *solver.CollisionGeometry {
	if g == nil {
		return nil
	}
	out := &solver.CollisionGeometry{Token: token(g), Planes: planes(g.Planes)}
	for _, s := range g.Spheres {
		out.Spheres = append(out.Spheres, solver.Sphere{Center: vec(s.Center), Radius: s.Radius})
	}
	for _, b := range g.Boxes {
		out.Boxes = append(out.Boxes, solver.Box{
			Center:      vec(b.Center),
			HalfExtents: vec(b.HalfExtents),
			Rotation:    rotation(b.Rotation),
		})
	}
	for _, c := range g.Capsules {
		out.Capsules = append(out.Capsules, solver.Capsule{
			Center:     vec(c.Center),
			HalfHeight: c.HalfHeight,
			Radius:     c.Radius,
			Rotation:   rotation(c.Rotation),
		})
	}
	for _, m := range g.Meshes {
		out.Meshes = append(out.Meshes, solver.Mesh{Vertices: m.Vertices, Faces: m.Faces})
	}
	for _, c := range g.Convexes {
		out.Convexes = append(out.Convexes, solver.Convex{Planes: planes(c.Planes)})
	}
	return out
}

func (f ForceField) forceField() (solver.ForceField, error) {
	mode, ok := fieldModes[f.Mode]
	if !ok {
		return solver.ForceField{}, fmt.Errorf("unknown force field mode %q", f.Mode)
	}
	return solver.ForceField{
		Token:         token(f),
		Position:      vec(f.Position),
		Radius:        f.Radius,
		Strength:      f.Strength,
		LinearFallOff: f.LinearFallOff,
		Mode:          mode,
	}, nil
}

// SceneObject converts one object entry. The returned object is fresh and
// unregistered.
func (o Object) SceneObject() (scene.Object, error) {
	kind, err := scene.ParseKind(o.Kind)
	if err != nil {
		return nil, err
	}
	h := scene.Header{Token: token(o)}
	switch kind {
	case scene.KindParticleGroup:
		return &scene.ParticleGroup{
			Header:        h,
			Positions:     o.Positions,
			Velocities:    o.Velocities,
			InvMasses:     o.InvMasses,
			Fluid:         o.Fluid,
			SelfCollision: o.SelfCollision,
			Group:         o.Group,
		}, nil
	case scene.KindFluid:
		return &scene.Fluid{
			Header:     h,
			Positions:  o.Positions,
			Velocities: o.Velocities,
			InvMasses:  o.InvMasses,
			Group:      o.Group,
		}, nil
	case scene.KindRigidBody:
		return &scene.RigidBody{
			Header:    h,
			Vertices:  o.Positions,
			Normals:   o.Normals,
			Velocity:  vec(o.Velocity),
			InvMasses: o.InvMasses,
			Stiffness: o.Stiffness,
			Group:     o.Group,
		}, nil
	case scene.KindSoftBody:
		sb := &scene.SoftBody{
			Header:        h,
			Positions:     o.Positions,
			Velocities:    o.Velocities,
			InvMasses:     o.InvMasses,
			LinkPairs:     o.Springs,
			LinkLengths:   o.Lengths,
			LinkStiffness: o.Stiffnesses,
			Anchors:       o.Anchors,
			SelfCollision: o.SelfCollision,
			Group:         o.Group,
		}
		for _, c := range o.Clusters {
			sb.Clusters = append(sb.Clusters, scene.Cluster{Indices: c.Indices, Stiffness: c.Stiffness})
		}
		return sb, nil
	case scene.KindSpringSystem:
		return &scene.SpringSystem{
			Header:        h,
			Positions:     o.Positions,
			Velocities:    o.Velocities,
			InvMasses:     o.InvMasses,
			SpringPairs:   o.Springs,
			Stiffnesses:   o.Stiffnesses,
			TargetLengths: o.Lengths,
			SelfCollision: o.SelfCollision,
			Anchors:       o.Anchors,
			Group:         o.Group,
		}, nil
	case scene.KindCloth, scene.KindInflatable:
		c := scene.Cloth{
			Header:           h,
			Positions:        o.Positions,
			Velocities:       o.Velocities,
			InvMasses:        o.InvMasses,
			Triangles:        o.Triangles,
			TriangleNormals:  o.TriangleNormals,
			StretchStiffness: o.StretchStiffness,
			BendingStiffness: o.BendingStiffness,
			PreTension:       o.PreTension,
			Anchors:          o.Anchors,
			SelfCollision:    o.SelfCollision,
			Group:            o.Group,
		}
		if kind == scene.KindCloth {
			return &c, nil
		}
		return &scene.Inflatable{
			Cloth:           c,
			RestVolume:      o.RestVolume,
			OverPressure:    o.OverPressure,
			ConstraintScale: o.ConstraintScale,
		}, nil
	}
	return nil, fmt.Errorf("object kind %s cannot be declared in a scene file", kind)
}

// Constraints converts one overlay entry into a globally indexed set.
func (o Overlay) Constraints() (engine.Overlay, error) {
	if len(o.Triangles)%3 != 0 {
		return engine.Overlay{}, fmt.Errorf("overlay triangles: length %d is not a multiple of 3", len(o.Triangles))
	}
	if len(o.Normals) != 0 && len(o.Normals) != len(o.Triangles) {
		return engine.Overlay{}, fmt.Errorf("overlay normals: length %d, want %d", len(o.Normals), len(o.Triangles))
	}
	set := scene.Global()
	set.Anchors = o.Anchors
	for _, s := range o.Springs {
		set.Springs = append(set.Springs, scene.Spring{A: s.A, B: s.B, Length: s.Length, Stiffness: s.Stiffness})
	}
	if len(o.Shape) > 0 {
		set.Shapes = []scene.ShapeGroup{{Indices: o.Shape, Stiffness: o.ShapeStiffness}}
	}
	for t := 0; t < len(o.Triangles); t += 3 {
		tri := scene.Triangle{A: o.Triangles[t], B: o.Triangles[t+1], C: o.Triangles[t+2]}
		if len(o.Normals) > 0 {
			tri.Normal = math.At(o.Normals, t/3)
		}
		set.Triangles = append(set.Triangles, tri)
	}
	return engine.Overlay{Token: token(o), Set: set}, nil
}

// Input builds the cycle input of the document. Every entry that fails to
// convert is reported and no input is returned, since dropping an entry would
// shift the list positions of the ones after it.
func (d *Document) Input(base solver.SolverOptions) (engine.Input, error) {
	var (
		in   engine.Input
		errs error
	)

	opts, err := d.SolverOptions(base)
	errs = multierr.Append(errs, err)
	in.Options = &opts

	p, err := d.ParamsSection()
	errs = multierr.Append(errs, err)
	in.Params = p

	in.Geometry = d.Geometry.CollisionGeometry()

	for i, f := range d.ForceFields {
		ff, err := f.forceField()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("force_fields[%d]: %w", i, err))
			continue
		}
		in.ForceFields = append(in.ForceFields, ff)
	}
	for i, o := range d.Objects {
		obj, err := o.SceneObject()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("objects[%d]: %w", i, err))
			continue
		}
		in.Objects = append(in.Objects, obj)
	}
	for i, o := range d.Overlays {
		ov, err := o.Constraints()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("overlays[%d]: %w", i, err))
			continue
		}
		in.Overlays = append(in.Overlays, ov)
	}
	if errs != nil {
		return engine.Input{}, errs
	}
	return in, nil
}
