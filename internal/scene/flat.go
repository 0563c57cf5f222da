package scene

// FlatScene is the backend-ready view of a session: particle attributes and
// every constraint list as flat arrays over global particle indices.
type FlatScene struct {
	Positions  []float32 // xyz
	Velocities []float32 // xyz
	InvMasses  []float32
	Phases     []int32
	Active     []int32

	SpringIndices   []int32 // two per spring
	SpringLengths   []float32
	SpringStiffness []float32

	// ShapeOffsets holds the end of each group in ShapeIndices, so group i
	// spans [ShapeOffsets[i-1], ShapeOffsets[i]) with ShapeOffsets[-1] = 0.
	ShapeOffsets   []int32
	ShapeIndices   []int32
	ShapeRest      []float32 // xyz per shape index
	ShapeNormals   []float32 // xyzw per shape index
	ShapeStiffness []float32

	TriangleIndices []int32 // three per triangle
	TriangleNormals []float32

	InflatableStarts    []int32
	InflatableCounts    []int32
	InflatableVolumes   []float32
	InflatablePressures []float32
	InflatableStiffness []float32
}

// NumParticles returns the number of particles.
func (f FlatScene) NumParticles() int { return len(f.InvMasses) }

// NumSprings returns the number of springs.
func (f FlatScene) NumSprings() int { return len(f.SpringLengths) }

// NumShapes returns the number of shape-matching groups.
func (f FlatScene) NumShapes() int { return len(f.ShapeStiffness) }

// NumTriangles returns the number of dynamic triangles.
func (f FlatScene) NumTriangles() int { return len(f.TriangleIndices) / 3 }

// NumInflatables returns the number of pressure constraints.
func (f FlatScene) NumInflatables() int { return len(f.InflatableStarts) }

func flatten(p Slice, c ConstraintSet) FlatScene {
	f := FlatScene{
		Positions:  p.Positions,
		Velocities: p.Velocities,
		InvMasses:  p.InvMasses,
		Phases:     p.Phases,
		Active:     make([]int32, p.Len()),
	}
	for i := range f.Active {
		f.Active[i] = int32(i)
	}

	for _, s := range c.Springs {
		f.SpringIndices = append(f.SpringIndices, int32(s.A), int32(s.B))
		f.SpringLengths = append(f.SpringLengths, s.Length)
		f.SpringStiffness = append(f.SpringStiffness, s.Stiffness)
	}

	for _, g := range c.Shapes {
		for _, idx := range g.Indices {
			f.ShapeIndices = append(f.ShapeIndices, int32(idx))
		}
		f.ShapeOffsets = append(f.ShapeOffsets, int32(len(f.ShapeIndices)))
		f.ShapeRest = append(f.ShapeRest, g.RestPositions...)
		f.ShapeNormals = append(f.ShapeNormals, g.RestNormals...)
		f.ShapeStiffness = append(f.ShapeStiffness, g.Stiffness)
	}

	for _, t := range c.Triangles {
		f.TriangleIndices = append(f.TriangleIndices, int32(t.A), int32(t.B), int32(t.C))
		f.TriangleNormals = append(f.TriangleNormals, t.Normal.X, t.Normal.Y, t.Normal.Z)
	}

	for _, pr := range c.Pressures {
		f.InflatableStarts = append(f.InflatableStarts, int32(pr.StartTriangle))
		f.InflatableCounts = append(f.InflatableCounts, int32(pr.NumTriangles))
		f.InflatableVolumes = append(f.InflatableVolumes, pr.RestVolume)
		f.InflatablePressures = append(f.InflatablePressures, pr.OverPressure)
		f.InflatableStiffness = append(f.InflatableStiffness, pr.ConstraintScale)
	}
	return f
}
