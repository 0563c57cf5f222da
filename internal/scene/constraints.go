package scene

import (
	"go.uber.org/multierr"

	"github.com/Faultbox/flexsync/pkg/math"
)

// Indexing tags which index space a ConstraintSet is expressed in.
type Indexing int

const (
	// Untagged is the zero value and is rejected by the composer.
	Untagged Indexing = iota

	// LocalIndexed sets address the owner object's own slice and are shifted
	// by the owner's offset exactly once, at merge time.
	LocalIndexed

	// GlobalIndexed sets address the whole session buffer and are never
	// shifted.
	GlobalIndexed
)

func (i Indexing) String() string {
	switch i {
	case LocalIndexed:
		return "local"
	case GlobalIndexed:
		return "global"
	default:
		return "untagged"
	}
}

// Spring is a distance constraint between two particles.
type Spring struct {
	A, B      int
	Length    float32
	Stiffness float32
}

// Triangle is a dynamic triangle with its face normal.
type Triangle struct {
	A, B, C int
	Normal  math.Vec3
}

// ShapeGroup is one shape-matching cluster.
type ShapeGroup struct {
	Indices       []int
	Stiffness     float32
	RestPositions []float32 // xyz per index, relative to the group center
	RestNormals   []float32 // xyzw per index
}

// Pressure is a volume constraint over a run of triangles of the same set.
type Pressure struct {
	StartTriangle   int // relative to the set's own triangle list
	NumTriangles    int
	RestVolume      float32
	OverPressure    float32
	ConstraintScale float32
}

// ConstraintSet groups constraints of one origin.
type ConstraintSet struct {
	Indexing  Indexing
	Anchors   []int
	Springs   []Spring
	Shapes    []ShapeGroup
	Triangles []Triangle
	Pressures []Pressure
}

// Local returns an empty set tagged LocalIndexed.
func Local() ConstraintSet {
	return ConstraintSet{Indexing: LocalIndexed}
}

// Global returns an empty set tagged GlobalIndexed.
func Global() ConstraintSet {
	return ConstraintSet{Indexing: GlobalIndexed}
}

// Empty reports whether the set holds no constraints.
func (c ConstraintSet) Empty() bool {
	return len(c.Anchors) == 0 && len(c.Springs) == 0 && len(c.Shapes) == 0 &&
		len(c.Triangles) == 0 && len(c.Pressures) == 0
}

// translate returns a copy with every particle index shifted by offset and
// the result tagged GlobalIndexed. Only LocalIndexed sets may be translated.
func (c ConstraintSet) translate(offset int) ConstraintSet {
	out := ConstraintSet{Indexing: GlobalIndexed}

	out.Anchors = make([]int, len(c.Anchors))
	for i, a := range c.Anchors {
		out.Anchors[i] = a + offset
	}

	out.Springs = make([]Spring, len(c.Springs))
	for i, s := range c.Springs {
		s.A += offset
		s.B += offset
		out.Springs[i] = s
	}

	out.Shapes = make([]ShapeGroup, len(c.Shapes))
	for i, g := range c.Shapes {
		indices := make([]int, len(g.Indices))
		for j, idx := range g.Indices {
			indices[j] = idx + offset
		}
		g.Indices = indices
		out.Shapes[i] = g
	}

	out.Triangles = make([]Triangle, len(c.Triangles))
	for i, t := range c.Triangles {
		t.A += offset
		t.B += offset
		t.C += offset
		out.Triangles[i] = t
	}

	// Pressures address triangles, not particles.
	out.Pressures = append([]Pressure(nil), c.Pressures...)
	return out
}

// refError builds the diagnostic for one out-of-range reference.
type refError func(field string, entry, ref int) error

// filter drops every entry that references an index outside [0, limit) and
// returns the surviving set together with the aggregated diagnostics.
func (c ConstraintSet) filter(limit int, mk refError) (ConstraintSet, error) {
	var dropped error
	bad := func(i int) bool { return i < 0 || i >= limit }

	out := ConstraintSet{Indexing: c.Indexing}

	for i, a := range c.Anchors {
		if bad(a) {
			dropped = multierr.Append(dropped, mk("anchors", i, a))
			continue
		}
		out.Anchors = append(out.Anchors, a)
	}

	for i, s := range c.Springs {
		if bad(s.A) || bad(s.B) {
			ref := s.A
			if !bad(ref) {
				ref = s.B
			}
			dropped = multierr.Append(dropped, mk("springs", i, ref))
			continue
		}
		out.Springs = append(out.Springs, s)
	}

	for i, g := range c.Shapes {
		ok := true
		for _, idx := range g.Indices {
			if bad(idx) {
				dropped = multierr.Append(dropped, mk("shapes", i, idx))
				ok = false
				break
			}
		}
		if ok {
			out.Shapes = append(out.Shapes, g)
		}
	}

	trianglesDropped := false
	for i, t := range c.Triangles {
		if bad(t.A) || bad(t.B) || bad(t.C) {
			ref := t.A
			if !bad(ref) {
				ref = t.B
			}
			if !bad(ref) {
				ref = t.C
			}
			dropped = multierr.Append(dropped, mk("triangles", i, ref))
			trianglesDropped = true
			continue
		}
		out.Triangles = append(out.Triangles, t)
	}

	// A pressure's triangle run is only meaningful if every triangle survived.
	for i, p := range c.Pressures {
		if trianglesDropped || p.StartTriangle < 0 || p.StartTriangle+p.NumTriangles > len(c.Triangles) {
			dropped = multierr.Append(dropped, mk("pressures", i, p.StartTriangle))
			continue
		}
		out.Pressures = append(out.Pressures, p)
	}

	return out, dropped
}

// counts returns the topology of the set, used to reject in-place updates
// that would change it.
type fieldCount struct {
	field string
	n     int
}

// counts lists the entry count of every topology field in a fixed order.
func (c ConstraintSet) counts() []fieldCount {
	return []fieldCount{
		{"springs", len(c.Springs)},
		{"shapes", len(c.Shapes)},
		{"triangles", len(c.Triangles)},
		{"pressures", len(c.Pressures)},
	}
}
