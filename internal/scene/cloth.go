package scene

import (
	"github.com/Faultbox/flexsync/pkg/math"
)

type edge struct{ a, b int }

func (e edge) key() edge {
	if e.a > e.b {
		return edge{e.b, e.a}
	}
	return e
}

// clothSprings derives stretch springs from the unique edges of the triangle
// list and, when bending > 0, one bending spring across every edge shared by
// exactly two triangles (between the two opposite vertices). Rest lengths are
// the current distances scaled by preTension. Triangles that reference
// vertices outside positions are ignored here; the composer reports them.
func clothSprings(positions []float32, tris []int, stretch, bending, preTension float32) []Spring {
	n := len(positions) / 3
	dist := func(a, b int) float32 {
		return preTension * math.At(positions, a).Distance(math.At(positions, b))
	}

	var edges []edge
	seen := make(map[edge]bool)
	for t := 0; t+2 < len(tris); t += 3 {
		a, b, c := tris[t], tris[t+1], tris[t+2]
		if a < 0 || a >= n || b < 0 || b >= n || c < 0 || c >= n {
			continue
		}
		for _, e := range []edge{{a, b}, {b, c}, {c, a}} {
			if seen[e.key()] {
				continue
			}
			seen[e.key()] = true
			edges = append(edges, e)
		}
	}

	springs := make([]Spring, 0, len(edges))
	for _, e := range edges {
		springs = append(springs, Spring{A: e.a, B: e.b, Length: dist(e.a, e.b), Stiffness: stretch})
	}
	if bending <= 0 {
		return springs
	}

	neighbors := make(map[int][]int)
	for _, e := range edges {
		neighbors[e.a] = append(neighbors[e.a], e.b)
		neighbors[e.b] = append(neighbors[e.b], e.a)
	}
	for _, e := range edges {
		var common []int
		for _, x := range neighbors[e.a] {
			if x == e.b {
				continue
			}
			for _, y := range neighbors[e.b] {
				if x == y {
					common = append(common, x)
				}
			}
		}
		if len(common) == 2 {
			springs = append(springs, Spring{
				A:         common[0],
				B:         common[1],
				Length:    dist(common[0], common[1]),
				Stiffness: bending,
			})
		}
	}
	return springs
}
