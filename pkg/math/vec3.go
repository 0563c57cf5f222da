// Package math provides float32 vector helpers for flat particle arrays.
package math

import "github.com/chewxy/math32"

// Vec3 is a 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

// At reads the i-th xyz triple from a flat array.
func At(flat []float32, i int) Vec3 {
	return Vec3{flat[3*i], flat[3*i+1], flat[3*i+2]}
}

// Put writes v as the i-th xyz triple of a flat array.
func Put(flat []float32, i int, v Vec3) {
	flat[3*i] = v.X
	flat[3*i+1] = v.Y
	flat[3*i+2] = v.Z
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{v.X + other.X, v.Y + other.Y, v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{v.X - other.X, v.Y - other.Y, v.Z - other.Z}
}

// Scale returns v * scalar.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product.
func (v Vec3) Dot(other Vec3) float32 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns the cross product v x other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		v.Y*other.Z - v.Z*other.Y,
		v.Z*other.X - v.X*other.Z,
		v.X*other.Y - v.Y*other.X,
	}
}

// Length returns the magnitude.
func (v Vec3) Length() float32 {
	return math32.Sqrt(v.Dot(v))
}

// Distance returns the distance to another point.
func (v Vec3) Distance(other Vec3) float32 {
	return v.Sub(other).Length()
}

// Centroid returns the mean of the listed triples of flat.
// An empty index list yields the zero vector.
func Centroid(flat []float32, indices []int) Vec3 {
	if len(indices) == 0 {
		return Vec3{}
	}
	var sum Vec3
	for _, i := range indices {
		sum = sum.Add(At(flat, i))
	}
	return sum.Scale(1 / float32(len(indices)))
}

// CentroidAll returns the mean of every triple in flat.
func CentroidAll(flat []float32) Vec3 {
	n := len(flat) / 3
	if n == 0 {
		return Vec3{}
	}
	var sum Vec3
	for i := 0; i < n; i++ {
		sum = sum.Add(At(flat, i))
	}
	return sum.Scale(1 / float32(n))
}

// Bounds returns the axis-aligned lower and upper corners of the triples in flat.
func Bounds(flat []float32) (lower, upper Vec3) {
	n := len(flat) / 3
	if n == 0 {
		return Vec3{}, Vec3{}
	}
	lower, upper = At(flat, 0), At(flat, 0)
	for i := 1; i < n; i++ {
		p := At(flat, i)
		lower = Vec3{math32.Min(lower.X, p.X), math32.Min(lower.Y, p.Y), math32.Min(lower.Z, p.Z)}
		upper = Vec3{math32.Max(upper.X, p.X), math32.Max(upper.Y, p.Y), math32.Max(upper.Z, p.Z)}
	}
	return lower, upper
}
