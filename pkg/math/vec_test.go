package math

import (
	"testing"
)

func TestVec3Length(t *testing.T) {
	v := Vec3{3, 4, 0}
	got := v.Length()
	want := float32(5)
	if got != want {
		t.Errorf("Vec3.Length() = %v, want %v", got, want)
	}
}

func TestAtPut(t *testing.T) {
	flat := make([]float32, 6)
	Put(flat, 1, Vec3{1, 2, 3})
	got := At(flat, 1)
	want := Vec3{1, 2, 3}
	if got != want {
		t.Errorf("At() = %v, want %v", got, want)
	}
	if At(flat, 0) != (Vec3{}) {
		t.Errorf("Put() touched neighbouring triple: %v", flat)
	}
}

func TestCentroid(t *testing.T) {
	flat := []float32{
		0, 0, 0,
		2, 0, 0,
		2, 2, 0,
		0, 2, 0,
	}
	if got := CentroidAll(flat); got != (Vec3{1, 1, 0}) {
		t.Errorf("CentroidAll() = %v, want {1 1 0}", got)
	}
	if got := Centroid(flat, []int{0, 1}); got != (Vec3{1, 0, 0}) {
		t.Errorf("Centroid() = %v, want {1 0 0}", got)
	}
	if got := Centroid(flat, nil); got != (Vec3{}) {
		t.Errorf("Centroid(nil) = %v, want zero", got)
	}
}

func TestBounds(t *testing.T) {
	flat := []float32{
		1, -2, 3,
		-1, 4, 0,
	}
	lower, upper := Bounds(flat)
	if lower != (Vec3{-1, -2, 0}) {
		t.Errorf("lower = %v", lower)
	}
	if upper != (Vec3{1, 4, 3}) {
		t.Errorf("upper = %v", upper)
	}
}

func TestDistance(t *testing.T) {
	a := Vec3{1, 1, 1}
	b := Vec3{1, 1, 3}
	if got := a.Distance(b); got != 2 {
		t.Errorf("Distance() = %v, want 2", got)
	}
}
