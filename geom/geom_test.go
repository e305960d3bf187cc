package geom

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestPointTriangleDistanceFace(t *testing.T) {
	a := r3.Vec{X: 0, Y: 0, Z: 0}
	b := r3.Vec{X: 1, Y: 0, Z: 0}
	c := r3.Vec{X: 0, Y: 1, Z: 0}
	p := r3.Vec{X: 0.25, Y: 0.25, Z: 1}
	res := PointTriangleDistance(p, a, b, c)
	if !near(res.Distance, 1, 1e-9) {
		t.Fatalf("expected distance 1, got %v", res.Distance)
	}
	if res.Feature != FeatureFace {
		t.Fatalf("expected face feature, got %v", res.Feature)
	}
}

func TestPointTriangleDistanceVertex(t *testing.T) {
	a := r3.Vec{X: 0, Y: 0, Z: 0}
	b := r3.Vec{X: 1, Y: 0, Z: 0}
	c := r3.Vec{X: 0, Y: 1, Z: 0}
	p := r3.Vec{X: -1, Y: -1, Z: 0}
	res := PointTriangleDistance(p, a, b, c)
	if res.Feature != FeatureV0 {
		t.Fatalf("expected V0 feature, got %v", res.Feature)
	}
	if !near(res.Distance, r3.Norm(r3.Sub(p, a)), 1e-9) {
		t.Fatalf("expected distance to vertex a")
	}
}

func TestEdgeEdgeDistanceCrossing(t *testing.T) {
	// Two perpendicular segments passing near each other at height separation 1.
	p1 := r3.Vec{X: -1, Y: 0, Z: 0}
	q1 := r3.Vec{X: 1, Y: 0, Z: 0}
	p2 := r3.Vec{X: 0, Y: -1, Z: 1}
	q2 := r3.Vec{X: 0, Y: 1, Z: 1}
	res := EdgeEdgeDistance(p1, q1, p2, q2)
	if !near(res.Distance, 1, 1e-9) {
		t.Fatalf("expected distance 1, got %v", res.Distance)
	}
}

func TestSegmentTriangleIntersectionPierces(t *testing.T) {
	a := r3.Vec{X: 0, Y: 0, Z: 0}
	b := r3.Vec{X: 1, Y: 0, Z: 0}
	c := r3.Vec{X: 0, Y: 1, Z: 0}
	p := r3.Vec{X: 0.2, Y: 0.2, Z: -1}
	q := r3.Vec{X: 0.2, Y: 0.2, Z: 1}
	if !SegmentTriangleIntersection(p, q, a, b, c) {
		t.Fatal("expected intersection")
	}
}

func TestSegmentTriangleIntersectionMisses(t *testing.T) {
	a := r3.Vec{X: 0, Y: 0, Z: 0}
	b := r3.Vec{X: 1, Y: 0, Z: 0}
	c := r3.Vec{X: 0, Y: 1, Z: 0}
	p := r3.Vec{X: 5, Y: 5, Z: -1}
	q := r3.Vec{X: 5, Y: 5, Z: 1}
	if SegmentTriangleIntersection(p, q, a, b, c) {
		t.Fatal("expected no intersection")
	}
}

func TestSegmentTriangleIntersectionShortOfTriangle(t *testing.T) {
	a := r3.Vec{X: 0, Y: 0, Z: 0}
	b := r3.Vec{X: 1, Y: 0, Z: 0}
	c := r3.Vec{X: 0, Y: 1, Z: 0}
	// Segment stops before reaching the triangle's plane.
	p := r3.Vec{X: 0.2, Y: 0.2, Z: -1}
	q := r3.Vec{X: 0.2, Y: 0.2, Z: -0.5}
	if SegmentTriangleIntersection(p, q, a, b, c) {
		t.Fatal("expected no intersection when segment does not reach the plane")
	}
}
