package ccd

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestPointTriangleDetectsPiercingSweep(t *testing.T) {
	a0 := r3.Vec{X: 0, Y: 0, Z: 0}
	b0 := r3.Vec{X: 1, Y: 0, Z: 0}
	c0 := r3.Vec{X: 0, Y: 1, Z: 0}
	a1, b1, c1 := a0, b0, c0 // triangle stationary

	p0 := r3.Vec{X: 0.2, Y: 0.2, Z: 1}
	p1 := r3.Vec{X: 0.2, Y: 0.2, Z: -1}

	res := PointTriangle(p0, a0, b0, c0, p1, a1, b1, c1)
	if !res.Collides {
		t.Fatal("expected a collision for a point sweeping through a stationary triangle")
	}
	if !near(res.T, 0.5, 1e-6) {
		t.Fatalf("expected impact near t=0.5, got %v", res.T)
	}
}

func TestPointTriangleMissesWhenSweepStaysAbove(t *testing.T) {
	a0 := r3.Vec{X: 0, Y: 0, Z: 0}
	b0 := r3.Vec{X: 1, Y: 0, Z: 0}
	c0 := r3.Vec{X: 0, Y: 1, Z: 0}
	a1, b1, c1 := a0, b0, c0

	p0 := r3.Vec{X: 0.2, Y: 0.2, Z: 2}
	p1 := r3.Vec{X: 0.2, Y: 0.2, Z: 1}

	res := PointTriangle(p0, a0, b0, c0, p1, a1, b1, c1)
	if res.Collides {
		t.Fatal("expected no collision when the point never reaches the triangle's plane")
	}
}

func TestPointTriangleMissesWhenOutsideTriangleAtImpact(t *testing.T) {
	a0 := r3.Vec{X: 0, Y: 0, Z: 0}
	b0 := r3.Vec{X: 1, Y: 0, Z: 0}
	c0 := r3.Vec{X: 0, Y: 1, Z: 0}
	a1, b1, c1 := a0, b0, c0

	// Crosses the plane z=0 but far outside the triangle's footprint.
	p0 := r3.Vec{X: 5, Y: 5, Z: 1}
	p1 := r3.Vec{X: 5, Y: 5, Z: -1}

	res := PointTriangle(p0, a0, b0, c0, p1, a1, b1, c1)
	if res.Collides {
		t.Fatal("expected no collision when the plane crossing point lies outside the triangle")
	}
}

func TestEdgeEdgeDetectsCrossingSweep(t *testing.T) {
	a0 := r3.Vec{X: -1, Y: 0, Z: 1}
	b0 := r3.Vec{X: 1, Y: 0, Z: 1}
	a1 := r3.Vec{X: -1, Y: 0, Z: -1}
	b1 := r3.Vec{X: 1, Y: 0, Z: -1}

	c := r3.Vec{X: 0, Y: -1, Z: 0}
	d := r3.Vec{X: 0, Y: 1, Z: 0}

	res := EdgeEdge(a0, b0, c, d, a1, b1, c, d)
	if !res.Collides {
		t.Fatal("expected a collision as the moving edge sweeps across the stationary edge")
	}
	if !near(res.T, 0.5, 1e-6) {
		t.Fatalf("expected impact near t=0.5, got %v", res.T)
	}
}

func TestEdgeEdgeParallelEdgesConservativelyCollide(t *testing.T) {
	// The two edges never cross: the moving edge is parallel to (and
	// offset from) the stationary one at every instant, so the four
	// points are coplanar throughout the sweep and the coplanarity cubic
	// vanishes identically. edgeEdgeParams has no well-defined crossing parameter for
	// parallel edges, and degeneracy counts as a collision rather than a
	// miss.
	a0 := r3.Vec{X: -1, Y: 0, Z: 1}
	b0 := r3.Vec{X: 1, Y: 0, Z: 1}
	a1 := r3.Vec{X: -1, Y: 0, Z: -1}
	b1 := r3.Vec{X: 1, Y: 0, Z: -1}

	c := r3.Vec{X: -1, Y: 1, Z: 0}
	d := r3.Vec{X: 1, Y: 1, Z: 0}

	res := EdgeEdge(a0, b0, c, d, a1, b1, c, d)
	if !res.Collides {
		t.Fatal("expected parallel, coplanar-at-impact edges to conservatively report a collision")
	}
}

func TestCoplanarRootsFindsStationaryCase(t *testing.T) {
	// All six offset vectors constant in time: already coplanar at t=0,
	// so a root at t=0 must be reported (degenerate-conservative).
	e1 := r3.Vec{X: 1, Y: 0, Z: 0}
	e2 := r3.Vec{X: 0, Y: 1, Z: 0}
	e3 := r3.Vec{X: 1, Y: 1, Z: 0}
	roots := coplanarRoots(e1, e2, e3, e1, e2, e3)
	if len(roots) == 0 {
		t.Fatal("expected at least one root for an already-coplanar, unmoving configuration")
	}
}
