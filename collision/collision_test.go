package collision

import (
	"testing"

	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/spatial/r3"
)

func triangleAndPoint(t *testing.T, pointZ0, pointZ1 float64) (*surface.Surface, int, [3]int) {
	s := surface.New(0.01)
	a := s.AddVertex(r3.Vec{X: -5, Y: -5, Z: 0}, 1, true)
	b := s.AddVertex(r3.Vec{X: 5, Y: -5, Z: 0}, 1, true)
	c := s.AddVertex(r3.Vec{X: 0, Y: 5, Z: 0}, 1, true)
	if _, err := s.AddTriangle(a, b, c); err != nil {
		t.Fatalf("AddTriangle: %v", err)
	}
	p := s.AddVertex(r3.Vec{X: 0, Y: 0, Z: pointZ0}, 1, false)
	s.SetNewPosition(p, r3.Vec{X: 0, Y: 0, Z: pointZ1})
	return s, p, [3]int{a, b, c}
}

func TestGenerateCandidatesSkipsSolidVsSolid(t *testing.T) {
	s, _, _ := triangleAndPoint(t, 1, 1)
	// Add a second, fully solid point near the triangle: should never
	// produce a candidate since nothing can move.
	solidPt := s.AddVertex(r3.Vec{X: 0.1, Y: 0.1, Z: 0.0001}, 1, true)
	cands := GenerateCandidates(s)
	for _, c := range cands {
		if c.Kind == PointTriangle && c.A == solidPt {
			t.Fatalf("expected no candidate for a solid point against a solid triangle")
		}
	}
}

func TestHandleCollisionsStopsPiercingPoint(t *testing.T) {
	s, p, _ := triangleAndPoint(t, 1, -1)
	dt := 1.0
	res := HandleCollisions(s, dt, DefaultConfig())
	if res.Overflow {
		t.Fatal("unexpected candidate overflow")
	}
	if !AssertMeshIsIntersectionFree(s, true) {
		t.Fatal("expected no predicted intersection after the CCD pass resolves the piercing point")
	}
	// The point's predicted z should no longer have crossed below the
	// triangle's plane (z=0).
	if s.NewPosition(p).Z <= 0 {
		t.Fatalf("expected the impulse to halt the point above the triangle, got z=%v", s.NewPosition(p).Z)
	}
}

func TestHandleCollisionsLeavesNonCollidingPointAlone(t *testing.T) {
	s, p, _ := triangleAndPoint(t, 5, 4)
	orig := s.NewPosition(p)
	HandleCollisions(s, 1.0, DefaultConfig())
	if s.NewPosition(p) != orig {
		t.Fatalf("expected no impulse for a point that never reaches the triangle, got %v", s.NewPosition(p))
	}
}

func TestAssertMeshIsIntersectionFreeDetectsPiercingEdge(t *testing.T) {
	s := surface.New(0.01)
	a := s.AddVertex(r3.Vec{X: -5, Y: -5, Z: 0}, 1, true)
	b := s.AddVertex(r3.Vec{X: 5, Y: -5, Z: 0}, 1, true)
	c := s.AddVertex(r3.Vec{X: 0, Y: 5, Z: 0}, 1, true)
	if _, err := s.AddTriangle(a, b, c); err != nil {
		t.Fatalf("AddTriangle: %v", err)
	}

	d := s.AddVertex(r3.Vec{X: 0, Y: 0, Z: -1}, 1, false)
	e := s.AddVertex(r3.Vec{X: 0, Y: 0, Z: 1}, 1, false)
	far := s.AddVertex(r3.Vec{X: 20, Y: 20, Z: 20}, 1, false)
	if _, err := s.AddTriangle(d, e, far); err != nil {
		t.Fatalf("AddTriangle(d,e,far): %v", err)
	}

	if AssertMeshIsIntersectionFree(s, false) {
		t.Fatal("expected the (d,e) edge piercing the (a,b,c) triangle to be detected")
	}
}
