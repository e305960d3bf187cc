package impactzone

import (
	"testing"

	"github.com/soypat/surftrack/collision"
	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/spatial/r3"
)

func buildZoneCase(t *testing.T) (*surface.Surface, collision.Candidate) {
	s := surface.New(0.01)
	a := s.AddVertex(r3.Vec{X: -5, Y: -5, Z: 0}, 1, true)
	b := s.AddVertex(r3.Vec{X: 5, Y: -5, Z: 0}, 1, true)
	c := s.AddVertex(r3.Vec{X: 0, Y: 5, Z: 0}, 1, true)
	if _, err := s.AddTriangle(a, b, c); err != nil {
		t.Fatalf("AddTriangle: %v", err)
	}
	p := s.AddVertex(r3.Vec{X: 0, Y: 0, Z: 1}, 1, false)
	s.SetNewPosition(p, r3.Vec{X: 0, Y: 0, Z: -1})
	tIdx, ok := s.Mesh.GetTriangleIndex(a, b, c)
	if !ok {
		t.Fatal("expected triangle index")
	}
	return s, collision.Candidate{A: p, B: tIdx, Kind: collision.PointTriangle}
}

func TestSolveAllSolidZoneIsNoOp(t *testing.T) {
	s := surface.New(0.01)
	a := s.AddVertex(r3.Vec{X: -5, Y: -5, Z: 0}, 1, true)
	b := s.AddVertex(r3.Vec{X: 5, Y: -5, Z: 0}, 1, true)
	c := s.AddVertex(r3.Vec{X: 0, Y: 5, Z: 0}, 1, true)
	if _, err := s.AddTriangle(a, b, c); err != nil {
		t.Fatalf("AddTriangle: %v", err)
	}
	solidP := s.AddVertex(r3.Vec{X: 0, Y: 0, Z: 0.0001}, 1, true)
	tIdx, _ := s.Mesh.GetTriangleIndex(a, b, c)
	cand := collision.Candidate{A: solidP, B: tIdx, Kind: collision.PointTriangle}

	rep := Solve(s, s.Mesh, []collision.Candidate{cand}, 1.0)
	if rep.NumZones != 1 {
		t.Fatalf("expected one zone, got %d", rep.NumZones)
	}
	if rep.FrozenVertices != 0 || rep.ProjectedVertices != 0 {
		t.Fatalf("expected an all-solid zone to be a trivial no-op, got %+v", rep)
	}
}

func TestSolveProjectsOrFreezesPiercingPoint(t *testing.T) {
	s, cand := buildZoneCase(t)
	rep := Solve(s, s.Mesh, []collision.Candidate{cand}, 1.0)
	if rep.NumZones != 1 {
		t.Fatalf("expected one zone, got %d", rep.NumZones)
	}
	if rep.ProjectedVertices == 0 && rep.FrozenVertices == 0 {
		t.Fatal("expected the zone to be resolved by either projection or a rigid freeze")
	}
	if !allCandidatesResolved(s, s.Mesh, []collision.Candidate{cand}, 1.0) {
		t.Fatal("expected the zone's own candidate to no longer collide after Solve")
	}
}

func TestGroupZonesMergesSharedVertexCandidates(t *testing.T) {
	s := surface.New(0.01)
	a := s.AddVertex(r3.Vec{X: 0, Y: 0, Z: 0}, 1, false)
	b := s.AddVertex(r3.Vec{X: 1, Y: 0, Z: 0}, 1, false)
	c := s.AddVertex(r3.Vec{X: 0, Y: 1, Z: 0}, 1, false)
	tri, err := s.AddTriangle(a, b, c)
	if err != nil {
		t.Fatalf("AddTriangle: %v", err)
	}
	d := s.AddVertex(r3.Vec{X: 0.2, Y: 0.2, Z: 1}, 1, false)
	e := s.AddVertex(r3.Vec{X: 5, Y: 5, Z: 5}, 1, false)

	cands := []collision.Candidate{
		{A: d, B: tri, Kind: collision.PointTriangle},
		{A: a, B: tri, Kind: collision.PointTriangle}, // shares vertex a with the first candidate's triangle
		{A: e, B: tri, Kind: collision.PointTriangle},
	}
	zones := groupZones(s.Mesh, cands)
	// All three candidates reference the same triangle (and therefore
	// vertex a), so they must collapse into a single zone.
	if len(zones) != 1 {
		t.Fatalf("expected all candidates sharing a triangle to merge into one zone, got %d zones", len(zones))
	}
}
