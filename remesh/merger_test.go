package remesh

import (
	"testing"

	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/spatial/r3"
)

func twoTriangles(t *testing.T, gap float64) (*surface.Surface, [6]int) {
	s := surface.New(0.01)
	a := s.AddVertex(r3.Vec{X: 0, Y: 0, Z: 0}, 1, false)
	b := s.AddVertex(r3.Vec{X: 1, Y: 0, Z: 0}, 1, false)
	c := s.AddVertex(r3.Vec{X: 0, Y: 1, Z: 0}, 1, false)
	d := s.AddVertex(r3.Vec{X: gap, Y: 0, Z: 0}, 1, false)
	e := s.AddVertex(r3.Vec{X: gap + 1, Y: 0, Z: 0}, 1, false)
	f := s.AddVertex(r3.Vec{X: gap, Y: 1, Z: 0}, 1, false)
	if _, err := s.AddTriangle(a, b, c); err != nil {
		t.Fatalf("AddTriangle(a,b,c): %v", err)
	}
	if _, err := s.AddTriangle(d, e, f); err != nil {
		t.Fatalf("AddTriangle(d,e,f): %v", err)
	}
	return s, [6]int{a, b, c, d, e, f}
}

func TestConnectedComponentsSeparatesDisjointTriangles(t *testing.T) {
	s, _ := twoTriangles(t, 10)
	comps := connectedComponents(s.Mesh)
	if len(comps) != 2 {
		t.Fatalf("expected 2 components, got %d", len(comps))
	}
}

func TestFindMergeCandidatesFindsNearbyComponents(t *testing.T) {
	s, _ := twoTriangles(t, 1.0005)
	pairs := FindMergeCandidates(s, 0.01)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 candidate pair for nearly-touching components, got %d", len(pairs))
	}
}

func TestFindMergeCandidatesIgnoresFarComponents(t *testing.T) {
	s, _ := twoTriangles(t, 1000)
	pairs := FindMergeCandidates(s, 0.01)
	if len(pairs) != 0 {
		t.Fatalf("expected no candidates for far-apart components, got %d", len(pairs))
	}
}

func TestWeldMergesVerticesAcrossComponents(t *testing.T) {
	s, verts := twoTriangles(t, 1)
	b, d := verts[1], verts[3] // coincident at x=1
	before := s.Mesh.NumTriangles()
	if !Weld(s, b, d) {
		t.Fatal("expected weld to commit on a non-intersecting pair")
	}
	// The welded-away vertex's triangle reroutes onto b (no change in
	// count), plus one bridge triangle per matched pair of boundary
	// neighbours zipping the two open rims together, so the count can
	// only grow.
	if s.Mesh.NumTriangles() <= before {
		t.Fatalf("expected triangle count to grow from bridging, got %d -> %d", before, s.Mesh.NumTriangles())
	}
	if s.Mesh.VertexIsLive(d) {
		t.Fatal("expected the welded-away vertex to no longer be live")
	}
}

func TestWeldRejectsBothSolid(t *testing.T) {
	s := surface.New(0.01)
	a := s.AddVertex(r3.Vec{X: 0, Y: 0, Z: 0}, 1, true)
	b := s.AddVertex(r3.Vec{X: 1, Y: 0, Z: 0}, 1, true)
	if Weld(s, a, b) {
		t.Fatal("expected weld between two solid vertices to be rejected")
	}
}

func TestWeldRejectsIncompatibleNormals(t *testing.T) {
	s := surface.New(0.01)
	// Triangle facing +z.
	a := s.AddVertex(r3.Vec{X: 0, Y: 0, Z: 0}, 1, false)
	b := s.AddVertex(r3.Vec{X: 1, Y: 0, Z: 0}, 1, false)
	c := s.AddVertex(r3.Vec{X: 0, Y: 1, Z: 0}, 1, false)
	if _, err := s.AddTriangle(a, b, c); err != nil {
		t.Fatalf("AddTriangle(a,b,c): %v", err)
	}
	// Triangle facing -z (reversed winding), offset in x so it forms
	// its own component.
	d := s.AddVertex(r3.Vec{X: 2, Y: 0, Z: 0}, 1, false)
	e := s.AddVertex(r3.Vec{X: 2, Y: 1, Z: 0}, 1, false)
	f := s.AddVertex(r3.Vec{X: 3, Y: 0, Z: 0}, 1, false)
	if _, err := s.AddTriangle(d, e, f); err != nil {
		t.Fatalf("AddTriangle(d,e,f): %v", err)
	}
	if Weld(s, b, d) {
		t.Fatal("expected weld between oppositely-facing sheets to be rejected")
	}
}
