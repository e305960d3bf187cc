package surftrack

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func flatQuad(t *testing.T) *Tracker {
	vertices := []r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 0},
		{X: 0, Y: 1, Z: 0},
	}
	triangles := [][3]int{{0, 1, 2}, {0, 2, 3}}
	tr, err := New(vertices, triangles, nil, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestNewBuildsExpectedCounts(t *testing.T) {
	tr := flatQuad(t)
	if tr.NumVertices() != 4 {
		t.Fatalf("expected 4 vertices, got %d", tr.NumVertices())
	}
	if tr.NumTriangles() != 2 {
		t.Fatalf("expected 2 triangles, got %d", tr.NumTriangles())
	}
}

func TestIntegrateAdvectsFreeSurface(t *testing.T) {
	tr := flatQuad(t)
	vel := make([]r3.Vec, 4)
	for i := range vel {
		vel[i] = r3.Vec{X: 0, Y: 0, Z: 1}
	}
	ok, dt := tr.Integrate(0.1, vel)
	if !ok || dt != 0.1 {
		t.Fatalf("expected a clean unobstructed step, got ok=%v dt=%v", ok, dt)
	}
	p := tr.GetPosition(0)
	if p.Z < 0.05 {
		t.Fatalf("expected vertex 0 to have advected in +z, got %v", p)
	}
}

func TestIntegrateStopsPointPiercingSolidTriangle(t *testing.T) {
	vertices := []r3.Vec{
		{X: -1, Y: -1, Z: 0},
		{X: 2, Y: -1, Z: 0},
		{X: 0.5, Y: 2, Z: 0},
		{X: 0.3, Y: 0.3, Z: 1},
	}
	triangles := [][3]int{{0, 1, 2}}
	masses := []float64{1, 1, 1, 1}
	solids := []bool{true, true, true, false}
	tr, err := New(vertices, triangles, masses, solids, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vel := []r3.Vec{{}, {}, {}, {X: 0, Y: 0, Z: -4}}
	ok, _ := tr.Integrate(0.5, vel)
	if !ok {
		t.Fatal("expected the step to be accepted (resolved by impulse or impact zone)")
	}
	p := tr.GetPosition(3)
	if p.Z < 0 {
		t.Fatalf("expected the falling point to be stopped at or above the solid plane, got z=%v", p.Z)
	}
}

func TestDefragMeshPreservesLiveCounts(t *testing.T) {
	tr := flatQuad(t)
	before := tr.NumVertices()
	tr.DefragMesh()
	if tr.NumVertices() != before {
		t.Fatalf("expected vertex count unchanged by defrag, got %d -> %d", before, tr.NumVertices())
	}
}

func TestImproveMeshIsNoOpWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerformImprovement = false
	vertices := []r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 10, Y: 0, Z: 0},
		{X: 10, Y: 10, Z: 0},
		{X: 0, Y: 10, Z: 0},
	}
	triangles := [][3]int{{0, 1, 2}, {0, 2, 3}}
	tr, err := New(vertices, triangles, nil, nil, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := tr.NumTriangles()
	tr.ImproveMesh()
	if tr.NumTriangles() != before {
		t.Fatalf("expected no change with PerformImprovement=false, got %d -> %d", before, tr.NumTriangles())
	}
}

func TestTopologyChangesIsNoOpWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowTopologyChanges = false
	tr := flatQuad(t)
	tr.cfg = cfg
	before := tr.NumVertices()
	tr.TopologyChanges()
	if tr.NumVertices() != before {
		t.Fatalf("expected no change with AllowTopologyChanges=false, got %d -> %d", before, tr.NumVertices())
	}
}
