package broadphase

import (
	"sort"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestAddUpdateRemoveVertex(t *testing.T) {
	bp := New(0.01)
	bp.AddVertex(0, r3.Vec{X: 0, Y: 0, Z: 0}, r3.Vec{X: 0, Y: 0, Z: 0}, false)
	got := bp.QueryVertices(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1}, true, true)
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected to find vertex 0, got %v", got)
	}

	bp.UpdateVertex(0, r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 5, Y: 5, Z: 5}, false)
	got = bp.QueryVertices(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1}, true, true)
	if len(got) != 0 {
		t.Fatalf("expected vertex to have moved out of the original box, got %v", got)
	}
	got = bp.QueryVertices(r3.Vec{X: 4, Y: 4, Z: 4}, r3.Vec{X: 6, Y: 6, Z: 6}, true, true)
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected to find the vertex at its new location, got %v", got)
	}

	bp.RemoveVertex(0)
	got = bp.QueryVertices(r3.Vec{X: 4, Y: 4, Z: 4}, r3.Vec{X: 6, Y: 6, Z: 6}, true, true)
	if len(got) != 0 {
		t.Fatalf("expected no vertex after removal, got %v", got)
	}
}

func TestQuerySeparatesSolidAndDynamicGrids(t *testing.T) {
	bp := New(0.01)
	bp.AddTriangle(0, r3.Vec{}, r3.Vec{}, true)
	bp.AddTriangle(1, r3.Vec{}, r3.Vec{}, false)

	onlySolid := bp.QueryTriangles(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1}, true, false)
	if len(onlySolid) != 1 || onlySolid[0] != 0 {
		t.Fatalf("expected only the solid triangle, got %v", onlySolid)
	}
	onlyDynamic := bp.QueryTriangles(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1}, false, true)
	if len(onlyDynamic) != 1 || onlyDynamic[0] != 1 {
		t.Fatalf("expected only the dynamic triangle, got %v", onlyDynamic)
	}
	both := bp.QueryTriangles(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1}, true, true)
	sort.Ints(both)
	if len(both) != 2 || both[0] != 0 || both[1] != 1 {
		t.Fatalf("expected both triangles, got %v", both)
	}
}

// fakeSource is a minimal broadphase.Source backed by parallel slices,
// used to exercise Rebuild without pulling in package surface.
type fakeSource struct {
	low, high []r3.Vec
	solid     []bool
	live      []bool
	lenScale  float64
}

func (f *fakeSource) NumVertexSlots() int   { return len(f.live) }
func (f *fakeSource) NumEdgeSlots() int     { return 0 }
func (f *fakeSource) NumTriangleSlots() int { return 0 }
func (f *fakeSource) LengthScale() float64  { return f.lenScale }

func (f *fakeSource) VertexBounds(i int, continuous bool, padding float64) (r3.Vec, r3.Vec, bool, bool) {
	if i < 0 || i >= len(f.live) || !f.live[i] {
		return r3.Vec{}, r3.Vec{}, false, false
	}
	return f.low[i], f.high[i], f.solid[i], true
}
func (f *fakeSource) EdgeBounds(i int, continuous bool, padding float64) (r3.Vec, r3.Vec, bool, bool) {
	return r3.Vec{}, r3.Vec{}, false, false
}
func (f *fakeSource) TriangleBounds(i int, continuous bool, padding float64) (r3.Vec, r3.Vec, bool, bool) {
	return r3.Vec{}, r3.Vec{}, false, false
}

func TestRebuildDiscardsStaleEntriesAndSkipsTombstones(t *testing.T) {
	bp := New(0.01)
	bp.AddVertex(99, r3.Vec{}, r3.Vec{}, false) // stale entry that Rebuild must discard

	src := &fakeSource{
		low:      []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 10, Y: 10, Z: 10}},
		high:     []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 10, Y: 10, Z: 10}},
		solid:    []bool{false, true},
		live:     []bool{true, false}, // slot 1 is tombstoned
		lenScale: 1,
	}
	bp.Rebuild(src, false)

	got := bp.QueryVertices(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1}, true, true)
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected only live slot 0 (stale slot 99 discarded), got %v", got)
	}
	got = bp.QueryVertices(r3.Vec{X: 9, Y: 9, Z: 9}, r3.Vec{X: 11, Y: 11, Z: 11}, true, true)
	if len(got) != 0 {
		t.Fatalf("expected the tombstoned slot 1 to be skipped by Rebuild, got %v", got)
	}
}
