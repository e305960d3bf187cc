package mesh

import "testing"

func triMesh(t *testing.T) (*Mesh, [4]int) {
	t.Helper()
	m := New()
	v0 := m.AddVertex()
	v1 := m.AddVertex()
	v2 := m.AddVertex()
	v3 := m.AddVertex()
	return m, [4]int{v0, v1, v2, v3}
}

func TestAddTriangleDedupesEdges(t *testing.T) {
	m, v := triMesh(t)
	_, err := m.AddTriangle(v[0], v[1], v[2])
	if err != nil {
		t.Fatal(err)
	}
	if m.NumEdgeSlots() != 3 {
		t.Fatalf("expected 3 edges after first triangle, got %d", m.NumEdgeSlots())
	}
	// Second triangle shares edge (v1,v2); only 2 new edges should appear (P4: never >3 per call).
	_, err = m.AddTriangle(v[1], v[2], v[3])
	if err != nil {
		t.Fatal(err)
	}
	if m.NumEdgeSlots() != 5 {
		t.Fatalf("expected 5 edges after second triangle sharing one edge, got %d", m.NumEdgeSlots())
	}
}

func TestAddTriangleDegenerateRejected(t *testing.T) {
	m, v := triMesh(t)
	_, err := m.AddTriangle(v[0], v[0], v[1])
	if err != ErrDegenerateTriangle {
		t.Fatalf("expected ErrDegenerateTriangle, got %v", err)
	}
	if m.NumEdgeSlots() != 0 {
		t.Fatalf("rejected triangle must not leak edges, got %d", m.NumEdgeSlots())
	}
}

func TestNonManifoldRejectedByDefault(t *testing.T) {
	m, v := triMesh(t)
	v4 := m.AddVertex()
	must(t, m, v[0], v[1], v[2])
	must(t, m, v[0], v[1], v[3])
	_, err := m.AddTriangle(v[0], v[1], v4)
	if err != ErrNonManifoldEdge {
		t.Fatalf("expected ErrNonManifoldEdge, got %v", err)
	}
	// Rejected call must not have changed edge count.
	if m.NumEdgeSlots() != 5 {
		t.Fatalf("rejected non-manifold triangle must not leak edges, got %d", m.NumEdgeSlots())
	}
}

func TestNonManifoldAllowedWhenConfigured(t *testing.T) {
	m, v := triMesh(t)
	v4 := m.AddVertex()
	m.AllowNonManifold = true
	must(t, m, v[0], v[1], v[2])
	must(t, m, v[0], v[1], v[3])
	if _, err := m.AddTriangle(v[0], v[1], v4); err != nil {
		t.Fatalf("expected non-manifold triangle to be allowed, got %v", err)
	}
}

func TestRemoveTriangleUnlinksEdges(t *testing.T) {
	m, v := triMesh(t)
	tri, _ := m.AddTriangle(v[0], v[1], v[2])
	if err := m.RemoveTriangle(tri); err != nil {
		t.Fatal(err)
	}
	if m.NumTriangles() != 0 {
		t.Fatalf("expected 0 live triangles after remove")
	}
	for _, e := range [][2]int{{v[0], v[1]}, {v[1], v[2]}, {v[2], v[0]}} {
		if _, ok := m.GetEdgeIndex(e[0], e[1]); ok {
			t.Fatalf("edge %v should have been tombstoned with its last triangle", e)
		}
	}
	if err := m.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated after remove: %v", err)
	}
}

func TestRemoveVertexRequiresNoTriangles(t *testing.T) {
	m, v := triMesh(t)
	tri, _ := m.AddTriangle(v[0], v[1], v[2])
	if err := m.RemoveVertex(v[0]); err != ErrVertexHasTriangles {
		t.Fatalf("expected ErrVertexHasTriangles, got %v", err)
	}
	m.RemoveTriangle(tri)
	if err := m.RemoveVertex(v[0]); err != nil {
		t.Fatalf("expected vertex removal to succeed once triangle-free: %v", err)
	}
}

func TestTrianglesAreAdjacent(t *testing.T) {
	m, v := triMesh(t)
	t1, _ := m.AddTriangle(v[0], v[1], v[2])
	t2, _ := m.AddTriangle(v[1], v[2], v[3])
	if !m.TrianglesAreAdjacent(t1, t2) {
		t.Fatal("expected t1, t2 to be adjacent (share edge v1-v2)")
	}
}

func TestDefragIsIdempotent(t *testing.T) {
	m, v := triMesh(t)
	t1, _ := m.AddTriangle(v[0], v[1], v[2])
	m.AddTriangle(v[1], v[2], v[3])
	m.RemoveTriangle(t1)

	remap1 := m.Defrag()
	snapshotTriangles := append([][3]int(nil), m.triangles...)
	snapshotEdges := append([][2]int(nil), m.edges...)

	remap2 := m.Defrag()
	for i, tri := range m.triangles {
		if tri != snapshotTriangles[i] {
			t.Fatalf("second defrag changed triangle table at %d", i)
		}
	}
	for i, e := range m.edges {
		if e != snapshotEdges[i] {
			t.Fatalf("second defrag changed edge table at %d", i)
		}
	}
	for i, r := range remap2.Triangles {
		if r != i {
			t.Fatalf("second defrag's remap should be identity, got %v at %d", remap1, i)
		}
	}
}

func TestDefragRemapDropsStaleIndices(t *testing.T) {
	m, v := triMesh(t)
	t0, _ := m.AddTriangle(v[0], v[1], v[2])
	t1, _ := m.AddTriangle(v[1], v[2], v[3])
	m.RemoveTriangle(t0)
	remap := m.Defrag()
	if remap.Triangles[t0] != -1 {
		t.Fatalf("removed triangle should remap to -1")
	}
	if remap.Triangles[t1] != 0 {
		t.Fatalf("surviving triangle should compact to index 0, got %d", remap.Triangles[t1])
	}
}

func must(t *testing.T, m *Mesh, i, j, k int) TriangleIndex {
	t.Helper()
	tri, err := m.AddTriangle(i, j, k)
	if err != nil {
		t.Fatal(err)
	}
	return tri
}
