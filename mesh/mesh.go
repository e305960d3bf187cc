// Package mesh implements a non-destructive triangle mesh
// representation with stable indices, deferred deletion, incidence
// maps and defragmentation.
//
// Vertex, edge and triangle indices are stable across Add/Remove: a
// Remove only tombstones the slot (a zero vertex index can never
// legitimately self-reference, so an all-zero triangle/edge marks a
// dead slot) and unlinks it from incidence maps. Each slot also
// carries a generation counter so a caller holding a stale index can
// detect use-after-free instead of silently aliasing a reused slot —
// Mesh itself never reuses a tombstoned slot; only Defrag compacts
// storage.
package mesh

import (
	"errors"
)

// ErrDegenerateTriangle is returned by AddTriangle when two of the
// three vertex slots are equal.
var ErrDegenerateTriangle = errors.New("mesh: triangle has a repeated vertex")

// ErrDegenerateEdge is returned internally when an edge would have
// equal endpoints; this can only happen via ErrDegenerateTriangle's
// path, as AddTriangle validates vertices before touching edges.
var ErrDegenerateEdge = errors.New("mesh: edge has equal endpoints")

// ErrNonManifoldEdge is returned by AddTriangle when an edge would
// gain a third incident triangle and AllowNonManifold is false.
var ErrNonManifoldEdge = errors.New("mesh: edge already has two incident triangles")

// ErrVertexHasTriangles is returned by RemoveVertex when the vertex
// still has incident triangles.
var ErrVertexHasTriangles = errors.New("mesh: cannot remove a vertex with incident triangles")

// ErrStaleIndex is returned when an operation is given a tombstoned slot.
var ErrStaleIndex = errors.New("mesh: stale or tombstoned index")

// VertexIndex, EdgeIndex and TriangleIndex are plain slot indices into
// Mesh's tables. AddVertex and AddTriangle return only the index; a
// vertex slot's generation can be read with VertexGeneration, while
// edge and triangle generations are kept internally and not exposed.
type VertexIndex = int
type EdgeIndex = int
type TriangleIndex = int

type edgeKey [2]int

func makeEdgeKey(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// Mesh is the non-destructive vertex/edge/triangle table set.
type Mesh struct {
	// AllowNonManifold permits an edge to have more than two incident
	// triangles.
	AllowNonManifold bool

	vertexLive []bool
	vertexGen  []uint32

	edges   [][2]int // tombstone: {0,0}
	edgeGen []uint32
	edgeIdx map[edgeKey]int

	triangles   [][3]int // tombstone: {0,0,0}
	triangleGen []uint32

	vertexToTriangles [][]int
	vertexToEdges     [][]int
	triangleToEdges   [][3]int
	edgeToTriangles   [][]int
}

// New returns an empty mesh.
func New() *Mesh {
	return &Mesh{edgeIdx: make(map[edgeKey]int)}
}

// NumVertexSlots returns the number of vertex slots ever allocated,
// including tombstoned ones.
func (m *Mesh) NumVertexSlots() int { return len(m.vertexLive) }

// NumEdgeSlots returns the number of edge slots ever allocated.
func (m *Mesh) NumEdgeSlots() int { return len(m.edges) }

// NumTriangleSlots returns the number of triangle slots ever allocated.
func (m *Mesh) NumTriangleSlots() int { return len(m.triangles) }

// NumVertices returns the count of live (non-tombstoned) vertices.
func (m *Mesh) NumVertices() int {
	n := 0
	for _, live := range m.vertexLive {
		if live {
			n++
		}
	}
	return n
}

// NumTriangles returns the count of live triangles.
func (m *Mesh) NumTriangles() int {
	n := 0
	for t := range m.triangles {
		if m.TriangleIsLive(t) {
			n++
		}
	}
	return n
}

// VertexIsLive reports whether v refers to a live vertex slot.
func (m *Mesh) VertexIsLive(v VertexIndex) bool {
	return v >= 0 && v < len(m.vertexLive) && m.vertexLive[v]
}

// EdgeIsLive reports whether e refers to a live edge slot. An edge is
// tombstoned by being set to {0,0}; since an edge can never have equal
// endpoints, {0,0} can never be a legitimately allocated edge, so the
// tombstone pattern is unambiguous.
func (m *Mesh) EdgeIsLive(e EdgeIndex) bool {
	if e < 0 || e >= len(m.edges) {
		return false
	}
	return m.edges[e] != [2]int{0, 0}
}

// TriangleIsLive reports whether t refers to a live triangle slot.
func (m *Mesh) TriangleIsLive(t TriangleIndex) bool {
	if t < 0 || t >= len(m.triangles) {
		return false
	}
	return m.triangles[t] != [3]int{0, 0, 0}
}

// VertexGeneration returns the generation of vertex v's slot.
func (m *Mesh) VertexGeneration(v VertexIndex) uint32 { return m.vertexGen[v] }

// Triangle returns the vertex triple for a live triangle.
func (m *Mesh) Triangle(t TriangleIndex) ([3]int, bool) {
	if !m.TriangleIsLive(t) {
		return [3]int{}, false
	}
	return m.triangles[t], true
}

// Edge returns the endpoint pair for a live edge.
func (m *Mesh) Edge(e EdgeIndex) ([2]int, bool) {
	if !m.EdgeIsLive(e) {
		return [2]int{}, false
	}
	return m.edges[e], true
}

// VertexTriangles returns the (possibly empty) set of triangles
// incident to v.
func (m *Mesh) VertexTriangles(v VertexIndex) []int { return m.vertexToTriangles[v] }

// VertexEdges returns the set of edges incident to v.
func (m *Mesh) VertexEdges(v VertexIndex) []int { return m.vertexToEdges[v] }

// TriangleEdges returns the three edge indices of triangle t, ordered
// to align with t's vertex order: edges[0] is (v0,v1), edges[1] is
// (v1,v2), edges[2] is (v2,v0).
func (m *Mesh) TriangleEdges(t TriangleIndex) [3]int { return m.triangleToEdges[t] }

// EdgeTriangles returns the triangles incident to edge e (length 0, 1
// or 2 on a manifold mesh; more if AllowNonManifold permitted it).
func (m *Mesh) EdgeTriangles(e EdgeIndex) []int { return m.edgeToTriangles[e] }

// AddVertex allocates a new vertex slot and returns its index.
func (m *Mesh) AddVertex() VertexIndex {
	idx := len(m.vertexLive)
	m.vertexLive = append(m.vertexLive, true)
	m.vertexGen = append(m.vertexGen, 0)
	m.vertexToTriangles = append(m.vertexToTriangles, nil)
	m.vertexToEdges = append(m.vertexToEdges, nil)
	return idx
}

// RemoveVertex tombstones a vertex. The vertex must have no incident
// triangles (remove those first).
func (m *Mesh) RemoveVertex(v VertexIndex) error {
	if !m.VertexIsLive(v) {
		return ErrStaleIndex
	}
	if len(m.vertexToTriangles[v]) > 0 {
		return ErrVertexHasTriangles
	}
	// A vertex with no incident triangles may still have dangling
	// incident edges only if the mesh was built inconsistently;
	// AddTriangle/RemoveTriangle keep V->E and E->T in lock-step so in
	// practice vertexToEdges is empty here too, but we clear it anyway
	// to keep the incidence maps consistent.
	m.vertexToEdges[v] = nil
	m.vertexLive[v] = false
	m.vertexGen[v]++
	return nil
}

func (m *Mesh) getOrCreateEdge(a, b int) (EdgeIndex, bool) {
	key := makeEdgeKey(a, b)
	if e, ok := m.edgeIdx[key]; ok {
		return e, false
	}
	e := len(m.edges)
	m.edges = append(m.edges, [2]int{a, b})
	m.edgeGen = append(m.edgeGen, 0)
	m.edgeToTriangles = append(m.edgeToTriangles, nil)
	m.edgeIdx[key] = e
	m.vertexToEdges[a] = append(m.vertexToEdges[a], e)
	m.vertexToEdges[b] = append(m.vertexToEdges[b], e)
	return e, true
}

// GetEdgeIndex returns the edge joining a and b, if one exists.
func (m *Mesh) GetEdgeIndex(a, b int) (EdgeIndex, bool) {
	e, ok := m.edgeIdx[makeEdgeKey(a, b)]
	if !ok || !m.EdgeIsLive(e) {
		return 0, false
	}
	return e, true
}

// GetTriangleIndex returns the triangle with vertex set {i,j,k}, if
// any exists (in any winding).
func (m *Mesh) GetTriangleIndex(i, j, k int) (TriangleIndex, bool) {
	e, ok := m.GetEdgeIndex(i, j)
	if !ok {
		return 0, false
	}
	for _, t := range m.edgeToTriangles[e] {
		tri := m.triangles[t]
		if tri[0] == k || tri[1] == k || tri[2] == k {
			return t, true
		}
	}
	return 0, false
}

// TrianglesAreAdjacent reports whether t1 and t2 share an edge.
func (m *Mesh) TrianglesAreAdjacent(t1, t2 TriangleIndex) bool {
	if t1 == t2 || !m.TriangleIsLive(t1) || !m.TriangleIsLive(t2) {
		return false
	}
	for _, e1 := range m.triangleToEdges[t1] {
		for _, e2 := range m.triangleToEdges[t2] {
			if e1 == e2 {
				return true
			}
		}
	}
	return false
}

// AddTriangle adds a triangle over vertices (i,j,k), allocating any
// edges that don't already exist. AddTriangle either finds the
// existing edge for each pair or allocates a new one, so edge count
// never grows by more than 3 per call (P4).
func (m *Mesh) AddTriangle(i, j, k int) (TriangleIndex, error) {
	if i == j || j == k || i == k {
		return 0, ErrDegenerateTriangle
	}
	if !m.VertexIsLive(i) || !m.VertexIsLive(j) || !m.VertexIsLive(k) {
		return 0, ErrStaleIndex
	}

	e0, newE0 := m.getOrCreateEdge(i, j)
	e1, newE1 := m.getOrCreateEdge(j, k)
	e2, newE2 := m.getOrCreateEdge(k, i)

	if !m.AllowNonManifold {
		if (!newE0 && len(m.edgeToTriangles[e0]) >= 2) ||
			(!newE1 && len(m.edgeToTriangles[e1]) >= 2) ||
			(!newE2 && len(m.edgeToTriangles[e2]) >= 2) {
			m.rollbackNewEdges(e0, newE0, e1, newE1, e2, newE2)
			return 0, ErrNonManifoldEdge
		}
	}

	t := len(m.triangles)
	m.triangles = append(m.triangles, [3]int{i, j, k})
	m.triangleGen = append(m.triangleGen, 0)
	m.triangleToEdges = append(m.triangleToEdges, [3]int{e0, e1, e2})

	m.edgeToTriangles[e0] = append(m.edgeToTriangles[e0], t)
	m.edgeToTriangles[e1] = append(m.edgeToTriangles[e1], t)
	m.edgeToTriangles[e2] = append(m.edgeToTriangles[e2], t)

	m.vertexToTriangles[i] = append(m.vertexToTriangles[i], t)
	m.vertexToTriangles[j] = append(m.vertexToTriangles[j], t)
	m.vertexToTriangles[k] = append(m.vertexToTriangles[k], t)

	return t, nil
}

// rollbackNewEdges undoes getOrCreateEdge calls made earlier in a
// now-aborted AddTriangle, so a rejected call leaves the mesh
// unchanged (the same try-then-commit-or-rollback discipline the
// remeshing operators use).
func (m *Mesh) rollbackNewEdges(e0 int, new0 bool, e1 int, new1 bool, e2 int, new2 bool) {
	n := len(m.edges)
	if new2 {
		m.deleteEdgeSlot(e2)
		n = e2
	}
	if new1 {
		m.deleteEdgeSlot(e1)
		n = e1
	}
	if new0 {
		m.deleteEdgeSlot(e0)
		n = e0
	}
	// The new edges were the last slots appended; drop them so the edge
	// table has the length it had before the call.
	m.edges = m.edges[:n]
	m.edgeGen = m.edgeGen[:n]
	m.edgeToTriangles = m.edgeToTriangles[:n]
}

func (m *Mesh) deleteEdgeSlot(e EdgeIndex) {
	ends := m.edges[e]
	delete(m.edgeIdx, makeEdgeKey(ends[0], ends[1]))
	m.removeFromIntSlice(&m.vertexToEdges[ends[0]], e)
	m.removeFromIntSlice(&m.vertexToEdges[ends[1]], e)
	m.edges[e] = [2]int{0, 0}
	m.edgeGen[e]++
}

// RemoveTriangle tombstones a triangle and unlinks it from the
// incidence maps of its vertices and edges. An edge that loses its
// last incident triangle is itself tombstoned.
func (m *Mesh) RemoveTriangle(t TriangleIndex) error {
	if !m.TriangleIsLive(t) {
		return ErrStaleIndex
	}
	tri := m.triangles[t]
	edges := m.triangleToEdges[t]

	for _, v := range tri {
		m.removeFromIntSlice(&m.vertexToTriangles[v], t)
	}
	for _, e := range edges {
		m.removeFromIntSlice(&m.edgeToTriangles[e], t)
		if len(m.edgeToTriangles[e]) == 0 {
			m.deleteEdgeSlot(e)
		}
	}

	m.triangles[t] = [3]int{0, 0, 0}
	m.triangleGen[t]++
	m.triangleToEdges[t] = [3]int{0, 0, 0}
	return nil
}

func (m *Mesh) removeFromIntSlice(s *[]int, v int) {
	arr := *s
	for i, x := range arr {
		if x == v {
			arr[i] = arr[len(arr)-1]
			*s = arr[:len(arr)-1]
			return
		}
	}
}

// Remap records how Defrag renumbered each table; callers holding
// cached indices must translate them through it (or treat -1 as "this
// entity no longer exists").
type Remap struct {
	Vertices  []int // old index -> new index, or -1
	Edges     []int
	Triangles []int
}

// Defrag compacts all three tables, dropping tombstones, and rebuilds
// every incidence map from scratch. It returns the old->new
// permutation. Defrag is idempotent: running it twice in a row on an
// already-compact mesh returns an identity-shaped remap.
func (m *Mesh) Defrag() Remap {
	remap := Remap{
		Vertices:  make([]int, len(m.vertexLive)),
		Edges:     make([]int, len(m.edges)),
		Triangles: make([]int, len(m.triangles)),
	}
	for i := range remap.Vertices {
		remap.Vertices[i] = -1
	}
	for i := range remap.Edges {
		remap.Edges[i] = -1
	}
	for i := range remap.Triangles {
		remap.Triangles[i] = -1
	}

	newVertexLive := make([]bool, 0, m.NumVertices())
	newVertexGen := make([]uint32, 0, m.NumVertices())
	for v, live := range m.vertexLive {
		if !live {
			continue
		}
		remap.Vertices[v] = len(newVertexLive)
		newVertexLive = append(newVertexLive, true)
		newVertexGen = append(newVertexGen, m.vertexGen[v])
	}

	newEdges := make([][2]int, 0, len(m.edges))
	newEdgeGen := make([]uint32, 0, len(m.edges))
	for e := range m.edges {
		if !m.EdgeIsLive(e) {
			continue
		}
		remap.Edges[e] = len(newEdges)
		ends := m.edges[e]
		newEdges = append(newEdges, [2]int{remap.Vertices[ends[0]], remap.Vertices[ends[1]]})
		newEdgeGen = append(newEdgeGen, m.edgeGen[e])
	}

	newTriangles := make([][3]int, 0, m.NumTriangles())
	newTriangleGen := make([]uint32, 0, m.NumTriangles())
	for t := range m.triangles {
		if !m.TriangleIsLive(t) {
			continue
		}
		remap.Triangles[t] = len(newTriangles)
		tri := m.triangles[t]
		newTriangles = append(newTriangles, [3]int{remap.Vertices[tri[0]], remap.Vertices[tri[1]], remap.Vertices[tri[2]]})
		newTriangleGen = append(newTriangleGen, m.triangleGen[t])
	}

	m.vertexLive = newVertexLive
	m.vertexGen = newVertexGen
	m.edges = newEdges
	m.edgeGen = newEdgeGen
	m.triangles = newTriangles
	m.triangleGen = newTriangleGen

	m.rebuildIncidence()
	return remap
}

func (m *Mesh) rebuildIncidence() {
	nv := len(m.vertexLive)
	ne := len(m.edges)
	nt := len(m.triangles)

	m.vertexToTriangles = make([][]int, nv)
	m.vertexToEdges = make([][]int, nv)
	m.triangleToEdges = make([][3]int, nt)
	m.edgeToTriangles = make([][]int, ne)
	m.edgeIdx = make(map[edgeKey]int, ne)

	for e, ends := range m.edges {
		m.edgeIdx[makeEdgeKey(ends[0], ends[1])] = e
		m.vertexToEdges[ends[0]] = append(m.vertexToEdges[ends[0]], e)
		m.vertexToEdges[ends[1]] = append(m.vertexToEdges[ends[1]], e)
	}
	for t, tri := range m.triangles {
		e0, _ := m.GetEdgeIndex(tri[0], tri[1])
		e1, _ := m.GetEdgeIndex(tri[1], tri[2])
		e2, _ := m.GetEdgeIndex(tri[2], tri[0])
		m.triangleToEdges[t] = [3]int{e0, e1, e2}
		m.edgeToTriangles[e0] = append(m.edgeToTriangles[e0], t)
		m.edgeToTriangles[e1] = append(m.edgeToTriangles[e1], t)
		m.edgeToTriangles[e2] = append(m.edgeToTriangles[e2], t)
		m.vertexToTriangles[tri[0]] = append(m.vertexToTriangles[tri[0]], t)
		m.vertexToTriangles[tri[1]] = append(m.vertexToTriangles[tri[1]], t)
		m.vertexToTriangles[tri[2]] = append(m.vertexToTriangles[tri[2]], t)
	}
}

// CheckInvariants audits the mesh's structural consistency: every
// triangle is non-degenerate and correctly linked into its vertices'
// incidence lists, every edge has distinct endpoints, and (unless
// AllowNonManifold is set) no edge has more than two incident
// triangles. Collision-safety is a geometric property and lives in the
// collision package, which has the geometry to check it. Returns the
// first violation found, or nil.
func (m *Mesh) CheckInvariants() error {
	for t := range m.triangles {
		if !m.TriangleIsLive(t) {
			continue
		}
		tri := m.triangles[t]
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[0] == tri[2] {
			return ErrDegenerateTriangle
		}
		for _, v := range tri {
			if !contains(m.vertexToTriangles[v], t) {
				return errors.New("mesh: triangle not in its vertex's incidence list")
			}
		}
	}
	for e := range m.edges {
		if !m.EdgeIsLive(e) {
			continue
		}
		ends := m.edges[e]
		if ends[0] == ends[1] {
			return ErrDegenerateEdge
		}
	}
	if !m.AllowNonManifold {
		for e := range m.edges {
			if !m.EdgeIsLive(e) {
				continue
			}
			if len(m.edgeToTriangles[e]) > 2 {
				return ErrNonManifoldEdge
			}
		}
	}
	return nil
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
