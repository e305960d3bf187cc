// Package remesh implements the mesh-quality-improving operators: edge
// split, edge collapse, edge flip, tangent-plane vertex smoothing, a
// non-manifold-separating vertex pincher, and a disconnected-component
// merger.
//
// Every operator follows the same protocol: pick a candidate, mutate
// the surface to the proposed outcome, then ask package collision to
// prove the mutation introduced no new intersection. A failed audit
// rolls the mutation back via a small undo log instead of leaving the
// mesh half-changed.
package remesh

import (
	"math"

	"github.com/soypat/surftrack/collision"
	"github.com/soypat/surftrack/mesh"
	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config holds the thresholds that decide which entities are
// candidates for each operator.
type Config struct {
	MinEdgeLength     float64 // edges shorter than this are collapse candidates
	MaxEdgeLength     float64 // edges longer than this are split candidates
	MaxDihedralToFlip float64 // radians; not read by Flip or ShouldFlip, which use valence deviation and minimum angle only
	MaxVolumeChange   float64 // reject a collapse whose local volume sweep exceeds this; 0 disables the check
	SmoothRate        float64 // 0..1, how far a smoothing step moves a vertex toward the local average
	Scheme            SubdivisionScheme
}

// SubdivisionScheme computes a split vertex's position from the two
// edge endpoints and (when available) the two triangles' opposite
// vertices.
type SubdivisionScheme interface {
	SplitPosition(a, b r3.Vec, oppositeVerts []r3.Vec) r3.Vec
}

// LinearMidpoint is the trivial scheme: the new vertex is the segment
// midpoint.
type LinearMidpoint struct{}

// SplitPosition implements SubdivisionScheme.
func (LinearMidpoint) SplitPosition(a, b r3.Vec, _ []r3.Vec) r3.Vec {
	return r3.Scale(0.5, r3.Add(a, b))
}

// Butterfly is a four-point butterfly-style stencil over the edge's two
// endpoints and its two opposite vertices (the outer wing vertices of
// the classic 8-point stencil are not used), falling back to the
// midpoint at a boundary edge (fewer than 2 opposite vertices).
type Butterfly struct{}

// SplitPosition implements SubdivisionScheme.
func (Butterfly) SplitPosition(a, b r3.Vec, opposite []r3.Vec) r3.Vec {
	if len(opposite) < 2 {
		return LinearMidpoint{}.SplitPosition(a, b, opposite)
	}
	const w = 1.0 / 8.0
	mid := r3.Scale(0.5, r3.Add(a, b))
	correction := r3.Scale(w, r3.Sub(r3.Add(opposite[0], opposite[1]), r3.Add(a, b)))
	return r3.Sub(mid, correction)
}

// ModifiedButterfly damps Butterfly's correction term,
// trading some surface smoothness for stability near irregular
// vertices, the usual reason an implementation prefers it over the
// unmodified scheme.
type ModifiedButterfly struct {
	Damping float64 // 0..1, 1 reproduces Butterfly exactly
}

// SplitPosition implements SubdivisionScheme.
func (m ModifiedButterfly) SplitPosition(a, b r3.Vec, opposite []r3.Vec) r3.Vec {
	damping := m.Damping
	if damping <= 0 {
		damping = 0.5
	}
	mid := LinearMidpoint{}.SplitPosition(a, b, opposite)
	bf := Butterfly{}.SplitPosition(a, b, opposite)
	return r3.Add(mid, r3.Scale(damping, r3.Sub(bf, mid)))
}

// txn accumulates undo actions for a tentative mutation so a failed
// intersection audit can restore the surface exactly.
type txn struct {
	surf  *surface.Surface
	undos []func()
}

func newTxn(surf *surface.Surface) *txn { return &txn{surf: surf} }

func (tx *txn) record(undo func()) { tx.undos = append(tx.undos, undo) }

// rollback replays every recorded undo in reverse (LIFO) order,
// restoring the surface to its state before the transaction began.
func (tx *txn) rollback() {
	for i := len(tx.undos) - 1; i >= 0; i-- {
		tx.undos[i]()
	}
}

// commitOrRollback proves the mutation safe via the collision package
// and, on failure, rolls back.
func (tx *txn) commitOrRollback() bool {
	if collision.AssertMeshIsIntersectionFree(tx.surf, false) {
		return true
	}
	tx.rollback()
	return false
}

// Split replaces edge e's two incident triangles with four, inserting
// a new vertex at the position cfg.Scheme computes. Returns the new
// vertex index and whether the operation was committed.
func Split(surf *surface.Surface, e mesh.EdgeIndex, cfg Config) (mesh.VertexIndex, bool) {
	m := surf.Mesh
	ends, ok := m.Edge(e)
	if !ok {
		return 0, false
	}
	a, b := ends[0], ends[1]
	tris := append([]int(nil), m.EdgeTriangles(e)...)

	opposite := make([]r3.Vec, 0, 2)
	for _, t := range tris {
		tri, ok := m.Triangle(t)
		if !ok {
			continue
		}
		for _, v := range tri {
			if v != a && v != b {
				opposite = append(opposite, surf.Position(v))
			}
		}
	}

	pos := cfg.scheme().SplitPosition(surf.Position(a), surf.Position(b), opposite)
	mass := 0.5 * (surf.Mass(a) + surf.Mass(b))
	solid := surf.IsSolid(a) && surf.IsSolid(b)

	tx := newTxn(surf)
	v := surf.AddVertex(pos, mass, solid)
	tx.record(func() { _ = surf.Mesh.RemoveVertex(v) })

	for _, t := range tris {
		tri, ok := m.Triangle(t)
		if !ok {
			continue
		}
		if err := surf.RemoveTriangle(t); err != nil {
			continue
		}
		tx.record(restoreTriangle(surf, tri))

		t1, err1 := surf.AddTriangle(orientReplacing(tri, b, v))
		if err1 == nil {
			tx.record(func() { _ = surf.RemoveTriangle(t1) })
		}
		t2, err2 := surf.AddTriangle(orientReplacing(tri, a, v))
		if err2 == nil {
			tx.record(func() { _ = surf.RemoveTriangle(t2) })
		}
	}

	if !tx.commitOrRollback() {
		return 0, false
	}
	return v, true
}

// orientReplacing returns the three vertex arguments for AddTriangle
// with old replaced by v, preserving winding order.
func orientReplacing(tri [3]int, old, v int) (int, int, int) {
	out := tri
	for i, x := range out {
		if x == old {
			out[i] = v
		}
	}
	return out[0], out[1], out[2]
}

func restoreTriangle(surf *surface.Surface, tri [3]int) func() {
	return func() {
		_, _ = surf.AddTriangle(tri[0], tri[1], tri[2])
	}
}

// Collapse merges edge e's two endpoints to a single vertex at the
// midpoint, deleting the (up to two) triangles that degenerate and
// re-adding every other triangle incident to b with b replaced by a.
// Rejects the collapse if it would fuse two non-adjacent regions of
// the mesh through other's one-ring (edgeLinkConditionHolds), flip a
// retriangulated triangle's orientation, or fail to re-add a
// retriangulated triangle at all (e.g. mesh.ErrNonManifoldEdge because
// the rerouted edge would gain a third incident triangle) — any of
// these aborts the whole operation and rolls back, rather than
// committing a mesh with a silently dropped triangle. Reports whether
// the collapse committed.
func Collapse(surf *surface.Surface, e mesh.EdgeIndex, cfg Config) bool {
	m := surf.Mesh
	ends, ok := m.Edge(e)
	if !ok {
		return false
	}
	a, b := ends[0], ends[1]
	if surf.IsSolid(a) && surf.IsSolid(b) {
		return false // neither endpoint can move
	}
	if !edgeLinkConditionHolds(m, e, a, b) {
		return false // collapsing would fuse non-adjacent regions of the mesh
	}

	tx := newTxn(surf)
	target := a
	if surf.IsSolid(b) {
		target = b // collapse onto the solid endpoint, leaving it immobile
	}
	newPos := r3.Scale(0.5, r3.Add(surf.Position(a), surf.Position(b)))
	if surf.IsSolid(a) || surf.IsSolid(b) {
		newPos = surf.Position(target)
	}
	other := b
	if target == b {
		other = a
	}

	if cfg.MaxVolumeChange > 0 {
		if math.Abs(vertexMoveVolumeChange(surf, m, target, newPos)) > cfg.MaxVolumeChange {
			return false
		}
	}

	oldPos := surf.Position(target)
	surf.SetPosition(target, newPos)
	tx.record(func() { surf.SetPosition(target, oldPos) })

	incident := append([]int(nil), m.VertexTriangles(other)...)
	for _, t := range incident {
		tri, ok := m.Triangle(t)
		if !ok {
			continue
		}
		if containsBoth(tri, a, b) {
			if err := surf.RemoveTriangle(t); err == nil {
				tx.record(restoreTriangle(surf, tri))
			}
			continue
		}
		oldNormal := faceNormal(surf, tri)
		i, j, k := orientReplacing(tri, other, target)
		newTri := [3]int{i, j, k}
		if r3.Norm(oldNormal) > 1e-15 {
			if newNormal := faceNormal(surf, newTri); r3.Norm(newNormal) > 1e-15 && r3.Dot(oldNormal, newNormal) <= 0 {
				tx.rollback()
				return false // retriangulation would invert this triangle
			}
		}
		if err := surf.RemoveTriangle(t); err != nil {
			continue
		}
		tx.record(restoreTriangle(surf, tri))
		nt, err := surf.AddTriangle(i, j, k)
		if err != nil {
			tx.rollback()
			return false
		}
		tx.record(func() { _ = surf.RemoveTriangle(nt) })
	}

	if !tx.commitOrRollback() {
		return false
	}
	if len(m.VertexTriangles(other)) == 0 {
		_ = m.RemoveVertex(other)
	}
	return true
}

// edgeLinkConditionHolds implements the standard edge-collapse link
// condition: the only vertices adjacent to both a and b may be the
// (up to two) third vertices of e's own incident triangles. A common
// neighbor outside that set means a and b's one-rings already touch
// through some other path, and collapsing them would weld that path
// onto the new vertex too, fusing two regions of the mesh that aren't
// actually adjacent along e.
func edgeLinkConditionHolds(m *mesh.Mesh, e mesh.EdgeIndex, a, b int) bool {
	expected := map[int]bool{}
	for _, t := range m.EdgeTriangles(e) {
		tri, ok := m.Triangle(t)
		if !ok {
			continue
		}
		if w := thirdVertex(tri, a, b); w >= 0 {
			expected[w] = true
		}
	}
	bRing := map[int]bool{}
	for _, v := range oneRing(m, b) {
		bRing[v] = true
	}
	for _, v := range oneRing(m, a) {
		if v == a || v == b {
			continue
		}
		if bRing[v] && !expected[v] {
			return false
		}
	}
	return true
}

// vertexMoveVolumeChange estimates the signed volume swept by moving
// vertex v to newPos while holding its neighbors fixed, via the
// divergence-theorem identity that a closed mesh's volume is
// (1/6)*sum_tri a.(b x c): only the triangles incident to v have a
// term depending on v's position, so the change is the sum of
// delta.(b x c)/6 over those triangles (b, c the other two vertices,
// in the triangle's own winding order).
func vertexMoveVolumeChange(surf *surface.Surface, m *mesh.Mesh, v mesh.VertexIndex, newPos r3.Vec) float64 {
	delta := r3.Sub(newPos, surf.Position(v))
	var vol float64
	for _, t := range m.VertexTriangles(v) {
		tri, ok := m.Triangle(t)
		if !ok {
			continue
		}
		rotated := rotateToFront(tri, v)
		b, c := surf.Position(rotated[1]), surf.Position(rotated[2])
		vol += r3.Dot(delta, r3.Cross(b, c)) / 6
	}
	return vol
}

func rotateToFront(tri [3]int, v int) [3]int {
	switch v {
	case tri[1]:
		return [3]int{tri[1], tri[2], tri[0]}
	case tri[2]:
		return [3]int{tri[2], tri[0], tri[1]}
	default:
		return tri
	}
}

func containsBoth(tri [3]int, a, b int) bool {
	hasA, hasB := false, false
	for _, v := range tri {
		if v == a {
			hasA = true
		}
		if v == b {
			hasB = true
		}
	}
	return hasA && hasB
}

// Flip swaps edge e's diagonal: if e is shared by triangles (a,b,c)
// and (a,b,d) it becomes the edge (c,d), producing triangles (a,c,d)
// and (b,c,d) instead.
func Flip(surf *surface.Surface, e mesh.EdgeIndex) bool {
	m := surf.Mesh
	ends, ok := m.Edge(e)
	if !ok {
		return false
	}
	a, b := ends[0], ends[1]
	tris := m.EdgeTriangles(e)
	if len(tris) != 2 {
		return false // flip only makes sense on a manifold interior edge
	}
	tri1, _ := m.Triangle(tris[0])
	tri2, _ := m.Triangle(tris[1])
	c := thirdVertex(tri1, a, b)
	d := thirdVertex(tri2, a, b)
	if c < 0 || d < 0 {
		return false
	}

	tx := newTxn(surf)
	if err := surf.RemoveTriangle(tris[0]); err != nil {
		return false
	}
	tx.record(restoreTriangle(surf, tri1))
	if err := surf.RemoveTriangle(tris[1]); err != nil {
		tx.rollback()
		return false
	}
	tx.record(restoreTriangle(surf, tri2))

	if t1, err := surf.AddTriangle(a, c, d); err == nil {
		tx.record(func() { _ = surf.RemoveTriangle(t1) })
	}
	if t2, err := surf.AddTriangle(b, d, c); err == nil {
		tx.record(func() { _ = surf.RemoveTriangle(t2) })
	}

	return tx.commitOrRollback()
}

func thirdVertex(tri [3]int, a, b int) int {
	for _, v := range tri {
		if v != a && v != b {
			return v
		}
	}
	return -1
}

// Smooth moves vertex v a fraction cfg.SmoothRate of the way toward
// the unweighted average position of its one-ring neighbors, projected back
// onto the vertex's local tangent plane so the surface doesn't drift
// along its own normal.
func Smooth(surf *surface.Surface, v mesh.VertexIndex, cfg Config) bool {
	if surf.IsSolid(v) {
		return false
	}
	m := surf.Mesh
	neighbors := oneRing(m, v)
	if len(neighbors) == 0 {
		return false
	}
	var centroid r3.Vec
	for _, n := range neighbors {
		centroid = r3.Add(centroid, surf.Position(n))
	}
	centroid = r3.Scale(1/float64(len(neighbors)), centroid)

	normal := vertexNormal(surf, m, v)
	p := surf.Position(v)
	delta := r3.Sub(centroid, p)
	if nrm := r3.Norm(normal); nrm > 1e-15 {
		unit := r3.Scale(1/nrm, normal)
		delta = r3.Sub(delta, r3.Scale(r3.Dot(delta, unit), unit))
	}
	rate := cfg.SmoothRate
	if rate <= 0 {
		rate = 0.5
	}
	newPos := r3.Add(p, r3.Scale(rate, delta))

	tx := newTxn(surf)
	surf.SetPosition(v, newPos)
	tx.record(func() { surf.SetPosition(v, p) })
	return tx.commitOrRollback()
}

func oneRing(m *mesh.Mesh, v mesh.VertexIndex) []int {
	seen := map[int]bool{}
	var out []int
	for _, e := range m.VertexEdges(v) {
		ends, ok := m.Edge(e)
		if !ok {
			continue
		}
		other := ends[0]
		if other == v {
			other = ends[1]
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

func vertexNormal(surf *surface.Surface, m *mesh.Mesh, v mesh.VertexIndex) r3.Vec {
	var n r3.Vec
	for _, t := range m.VertexTriangles(v) {
		tri, ok := m.Triangle(t)
		if !ok {
			continue
		}
		a, b, c := surf.Position(tri[0]), surf.Position(tri[1]), surf.Position(tri[2])
		n = r3.Add(n, r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
	}
	return n
}

func (cfg Config) scheme() SubdivisionScheme {
	if cfg.Scheme == nil {
		return LinearMidpoint{}
	}
	return cfg.Scheme
}
