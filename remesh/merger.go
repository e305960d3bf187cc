package remesh

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/soypat/surftrack/internal/geomutil"
	"github.com/soypat/surftrack/mesh"
	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/spatial/r3"
)

// componentBox is an rtreego.Spatial wrapping one connected component's
// triangle list and its axis-aligned bounding box, so the package-level
// uniform grid (sized for local edge length) doesn't have to be asked
// to answer a query across two sheets that may be meters apart.
type componentBox struct {
	triangles []int
	box       geomutil.Box
	rect      *rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (c *componentBox) Bounds() *rtreego.Rect { return c.rect }

// connectedComponents partitions every live triangle into groups
// connected by shared edges (Mesh.TrianglesAreAdjacent).
func connectedComponents(m *mesh.Mesh) [][]int {
	visited := make(map[int]bool)
	var components [][]int
	for t := 0; t < m.NumTriangleSlots(); t++ {
		if !m.TriangleIsLive(t) || visited[t] {
			continue
		}
		var comp []int
		stack := []int{t}
		visited[t] = true
		for len(stack) > 0 {
			curr := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, curr)
			edges := m.TriangleEdges(curr)
			for _, e := range edges {
				for _, other := range m.EdgeTriangles(e) {
					if !visited[other] {
						visited[other] = true
						stack = append(stack, other)
					}
				}
			}
		}
		components = append(components, comp)
	}
	return components
}

func boundsOf(surf *surface.Surface, triangles []int) geomutil.Box {
	var box geomutil.Box
	first := true
	for _, t := range triangles {
		tri, ok := surf.Mesh.Triangle(t)
		if !ok {
			continue
		}
		tbox := geomutil.BoxOfTriangle(surf.Position(tri[0]), surf.Position(tri[1]), surf.Position(tri[2]))
		if first {
			box = tbox
			first = false
		} else {
			box = box.Extend(tbox)
		}
	}
	return box
}

func toRtreeRect(b geomutil.Box, padding float64) (*rtreego.Rect, error) {
	size := b.Size()
	pt := rtreego.Point{b.Min.X - padding, b.Min.Y - padding, b.Min.Z - padding}
	lengths := []float64{size.X + 2*padding, size.Y + 2*padding, size.Z + 2*padding}
	for i, l := range lengths {
		if l <= 0 {
			lengths[i] = 1e-9
		}
	}
	return rtreego.NewRect(pt, lengths)
}

// ComponentPair identifies two disconnected components whose padded
// bounding boxes overlap, a candidate for the merger to examine more
// closely.
type ComponentPair struct {
	A, B []int // triangle indices belonging to each component
}

// FindMergeCandidates partitions the mesh into connected components
// and returns every pair whose bounding boxes (padded by
// proximityRadius) overlap, using an R-tree over component boxes built
// once per call rather than an O(n^2) box comparison.
func FindMergeCandidates(surf *surface.Surface, proximityRadius float64) []ComponentPair {
	components := connectedComponents(surf.Mesh)
	if len(components) < 2 {
		return nil
	}

	tree := rtreego.NewTree(3, 2, 8)
	boxes := make([]*componentBox, len(components))
	for i, comp := range components {
		box := boundsOf(surf, comp)
		rect, err := toRtreeRect(box, proximityRadius)
		if err != nil {
			continue
		}
		cb := &componentBox{triangles: comp, box: box, rect: rect}
		boxes[i] = cb
		tree.Insert(cb)
	}

	seen := map[[2]int]bool{}
	var pairs []ComponentPair
	for i, cb := range boxes {
		if cb == nil {
			continue
		}
		for _, hit := range tree.SearchIntersect(cb.rect) {
			other, ok := hit.(*componentBox)
			if !ok || other == cb {
				continue
			}
			j := indexOf(boxes, other)
			if j < 0 || i == j {
				continue
			}
			key := [2]int{i, j}
			if i > j {
				key = [2]int{j, i}
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, ComponentPair{A: cb.triangles, B: other.triangles})
		}
	}
	return pairs
}

func indexOf(boxes []*componentBox, target *componentBox) int {
	for i, b := range boxes {
		if b == target {
			return i
		}
	}
	return -1
}

// vertexNormalEstimate averages the face normals of every triangle
// incident to v: a cheap per-vertex normal proxy, ok=false if v has no
// incident triangles to average.
func vertexNormalEstimate(surf *surface.Surface, m *mesh.Mesh, v mesh.VertexIndex) (r3.Vec, bool) {
	var sum r3.Vec
	var n int
	for _, t := range m.VertexTriangles(v) {
		tri, ok := m.Triangle(t)
		if !ok {
			continue
		}
		sum = r3.Add(sum, faceNormal(surf, tri))
		n++
	}
	if n == 0 {
		return r3.Vec{}, false
	}
	return r3.Scale(1/float64(n), sum), true
}

// normalsCompatible rejects welding two vertices whose local surfaces
// face away from each other, which would stitch the two sheets into a
// seam with reversed winding on one side instead of a consistently
// oriented join. A vertex with no incident triangles yet (nothing to
// compare against) is treated as compatible.
func normalsCompatible(surf *surface.Surface, m *mesh.Mesh, a, b mesh.VertexIndex) bool {
	na, ok1 := vertexNormalEstimate(surf, m, a)
	nb, ok2 := vertexNormalEstimate(surf, m, b)
	if !ok1 || !ok2 {
		return true
	}
	return r3.Dot(na, nb) > 0
}

// boundaryNeighbors returns, for every boundary edge (exactly one
// incident triangle) touching v, the vertex at its far end — the open
// rim of the patch around v that a bridge triangle can attach to.
func boundaryNeighbors(m *mesh.Mesh, v mesh.VertexIndex) []mesh.VertexIndex {
	var out []mesh.VertexIndex
	for _, e := range m.VertexEdges(v) {
		if len(m.EdgeTriangles(e)) != 1 {
			continue
		}
		ends, ok := m.Edge(e)
		if !ok {
			continue
		}
		far := ends[0]
		if far == v {
			far = ends[1]
		}
		out = append(out, far)
	}
	return out
}

// matchBoundaryNeighbors greedily pairs each vertex in as with its
// nearest not-yet-used vertex in bs, the correspondence a zipper walks
// when stitching one rim to another.
func matchBoundaryNeighbors(surf *surface.Surface, as, bs []mesh.VertexIndex) [][2]mesh.VertexIndex {
	var pairs [][2]mesh.VertexIndex
	used := make(map[int]bool, len(bs))
	for _, p := range as {
		best, bestDist := -1, math.Inf(1)
		for i, q := range bs {
			if used[i] {
				continue
			}
			if d := r3.Norm(r3.Sub(surf.Position(p), surf.Position(q))); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best >= 0 {
			used[best] = true
			pairs = append(pairs, [2]mesh.VertexIndex{p, bs[best]})
		}
	}
	return pairs
}

// Weld merges vertex b into vertex a (or a into b when b is solid) when
// the two belong to different components a plain edge Collapse cannot
// reach; the surviving vertex moves to their midpoint only when neither
// is solid. Rejects the weld outright if the two vertices' local surfaces
// face away from each other (normalsCompatible). Re-adds every
// triangle incident to the merged-away vertex with it replaced by the
// survivor, which joins the two
// components at a shared vertex, and additionally zips the open rim
// around each vertex together by adding one bridge triangle per
// matched pair of boundary neighbours, producing new connective
// geometry across the gap rather than merely deleting b's patch onto
// a. Reports whether the weld committed.
func Weld(surf *surface.Surface, a, b mesh.VertexIndex) bool {
	if a == b {
		return false
	}
	m := surf.Mesh
	if surf.IsSolid(a) && surf.IsSolid(b) {
		return false
	}
	if !normalsCompatible(surf, m, a, b) {
		return false
	}

	tx := newTxn(surf)
	target := a
	if surf.IsSolid(b) {
		target = b
	}
	other := b
	if target == b {
		other = a
	}

	// Boundary neighbours must be read before anything below mutates
	// the mesh, while target and other's rims still reflect their
	// original, disconnected components.
	targetRim := boundaryNeighbors(m, target)
	otherRim := boundaryNeighbors(m, other)
	bridgePairs := matchBoundaryNeighbors(surf, targetRim, otherRim)

	oldPos := surf.Position(target)
	if !surf.IsSolid(a) && !surf.IsSolid(b) {
		mid := r3.Scale(0.5, r3.Add(surf.Position(a), surf.Position(b)))
		surf.SetPosition(target, mid)
		tx.record(func() { surf.SetPosition(target, oldPos) })
	}

	incident := append([]int(nil), m.VertexTriangles(other)...)
	for _, t := range incident {
		tri, ok := m.Triangle(t)
		if !ok {
			continue
		}
		if err := surf.RemoveTriangle(t); err != nil {
			continue
		}
		tx.record(restoreTriangle(surf, tri))
		i, j, k := orientReplacing(tri, other, target)
		nt, err := surf.AddTriangle(i, j, k)
		if err != nil {
			// Rerouting this triangle onto target failed; committing
			// anyway would silently drop a triangle and leave a hole.
			tx.rollback()
			return false
		}
		tx.record(func() { _ = surf.RemoveTriangle(nt) })
	}

	for _, pair := range bridgePairs {
		p, q := pair[0], pair[1]
		if p == q || p == target || q == target {
			continue
		}
		nt, err := surf.AddTriangle(target, p, q)
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
