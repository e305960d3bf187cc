package remesh

import (
	"github.com/soypat/surftrack/mesh"
	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/spatial/r3"
)

// PartitionVertexNeighbourhood groups vertex v's incident triangles
// into connected components under face adjacency (two triangles are
// adjacent if they share an edge). A vertex whose neighbourhood has
// more than one component is a non-manifold pinch point: the surface
// touches itself there without actually being connected through that
// vertex.
//
// This is a direct port of the two-stack (unvisited/visited)
// depth-first walk the reference mesh pincher uses rather than a
// generic graph-library traversal, since triangle adjacency here is
// already a cheap O(1) mesh query (Mesh.TrianglesAreAdjacent).
func PartitionVertexNeighbourhood(m *mesh.Mesh, v mesh.VertexIndex) [][]int {
	remaining := append([]int(nil), m.VertexTriangles(v)...)
	var components [][]int

	for len(remaining) > 0 {
		var unvisited, visited []int
		unvisited = append(unvisited, remaining[len(remaining)-1])

		for len(unvisited) > 0 {
			curr := unvisited[len(unvisited)-1]
			unvisited = unvisited[:len(unvisited)-1]
			remaining = removeInt(remaining, curr)
			visited = append(visited, curr)

			for _, candidate := range remaining {
				if candidate == curr {
					continue
				}
				if m.TrianglesAreAdjacent(curr, candidate) && !containsInt(unvisited, candidate) && !containsInt(visited, candidate) {
					unvisited = append(unvisited, candidate)
				}
			}
		}
		components = append(components, visited)
	}
	return components
}

func removeInt(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// componentCentroid averages the positions of every vertex (other than
// the pinch point itself) across a component's triangles, the local
// point each of that component's copies is pulled toward.
func componentCentroid(surf *surface.Surface, m *mesh.Mesh, v mesh.VertexIndex, comp []int) (r3.Vec, bool) {
	var sum r3.Vec
	var n int
	for _, t := range comp {
		tri, ok := m.Triangle(t)
		if !ok {
			continue
		}
		for _, w := range tri {
			if w == v {
				continue
			}
			sum = r3.Add(sum, surf.Position(w))
			n++
		}
	}
	if n == 0 {
		return r3.Vec{}, false
	}
	return r3.Scale(1/float64(n), sum), true
}

// pulledToward returns pos displaced by dist toward target, or pos
// unchanged if pos and target coincide (nothing to pull away from).
func pulledToward(pos, target r3.Vec, dist float64) r3.Vec {
	dir := r3.Sub(target, pos)
	norm := r3.Norm(dir)
	if norm < 1e-15 {
		return pos
	}
	return r3.Add(pos, r3.Scale(dist/norm, dir))
}

// Pinch separates vertex v into one copy per connected component in its
// triangle neighbourhood: the original vertex is repurposed as the
// first component's copy and a new vertex is added per remaining
// component, routing that component's triangles to it. Every copy,
// including the repurposed original, is then pulled 10*proximityEpsilon
// toward its own component's centroid so the split copies are no
// longer exactly coincident (an immediately re-collapsible degeneracy
// the very next proximity pass would otherwise have to undo). Reports
// the duplicate vertices created (empty if v was already manifold,
// i.e. had a single component).
func Pinch(surf *surface.Surface, v mesh.VertexIndex, proximityEpsilon float64) []mesh.VertexIndex {
	m := surf.Mesh
	components := PartitionVertexNeighbourhood(m, v)
	if len(components) <= 1 {
		return nil
	}

	tx := newTxn(surf)
	var duplicates []mesh.VertexIndex
	pos, mass, solid := surf.Position(v), surf.Mass(v), surf.IsSolid(v)
	pullDist := 10 * proximityEpsilon

	if centroid, ok := componentCentroid(surf, m, v, components[0]); ok {
		newPos := pulledToward(pos, centroid, pullDist)
		oldPos := pos
		surf.SetPosition(v, newPos)
		tx.record(func() { surf.SetPosition(v, oldPos) })
	}

	for _, comp := range components[1:] {
		// Centroid must be computed from comp's original triangles (the
		// ones still referencing v) before they're rerouted to dup below.
		centroid, hasCentroid := componentCentroid(surf, m, v, comp)

		dup := surf.AddVertex(pos, mass, solid)
		tx.record(func() { _ = surf.Mesh.RemoveVertex(dup) })
		duplicates = append(duplicates, dup)

		for _, t := range comp {
			tri, ok := m.Triangle(t)
			if !ok {
				continue
			}
			if err := surf.RemoveTriangle(t); err != nil {
				continue
			}
			tx.record(restoreTriangle(surf, tri))
			nt, err := surf.AddTriangle(orientReplacing(tri, v, dup))
			if err != nil {
				// Rerouting this triangle onto dup failed (e.g. a
				// non-manifold edge); committing anyway would silently
				// drop a triangle and leave a hole, so abort entirely.
				tx.rollback()
				return nil
			}
			tx.record(func() { _ = surf.RemoveTriangle(nt) })
		}

		if hasCentroid {
			newPos := pulledToward(pos, centroid, pullDist)
			oldPos := pos
			surf.SetPosition(dup, newPos)
			tx.record(func() { surf.SetPosition(dup, oldPos) })
		}
	}

	if !tx.commitOrRollback() {
		return nil
	}
	return duplicates
}
