// Package broadphase implements a broad-phase collision index backed
// by six grid package instances keyed on {vertex, edge, triangle} x
// {solid, dynamic}, a concrete six-field structure rather than a
// generic (kind, solidity) map.
package broadphase

import (
	"github.com/soypat/surftrack/grid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Source is implemented by the owner of mesh geometry (surface.Surface)
// so BroadPhase can rebuild itself without importing that package.
// Bounds methods return ok=false for tombstoned/absent indices, which
// Rebuild skips.
type Source interface {
	NumVertexSlots() int
	NumEdgeSlots() int
	NumTriangleSlots() int

	VertexBounds(i int, continuous bool, padding float64) (low, high r3.Vec, solid, ok bool)
	EdgeBounds(i int, continuous bool, padding float64) (low, high r3.Vec, solid, ok bool)
	TriangleBounds(i int, continuous bool, padding float64) (low, high r3.Vec, solid, ok bool)

	// LengthScale is used to size grid cells; typically the average edge length.
	LengthScale() float64
}

// BroadPhase is a six-grid broad-phase index.
type BroadPhase struct {
	solidVertexGrid   *grid.Grid
	solidEdgeGrid     *grid.Grid
	solidTriangleGrid *grid.Grid

	dynamicVertexGrid   *grid.Grid
	dynamicEdgeGrid     *grid.Grid
	dynamicTriangleGrid *grid.Grid

	padding float64
}

// New returns an empty BroadPhase. padding is passed to the Source's
// bounds methods by Rebuild and reported by Padding; the Add*, Update*
// and Query* methods use the boxes they are given without padding them.
func New(padding float64) *BroadPhase {
	origin := r3.Vec{}
	return &BroadPhase{
		solidVertexGrid:     grid.New(1, origin),
		solidEdgeGrid:       grid.New(1, origin),
		solidTriangleGrid:   grid.New(1, origin),
		dynamicVertexGrid:   grid.New(1, origin),
		dynamicEdgeGrid:     grid.New(1, origin),
		dynamicTriangleGrid: grid.New(1, origin),
		padding:             padding,
	}
}

func (bp *BroadPhase) vertexGrid(solid bool) *grid.Grid {
	if solid {
		return bp.solidVertexGrid
	}
	return bp.dynamicVertexGrid
}

func (bp *BroadPhase) edgeGrid(solid bool) *grid.Grid {
	if solid {
		return bp.solidEdgeGrid
	}
	return bp.dynamicEdgeGrid
}

func (bp *BroadPhase) triangleGrid(solid bool) *grid.Grid {
	if solid {
		return bp.solidTriangleGrid
	}
	return bp.dynamicTriangleGrid
}

// AddVertex registers a vertex AABB.
func (bp *BroadPhase) AddVertex(i int, low, high r3.Vec, solid bool) {
	bp.vertexGrid(solid).Add(i, low, high)
}

// AddEdge registers an edge AABB.
func (bp *BroadPhase) AddEdge(i int, low, high r3.Vec, solid bool) {
	bp.edgeGrid(solid).Add(i, low, high)
}

// AddTriangle registers a triangle AABB.
func (bp *BroadPhase) AddTriangle(i int, low, high r3.Vec, solid bool) {
	bp.triangleGrid(solid).Add(i, low, high)
}

// UpdateVertex updates a vertex's AABB, keeping the grids coherent
// with incremental mesh edits.
func (bp *BroadPhase) UpdateVertex(i int, low, high r3.Vec, solid bool) {
	bp.vertexGrid(solid).Update(i, low, high)
}

// UpdateEdge updates an edge's AABB.
func (bp *BroadPhase) UpdateEdge(i int, low, high r3.Vec, solid bool) {
	bp.edgeGrid(solid).Update(i, low, high)
}

// UpdateTriangle updates a triangle's AABB.
func (bp *BroadPhase) UpdateTriangle(i int, low, high r3.Vec, solid bool) {
	bp.triangleGrid(solid).Update(i, low, high)
}

// RemoveVertex removes a vertex from both the solid and dynamic grids
// (mirroring broadphasegrid.h's remove_vertex, which does not need to
// know solidity to remove).
func (bp *BroadPhase) RemoveVertex(i int) {
	bp.solidVertexGrid.Remove(i)
	bp.dynamicVertexGrid.Remove(i)
}

// RemoveEdge removes an edge from both grids.
func (bp *BroadPhase) RemoveEdge(i int) {
	bp.solidEdgeGrid.Remove(i)
	bp.dynamicEdgeGrid.Remove(i)
}

// RemoveTriangle removes a triangle from both grids.
func (bp *BroadPhase) RemoveTriangle(i int) {
	bp.solidTriangleGrid.Remove(i)
	bp.dynamicTriangleGrid.Remove(i)
}

// QueryVertices returns vertices whose AABB overlaps [low,high],
// unioning the solid and/or dynamic grid per the return flags.
func (bp *BroadPhase) QueryVertices(low, high r3.Vec, returnSolid, returnDynamic bool) []int {
	return bp.query(bp.solidVertexGrid, bp.dynamicVertexGrid, low, high, returnSolid, returnDynamic)
}

// QueryEdges returns edges whose AABB overlaps [low,high].
func (bp *BroadPhase) QueryEdges(low, high r3.Vec, returnSolid, returnDynamic bool) []int {
	return bp.query(bp.solidEdgeGrid, bp.dynamicEdgeGrid, low, high, returnSolid, returnDynamic)
}

// QueryTriangles returns triangles whose AABB overlaps [low,high].
func (bp *BroadPhase) QueryTriangles(low, high r3.Vec, returnSolid, returnDynamic bool) []int {
	return bp.query(bp.solidTriangleGrid, bp.dynamicTriangleGrid, low, high, returnSolid, returnDynamic)
}

func (bp *BroadPhase) query(solidGrid, dynamicGrid *grid.Grid, low, high r3.Vec, returnSolid, returnDynamic bool) []int {
	var out []int
	if returnSolid {
		out = append(out, solidGrid.FindOverlapping(low, high)...)
	}
	if returnDynamic {
		out = append(out, dynamicGrid.FindOverlapping(low, high)...)
	}
	return out
}

// Padding returns the AABB padding this broad phase was constructed with.
func (bp *BroadPhase) Padding() float64 { return bp.padding }

// Rebuild discards all six grids and bulk-inserts from src, in either
// static mode (AABB at x) or continuous mode (AABB of the union of x
// and x').
func (bp *BroadPhase) Rebuild(src Source, continuous bool) {
	ls := src.LengthScale()
	bp.solidVertexGrid = rebuildOne(src.NumVertexSlots(), func(i int) (r3.Vec, r3.Vec, bool, bool) {
		return src.VertexBounds(i, continuous, bp.padding)
	}, true, ls, bp.padding)
	bp.dynamicVertexGrid = rebuildOne(src.NumVertexSlots(), func(i int) (r3.Vec, r3.Vec, bool, bool) {
		return src.VertexBounds(i, continuous, bp.padding)
	}, false, ls, bp.padding)

	bp.solidEdgeGrid = rebuildOne(src.NumEdgeSlots(), func(i int) (r3.Vec, r3.Vec, bool, bool) {
		return src.EdgeBounds(i, continuous, bp.padding)
	}, true, ls, bp.padding)
	bp.dynamicEdgeGrid = rebuildOne(src.NumEdgeSlots(), func(i int) (r3.Vec, r3.Vec, bool, bool) {
		return src.EdgeBounds(i, continuous, bp.padding)
	}, false, ls, bp.padding)

	bp.solidTriangleGrid = rebuildOne(src.NumTriangleSlots(), func(i int) (r3.Vec, r3.Vec, bool, bool) {
		return src.TriangleBounds(i, continuous, bp.padding)
	}, true, ls, bp.padding)
	bp.dynamicTriangleGrid = rebuildOne(src.NumTriangleSlots(), func(i int) (r3.Vec, r3.Vec, bool, bool) {
		return src.TriangleBounds(i, continuous, bp.padding)
	}, false, ls, bp.padding)
}

func rebuildOne(n int, bounds func(i int) (low, high r3.Vec, solid, ok bool), wantSolid bool, lengthScale, padding float64) *grid.Grid {
	ids := make([]int, 0, n)
	lows := make([]r3.Vec, 0, n)
	highs := make([]r3.Vec, 0, n)
	for i := 0; i < n; i++ {
		low, high, solid, ok := bounds(i)
		if !ok || solid != wantSolid {
			continue
		}
		ids = append(ids, i)
		lows = append(lows, low)
		highs = append(highs, high)
	}
	g := grid.New(1, r3.Vec{})
	if len(ids) == 0 {
		return g
	}
	g.Build(ids, lows, highs, lengthScale, padding)
	return g
}
