// Package grid implements the uniform spatial acceleration grid
// described by spec component C4: a uniform 3D grid indexed by integer
// cell coordinates, each cell holding a compact set of element indices.
package grid

import (
	"math"

	"github.com/soypat/surftrack/internal/geomutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// cellCoord is an integer grid cell coordinate, used as a map key.
type cellCoord struct{ X, Y, Z int32 }

// Grid is a uniform grid over integer cell coordinates. Elements are
// registered with their AABB; Grid computes and tracks which cells
// each element's AABB overlaps so Remove/Update can undo a prior Add
// without rescanning the whole structure.
type Grid struct {
	h      float64 // cell size
	origin r3.Vec

	cells map[cellCoord][]int

	// per-id bookkeeping, grown lazily; live[id] is false for
	// never-added or removed ids.
	low, high []r3.Vec
	occupied  [][]cellCoord
	live      []bool
}

// New returns a Grid with the given cell size and origin. h must be > 0.
func New(cellSize float64, origin r3.Vec) *Grid {
	if cellSize <= 0 {
		panic("grid: cellSize must be positive")
	}
	return &Grid{
		h:      cellSize,
		origin: origin,
		cells:  make(map[cellCoord][]int),
	}
}

// CellSize returns the grid's cell edge length.
func (g *Grid) CellSize() float64 { return g.h }

func (g *Grid) cellOf(p r3.Vec) cellCoord {
	return cellCoord{
		X: int32(math.Floor((p.X - g.origin.X) / g.h)),
		Y: int32(math.Floor((p.Y - g.origin.Y) / g.h)),
		Z: int32(math.Floor((p.Z - g.origin.Z) / g.h)),
	}
}

func (g *Grid) ensureCapacity(id int) {
	if id < len(g.live) {
		return
	}
	n := id + 1
	grow := func() {
		g.low = append(g.low, make([]r3.Vec, n-len(g.low))...)
		g.high = append(g.high, make([]r3.Vec, n-len(g.high))...)
		g.occupied = append(g.occupied, make([][]cellCoord, n-len(g.occupied))...)
		g.live = append(g.live, make([]bool, n-len(g.live))...)
	}
	grow()
}

// Add inserts id into every cell overlapped by [low,high]. Requires
// that id is not currently present: a removed id is never implicitly
// reused.
func (g *Grid) Add(id int, low, high r3.Vec) {
	g.ensureCapacity(id)
	if g.live[id] {
		panic("grid: Add called with an id already present")
	}
	g.insert(id, low, high)
}

func (g *Grid) insert(id int, low, high r3.Vec) {
	lo := g.cellOf(low)
	hi := g.cellOf(high)
	cells := make([]cellCoord, 0, int(hi.X-lo.X+1)*int(hi.Y-lo.Y+1)*int(hi.Z-lo.Z+1))
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				c := cellCoord{x, y, z}
				g.cells[c] = append(g.cells[c], id)
				cells = append(cells, c)
			}
		}
	}
	g.low[id] = low
	g.high[id] = high
	g.occupied[id] = cells
	g.live[id] = true
}

// Update moves id's registration to a new AABB. It is equivalent to
// Remove then Add but diffs cells when the AABB is unchanged, so the
// common case of a call with identical bounds is a no-op.
func (g *Grid) Update(id int, low, high r3.Vec) {
	if id >= len(g.live) || !g.live[id] {
		g.ensureCapacity(id)
		g.insert(id, low, high)
		return
	}
	if g.low[id] == low && g.high[id] == high {
		return // idempotent on unchanged AABB
	}
	g.removeFromCells(id)
	g.insert(id, low, high)
}

// Remove unregisters id from every cell it occupies. Safe to call if
// id is absent.
func (g *Grid) Remove(id int) {
	if id >= len(g.live) || !g.live[id] {
		return
	}
	g.removeFromCells(id)
	g.live[id] = false
	g.occupied[id] = nil
}

func (g *Grid) removeFromCells(id int) {
	for _, c := range g.occupied[id] {
		bucket := g.cells[c]
		for i, v := range bucket {
			if v == id {
				bucket[i] = bucket[len(bucket)-1]
				bucket = bucket[:len(bucket)-1]
				break
			}
		}
		if len(bucket) == 0 {
			delete(g.cells, c)
		} else {
			g.cells[c] = bucket
		}
	}
}

// FindOverlapping returns every id whose recorded AABB intersects
// [low,high], deduplicated.
func (g *Grid) FindOverlapping(low, high r3.Vec) []int {
	lo := g.cellOf(low)
	hi := g.cellOf(high)
	seen := make(map[int]struct{})
	var out []int
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				for _, id := range g.cells[cellCoord{x, y, z}] {
					if _, ok := seen[id]; ok {
						continue
					}
					box := geomutil.Box{Min: g.low[id], Max: g.high[id]}
					if box.Overlaps(geomutil.Box{Min: low, Max: high}) {
						seen[id] = struct{}{}
						out = append(out, id)
					}
				}
			}
		}
	}
	return out
}

// AABB returns the currently registered bounding box for id.
func (g *Grid) AABB(id int) (low, high r3.Vec, ok bool) {
	if id >= len(g.live) || !g.live[id] {
		return r3.Vec{}, r3.Vec{}, false
	}
	return g.low[id], g.high[id], true
}

// Build discards all existing state and bulk-inserts ids with the
// given AABBs. Cell size is chosen as a clamped multiple of
// lengthScale (an estimate of average element extent).
func (g *Grid) Build(ids []int, lows, highs []r3.Vec, lengthScale, padding float64) {
	h := lengthScale
	if h < 1e-8 {
		h = 1e-8
	}
	// Clamp to a sane range relative to padding so degenerate inputs
	// (near-zero length scale) don't produce a pathologically fine grid.
	if h < 2*padding {
		h = 2 * padding
	}
	g.h = h
	g.origin = r3.Vec{}
	g.cells = make(map[cellCoord][]int, len(ids))
	g.low = make([]r3.Vec, 0, len(ids))
	g.high = make([]r3.Vec, 0, len(ids))
	g.occupied = make([][]cellCoord, 0, len(ids))
	g.live = make([]bool, 0, len(ids))
	for i, id := range ids {
		g.ensureCapacity(id)
		g.insert(id, lows[i], highs[i])
	}
}
