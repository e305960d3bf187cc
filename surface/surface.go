// Package surface implements a dynamic triangle surface: a mesh plus
// the position/velocity/mass state aligned with its vertex indices,
// and the broad phase that indexes that geometry.
//
// Surface owns both the mesh and the broad phase (mirroring the
// original's ownership rule that no vertex position is mutated outside
// this layer) and implements broadphase.Source so a BroadPhase can
// rebuild itself purely from Surface's public accessors.
package surface

import (
	"github.com/soypat/surftrack/broadphase"
	"github.com/soypat/surftrack/internal/geomutil"
	"github.com/soypat/surftrack/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Surface is a non-destructive triangle mesh with per-vertex current
// position x, predicted position x', mass and solidity.
type Surface struct {
	Mesh *mesh.Mesh

	x      []r3.Vec
	xNew   []r3.Vec
	mass   []float64
	solid  []bool

	// Padding is added to every AABB this surface reports through
	// broadphase.Source (the aabb_padding parameter).
	Padding float64

	// LengthScaleHint seeds grid cell sizing when no edges exist yet.
	LengthScaleHint float64

	bp *broadphase.BroadPhase
}

// New returns an empty Surface. padding is the AABB padding applied to
// every bound reported to the broad phase.
func New(padding float64) *Surface {
	s := &Surface{
		Mesh:            mesh.New(),
		Padding:         padding,
		LengthScaleHint: 1,
		bp:              broadphase.New(padding),
	}
	return s
}

// BroadPhase returns the broad-phase index this surface maintains.
func (s *Surface) BroadPhase() *broadphase.BroadPhase { return s.bp }

// AddVertex creates a new vertex at position p with the given mass and
// solidity, also registering it (and, once triangles reference it, its
// incident edges/triangles) in the broad phase.
func (s *Surface) AddVertex(p r3.Vec, m float64, solid bool) mesh.VertexIndex {
	v := s.Mesh.AddVertex()
	s.x = append(s.x, p)
	s.xNew = append(s.xNew, p)
	s.mass = append(s.mass, m)
	s.solid = append(s.solid, solid)
	low, high, _, _ := s.VertexBounds(v, true, s.Padding)
	s.bp.AddVertex(v, low, high, solid)
	return v
}

// AddTriangle adds triangle (i,j,k) to the mesh and registers its
// edges/the triangle itself (if newly created) in the broad phase.
func (s *Surface) AddTriangle(i, j, k int) (mesh.TriangleIndex, error) {
	existingEdges := map[int]bool{}
	for _, e := range []struct{ a, b int }{{i, j}, {j, k}, {k, i}} {
		if idx, ok := s.Mesh.GetEdgeIndex(e.a, e.b); ok {
			existingEdges[idx] = true
		}
	}
	t, err := s.Mesh.AddTriangle(i, j, k)
	if err != nil {
		return t, err
	}
	solid := s.solid[i] && s.solid[j] && s.solid[k]
	low, high, _, _ := s.TriangleBounds(t, true, s.Padding)
	s.bp.AddTriangle(t, low, high, solid)
	for _, e := range s.Mesh.TriangleEdges(t) {
		if existingEdges[e] {
			continue
		}
		ends, _ := s.Mesh.Edge(e)
		edgeSolid := s.solid[ends[0]] && s.solid[ends[1]]
		elow, ehigh, _, _ := s.EdgeBounds(e, true, s.Padding)
		s.bp.AddEdge(e, elow, ehigh, edgeSolid)
	}
	return t, nil
}

// RemoveTriangle removes a triangle from the mesh and the broad phase,
// along with any edge the removal orphans.
func (s *Surface) RemoveTriangle(t mesh.TriangleIndex) error {
	edges := s.Mesh.TriangleEdges(t)
	if err := s.Mesh.RemoveTriangle(t); err != nil {
		return err
	}
	s.bp.RemoveTriangle(t)
	for _, e := range edges {
		if !s.Mesh.EdgeIsLive(e) {
			s.bp.RemoveEdge(e)
		}
	}
	return nil
}

// SetPosition sets the current position x of vertex v and refreshes
// its broad-phase bounds (the swept box of x and x').
func (s *Surface) SetPosition(v mesh.VertexIndex, p r3.Vec) {
	s.x[v] = p
	s.refreshVertexBounds(v)
}

// SetNewPosition sets the predicted position x' of vertex v and
// refreshes its broad-phase bounds (the swept box of x and x').
func (s *Surface) SetNewPosition(v mesh.VertexIndex, p r3.Vec) {
	s.xNew[v] = p
	s.refreshVertexBounds(v)
}

// SetAllNewPositions overwrites every vertex's predicted position,
// e.g. from an explicit Euler step x' = x + v*dt.
func (s *Surface) SetAllNewPositions(xNew []r3.Vec) {
	copy(s.xNew, xNew)
	for v := range s.xNew {
		if s.Mesh.VertexIsLive(v) {
			s.refreshVertexBounds(v)
		}
	}
}

// SetPositionsToNewPositions commits x' into x for every live vertex,
// the step C11 takes once the collision pipeline has accepted x'.
func (s *Surface) SetPositionsToNewPositions() {
	copy(s.x, s.xNew)
	for v := range s.x {
		if s.Mesh.VertexIsLive(v) {
			s.refreshVertexBounds(v)
		}
	}
}

// refreshVertexBounds pushes v's current swept (x-to-x') bounds, and
// those of every edge/triangle incident to it, into the broad phase.
// The bounds are always the continuous union of x and x', not just a
// box around x: HandleProximities/HandleCollisions query the broad
// phase against swept boxes on both sides of a pair (the moving
// primitive they're walking and the candidates they find), so a grid
// entry that only ever reflected x could miss a pair whose primitives
// cross paths only because both move during the step. A swept box is
// a superset of the static box at x, so every caller that only cares
// about x (e.g. Defrag's rebuild) stays correct, just conservative.
func (s *Surface) refreshVertexBounds(v mesh.VertexIndex) {
	solid := s.solid[v]
	low, high, _, _ := s.VertexBounds(v, true, s.Padding)
	s.bp.UpdateVertex(v, low, high, solid)
	for _, e := range s.Mesh.VertexEdges(v) {
		ends, ok := s.Mesh.Edge(e)
		if !ok {
			continue
		}
		esolid := s.solid[ends[0]] && s.solid[ends[1]]
		elow, ehigh, _, _ := s.EdgeBounds(e, true, s.Padding)
		s.bp.UpdateEdge(e, elow, ehigh, esolid)
	}
	for _, t := range s.Mesh.VertexTriangles(v) {
		tri, ok := s.Mesh.Triangle(t)
		if !ok {
			continue
		}
		tsolid := s.solid[tri[0]] && s.solid[tri[1]] && s.solid[tri[2]]
		tlow, thigh, _, _ := s.TriangleBounds(t, true, s.Padding)
		s.bp.UpdateTriangle(t, tlow, thigh, tsolid)
	}
}

// Position returns vertex v's current position x.
func (s *Surface) Position(v mesh.VertexIndex) r3.Vec { return s.x[v] }

// NewPosition returns vertex v's predicted position x'.
func (s *Surface) NewPosition(v mesh.VertexIndex) r3.Vec { return s.xNew[v] }

// Mass returns vertex v's mass.
func (s *Surface) Mass(v mesh.VertexIndex) float64 { return s.mass[v] }

// IsSolid reports whether vertex v has infinite inertia.
func (s *Surface) IsSolid(v mesh.VertexIndex) bool { return s.solid[v] }

// SetSolid changes vertex v's solidity flag, refreshing every
// broad-phase entry it affects since solidity controls which of the
// six grids a primitive lives in.
func (s *Surface) SetSolid(v mesh.VertexIndex, solid bool) {
	if s.solid[v] == solid {
		return
	}
	s.solid[v] = solid
	s.refreshVertexBounds(v)
}

// LengthScale estimates the average edge length, used to size grid
// cells. Falls back to LengthScaleHint when the mesh has no edges yet.
func (s *Surface) LengthScale() float64 {
	var sum float64
	var n int
	for e := 0; e < s.Mesh.NumEdgeSlots(); e++ {
		ends, ok := s.Mesh.Edge(e)
		if !ok {
			continue
		}
		sum += r3.Norm(r3.Sub(s.x[ends[1]], s.x[ends[0]]))
		n++
	}
	if n == 0 {
		return s.LengthScaleHint
	}
	return sum / float64(n)
}

// Defrag compacts the underlying mesh, dropping tombstoned slots, and
// reorders this surface's per-vertex state (position, predicted
// position, mass, solidity) to match. The broad phase is rebuilt from
// scratch afterward since every index it holds may have moved.
func (s *Surface) Defrag() mesh.Remap {
	remap := s.Mesh.Defrag()

	newX := make([]r3.Vec, s.Mesh.NumVertexSlots())
	newXNew := make([]r3.Vec, s.Mesh.NumVertexSlots())
	newMass := make([]float64, s.Mesh.NumVertexSlots())
	newSolid := make([]bool, s.Mesh.NumVertexSlots())
	for old, nu := range remap.Vertices {
		if nu < 0 {
			continue
		}
		newX[nu] = s.x[old]
		newXNew[nu] = s.xNew[old]
		newMass[nu] = s.mass[old]
		newSolid[nu] = s.solid[old]
	}
	s.x, s.xNew, s.mass, s.solid = newX, newXNew, newMass, newSolid

	// Rebuild with continuous=true so the defragmented grid matches the
	// swept-box invariant every incremental update (SetPosition et al.)
	// already maintains.
	s.bp.Rebuild(s, true)
	return remap
}

// NumVertexSlots implements broadphase.Source.
func (s *Surface) NumVertexSlots() int { return s.Mesh.NumVertexSlots() }

// NumEdgeSlots implements broadphase.Source.
func (s *Surface) NumEdgeSlots() int { return s.Mesh.NumEdgeSlots() }

// NumTriangleSlots implements broadphase.Source.
func (s *Surface) NumTriangleSlots() int { return s.Mesh.NumTriangleSlots() }

// VertexBounds implements broadphase.Source.
func (s *Surface) VertexBounds(i int, continuous bool, padding float64) (low, high r3.Vec, solid, ok bool) {
	if !s.Mesh.VertexIsLive(i) {
		return r3.Vec{}, r3.Vec{}, false, false
	}
	if continuous {
		box := geomutil.BoxOfSegment(s.x[i], s.xNew[i]).Pad(padding)
		low, high = box.Min, box.Max
	} else {
		low, high = s.vertexBoundsAt(i, s.x[i], padding)
	}
	return low, high, s.solid[i], true
}

// EdgeBounds implements broadphase.Source.
func (s *Surface) EdgeBounds(i int, continuous bool, padding float64) (low, high r3.Vec, solid, ok bool) {
	ends, ok := s.Mesh.Edge(i)
	if !ok {
		return r3.Vec{}, r3.Vec{}, false, false
	}
	a, b := ends[0], ends[1]
	var box geomutil.Box
	if continuous {
		box = geomutil.BoxOfSegment(s.x[a], s.x[b]).Extend(geomutil.BoxOfSegment(s.xNew[a], s.xNew[b]))
	} else {
		box = geomutil.BoxOfSegment(s.x[a], s.x[b])
	}
	box = box.Pad(padding)
	return box.Min, box.Max, s.solid[a] && s.solid[b], true
}

// TriangleBounds implements broadphase.Source.
func (s *Surface) TriangleBounds(i int, continuous bool, padding float64) (low, high r3.Vec, solid, ok bool) {
	tri, ok := s.Mesh.Triangle(i)
	if !ok {
		return r3.Vec{}, r3.Vec{}, false, false
	}
	a, b, c := tri[0], tri[1], tri[2]
	var box geomutil.Box
	if continuous {
		box = geomutil.BoxOfTriangle(s.x[a], s.x[b], s.x[c]).Extend(geomutil.BoxOfTriangle(s.xNew[a], s.xNew[b], s.xNew[c]))
	} else {
		box = geomutil.BoxOfTriangle(s.x[a], s.x[b], s.x[c])
	}
	box = box.Pad(padding)
	return box.Min, box.Max, s.solid[a] && s.solid[b] && s.solid[c], true
}

func (s *Surface) vertexBoundsAt(v mesh.VertexIndex, p r3.Vec, padding float64) (r3.Vec, r3.Vec) {
	box := geomutil.BoxFromPoint(p).Pad(padding)
	return box.Min, box.Max
}
