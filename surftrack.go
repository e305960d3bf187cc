// Package surftrack implements a dynamic triangle-mesh surface
// tracker: a non-destructive mesh advected by an externally supplied
// velocity field, kept intersection-free by a proximity/CCD/impact-zone
// collision pipeline and kept well-shaped by local remeshing operators,
// all gated by the same intersection audit.
//
// The orchestration in this file is the only place that sequences
// package surface, package collision, package impactzone and package
// remesh together; none of those packages import each other's callers.
package surftrack

import (
	"github.com/soypat/surftrack/collision"
	"github.com/soypat/surftrack/impactzone"
	"github.com/soypat/surftrack/internal/diag"
	"github.com/soypat/surftrack/mesh"
	"github.com/soypat/surftrack/remesh"
	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config collects every tunable option the tracker exposes to an
// embedding application.
type Config struct {
	// UseFraction, if true, treats MinEdgeLength/MaxEdgeLength as
	// multiples of the mesh's initial average edge length rather than
	// absolute lengths.
	UseFraction bool
	// MinEdgeLength/MaxEdgeLength bound edge length for collapse/split.
	MinEdgeLength, MaxEdgeLength float64
	// MaxVolumeChange rejects a collapse that sweeps more local volume
	// than this.
	MaxVolumeChange float64
	// MinCurvatureMultiplier/MaxCurvatureMultiplier scale the edge-length
	// bounds by local curvature (dihedral angle proxy).
	MinCurvatureMultiplier, MaxCurvatureMultiplier float64

	// ProximityEpsilon is the distance below which proximity impulses
	// fire and positions are considered touching.
	ProximityEpsilon float64
	// MergeProximityEpsilon is the distance below which two sheets are
	// merged by TopologyChanges.
	MergeProximityEpsilon float64
	// Stiffness caps the proximity impulse's spring term.
	Stiffness float64
	// FrictionCoefficient caps the tangential proximity impulse.
	FrictionCoefficient float64
	// MaxCollisionPasses bounds secondary-candidate requeueing passes.
	MaxCollisionPasses int

	// PerformImprovement enables ImproveMesh's remeshing operators.
	PerformImprovement bool
	// AllowTopologyChanges enables TopologyChanges' pincher/merger.
	AllowTopologyChanges bool
	// AllowNonManifold permits edges with more than two incident
	// triangles instead of rejecting the triangle that would violate it.
	AllowNonManifold bool
	// CollisionSafety is not read by the tracker: every remeshing
	// operation is gated through an intersection audit whatever its
	// value, so setting it to false does not disable the audit.
	CollisionSafety bool
	// SubdivisionScheme supplies new-vertex positions for edge splits.
	// Defaults to remesh.Butterfly when nil.
	SubdivisionScheme remesh.SubdivisionScheme
	// AABBPadding is added to every broad-phase AABB.
	AABBPadding float64
}

// DefaultConfig returns reasonable defaults matching the reference
// pipeline's own constants.
func DefaultConfig() Config {
	return Config{
		UseFraction:            true,
		MinEdgeLength:          0.5,
		MaxEdgeLength:          1.5,
		MaxVolumeChange:        0.1,
		MinCurvatureMultiplier: 1.0,
		MaxCurvatureMultiplier: 1.0,
		ProximityEpsilon:       1e-4,
		MergeProximityEpsilon:  1e-4,
		Stiffness:              1e4,
		FrictionCoefficient:    0.1,
		MaxCollisionPasses:     1,
		PerformImprovement:     true,
		AllowTopologyChanges:   true,
		CollisionSafety:        true,
		SubdivisionScheme:      remesh.Butterfly{},
		AABBPadding:            1e-5,
	}
}

// Tracker is the top-level orchestrator: it owns a Surface and drives
// it through a time step (Integrate), mesh-quality improvement
// (ImproveMesh) and topology changes (TopologyChanges), per cfg.
type Tracker struct {
	Surface *surface.Surface
	cfg     Config
	diag    *diag.Record

	initialAvgEdgeLength float64
}

// Diagnostics returns the tracker's diagnostics record: running
// counters for the collision pipeline stages and the split, collapse,
// flip, smooth and merge operators (pinches are not counted), plus a bounded ring
// of recent noteworthy events (including any panic recovered from a
// step). Safe to read between calls; never written to from outside
// this package.
func (t *Tracker) Diagnostics() *diag.Record { return t.diag }

// New builds a Tracker from a vertex/triangle soup: vertices[i] is
// vertex i's initial position, masses[i] its mass (ignored, treated as
// infinite, if solids[i] is true), and each triangles[t] a triple of
// vertex indices into vertices.
func New(vertices []r3.Vec, triangles [][3]int, masses []float64, solids []bool, cfg Config) (*Tracker, error) {
	surf := surface.New(cfg.AABBPadding)
	surf.Mesh.AllowNonManifold = cfg.AllowNonManifold

	indices := make([]mesh.VertexIndex, len(vertices))
	for i, p := range vertices {
		m := 1.0
		if masses != nil {
			m = masses[i]
		}
		solid := solids != nil && solids[i]
		indices[i] = surf.AddVertex(p, m, solid)
	}
	for _, tri := range triangles {
		if _, err := surf.AddTriangle(indices[tri[0]], indices[tri[1]], indices[tri[2]]); err != nil {
			return nil, err
		}
	}

	t := &Tracker{Surface: surf, cfg: cfg, diag: diag.NewRecord(256), initialAvgEdgeLength: surf.LengthScale()}
	return t, nil
}

func (t *Tracker) collisionConfig() collision.Config {
	return collision.Config{
		ProximityEpsilon:    t.cfg.ProximityEpsilon,
		Stiffness:           t.cfg.Stiffness,
		FrictionCoefficient: t.cfg.FrictionCoefficient,
		MaxCollisionPasses:  t.cfg.MaxCollisionPasses,
	}
}

// Integrate advects every vertex from x to x+velocities[v]*dt, resolves
// any resulting collisions via the proximity pass, the iterated CCD
// pass and, if that doesn't converge, the impact-zone solver, and
// commits the result into x. Returns (true, dt) if the step was
// accepted, or (false, 0) if even the impact-zone solver could not
// produce a collision-free configuration this step.
func (t *Tracker) Integrate(dt float64, velocities []r3.Vec) (ok bool, accepted float64) {
	var stepErr error
	defer func() {
		if stepErr != nil {
			ok, accepted = false, 0
		}
	}()
	defer t.diag.Recover("Integrate", &stepErr)

	surf := t.Surface
	m := surf.Mesh
	cfg := t.collisionConfig()

	xNew := make([]r3.Vec, len(velocities))
	for v := range velocities {
		if !m.VertexIsLive(v) {
			continue
		}
		xNew[v] = r3.Add(surf.Position(v), r3.Scale(dt, velocities[v]))
	}
	surf.SetAllNewPositions(xNew)

	collision.HandleProximities(surf, dt, cfg)
	t.diag.ProximitiesHandled++
	res := collision.HandleCollisions(surf, dt, cfg)
	t.diag.CollisionsHandled++
	t.diag.CollisionPasses += t.cfg.MaxCollisionPasses

	if res.Overflow {
		t.diag.Note("overflow", "candidate queue exceeded MaxCandidates")
		return false, 0
	}
	if res.StillColliding {
		report := impactzone.Solve(surf, m, res.Residual, dt)
		t.diag.ImpactZoneSolves++
		t.diag.RigidFreezeCount += report.FrozenVertices
		if !collision.AssertMeshIsIntersectionFree(surf, true) {
			t.diag.Note("rejected", "impact zone solve did not clear all intersections")
			return false, 0
		}
	}

	surf.SetPositionsToNewPositions()
	return true, dt
}

// ImproveMesh runs one pass of split, collapse, flip and smooth over
// every live edge and vertex, each gated by the remesh package's
// intersection audit. A no-op if cfg.PerformImprovement is false.
func (t *Tracker) ImproveMesh() {
	if !t.cfg.PerformImprovement {
		return
	}
	surf := t.Surface
	m := surf.Mesh
	rcfg := t.remeshConfig()

	minLen, maxLen := t.edgeLengthBounds()

	for _, e := range liveEdges(m) {
		if !m.EdgeIsLive(e) {
			continue
		}
		ends, ok := m.Edge(e)
		if !ok {
			continue
		}
		length := r3.Norm(r3.Sub(surf.Position(ends[1]), surf.Position(ends[0])))
		target := t.curvatureScaled(surf, e, maxLen)
		if length > target {
			if _, ok := remesh.Split(surf, e, rcfg); ok {
				t.diag.SplitsApplied++
			} else {
				t.diag.SplitsRejected++
			}
		} else if length < t.curvatureScaled(surf, e, minLen) {
			if remesh.Collapse(surf, e, rcfg) {
				t.diag.CollapsesApplied++
			} else {
				t.diag.CollapsesRejected++
			}
		}
	}

	for _, e := range liveEdges(m) {
		if !m.EdgeIsLive(e) {
			continue
		}
		if remesh.ShouldFlip(surf, e) {
			if remesh.Flip(surf, e) {
				t.diag.FlipsApplied++
			} else {
				t.diag.FlipsRejected++
			}
		}
	}

	for _, v := range liveVertices(m) {
		if !m.VertexIsLive(v) {
			continue
		}
		if remesh.Smooth(surf, v, rcfg) {
			t.diag.SmoothsApplied++
		}
	}
}

// TopologyChanges runs the pincher over every non-manifold vertex and
// the merger over every nearby pair of disconnected components. A
// no-op if cfg.AllowTopologyChanges is false.
func (t *Tracker) TopologyChanges() {
	if !t.cfg.AllowTopologyChanges {
		return
	}
	surf := t.Surface
	m := surf.Mesh

	for _, v := range liveVertices(m) {
		if !m.VertexIsLive(v) {
			continue
		}
		remesh.Pinch(surf, v, t.cfg.ProximityEpsilon)
	}

	for _, pair := range remesh.FindMergeCandidates(surf, t.cfg.MergeProximityEpsilon) {
		t.tryMergeComponents(pair)
	}
}

// tryMergeComponents welds each vertex of one component to its nearest
// vertex in the other, within cfg.MergeProximityEpsilon, zipping the
// two sheets together one vertex pair at a time.
func (t *Tracker) tryMergeComponents(pair remesh.ComponentPair) {
	surf := t.Surface
	m := surf.Mesh
	verticesOf := func(triangles []int) []mesh.VertexIndex {
		seen := map[int]bool{}
		var out []mesh.VertexIndex
		for _, tr := range triangles {
			tri, ok := m.Triangle(tr)
			if !ok {
				continue
			}
			for _, v := range tri {
				if !seen[v] {
					seen[v] = true
					out = append(out, v)
				}
			}
		}
		return out
	}
	av := verticesOf(pair.A)
	bv := verticesOf(pair.B)
	for _, a := range av {
		if !m.VertexIsLive(a) {
			continue
		}
		best, bestDist := -1, t.cfg.MergeProximityEpsilon
		for _, b := range bv {
			if !m.VertexIsLive(b) {
				continue
			}
			d := r3.Norm(r3.Sub(surf.Position(a), surf.Position(b)))
			if d < bestDist {
				best, bestDist = b, d
			}
		}
		if best >= 0 && remesh.Weld(surf, a, best) {
			t.diag.MergesApplied++
		}
	}
}

// DefragMesh compacts the underlying mesh storage, dropping every
// tombstoned slot and remapping every live index. Returns the
// resulting permutation.
func (t *Tracker) DefragMesh() mesh.Remap {
	t.diag.DefragCount++
	return t.Surface.Defrag()
}

// NumVertices returns the number of live vertices.
func (t *Tracker) NumVertices() int { return t.Surface.Mesh.NumVertices() }

// NumTriangles returns the number of live triangles.
func (t *Tracker) NumTriangles() int { return t.Surface.Mesh.NumTriangles() }

// GetPosition returns vertex v's current position.
func (t *Tracker) GetPosition(v mesh.VertexIndex) r3.Vec { return t.Surface.Position(v) }

// GetTriangle returns triangle t's three vertex indices, or ok=false
// if t is not a live triangle.
func (t *Tracker) GetTriangle(tr mesh.TriangleIndex) ([3]int, bool) { return t.Surface.Mesh.Triangle(tr) }

func (t *Tracker) remeshConfig() remesh.Config {
	scheme := t.cfg.SubdivisionScheme
	if scheme == nil {
		scheme = remesh.Butterfly{}
	}
	return remesh.Config{
		MinEdgeLength:   t.cfg.MinEdgeLength,
		MaxEdgeLength:   t.cfg.MaxEdgeLength,
		MaxVolumeChange: t.cfg.MaxVolumeChange,
		SmoothRate:      0.5,
		Scheme:          scheme,
	}
}

func (t *Tracker) edgeLengthBounds() (min, max float64) {
	min, max = t.cfg.MinEdgeLength, t.cfg.MaxEdgeLength
	if t.cfg.UseFraction {
		min *= t.initialAvgEdgeLength
		max *= t.initialAvgEdgeLength
	}
	return min, max
}

func (t *Tracker) curvatureScaled(surf *surface.Surface, e mesh.EdgeIndex, maxLen float64) float64 {
	if t.cfg.MinCurvatureMultiplier <= 0 && t.cfg.MaxCurvatureMultiplier <= 0 {
		return maxLen
	}
	dihedral := remesh.EdgeDihedralAngle(surf, e)
	return remesh.CurvatureScaledLength(maxLen, dihedral, t.cfg.MinCurvatureMultiplier, t.cfg.MaxCurvatureMultiplier)
}

func liveEdges(m *mesh.Mesh) []mesh.EdgeIndex {
	out := make([]mesh.EdgeIndex, 0, m.NumEdgeSlots())
	for e := 0; e < m.NumEdgeSlots(); e++ {
		if m.EdgeIsLive(e) {
			out = append(out, e)
		}
	}
	return out
}

func liveVertices(m *mesh.Mesh) []mesh.VertexIndex {
	out := make([]mesh.VertexIndex, 0, m.NumVertexSlots())
	for v := 0; v < m.NumVertexSlots(); v++ {
		if m.VertexIsLive(v) {
			out = append(out, v)
		}
	}
	return out
}
