// Package collision implements the proximity and continuous-collision
// impulse pipeline (candidate generation, a quasi-static proximity
// pass, an iterated CCD impulse pass) plus the intersection audit used
// both as a debug invariant and as the safety gate for remeshing
// operators.
package collision

import (
	"github.com/soypat/surftrack/ccd"
	"github.com/soypat/surftrack/geom"
	"github.com/soypat/surftrack/mesh"
	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/spatial/r3"
)

// ImpulseMultiplier scales the CCD impulse applied to stop an
// in-progress collision; kept at 1.0 as in the reference pipeline.
const ImpulseMultiplier = 1.0

// MaxCandidates bounds the candidate queue during the CCD pass; the
// pass aborts with Result.Overflow set once exceeded.
const MaxCandidates = 1_000_000

// Config holds the pipeline's tunable physical parameters.
type Config struct {
	// ProximityEpsilon is the distance below which the proximity pass
	// applies a repulsive impulse.
	ProximityEpsilon float64
	// Stiffness (k) caps the proximity impulse's spring term.
	Stiffness float64
	// FrictionCoefficient (mu) caps the tangential impulse.
	FrictionCoefficient float64
	// MaxCollisionPasses bounds how many times HandleCollisions
	// re-queues secondary candidates around a resolved contact.
	MaxCollisionPasses int
}

// DefaultConfig returns the reference pipeline's parameters.
func DefaultConfig() Config {
	return Config{
		ProximityEpsilon:    1e-4,
		Stiffness:           1e4,
		FrictionCoefficient: 0.1,
		MaxCollisionPasses:  1,
	}
}

// Kind distinguishes the two kinds of collision candidates.
type Kind int

const (
	PointTriangle Kind = iota
	EdgeEdge
)

// Candidate is a pending proximity/collision test. For PointTriangle,
// A is a vertex index and B a triangle index; for EdgeEdge, both are
// edge indices.
type Candidate struct {
	A, B int
	Kind Kind
}

// Result summarizes the outcome of a pipeline pass.
type Result struct {
	Overflow       bool        // candidate queue exceeded MaxCandidates
	StillColliding bool        // the iteration cap was reached with candidates still queued (not re-tested)
	Residual       []Candidate // candidates still queued when StillColliding is set
}

// GenerateCandidates queries the continuous broad phase for every
// non-solid primitive against its dual primitive type, discarding
// solid-vs-solid pairs (no impulse could move either side) and pairs
// sharing a vertex.
func GenerateCandidates(surf *surface.Surface) []Candidate {
	var out []Candidate
	bp := surf.BroadPhase()
	m := surf.Mesh

	for v := 0; v < m.NumVertexSlots(); v++ {
		if !m.VertexIsLive(v) {
			continue
		}
		low, high, vSolid, ok := surf.VertexBounds(v, true, bp.Padding())
		if !ok {
			continue
		}
		for _, t := range bp.QueryTriangles(low, high, true, true) {
			tri, ok := m.Triangle(t)
			if !ok || contains3(tri, v) {
				continue
			}
			if vSolid && surf.IsSolid(tri[0]) && surf.IsSolid(tri[1]) && surf.IsSolid(tri[2]) {
				continue
			}
			out = append(out, Candidate{A: v, B: t, Kind: PointTriangle})
		}
	}

	for e := 0; e < m.NumEdgeSlots(); e++ {
		if !m.EdgeIsLive(e) {
			continue
		}
		ends, _ := m.Edge(e)
		low, high, eSolid, ok := surf.EdgeBounds(e, true, bp.Padding())
		if !ok {
			continue
		}
		for _, e2 := range bp.QueryEdges(low, high, true, true) {
			if e2 <= e {
				continue // undirected pair, keep only one ordering
			}
			ends2, ok := m.Edge(e2)
			if !ok || sharesVertex(ends, ends2) {
				continue
			}
			e2Solid := false
			if _, _, s, ok2 := surf.EdgeBounds(e2, false, 0); ok2 {
				e2Solid = s
			}
			if eSolid && e2Solid {
				continue
			}
			out = append(out, Candidate{A: e, B: e2, Kind: EdgeEdge})
		}
	}
	return out
}

func contains3(tri [3]int, v int) bool {
	return tri[0] == v || tri[1] == v || tri[2] == v
}

func sharesVertex(a, b [2]int) bool {
	return a[0] == b[0] || a[0] == b[1] || a[1] == b[0] || a[1] == b[1]
}

// invMass returns 0 for a solid (infinite-inertia) vertex.
func invMass(surf *surface.Surface, v int) float64 {
	if surf.IsSolid(v) {
		return 0
	}
	m := surf.Mass(v)
	if m <= 0 {
		return 0
	}
	return 1 / m
}

// applyImpulse distributes a velocity-space impulse of magnitude
// impulseMag along normal across four vertices weighted by s[i], and
// integrates the change directly into each vertex's predicted
// position so the next candidate test sees x'.
func applyImpulse(surf *surface.Surface, verts [4]int, s [4]float64, normal r3.Vec, impulseMag, dt float64) {
	var denom float64
	inv := [4]float64{}
	for i, v := range verts {
		inv[i] = invMass(surf, v)
		denom += s[i] * s[i] * inv[i]
	}
	if denom < 1e-15 {
		return // every involved vertex is solid; nothing can move
	}
	j := impulseMag / denom
	for i, v := range verts {
		if inv[i] == 0 {
			continue
		}
		dv := j * s[i] * inv[i]
		surf.SetNewPosition(v, r3.Add(surf.NewPosition(v), r3.Scale(dv*dt, normal)))
	}
}

// pointTriangleVerts returns the four vertices (point, a, b, c) and
// their impulse weights for a PointTriangle candidate given
// barycentric weights (u,v,w) of the contact on the triangle.
func pointTriangleVerts(p int, tri [3]int, u, v, w float64) ([4]int, [4]float64) {
	return [4]int{p, tri[0], tri[1], tri[2]}, [4]float64{1, -u, -v, -w}
}

// edgeEdgeVerts returns the four vertices (a,b,c,d) and their impulse
// weights for an EdgeEdge candidate given parameters s (along a->b)
// and u (along c->d).
func edgeEdgeVerts(ab, cd [2]int, s, u float64) ([4]int, [4]float64) {
	return [4]int{ab[0], ab[1], cd[0], cd[1]}, [4]float64{-(1 - s), -s, (1 - u), u}
}

// HandleProximities applies a spring-like repulsive impulse (plus
// Coulomb-capped friction) to every candidate pair closer than
// cfg.ProximityEpsilon whose normal relative velocity is below the
// small separating threshold 0.1*(eps-d)/dt.
// Positions are updated from velocities on x' so the pass is
// self-consistent.
func HandleProximities(surf *surface.Surface, dt float64, cfg Config) {
	m := surf.Mesh
	for _, c := range GenerateCandidates(surf) {
		switch c.Kind {
		case PointTriangle:
			handlePointTriangleProximity(surf, m, c, dt, cfg)
		case EdgeEdge:
			handleEdgeEdgeProximity(surf, m, c, dt, cfg)
		}
	}
}

func handlePointTriangleProximity(surf *surface.Surface, m *mesh.Mesh, c Candidate, dt float64, cfg Config) {
	tri, ok := m.Triangle(c.B)
	if !ok {
		return
	}
	p := surf.Position(c.A)
	a, b, cc := surf.Position(tri[0]), surf.Position(tri[1]), surf.Position(tri[2])
	res := geom.PointTriangleDistance(p, a, b, cc)
	eps := cfg.ProximityEpsilon
	if res.Distance >= eps {
		return
	}
	u, v, w := res.Barycentric.X, res.Barycentric.Y, res.Barycentric.Z
	n := res.Normal
	if r3.Dot(n, r3.Sub(p, res.Closest)) < 0 {
		n = r3.Scale(-1, n)
	}
	contactVel := r3.Scale(u, vel(surf, tri[0], dt))
	contactVel = r3.Add(contactVel, r3.Scale(v, vel(surf, tri[1], dt)))
	contactVel = r3.Add(contactVel, r3.Scale(w, vel(surf, tri[2], dt)))
	relVel := r3.Sub(vel(surf, c.A, dt), contactVel)
	vn := r3.Dot(relVel, n)

	threshold := 0.1 * (eps - res.Distance) / dt
	if vn >= threshold {
		return // already separating at least as fast as the threshold
	}
	impulse1 := threshold - vn
	if impulse1 < 0 {
		impulse1 = 0
	}
	impulse2 := cfg.Stiffness * dt * (eps - res.Distance)
	impulseMag := impulse1
	if impulse2 < impulseMag {
		impulseMag = impulse2
	}

	verts, s := pointTriangleVerts(c.A, tri, u, v, w)
	applyImpulse(surf, verts, s, n, impulseMag, dt)

	tangential := r3.Sub(relVel, r3.Scale(vn, n))
	tangentialSpeed := r3.Norm(tangential)
	if tangentialSpeed > 1e-12 {
		frictionMag := cfg.FrictionCoefficient * impulseMag
		if frictionMag > tangentialSpeed {
			frictionMag = tangentialSpeed
		}
		tangentDir := r3.Scale(-1/tangentialSpeed, tangential) // opposes the sliding
		applyImpulse(surf, verts, s, tangentDir, frictionMag, dt)
	}
}

func handleEdgeEdgeProximity(surf *surface.Surface, m *mesh.Mesh, c Candidate, dt float64, cfg Config) {
	e1, ok1 := m.Edge(c.A)
	e2, ok2 := m.Edge(c.B)
	if !ok1 || !ok2 {
		return
	}
	p1, q1 := surf.Position(e1[0]), surf.Position(e1[1])
	p2, q2 := surf.Position(e2[0]), surf.Position(e2[1])
	res := geom.EdgeEdgeDistance(p1, q1, p2, q2)
	eps := cfg.ProximityEpsilon
	if res.Distance >= eps || res.Distance < 1e-15 {
		return
	}
	n := res.Normal
	s, u := res.S, res.T

	velA := r3.Add(r3.Scale(1-s, vel(surf, e1[0], dt)), r3.Scale(s, vel(surf, e1[1], dt)))
	velB := r3.Add(r3.Scale(1-u, vel(surf, e2[0], dt)), r3.Scale(u, vel(surf, e2[1], dt)))
	relVel := r3.Sub(velB, velA)
	vn := r3.Dot(relVel, n)

	threshold := 0.1 * (eps - res.Distance) / dt
	if vn >= threshold {
		return
	}
	impulse1 := threshold - vn
	if impulse1 < 0 {
		impulse1 = 0
	}
	impulse2 := cfg.Stiffness * dt * (eps - res.Distance)
	impulseMag := impulse1
	if impulse2 < impulseMag {
		impulseMag = impulse2
	}

	verts, w := edgeEdgeVerts(e1, e2, s, u)
	applyImpulse(surf, verts, w, n, impulseMag, dt)

	tangential := r3.Sub(relVel, r3.Scale(vn, n))
	tangentialSpeed := r3.Norm(tangential)
	if tangentialSpeed > 1e-12 {
		frictionMag := cfg.FrictionCoefficient * impulseMag
		if frictionMag > tangentialSpeed {
			frictionMag = tangentialSpeed
		}
		tangentDir := r3.Scale(-1/tangentialSpeed, tangential) // opposes the sliding
		applyImpulse(surf, verts, w, tangentDir, frictionMag, dt)
	}
}

func vel(surf *surface.Surface, v int, dt float64) r3.Vec {
	return r3.Scale(1/dt, r3.Sub(surf.NewPosition(v), surf.Position(v)))
}

// HandleCollisions runs the iterated CCD impulse pass: pop a
// candidate, test it with package ccd, and if it truly collides over
// [0,1] apply a stopping impulse and update x' so later candidates in
// the same pass see the corrected trajectory. Secondary candidates
// incident to a resolved contact's four vertices are enqueued during
// the final configured pass.
func HandleCollisions(surf *surface.Surface, dt float64, cfg Config) Result {
	m := surf.Mesh
	maxPasses := cfg.MaxCollisionPasses
	if maxPasses < 1 {
		maxPasses = 1
	}

	queue := GenerateCandidates(surf)
	seen := map[Candidate]bool{}
	for _, c := range queue {
		seen[c] = true
	}

	var res Result
	for pass := 0; pass < maxPasses; pass++ {
		collectSecondary := pass == maxPasses-1
		iterLimit := 5 * len(queue)
		if iterLimit == 0 {
			break
		}
		for i := 0; i < iterLimit && len(queue) > 0; i++ {
			c := queue[0]
			queue = queue[1:]

			collided, verts := testCandidate(surf, m, c, dt, cfg)
			if !collided {
				continue
			}
			if collectSecondary {
				for _, v := range verts {
					queue = appendIncident(queue, seen, surf, m, v)
				}
			}
			if len(queue) > MaxCandidates {
				res.Overflow = true
				return res
			}
		}
		if len(queue) > 0 {
			res.StillColliding = true
			res.Residual = queue
		}
	}
	return res
}

// testCandidate runs CCD on one candidate and, if it collides, applies
// the stopping impulse. It returns the four incident vertex indices
// whether or not a collision occurred, for secondary-candidate lookup.
func testCandidate(surf *surface.Surface, m *mesh.Mesh, c Candidate, dt float64, cfg Config) (bool, [4]int) {
	switch c.Kind {
	case PointTriangle:
		tri, ok := m.Triangle(c.B)
		if !ok {
			return false, [4]int{}
		}
		verts := [4]int{c.A, tri[0], tri[1], tri[2]}
		r := ccd.PointTriangle(
			surf.Position(c.A), surf.Position(tri[0]), surf.Position(tri[1]), surf.Position(tri[2]),
			surf.NewPosition(c.A), surf.NewPosition(tri[0]), surf.NewPosition(tri[1]), surf.NewPosition(tri[2]),
		)
		if !r.Collides {
			return false, verts
		}
		impulseMag := ImpulseMultiplier * (0 - r.RelativeDisplacement/dt)
		s := [4]float64{1, -r.Bary[1], -r.Bary[2], -r.Bary[3]}
		applyImpulse(surf, verts, s, r.Normal, impulseMag, dt)
		return true, verts
	case EdgeEdge:
		e1, ok1 := m.Edge(c.A)
		e2, ok2 := m.Edge(c.B)
		if !ok1 || !ok2 {
			return false, [4]int{}
		}
		verts := [4]int{e1[0], e1[1], e2[0], e2[1]}
		r := ccd.EdgeEdge(
			surf.Position(e1[0]), surf.Position(e1[1]), surf.Position(e2[0]), surf.Position(e2[1]),
			surf.NewPosition(e1[0]), surf.NewPosition(e1[1]), surf.NewPosition(e2[0]), surf.NewPosition(e2[1]),
		)
		if !r.Collides {
			return false, verts
		}
		impulseMag := ImpulseMultiplier * (0 - r.RelativeDisplacement/dt)
		s := [4]float64{-r.Bary[0], -r.Bary[1], r.Bary[2], r.Bary[3]}
		applyImpulse(surf, verts, s, r.Normal, impulseMag, dt)
		return true, verts
	}
	return false, [4]int{}
}

func appendIncident(queue []Candidate, seen map[Candidate]bool, surf *surface.Surface, m *mesh.Mesh, v int) []Candidate {
	if !m.VertexIsLive(v) {
		return queue
	}
	bp := surf.BroadPhase()
	low, high, _, ok := surf.VertexBounds(v, true, bp.Padding())
	if !ok {
		return queue
	}
	for _, t := range bp.QueryTriangles(low, high, true, true) {
		tri, ok := m.Triangle(t)
		if !ok || contains3(tri, v) {
			continue
		}
		c := Candidate{A: v, B: t, Kind: PointTriangle}
		if !seen[c] {
			seen[c] = true
			queue = append(queue, c)
		}
	}
	for _, e := range m.VertexEdges(v) {
		low, high, _, ok := surf.EdgeBounds(e, true, bp.Padding())
		if !ok {
			continue
		}
		for _, e2 := range bp.QueryEdges(low, high, true, true) {
			if e2 == e {
				continue
			}
			ends, ok1 := m.Edge(e)
			ends2, ok2 := m.Edge(e2)
			if !ok1 || !ok2 || sharesVertex(ends, ends2) {
				continue
			}
			a, b := e, e2
			if a > b {
				a, b = b, a
			}
			c := Candidate{A: a, B: b, Kind: EdgeEdge}
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	return queue
}

// AssertMeshIsIntersectionFree enumerates every edge-triangle pair via
// the broad phase (skipping pairs that share a vertex) and returns
// false on the first positive segment-triangle test, true if there is
// none. When predicted is
// true the test runs against x'; otherwise against x.
func AssertMeshIsIntersectionFree(surf *surface.Surface, predicted bool) bool {
	m := surf.Mesh
	bp := surf.BroadPhase()
	pos := surf.Position
	if predicted {
		pos = surf.NewPosition
	}
	for e := 0; e < m.NumEdgeSlots(); e++ {
		if !m.EdgeIsLive(e) {
			continue
		}
		ends, _ := m.Edge(e)
		// Always query with the continuous (swept x-to-x') box: it is a
		// superset of the box at whichever position pos() below actually
		// tests (x or x'), so it never misses a pair AssertMeshIsIntersectionFree
		// is being asked to check, predicted or not.
		low, high, _, ok := surf.EdgeBounds(e, true, bp.Padding())
		if !ok {
			continue
		}
		for _, t := range bp.QueryTriangles(low, high, true, true) {
			tri, ok := m.Triangle(t)
			if !ok || sharesVertexWithTriangle(ends, tri) {
				continue
			}
			p, q := pos(ends[0]), pos(ends[1])
			a, b, c := pos(tri[0]), pos(tri[1]), pos(tri[2])
			if geom.SegmentTriangleIntersection(p, q, a, b, c) {
				return false
			}
		}
	}
	return true
}

func sharesVertexWithTriangle(e [2]int, tri [3]int) bool {
	return e[0] == tri[0] || e[0] == tri[1] || e[0] == tri[2] ||
		e[1] == tri[0] || e[1] == tri[1] || e[1] == tri[2]
}
