// Package impactzone implements the impact-zone solver: when the
// iterated collision pipeline in package collision cannot resolve
// every candidate by wind-down, the vertices of the remaining
// candidates are grouped into impact zones (union-find over shared
// vertices) and each zone is solved as a small inelastic-projection
// linear system, falling back to a rigid freeze if that system fails
// to remove every collision in the zone.
package impactzone

import (
	"github.com/soypat/surftrack/ccd"
	"github.com/soypat/surftrack/collision"
	"github.com/soypat/surftrack/mesh"
	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Report summarizes what the solver did across every zone.
type Report struct {
	NumZones          int
	FrozenVertices    int // vertices whose position was rigidly frozen to x this step
	ProjectedVertices int // vertices resolved by the inelastic projection
}

// MaxOuterIterations bounds how many projection-then-recheck rounds
// solveZone runs on a zone before falling back to a rigid freeze.
const MaxOuterIterations = 4

type unionFind struct {
	parent map[int]int
}

func newUnionFind() *unionFind { return &unionFind{parent: map[int]int{}} }

func (u *unionFind) find(x int) int {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		u.parent[x], x = root, u.parent[x]
	}
	return root
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// zone is a set of candidates and the vertex set they touch.
type zone struct {
	candidates []collision.Candidate
	vertices   []int
}

// groupZones partitions candidates into impact zones by union-find
// over the vertices each candidate touches.
func groupZones(m *mesh.Mesh, candidates []collision.Candidate) []zone {
	uf := newUnionFind()
	vertsOf := make([][4]int, len(candidates))
	for i, c := range candidates {
		v := candidateVertices(m, c)
		vertsOf[i] = v
		for k := 1; k < 4; k++ {
			uf.union(v[0], v[k])
		}
	}
	byRoot := map[int]*zone{}
	for i, c := range candidates {
		v := vertsOf[i]
		root := uf.find(v[0])
		z, ok := byRoot[root]
		if !ok {
			z = &zone{}
			byRoot[root] = z
		}
		z.candidates = append(z.candidates, c)
		for _, vi := range v {
			if !containsInt(z.vertices, vi) {
				z.vertices = append(z.vertices, vi)
			}
		}
	}
	zones := make([]zone, 0, len(byRoot))
	for _, z := range byRoot {
		zones = append(zones, *z)
	}
	return zones
}

func candidateVertices(m *mesh.Mesh, c collision.Candidate) [4]int {
	switch c.Kind {
	case collision.PointTriangle:
		tri, _ := m.Triangle(c.B)
		return [4]int{c.A, tri[0], tri[1], tri[2]}
	default:
		e1, _ := m.Edge(c.A)
		e2, _ := m.Edge(c.B)
		return [4]int{e1[0], e1[1], e2[0], e2[1]}
	}
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Solve groups the given still-colliding candidates into impact zones
// and resolves each, mutating the surface's predicted positions
// in-place. candidates is typically the residual set package collision
// reports as StillColliding after its own wind-down.
func Solve(surf *surface.Surface, m *mesh.Mesh, candidates []collision.Candidate, dt float64) Report {
	var rep Report
	for _, z := range groupZones(m, candidates) {
		rep.NumZones++
		if solveZone(surf, m, z, dt) {
			rep.ProjectedVertices += len(nonSolidVertices(surf, z.vertices))
			continue
		}
		freezeZone(surf, z)
		rep.FrozenVertices += len(nonSolidVertices(surf, z.vertices))
	}
	return rep
}

// solveZone attempts the inelastic-projection linear solve, re-running
// CCD on the zone's own candidates after each attempt. The constraint
// set is not grown: every round re-projects with the zone's original
// candidates, and new collisions outside them are not looked for.
// Returns false if it fails
// to converge within MaxOuterIterations, signaling the caller should
// rigid-freeze the zone instead.
func solveZone(surf *surface.Surface, m *mesh.Mesh, z zone, dt float64) bool {
	verts := nonSolidVertices(surf, z.vertices)
	if len(verts) == 0 {
		return true // every vertex in the zone is solid; nothing to project
	}
	index := map[int]int{}
	for i, v := range verts {
		index[v] = i
	}

	for iter := 0; iter < MaxOuterIterations; iter++ {
		if !projectOnce(surf, m, z, verts, index, dt) {
			return false // singular/unsolvable KKT system
		}
		if allCandidatesResolved(surf, m, z.candidates, dt) {
			return true
		}
	}
	return false
}

// projectOnce builds and solves the KKT system
//
//	[ M  A^T ] [u]   [M u_in]
//	[ A   0  ] [λ] = [  0   ]
//
// where u is the stacked velocity correction for the zone's non-solid
// vertices, M the (diagonal) mass matrix, and each row of A encodes
// one candidate's normal relative-velocity constraint.
func projectOnce(surf *surface.Surface, m *mesh.Mesh, z zone, verts []int, index map[int]int, dt float64) bool {
	n := len(verts)
	dim := 3 * n
	nc := len(z.candidates)

	uIn := make([]float64, dim)
	masses := make([]float64, dim)
	for i, v := range verts {
		velocity := r3.Scale(1/dt, r3.Sub(surf.NewPosition(v), surf.Position(v)))
		uIn[3*i+0], uIn[3*i+1], uIn[3*i+2] = velocity.X, velocity.Y, velocity.Z
		mv := surf.Mass(v)
		masses[3*i+0], masses[3*i+1], masses[3*i+2] = mv, mv, mv
	}

	A := mat.NewDense(nc, dim, nil)
	for row, c := range z.candidates {
		verts4, weights, normal, ok := constraintRow(surf, m, c)
		if !ok {
			continue
		}
		for k, v := range verts4 {
			i, inZone := index[v]
			if !inZone {
				continue
			}
			A.Set(row, 3*i+0, A.At(row, 3*i+0)+weights[k]*normal.X)
			A.Set(row, 3*i+1, A.At(row, 3*i+1)+weights[k]*normal.Y)
			A.Set(row, 3*i+2, A.At(row, 3*i+2)+weights[k]*normal.Z)
		}
	}

	total := dim + nc
	K := mat.NewDense(total, total, nil)
	for i := 0; i < dim; i++ {
		K.Set(i, i, masses[i])
	}
	for r := 0; r < nc; r++ {
		for c := 0; c < dim; c++ {
			v := A.At(r, c)
			if v == 0 {
				continue
			}
			K.Set(dim+r, c, v)
			K.Set(c, dim+r, v)
		}
	}

	rhs := mat.NewDense(total, 1, nil)
	for i := 0; i < dim; i++ {
		rhs.Set(i, 0, masses[i]*uIn[i])
	}

	var sol mat.Dense
	if err := sol.Solve(K, rhs); err != nil {
		return false
	}

	for i, v := range verts {
		u := r3.Vec{X: sol.At(3*i+0, 0), Y: sol.At(3*i+1, 0), Z: sol.At(3*i+2, 0)}
		surf.SetNewPosition(v, r3.Add(surf.Position(v), r3.Scale(dt, u)))
	}
	return true
}

// constraintRow returns the four vertices, impulse-style weights and
// normal for one candidate. Point-triangle rows use the same
// barycentric sign convention package collision applies when
// distributing an impulse; edge-edge rows take the contact at both
// edges' midpoints (weights -0.5, -0.5, 0.5, 0.5).
func constraintRow(surf *surface.Surface, m *mesh.Mesh, c collision.Candidate) ([4]int, [4]float64, r3.Vec, bool) {
	switch c.Kind {
	case collision.PointTriangle:
		tri, ok := m.Triangle(c.B)
		if !ok {
			return [4]int{}, [4]float64{}, r3.Vec{}, false
		}
		p := surf.Position(c.A)
		a, b, cc := surf.Position(tri[0]), surf.Position(tri[1]), surf.Position(tri[2])
		n := r3.Cross(r3.Sub(b, a), r3.Sub(cc, a))
		nrm := r3.Norm(n)
		if nrm < 1e-15 {
			return [4]int{}, [4]float64{}, r3.Vec{}, false
		}
		n = r3.Scale(1/nrm, n)
		u, v, w, ok := closestBary(p, a, b, cc)
		if !ok {
			return [4]int{}, [4]float64{}, r3.Vec{}, false
		}
		return [4]int{c.A, tri[0], tri[1], tri[2]}, [4]float64{1, -u, -v, -w}, n, true
	default:
		e1, ok1 := m.Edge(c.A)
		e2, ok2 := m.Edge(c.B)
		if !ok1 || !ok2 {
			return [4]int{}, [4]float64{}, r3.Vec{}, false
		}
		p1, q1 := surf.Position(e1[0]), surf.Position(e1[1])
		p2, q2 := surf.Position(e2[0]), surf.Position(e2[1])
		d1 := r3.Sub(q1, p1)
		d2 := r3.Sub(q2, p2)
		n := r3.Cross(d1, d2)
		nrm := r3.Norm(n)
		if nrm < 1e-15 {
			return [4]int{}, [4]float64{}, r3.Vec{}, false
		}
		n = r3.Scale(1/nrm, n)
		return [4]int{e1[0], e1[1], e2[0], e2[1]}, [4]float64{-0.5, -0.5, 0.5, 0.5}, n, true
	}
}

// closestBary returns the barycentric weights of p's projection onto
// plane (a,b,c) without the Voronoi-region classification package geom
// does (the zone solver only needs a plausible constraint direction,
// not the exact closest feature).
func closestBary(p, a, b, c r3.Vec) (u, v, w float64, ok bool) {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	n2 := r3.Dot(n, n)
	if n2 < 1e-20 {
		return 0, 0, 0, false
	}
	ua := r3.Dot(r3.Cross(r3.Sub(c, b), r3.Sub(p, b)), n) / n2
	va := r3.Dot(r3.Cross(r3.Sub(a, c), r3.Sub(p, c)), n) / n2
	return ua, va, 1 - ua - va, true
}

// allCandidatesResolved re-runs CCD on every candidate in the zone
// against the zone's current (post-projection) predicted positions.
func allCandidatesResolved(surf *surface.Surface, m *mesh.Mesh, candidates []collision.Candidate, dt float64) bool {
	for _, c := range candidates {
		var collides bool
		switch c.Kind {
		case collision.PointTriangle:
			tri, ok := m.Triangle(c.B)
			if !ok {
				continue
			}
			r := ccd.PointTriangle(
				surf.Position(c.A), surf.Position(tri[0]), surf.Position(tri[1]), surf.Position(tri[2]),
				surf.NewPosition(c.A), surf.NewPosition(tri[0]), surf.NewPosition(tri[1]), surf.NewPosition(tri[2]),
			)
			collides = r.Collides
		default:
			e1, ok1 := m.Edge(c.A)
			e2, ok2 := m.Edge(c.B)
			if !ok1 || !ok2 {
				continue
			}
			r := ccd.EdgeEdge(
				surf.Position(e1[0]), surf.Position(e1[1]), surf.Position(e2[0]), surf.Position(e2[1]),
				surf.NewPosition(e1[0]), surf.NewPosition(e1[1]), surf.NewPosition(e2[0]), surf.NewPosition(e2[1]),
			)
			collides = r.Collides
		}
		if collides {
			return false
		}
	}
	return true
}

// freezeZone sets every zone vertex's predicted position back to its
// current position, guaranteeing no intersection can be produced by
// the zone this step at the cost of stalling it.
func freezeZone(surf *surface.Surface, z zone) {
	for _, v := range z.vertices {
		if surf.IsSolid(v) {
			continue
		}
		surf.SetNewPosition(v, surf.Position(v))
	}
}

func nonSolidVertices(surf *surface.Surface, vertices []int) []int {
	out := make([]int, 0, len(vertices))
	for _, v := range vertices {
		if !surf.IsSolid(v) {
			out = append(out, v)
		}
	}
	return out
}
