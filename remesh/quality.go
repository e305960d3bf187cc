package remesh

import (
	"math"

	"github.com/soypat/surftrack/mesh"
	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/spatial/r3"
)

// MinTriangleAngle returns the smallest of the triangle's three
// interior angles, in radians.
func MinTriangleAngle(a, b, c r3.Vec) float64 {
	angleA := triangleAngle(a, b, c)
	angleB := triangleAngle(b, c, a)
	angleC := triangleAngle(c, a, b)
	m := angleA
	if angleB < m {
		m = angleB
	}
	if angleC < m {
		m = angleC
	}
	return m
}

// triangleAngle returns the interior angle at vertex p of triangle
// (p, q, r).
func triangleAngle(p, q, r r3.Vec) float64 {
	u := r3.Unit(r3.Sub(q, p))
	v := r3.Unit(r3.Sub(r, p))
	cosTheta := r3.Dot(u, v)
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	return math.Acos(cosTheta)
}

// TriangleAspectRatio returns the triangle's inscribed circle radius
// divided by its longest edge, normalized so an equilateral triangle
// scores 1 (toward 0 as the triangle degenerates).
func TriangleAspectRatio(a, b, c r3.Vec) float64 {
	const normalization = 6.0 / 1.7320508075688772 // 6/sqrt(3)
	lenAB := r3.Norm(r3.Sub(b, a))
	lenBC := r3.Norm(r3.Sub(c, b))
	lenCA := r3.Norm(r3.Sub(a, c))
	maxEdge := math.Max(lenAB, math.Max(lenBC, lenCA))
	semiperimeter := 0.5 * (lenAB + lenBC + lenCA)
	area := 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
	if semiperimeter <= 0 || maxEdge <= 0 {
		return 0
	}
	return normalization * area / (semiperimeter * maxEdge)
}

func faceNormal(surf *surface.Surface, tri [3]int) r3.Vec {
	a, b, c := surf.Position(tri[0]), surf.Position(tri[1]), surf.Position(tri[2])
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if nrm := r3.Norm(n); nrm > 1e-15 {
		return r3.Scale(1/nrm, n)
	}
	return n
}

// edgeDihedralAngle approximates local curvature by the dihedral
// angle between the two triangles sharing a manifold interior edge. A
// boundary or non-manifold edge (not exactly two incident triangles)
// reports zero curvature.
func edgeDihedralAngle(surf *surface.Surface, m *mesh.Mesh, e mesh.EdgeIndex) float64 {
	tris := m.EdgeTriangles(e)
	if len(tris) != 2 {
		return 0
	}
	tri1, ok1 := m.Triangle(tris[0])
	tri2, ok2 := m.Triangle(tris[1])
	if !ok1 || !ok2 {
		return 0
	}
	n1, n2 := faceNormal(surf, tri1), faceNormal(surf, tri2)
	cosTheta := r3.Dot(n1, n2)
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	return math.Acos(cosTheta)
}

// EdgeDihedralAngle is the exported form of edgeDihedralAngle, used by
// the tracker to curvature-scale its edge-length targets.
func EdgeDihedralAngle(surf *surface.Surface, e mesh.EdgeIndex) float64 {
	return edgeDihedralAngle(surf, surf.Mesh, e)
}

// CurvatureScaledLength scales base (an edge-length target) down
// toward minMultiplier*base as the local dihedral angle grows past a
// moderate bend, and up toward maxMultiplier*base in flat regions,
// generalizing the reference library's curvature-scaled edge length
// from a full mean-curvature estimate to this cheaper per-edge
// dihedral proxy.
func CurvatureScaledLength(base, dihedral, minMultiplier, maxMultiplier float64) float64 {
	if minMultiplier <= 0 {
		minMultiplier = 1
	}
	if maxMultiplier <= 0 {
		maxMultiplier = 1
	}
	const referenceDihedral = math.Pi / 4
	t := dihedral / referenceDihedral
	if t > 1 {
		t = 1
	} else if t < 0 {
		t = 0
	}
	multiplier := maxMultiplier - t*(maxMultiplier-minMultiplier)
	return base * multiplier
}

// valenceDeviation returns how far vertex v's valence (neighbor count)
// sits from the ideal interior valence of 6.
func valenceDeviation(m *mesh.Mesh, v mesh.VertexIndex) int {
	dev := len(oneRing(m, v)) - 6
	if dev < 0 {
		return -dev
	}
	return dev
}

// ShouldFlip reports whether flipping edge e would reduce the total
// valence deviation of its four surrounding vertices and increase the
// minimum angle across the two triangles it touches, the pair of
// criteria named for the edge flipper.
func ShouldFlip(surf *surface.Surface, e mesh.EdgeIndex) bool {
	m := surf.Mesh
	ends, ok := m.Edge(e)
	if !ok {
		return false
	}
	a, b := ends[0], ends[1]
	tris := m.EdgeTriangles(e)
	if len(tris) != 2 {
		return false
	}
	tri1, _ := m.Triangle(tris[0])
	tri2, _ := m.Triangle(tris[1])
	c := thirdVertex(tri1, a, b)
	d := thirdVertex(tri2, a, b)
	if c < 0 || d < 0 {
		return false
	}

	devBefore := valenceDeviation(m, a) + valenceDeviation(m, b) + valenceDeviation(m, c) + valenceDeviation(m, d)
	devAfter := valenceDeviationAfterFlip(m, a, -1) + valenceDeviationAfterFlip(m, b, -1) +
		valenceDeviationAfterFlip(m, c, 1) + valenceDeviationAfterFlip(m, d, 1)

	pa, pb, pc, pd := surf.Position(a), surf.Position(b), surf.Position(c), surf.Position(d)
	minBefore := math.Min(MinTriangleAngle(pa, pb, pc), MinTriangleAngle(pa, pb, pd))
	minAfter := math.Min(MinTriangleAngle(pa, pc, pd), MinTriangleAngle(pb, pc, pd))

	return devAfter < devBefore && minAfter > minBefore
}

func valenceDeviationAfterFlip(m *mesh.Mesh, v mesh.VertexIndex, delta int) int {
	dev := len(oneRing(m, v)) + delta - 6
	if dev < 0 {
		return -dev
	}
	return dev
}
