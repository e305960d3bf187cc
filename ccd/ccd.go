// Package ccd implements continuous collision detection between a
// point and a triangle, or between two edges, swept linearly from a
// t=0 configuration to a t=1 configuration.
//
// The volume-sign approach (find the instants at which four points
// become coplanar, then test whether the contact point lies within
// the valid barycentric/parametric range at that instant) is the
// textbook exact-CCD construction: this package builds it directly on
// the cubic-root-finding oracle in package predicates rather than a
// conservative-advancement iterative scheme. That oracle works in
// float64 and counts a vanishing (degenerate) cubic as a root at t=0.
package ccd

import (
	"github.com/soypat/surftrack/predicates"
	"gonum.org/v1/gonum/spatial/r3"
)

// Result is the outcome of a CCD query.
type Result struct {
	Collides bool
	T        float64 // time of impact in [0,1]
	Normal   r3.Vec  // unit normal at impact; un-normalized (possibly zero) for a degenerate contact
	Bary     [4]float64
	// RelativeDisplacement is the change over the step in the signed
	// separation of the two primitives measured along Normal: negative
	// means that separation decreased.
	RelativeDisplacement float64
}

const paramTol = 1e-6

// PointTriangle tests whether point p collides with triangle (a,b,c)
// as both sweep linearly from their *0 (t=0) to *1 (t=1) positions.
func PointTriangle(p0, a0, b0, c0, p1, a1, b1, c1 r3.Vec) Result {
	e1_0 := r3.Sub(a0, p0)
	e2_0 := r3.Sub(b0, p0)
	e3_0 := r3.Sub(c0, p0)
	e1_1 := r3.Sub(a1, p1)
	e2_1 := r3.Sub(b1, p1)
	e3_1 := r3.Sub(c1, p1)

	roots := coplanarRoots(e1_0, e2_0, e3_0, e1_1, e2_1, e3_1)
	for _, t := range roots {
		pt := lerp(p0, p1, t)
		at := lerp(a0, a1, t)
		bt := lerp(b0, b1, t)
		ct := lerp(c0, c1, t)
		u, v, w, ok := triangleBarycentric(pt, at, bt, ct)
		if !ok {
			continue
		}
		n := r3.Cross(r3.Sub(bt, at), r3.Sub(ct, at))
		if nrm := r3.Norm(n); nrm > 1e-15 {
			n = r3.Scale(1/nrm, n)
		}
		// A triangle collapsed to zero area at the impact instant leaves
		// n un-normalized (possibly zero); report the collision anyway
		// rather than dropping a degenerate-but-real contact.
		contactAtT0 := r3.Add(r3.Scale(u, a0), r3.Add(r3.Scale(v, b0), r3.Scale(w, c0)))
		contactAtT1 := r3.Add(r3.Scale(u, a1), r3.Add(r3.Scale(v, b1), r3.Scale(w, c1)))
		relDisp := r3.Dot(n, r3.Sub(p1, contactAtT1)) - r3.Dot(n, r3.Sub(p0, contactAtT0))
		return Result{
			Collides:             true,
			T:                    t,
			Normal:               n,
			Bary:                 [4]float64{1, u, v, w},
			RelativeDisplacement: relDisp,
		}
	}
	return Result{}
}

// EdgeEdge tests whether edge (a,b) collides with edge (c,d) as both
// sweep linearly from their *0 to *1 positions.
func EdgeEdge(a0, b0, c0, d0, a1, b1, c1, d1 r3.Vec) Result {
	e1_0 := r3.Sub(b0, a0)
	e2_0 := r3.Sub(c0, a0)
	e3_0 := r3.Sub(d0, a0)
	e1_1 := r3.Sub(b1, a1)
	e2_1 := r3.Sub(c1, a1)
	e3_1 := r3.Sub(d1, a1)

	roots := coplanarRoots(e1_0, e2_0, e3_0, e1_1, e2_1, e3_1)
	for _, t := range roots {
		at := lerp(a0, a1, t)
		bt := lerp(b0, b1, t)
		ct := lerp(c0, c1, t)
		dt := lerp(d0, d1, t)
		s, u, n, ok := edgeEdgeParams(at, bt, ct, dt)
		if !ok {
			continue
		}
		contactA0 := lerp(a0, b0, s)
		contactA1 := lerp(a1, b1, s)
		contactB0 := lerp(c0, d0, u)
		contactB1 := lerp(c1, d1, u)
		relDisp := r3.Dot(n, r3.Sub(contactB1, contactA1)) - r3.Dot(n, r3.Sub(contactB0, contactA0))
		return Result{
			Collides:             true,
			T:                    t,
			Normal:               n,
			Bary:                 [4]float64{1 - s, s, 1 - u, u},
			RelativeDisplacement: relDisp,
		}
	}
	return Result{}
}

func lerp(x0, x1 r3.Vec, t float64) r3.Vec {
	return r3.Add(x0, r3.Scale(t, r3.Sub(x1, x0)))
}

// coplanarRoots finds t in [0,1] at which e1(t), e2(t), e3(t) (each
// linearly interpolated from its *_0 to *_1 value) become coplanar,
// i.e. dot(e1, cross(e2,e3)) == 0. This is the shared cubic behind
// both PointTriangle and EdgeEdge, since "are 4 points coplanar" is
// the same question whether those points are a point+triangle or two
// edges.
func coplanarRoots(e1_0, e2_0, e3_0, e1_1, e2_1, e3_1 r3.Vec) []float64 {
	a1, b1 := e1_0, r3.Sub(e1_1, e1_0)
	a2, b2 := e2_0, r3.Sub(e2_1, e2_0)
	a3, b3 := e3_0, r3.Sub(e3_1, e3_0)

	d := r3.Dot(a1, r3.Cross(a2, a3))
	c := r3.Dot(a1, r3.Cross(a2, b3)) + r3.Dot(a1, r3.Cross(b2, a3)) + r3.Dot(b1, r3.Cross(a2, a3))
	b := r3.Dot(a1, r3.Cross(b2, b3)) + r3.Dot(b1, r3.Cross(a2, b3)) + r3.Dot(b1, r3.Cross(b2, a3))
	a := r3.Dot(b1, r3.Cross(b2, b3))

	return predicates.CubicRoots(a, b, c, d)
}

// triangleBarycentric returns the barycentric weights of p's
// projection onto the plane of (a,b,c), and whether p lies within the
// triangle (with a small tolerance). A triangle collapsed to zero area
// is degenerate rather than genuinely missed: it conservatively
// reports its centroid weights as a hit, the same "degeneracy counts
// as collision" rule predicates.CubicRoots applies to a vanishing
// cubic.
func triangleBarycentric(p, a, b, c r3.Vec) (u, v, w float64, ok bool) {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	n2 := r3.Dot(n, n)
	if n2 < 1e-20 {
		return 1.0 / 3, 1.0 / 3, 1.0 / 3, true
	}
	ua := r3.Dot(r3.Cross(r3.Sub(c, b), r3.Sub(p, b)), n) / n2
	va := r3.Dot(r3.Cross(r3.Sub(a, c), r3.Sub(p, c)), n) / n2
	wa := 1 - ua - va
	if ua < -paramTol || va < -paramTol || wa < -paramTol {
		return 0, 0, 0, false
	}
	return ua, va, wa, true
}

// edgeEdgeParams returns the parameters s (along a->b) and u (along
// c->d) at which the two (now-coplanar) lines cross, the unit normal
// perpendicular to both edges, and whether both parameters are within
// [0,1]. Parallel (or collinear) edges have no well-defined crossing
// point, but coincide with the conservative-degeneracy case: they
// report a midpoint contact rather than no collision, the same rule
// predicates.CubicRoots applies to a vanishing cubic.
func edgeEdgeParams(a, b, c, d r3.Vec) (s, u float64, normal r3.Vec, ok bool) {
	d1 := r3.Sub(b, a)
	d2 := r3.Sub(d, c)
	r := r3.Sub(c, a)
	cr := r3.Cross(d1, d2)
	denom := r3.Dot(cr, cr)
	if denom < 1e-20 {
		return 0.5, 0.5, r3.Vec{}, true
	}
	s = r3.Dot(r3.Cross(r, d2), cr) / denom
	u = r3.Dot(r3.Cross(r, d1), cr) / denom
	if s < -paramTol || s > 1+paramTol || u < -paramTol || u > 1+paramTol {
		return 0, 0, r3.Vec{}, false
	}
	n := cr
	if nrm := r3.Norm(n); nrm > 1e-15 {
		n = r3.Scale(1/nrm, n)
	}
	return s, u, n, true
}
