// Package geom implements static point/segment/triangle geometric
// queries, returning an unsigned distance, barycentric weights and an
// outward normal. The distance carries no sign telling which side of
// the triangle the point lies on.
//
// The closest-feature classification (vertex/edge/face) is the
// standard Voronoi-region walk over a triangle (Ericson, Real-Time
// Collision Detection §5.1.5), and the outward normal follows the
// triangle's vertex winding order.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Feature identifies which part of a triangle a closest point lies on.
type Feature int

const (
	FeatureV0 Feature = iota
	FeatureV1
	FeatureV2
	FeatureE01
	FeatureE12
	FeatureE20
	FeatureFace
)

// PointTriangleResult is the outcome of PointTriangleDistance.
type PointTriangleResult struct {
	Distance    float64 // unsigned distance from the point to the triangle
	Closest     r3.Vec  // closest point on the triangle
	Barycentric r3.Vec  // weights (u,v,w) s.t. Closest = u*a + v*b + w*c
	Normal      r3.Vec  // triangle's outward face normal (unit length, zero if degenerate)
	Feature     Feature
}

// TriangleNormal returns the (non-unit) normal of triangle (a,b,c)
// following vertex winding order.
func TriangleNormal(a, b, c r3.Vec) r3.Vec {
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// PointTriangleDistance returns the distance from p to triangle (a,b,c)
// along with barycentric weights of the closest point and the
// triangle's outward normal. This is the classic closest-point
// algorithm (Ericson §5.1.5): check the three vertex Voronoi regions,
// then the three edge regions, falling through to the face region.
func PointTriangleDistance(p, a, b, c r3.Vec) PointTriangleResult {
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	ap := r3.Sub(p, a)

	d1 := r3.Dot(ab, ap)
	d2 := r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return finish(p, a, r3.Vec{X: 1}, FeatureV0, a, b, c)
	}

	bp := r3.Sub(p, b)
	d3 := r3.Dot(ab, bp)
	d4 := r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return finish(p, b, r3.Vec{Y: 1}, FeatureV1, a, b, c)
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		closest := r3.Add(a, r3.Scale(v, ab))
		return finish(p, closest, r3.Vec{X: 1 - v, Y: v}, FeatureE01, a, b, c)
	}

	cp := r3.Sub(p, c)
	d5 := r3.Dot(ab, cp)
	d6 := r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return finish(p, c, r3.Vec{Z: 1}, FeatureV2, a, b, c)
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		closest := r3.Add(a, r3.Scale(w, ac))
		return finish(p, closest, r3.Vec{X: 1 - w, Z: w}, FeatureE20, a, b, c)
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		closest := r3.Add(b, r3.Scale(w, r3.Sub(c, b)))
		return finish(p, closest, r3.Vec{Y: 1 - w, Z: w}, FeatureE12, a, b, c)
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	closest := r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac)))
	return finish(p, closest, r3.Vec{X: 1 - v - w, Y: v, Z: w}, FeatureFace, a, b, c)
}

func finish(p, closest, bary r3.Vec, feat Feature, a, b, c r3.Vec) PointTriangleResult {
	n := TriangleNormal(a, b, c)
	if nrm := r3.Norm(n); nrm > 1e-15 {
		n = r3.Scale(1/nrm, n)
	} else {
		n = r3.Vec{}
	}
	return PointTriangleResult{
		Distance:    r3.Norm(r3.Sub(p, closest)),
		Closest:     closest,
		Barycentric: bary,
		Normal:      n,
		Feature:     feat,
	}
}

// EdgeEdgeResult is the outcome of EdgeEdgeDistance.
type EdgeEdgeResult struct {
	Distance float64
	S, T     float64 // barycentric parameters: closest points are p1+S*(q1-p1), p2+T*(q2-p2)
	ClosestA r3.Vec
	ClosestB r3.Vec
	Normal   r3.Vec // unit vector from ClosestA to ClosestB, zero if coincident
}

// EdgeEdgeDistance returns the distance between segment (p1,q1) and
// segment (p2,q2) along with the barycentric parameters of the closest
// points (Ericson §5.1.9).
func EdgeEdgeDistance(p1, q1, p2, q2 r3.Vec) EdgeEdgeResult {
	d1 := r3.Sub(q1, p1)
	d2 := r3.Sub(q2, p2)
	r := r3.Sub(p1, p2)

	a := r3.Dot(d1, d1)
	e := r3.Dot(d2, d2)
	f := r3.Dot(d2, r)

	const eps = 1e-12
	var s, t float64

	if a <= eps && e <= eps {
		s, t = 0, 0
	} else if a <= eps {
		s = 0
		t = clamp01(f / e)
	} else {
		c := r3.Dot(d1, r)
		if e <= eps {
			t = 0
			s = clamp01(-c / a)
		} else {
			b := r3.Dot(d1, d2)
			denom := a*e - b*b
			if denom != 0 {
				s = clamp01((b*f - c*e) / denom)
			} else {
				s = 0
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp01(-c / a)
			} else if t > 1 {
				t = 1
				s = clamp01((b - c) / a)
			}
		}
	}

	ca := r3.Add(p1, r3.Scale(s, d1))
	cb := r3.Add(p2, r3.Scale(t, d2))
	diff := r3.Sub(cb, ca)
	dist := r3.Norm(diff)
	var n r3.Vec
	if dist > 1e-15 {
		n = r3.Scale(1/dist, diff)
	}
	return EdgeEdgeResult{Distance: dist, S: s, T: t, ClosestA: ca, ClosestB: cb, Normal: n}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// SegmentTriangleIntersection is a tolerant boolean test for whether
// segment (p,q) pierces triangle (a,b,c), using the Möller-Trumbore
// algorithm restricted to the segment's parameter range.
func SegmentTriangleIntersection(p, q, a, b, c r3.Vec) bool {
	const eps = 1e-12
	dir := r3.Sub(q, p)
	e1 := r3.Sub(b, a)
	e2 := r3.Sub(c, a)
	h := r3.Cross(dir, e2)
	det := r3.Dot(e1, h)
	if math.Abs(det) < eps {
		return false // parallel (or degenerate): treat as no static intersection
	}
	invDet := 1 / det
	s := r3.Sub(p, a)
	u := invDet * r3.Dot(s, h)
	if u < -eps || u > 1+eps {
		return false
	}
	qv := r3.Cross(s, e1)
	v := invDet * r3.Dot(dir, qv)
	if v < -eps || u+v > 1+eps {
		return false
	}
	t := invDet * r3.Dot(e2, qv)
	return t >= -eps && t <= 1+eps
}
