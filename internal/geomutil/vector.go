// Package geomutil holds small r3.Vec/Box helpers shared by every
// surftrack package: a narrow, dependency-light toolbox built directly
// on gonum's r3.Vec rather than a hand-rolled vector type.
package geomutil

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// EqualWithin reports whether a and b are within tol in every component.
func EqualWithin(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol &&
		math.Abs(a.Y-b.Y) <= tol &&
		math.Abs(a.Z-b.Z) <= tol
}

// MinElem returns the component-wise minimum of two vectors.
func MinElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
}

// MaxElem returns the component-wise maximum of two vectors.
func MaxElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
}

// AbsElem returns the component-wise absolute value.
func AbsElem(a r3.Vec) r3.Vec {
	return r3.Vec{X: math.Abs(a.X), Y: math.Abs(a.Y), Z: math.Abs(a.Z)}
}

// MaxComponent returns the largest of the three components of a.
func MaxComponent(a r3.Vec) float64 {
	return math.Max(a.Z, math.Max(a.X, a.Y))
}

// Centroid3 returns the average of three points.
func Centroid3(a, b, c r3.Vec) r3.Vec {
	return r3.Scale(1.0/3.0, r3.Add(r3.Add(a, b), c))
}
