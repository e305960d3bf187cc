package geomutil

import "gonum.org/v1/gonum/spatial/r3"

// Box is an axis-aligned bounding box with the extra methods the
// tracking pipeline needs beyond what a plain min/max pair offers
// (Pad, Extend, Overlaps).
type Box struct {
	Min, Max r3.Vec
}

// BoxFromPoint returns the degenerate box containing just v.
func BoxFromPoint(v r3.Vec) Box {
	return Box{Min: v, Max: v}
}

// Extend returns the smallest box containing both a and b.
func (a Box) Extend(b Box) Box {
	return Box{Min: MinElem(a.Min, b.Min), Max: MaxElem(a.Max, b.Max)}
}

// Include enlarges a box to contain v.
func (a Box) Include(v r3.Vec) Box {
	return Box{Min: MinElem(a.Min, v), Max: MaxElem(a.Max, v)}
}

// Pad grows the box by pad on every side, keeping a margin so a moving
// feature can be found in a broad-phase query before it actually
// reaches the box's original extent.
func (a Box) Pad(pad float64) Box {
	p := r3.Vec{X: pad, Y: pad, Z: pad}
	return Box{Min: r3.Sub(a.Min, p), Max: r3.Add(a.Max, p)}
}

// Overlaps reports whether a and b share any volume (inclusive of touching faces).
func (a Box) Overlaps(b Box) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y &&
		a.Min.Z <= b.Max.Z && a.Max.Z >= b.Min.Z
}

// Size returns the box's extent along each axis.
func (a Box) Size() r3.Vec {
	return r3.Sub(a.Max, a.Min)
}

// BoxOfTriangle returns the bounding box of three points.
func BoxOfTriangle(a, b, c r3.Vec) Box {
	return Box{Min: MinElem(a, MinElem(b, c)), Max: MaxElem(a, MaxElem(b, c))}
}

// BoxOfSegment returns the bounding box of two points.
func BoxOfSegment(a, b r3.Vec) Box {
	return Box{Min: MinElem(a, b), Max: MaxElem(a, b)}
}
