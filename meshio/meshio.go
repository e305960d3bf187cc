// Package meshio serializes a surface.Surface to and from two boundary
// formats: a compact raw record format that round-trips every field
// the tracker cares about (position, mass, solidity, connectivity),
// and binary STL for interchange with the rest of the geometry
// ecosystem.
//
// STL has no notion of shared vertices: every triangle carries three
// independent vertex records. Importing one therefore has to weld
// coincident vertices back together before the mesh's incidence maps
// mean anything, which is what ImportSTL's binning step does.
package meshio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/chewxy/math32"
	"github.com/hschendel/stl"
	"github.com/soypat/surftrack/surface"
	"gonum.org/v1/gonum/spatial/r3"
)

const rawMagic uint32 = 0x53524654 // "SRFT"

// ErrBadMagic is returned by ReadRaw when the stream doesn't start
// with the expected header.
var ErrBadMagic = errors.New("meshio: not a raw surface stream")

// WriteRaw writes every live vertex and triangle to w as fixed-width
// records: a header (magic, vertex count, triangle count), then one
// record per vertex (position, mass, solid flag), then one record per
// triangle (three vertex indices). Dead (tombstoned) slots are skipped
// and indices are remapped densely, so the stream never exposes the
// mesh's internal slot numbering.
func WriteRaw(w io.Writer, surf *surface.Surface) error {
	bw := bufio.NewWriter(w)
	m := surf.Mesh

	remap := make([]int32, m.NumVertexSlots())
	var nv int32
	for v := 0; v < m.NumVertexSlots(); v++ {
		if m.VertexIsLive(v) {
			remap[v] = nv
			nv++
		} else {
			remap[v] = -1
		}
	}

	var triangles [][3]int
	for t := 0; t < m.NumTriangleSlots(); t++ {
		if tri, ok := m.Triangle(t); ok {
			triangles = append(triangles, tri)
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, rawMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(nv)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	for v := 0; v < m.NumVertexSlots(); v++ {
		if !m.VertexIsLive(v) {
			continue
		}
		p := surf.Position(v)
		rec := struct {
			X, Y, Z, Mass float64
			Solid         uint8
		}{p.X, p.Y, p.Z, surf.Mass(v), boolToByte(surf.IsSolid(v))}
		if err := binary.Write(bw, binary.LittleEndian, &rec); err != nil {
			return err
		}
	}

	for _, tri := range triangles {
		rec := [3]uint32{uint32(remap[tri[0]]), uint32(remap[tri[1]]), uint32(remap[tri[2]])}
		if err := binary.Write(bw, binary.LittleEndian, &rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadRaw reads a stream written by WriteRaw and returns a freshly
// built Surface, with padding applied to its broad-phase bounds.
func ReadRaw(r io.Reader, padding float64) (*surface.Surface, error) {
	br := bufio.NewReader(r)
	var magic, nv, nt uint32
	if err := binary.Read(br, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != rawMagic {
		return nil, ErrBadMagic
	}
	if err := binary.Read(br, binary.LittleEndian, &nv); err != nil {
		return nil, err
	}
	if err := binary.Read(br, binary.LittleEndian, &nt); err != nil {
		return nil, err
	}

	surf := surface.New(padding)
	indices := make([]int, nv)
	for i := uint32(0); i < nv; i++ {
		var rec struct {
			X, Y, Z, Mass float64
			Solid         uint8
		}
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("meshio: reading vertex %d: %w", i, err)
		}
		v := surf.AddVertex(r3.Vec{X: rec.X, Y: rec.Y, Z: rec.Z}, rec.Mass, rec.Solid != 0)
		indices[i] = v
	}

	for i := uint32(0); i < nt; i++ {
		var rec [3]uint32
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("meshio: reading triangle %d: %w", i, err)
		}
		if rec[0] >= nv || rec[1] >= nv || rec[2] >= nv {
			return nil, fmt.Errorf("meshio: triangle %d references out-of-range vertex", i)
		}
		if _, err := surf.AddTriangle(indices[rec[0]], indices[rec[1]], indices[rec[2]]); err != nil {
			return nil, fmt.Errorf("meshio: triangle %d: %w", i, err)
		}
	}
	return surf, nil
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// ExportSTL writes every live triangle of surf as a binary STL solid,
// narrowing positions to float32 the same way a binary STL body
// always does.
func ExportSTL(w io.Writer, surf *surface.Surface, name string) error {
	m := surf.Mesh
	solid := &stl.Solid{Name: name}
	for t := 0; t < m.NumTriangleSlots(); t++ {
		tri, ok := m.Triangle(t)
		if !ok {
			continue
		}
		a, b, c := surf.Position(tri[0]), surf.Position(tri[1]), surf.Position(tri[2])
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		if nrm := r3.Norm(n); nrm > 1e-15 {
			n = r3.Scale(1/nrm, n)
		}
		solid.Triangles = append(solid.Triangles, stl.Triangle{
			Normal:   toVec3(n),
			Vertices: [3]stl.Vec3{toVec3(a), toVec3(b), toVec3(c)},
		})
	}
	return solid.WriteAll(w)
}

func toVec3(v r3.Vec) stl.Vec3 {
	return stl.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

func badVec3(v stl.Vec3) bool {
	return math32.IsNaN(v[0]) || math32.IsInf(v[0], 0) ||
		math32.IsNaN(v[1]) || math32.IsInf(v[1], 0) ||
		math32.IsNaN(v[2]) || math32.IsInf(v[2], 0)
}

// ImportSTL reads a binary or ASCII STL solid and rebuilds it as a
// Surface, welding vertices that land within mergeTolerance of each
// other into a single mesh vertex so the result has real incidence
// structure instead of three disjoint vertices per triangle.
func ImportSTL(r io.ReadSeeker, mergeTolerance, padding float64, mass float64) (*surface.Surface, error) {
	solid, err := stl.ReadAll(r)
	if err != nil {
		return nil, err
	}
	surf := surface.New(padding)
	index := newVertexBinner(mergeTolerance)

	for ti, tri := range solid.Triangles {
		var idx [3]int
		var badVertex bool
		for k, v := range tri.Vertices {
			if badVec3(v) {
				badVertex = true
				break
			}
			p := r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
			id, existed := index.lookup(p)
			if !existed {
				id = surf.AddVertex(p, mass, false)
				index.bind(p, id)
			}
			idx[k] = id
		}
		if badVertex || idx[0] == idx[1] || idx[1] == idx[2] || idx[0] == idx[2] {
			continue // inf/NaN vertex or degenerate triangle after welding, skip
		}
		if _, err := surf.AddTriangle(idx[0], idx[1], idx[2]); err != nil {
			return nil, fmt.Errorf("meshio: STL triangle %d: %w", ti, err)
		}
	}
	return surf, nil
}

// vertexBinner deduplicates STL's per-triangle vertex copies by
// snapping each position to a grid of mergeTolerance-sized cells.
type vertexBinner struct {
	tolerance float64
	cells     map[[3]int64][]binnedVertex
}

type binnedVertex struct {
	p  r3.Vec
	id int
}

func newVertexBinner(tolerance float64) *vertexBinner {
	if tolerance <= 0 {
		tolerance = 1e-9
	}
	return &vertexBinner{tolerance: tolerance, cells: map[[3]int64][]binnedVertex{}}
}

func (b *vertexBinner) cellKey(p r3.Vec) [3]int64 {
	return [3]int64{
		int64(p.X / b.tolerance),
		int64(p.Y / b.tolerance),
		int64(p.Z / b.tolerance),
	}
}

func (b *vertexBinner) lookup(p r3.Vec) (id int, found bool) {
	key := b.cellKey(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				neighbor := [3]int64{key[0] + dx, key[1] + dy, key[2] + dz}
				for _, bv := range b.cells[neighbor] {
					if r3.Norm(r3.Sub(bv.p, p)) <= b.tolerance {
						return bv.id, true
					}
				}
			}
		}
	}
	return 0, false
}

func (b *vertexBinner) bind(p r3.Vec, id int) {
	key := b.cellKey(p)
	b.cells[key] = append(b.cells[key], binnedVertex{p: p, id: id})
}
