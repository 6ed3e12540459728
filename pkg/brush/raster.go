package brush

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Rasterizer converts a solid, placed by an affine transform into voxel-index
// space, into a binary occupancy mask over integer coordinates.
type Rasterizer interface {
	Rasterize(s Solid, t *Transform) (*Mask, error)
}

// Mask is a binary voxel mask over the inclusive integer extent [Min, Max].
type Mask struct {
	Min  [3]int
	Max  [3]int
	bits []bool
}

// NewMask allocates an empty mask covering [lo, hi] inclusive.
func NewMask(lo, hi [3]int) *Mask {
	m := &Mask{Min: lo, Max: hi}
	n := 1
	for a := 0; a < 3; a++ {
		if hi[a] < lo[a] {
			n = 0
			break
		}
		n *= hi[a] - lo[a] + 1
	}
	m.bits = make([]bool, n)
	return m
}

func (m *Mask) index(i, j, k int) (int, bool) {
	if i < m.Min[0] || i > m.Max[0] ||
		j < m.Min[1] || j > m.Max[1] ||
		k < m.Min[2] || k > m.Max[2] {
		return 0, false
	}
	nx := m.Max[0] - m.Min[0] + 1
	ny := m.Max[1] - m.Min[1] + 1
	return ((k-m.Min[2])*ny+(j-m.Min[1]))*nx + (i - m.Min[0]), true
}

// At reports whether (i,j,k) is inside. Coordinates outside the extent are outside.
func (m *Mask) At(i, j, k int) bool {
	idx, ok := m.index(i, j, k)
	return ok && m.bits[idx]
}

// Set marks (i,j,k). Coordinates outside the extent are ignored.
func (m *Mask) Set(i, j, k int, inside bool) {
	if idx, ok := m.index(i, j, k); ok {
		m.bits[idx] = inside
	}
}

// Count returns the number of inside cells.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// SDFRasterizer samples the solid's signed distance at every integer voxel
// center of the transformed bounding box, padded by one voxel on each side.
//
// A sample is inside when its distance is strictly less than Threshold. With
// the zero Threshold, voxel centers lying exactly on the surface are outside.
type SDFRasterizer struct {
	Threshold float64
}

// Rasterize implements Rasterizer.
func (r SDFRasterizer) Rasterize(s Solid, t *Transform) (*Mask, error) {
	inv, err := t.Inverse()
	if err != nil {
		return nil, err
	}
	bounds := t.TransformBox(s.Bounds())
	if !finiteBox(bounds) {
		return nil, fmt.Errorf("brush bounds are not finite: %v", bounds)
	}

	var lo, hi [3]int
	for a, v := range [3][2]float64{
		{bounds.Min.X, bounds.Max.X},
		{bounds.Min.Y, bounds.Max.Y},
		{bounds.Min.Z, bounds.Max.Z},
	} {
		lo[a] = int(math.Floor(v[0])) - 1
		hi[a] = int(math.Ceil(v[1])) + 1
	}

	mask := NewMask(lo, hi)
	back := inv.affine()
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				p := back.apply(r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)})
				if s.Evaluate(p) < r.Threshold {
					mask.Set(i, j, k, true)
				}
			}
		}
	}
	return mask, nil
}

func finiteBox(b r3.Box) bool {
	for _, v := range []float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
