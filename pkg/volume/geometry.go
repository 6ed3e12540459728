// Package volume describes the voxel grids the viewer works on: the read-only
// geometry of a scanned image and the uint8 label map painted on top of it.
package volume

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidGeometry is returned when dimensions or spacing are not strictly positive.
var ErrInvalidGeometry = errors.New("invalid volume geometry")

// Geometry is the read-only description of a 3D scalar grid.
//
// Voxel (0,0,0) sits at Origin and voxel (i,j,k) sits at
// Origin + (i*Spacing.X, j*Spacing.Y, k*Spacing.Z). Bounds are measured between
// voxel centers, the same convention the reslice and picking code rely on.
type Geometry struct {
	// Dims is the number of voxels along X, Y and Z
	Dims [3]int

	// Spacing is the physical size of a voxel in mm along X, Y and Z
	Spacing r3.Vec

	// Origin is the world coordinate of voxel (0,0,0)
	Origin r3.Vec
}

// NewGeometry validates and returns a Geometry.
//
// Parameters:
//   - dims: number of voxels per axis, all > 0
//   - spacing: mm per voxel per axis, all > 0
//   - origin: world position of the first voxel
//
// Returns:
//   - the geometry, or an error wrapping ErrInvalidGeometry
func NewGeometry(dims [3]int, spacing, origin r3.Vec) (Geometry, error) {
	g := Geometry{Dims: dims, Spacing: spacing, Origin: origin}
	if err := g.Validate(); err != nil {
		return Geometry{}, err
	}
	return g, nil
}

// Validate checks that every dimension and spacing component is strictly positive and finite.
func (g Geometry) Validate() error {
	for axis, n := range g.Dims {
		if n <= 0 {
			return fmt.Errorf("%w: dimension %d is %d", ErrInvalidGeometry, axis, n)
		}
	}
	for axis, s := range [3]float64{g.Spacing.X, g.Spacing.Y, g.Spacing.Z} {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: spacing %d is %g", ErrInvalidGeometry, axis, s)
		}
	}
	return nil
}

// NumVoxels returns nx*ny*nz.
func (g Geometry) NumVoxels() int {
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

// Strides returns the linear distance between adjacent rows and adjacent slices.
func (g Geometry) Strides() (row, slice int) {
	return g.Dims[0], g.Dims[0] * g.Dims[1]
}

// Bounds returns the axis-aligned box spanned by the voxel centers.
func (g Geometry) Bounds() r3.Box {
	return r3.Box{
		Min: g.Origin,
		Max: r3.Add(g.Origin, r3.Vec{
			X: float64(g.Dims[0]-1) * g.Spacing.X,
			Y: float64(g.Dims[1]-1) * g.Spacing.Y,
			Z: float64(g.Dims[2]-1) * g.Spacing.Z,
		}),
	}
}

// Center returns the midpoint of Bounds.
func (g Geometry) Center() r3.Vec {
	b := g.Bounds()
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// HalfExtents returns half the size of Bounds along each axis.
func (g Geometry) HalfExtents() r3.Vec {
	b := g.Bounds()
	return r3.Scale(0.5, r3.Sub(b.Max, b.Min))
}

// ContinuousIndex maps a world point into fractional voxel-index space.
func (g Geometry) ContinuousIndex(p r3.Vec) r3.Vec {
	d := r3.Sub(p, g.Origin)
	return r3.Vec{X: d.X / g.Spacing.X, Y: d.Y / g.Spacing.Y, Z: d.Z / g.Spacing.Z}
}

// WorldToIndex resolves a world point to the nearest voxel. ok is false when
// that voxel lies outside the grid.
func (g Geometry) WorldToIndex(p r3.Vec) (i, j, k int, ok bool) {
	c := g.ContinuousIndex(p)
	i = int(math.Round(c.X))
	j = int(math.Round(c.Y))
	k = int(math.Round(c.Z))
	return i, j, k, g.Contains(i, j, k)
}

// IndexToWorld returns the world position of voxel (i,j,k).
func (g Geometry) IndexToWorld(i, j, k int) r3.Vec {
	return r3.Add(g.Origin, r3.Vec{
		X: float64(i) * g.Spacing.X,
		Y: float64(j) * g.Spacing.Y,
		Z: float64(k) * g.Spacing.Z,
	})
}

// Contains reports whether (i,j,k) addresses a voxel of the grid.
func (g Geometry) Contains(i, j, k int) bool {
	return i >= 0 && i < g.Dims[0] &&
		j >= 0 && j < g.Dims[1] &&
		k >= 0 && k < g.Dims[2]
}

// LinearIndex returns the row-major offset of voxel (i,j,k) in the voxel buffer.
func (g Geometry) LinearIndex(i, j, k int) int {
	return k*g.Dims[0]*g.Dims[1] + j*g.Dims[0] + i
}

// SameLayout reports whether two geometries share dimensions and spacing, so
// offsets computed for one can be applied to the other.
func (g Geometry) SameLayout(o Geometry) bool {
	return g.Dims == o.Dims && g.Spacing == o.Spacing
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%dx%d @ (%g,%g,%g)mm origin (%g,%g,%g)",
		g.Dims[0], g.Dims[1], g.Dims[2],
		g.Spacing.X, g.Spacing.Y, g.Spacing.Z,
		g.Origin.X, g.Origin.Y, g.Origin.Z)
}
