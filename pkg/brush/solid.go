// Package brush turns continuous brush shapes into discrete voxel stamps.
//
// A brush is authored in millimetres as a signed distance solid, mapped into
// voxel-index space with an affine transform and sampled at integer voxel
// centers. The resulting offsets are cached against the recipe that produced
// them so that a paint stroke only rasterizes once.
package brush

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Solid is a continuous shape described by a signed distance function.
type Solid interface {
	// Evaluate returns the signed distance from p to the surface. The value
	// is negative inside the solid and positive outside. Only the sign is
	// relied upon by the rasterizer.
	Evaluate(p r3.Vec) float64
	// Bounds returns a box that contains the whole solid.
	Bounds() r3.Box
}

// Cylinder is a solid cylinder centered on the origin with its axis along Y.
// A Facets value of 3 or more replaces the circular cross-section by a
// regular polygon with that many sides inscribed in the circle.
type Cylinder struct {
	Radius float64
	Height float64
	Facets int
}

// Evaluate implements Solid.
func (c Cylinder) Evaluate(p r3.Vec) float64 {
	var radial float64
	if c.Facets >= 3 {
		radial = polygonDistance(p.X, p.Z, c.Radius, c.Facets)
	} else {
		radial = math.Hypot(p.X, p.Z) - c.Radius
	}
	axial := math.Abs(p.Y) - c.Height/2
	return math.Max(radial, axial)
}

// Bounds implements Solid.
func (c Cylinder) Bounds() r3.Box {
	h := c.Height / 2
	return r3.Box{
		Min: r3.Vec{X: -c.Radius, Y: -h, Z: -c.Radius},
		Max: r3.Vec{X: c.Radius, Y: h, Z: c.Radius},
	}
}

// polygonDistance is the signed distance bound of a regular n-gon with
// circumradius r and a vertex on the +x axis. Exact along edge normals.
func polygonDistance(x, y, r float64, n int) float64 {
	apothem := r * math.Cos(math.Pi/float64(n))
	d := math.Inf(-1)
	for k := 0; k < n; k++ {
		theta := float64(2*k+1) * math.Pi / float64(n)
		sin, cos := math.Sincos(theta)
		d = math.Max(d, x*cos+y*sin)
	}
	return d - apothem
}

// Sphere is a solid ball centered on the origin.
type Sphere struct {
	Radius float64
}

// Evaluate implements Solid.
func (s Sphere) Evaluate(p r3.Vec) float64 {
	return r3.Norm(p) - s.Radius
}

// Bounds implements Solid.
func (s Sphere) Bounds() r3.Box {
	return r3.Box{
		Min: r3.Vec{X: -s.Radius, Y: -s.Radius, Z: -s.Radius},
		Max: r3.Vec{X: s.Radius, Y: s.Radius, Z: s.Radius},
	}
}
