package brush

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a 3D affine transform stored as a homogeneous 4x4 matrix.
// Transforms are immutable; the Then* methods return new values.
type Transform struct {
	m *mat.Dense
}

// IdentityTransform returns the transform that leaves points unchanged.
func IdentityTransform() *Transform {
	return &Transform{m: mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})}
}

// then returns the transform that applies t first and a second.
func (t *Transform) then(a *mat.Dense) *Transform {
	var out mat.Dense
	out.Mul(a, t.m)
	return &Transform{m: &out}
}

// ThenScale appends a non-uniform scale.
func (t *Transform) ThenScale(s r3.Vec) *Transform {
	return t.then(mat.NewDense(4, 4, []float64{
		s.X, 0, 0, 0,
		0, s.Y, 0, 0,
		0, 0, s.Z, 0,
		0, 0, 0, 1,
	}))
}

// ThenRotate appends a rotation.
func (t *Transform) ThenRotate(r r3.Rotation) *Transform {
	return t.ThenLinear(r.Rotate(r3.Vec{X: 1}), r.Rotate(r3.Vec{Y: 1}), r.Rotate(r3.Vec{Z: 1}))
}

// ThenLinear appends the linear map sending the unit X, Y and Z vectors to
// x, y and z.
func (t *Transform) ThenLinear(x, y, z r3.Vec) *Transform {
	return t.then(mat.NewDense(4, 4, []float64{
		x.X, y.X, z.X, 0,
		x.Y, y.Y, z.Y, 0,
		x.Z, y.Z, z.Z, 0,
		0, 0, 0, 1,
	}))
}

// ThenTranslate appends a translation.
func (t *Transform) ThenTranslate(d r3.Vec) *Transform {
	return t.then(mat.NewDense(4, 4, []float64{
		1, 0, 0, d.X,
		0, 1, 0, d.Y,
		0, 0, 1, d.Z,
		0, 0, 0, 1,
	}))
}

// Inverse returns the inverse transform.
func (t *Transform) Inverse() (*Transform, error) {
	var inv mat.Dense
	if err := inv.Inverse(t.m); err != nil {
		return nil, fmt.Errorf("brush transform is not invertible: %w", err)
	}
	return &Transform{m: &inv}, nil
}

// Apply maps p through the transform.
func (t *Transform) Apply(p r3.Vec) r3.Vec {
	a := t.affine()
	return a.apply(p)
}

// TransformBox returns the axis-aligned box enclosing the eight transformed corners of b.
func (t *Transform) TransformBox(b r3.Box) r3.Box {
	a := t.affine()
	out := r3.Box{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for c := 0; c < 8; c++ {
		corner := b.Min
		if c&1 != 0 {
			corner.X = b.Max.X
		}
		if c&2 != 0 {
			corner.Y = b.Max.Y
		}
		if c&4 != 0 {
			corner.Z = b.Max.Z
		}
		p := a.apply(corner)
		out.Min = r3.Vec{X: math.Min(out.Min.X, p.X), Y: math.Min(out.Min.Y, p.Y), Z: math.Min(out.Min.Z, p.Z)}
		out.Max = r3.Vec{X: math.Max(out.Max.X, p.X), Y: math.Max(out.Max.Y, p.Y), Z: math.Max(out.Max.Z, p.Z)}
	}
	return out
}

// affine is the top three rows of the matrix, unpacked for the sampling loop.
type affine [12]float64

func (t *Transform) affine() affine {
	var a affine
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			a[r*4+c] = t.m.At(r, c)
		}
	}
	return a
}

func (a *affine) apply(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: a[0]*p.X + a[1]*p.Y + a[2]*p.Z + a[3],
		Y: a[4]*p.X + a[5]*p.Y + a[6]*p.Z + a[7],
		Z: a[8]*p.X + a[9]*p.Y + a[10]*p.Z + a[11],
	}
}
