package slicing

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegenerateRotation is returned for zero-length or non-finite orientations.
var ErrDegenerateRotation = errors.New("degenerate rotation")

// Identity is the orientation whose plane is the native XY (axial) plane.
var Identity = quat.Number{Real: 1}

// AxisAngle returns the unit quaternion rotating by degrees about axis.
func AxisAngle(degrees float64, axis r3.Vec) quat.Number {
	if r3.Norm(axis) == 0 {
		return Identity
	}
	return quat.Number(r3.NewRotation(degrees*math.Pi/180, axis))
}

// Axial looks down the Z axis: U=X, V=Y, normal=Z.
func Axial() quat.Number { return Identity }

// Coronal looks down the Y axis: U=X, V=Z, normal=-Y.
func Coronal() quat.Number { return AxisAngle(90, r3.Vec{X: 1}) }

// Sagittal looks down the X axis: U=Y, V=Z, normal=X.
func Sagittal() quat.Number {
	return quat.Mul(AxisAngle(90, r3.Vec{Z: 1}), AxisAngle(90, r3.Vec{X: 1}))
}

// normalize returns q scaled to unit length.
func normalize(q quat.Number) (quat.Number, error) {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return quat.Number{}, ErrDegenerateRotation
	}
	return quat.Scale(1/n, q), nil
}

// rotate applies the unit quaternion q to p.
func rotate(q quat.Number, p r3.Vec) r3.Vec {
	return r3.Rotation(q).Rotate(p)
}
