package brush

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidSpacing is returned when a voxel spacing component is not strictly positive.
var ErrInvalidSpacing = errors.New("invalid voxel spacing")

// ErrInvalidDescriptor is returned for non-finite brush dimensions or unknown kinds.
var ErrInvalidDescriptor = errors.New("invalid brush descriptor")

// Axis is the volume axis a brush's natural axis is aligned with.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// ParseAxis accepts "x", "y" or "z" in either case.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", s)
	}
}

// basis maps the canonical +Y brush axis onto a. It returns the images of
// the unit X, Y and Z vectors; every entry is exactly 0 or ±1, so voxel
// centers lying on the brush surface stay on it after the mapping.
func (a Axis) basis() (x, y, z r3.Vec) {
	switch a {
	case AxisX:
		// -90° about Z
		return r3.Vec{Y: -1}, r3.Vec{X: 1}, r3.Vec{Z: 1}
	case AxisZ:
		// +90° about X
		return r3.Vec{X: 1}, r3.Vec{Z: 1}, r3.Vec{Y: -1}
	default:
		return r3.Vec{X: 1}, r3.Vec{Y: 1}, r3.Vec{Z: 1}
	}
}

// Kind selects the brush solid.
type Kind int

const (
	KindCylinder Kind = iota
	KindSphere
)

func (k Kind) String() string {
	switch k {
	case KindCylinder:
		return "cylinder"
	case KindSphere:
		return "sphere"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts "cylinder" or "sphere".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "cylinder":
		return KindCylinder, nil
	case "sphere":
		return KindSphere, nil
	default:
		return 0, fmt.Errorf("invalid brush shape: %s (must be cylinder or sphere)", s)
	}
}

// Descriptor is the millimetre-space definition of a brush.
type Descriptor struct {
	Kind       Kind
	DiameterMM float64
	// HeightMM is the cylinder length along Axis; spheres ignore it
	HeightMM float64
	Axis     Axis
	// Resolution is the number of facets of a cylinder's cross-section;
	// values below 3 select an exact circle
	Resolution int
}

// Validate rejects non-finite sizes and unknown enum values. Zero or negative
// sizes are valid and produce an empty brush.
func (d Descriptor) Validate() error {
	for _, v := range []float64{d.DiameterMM, d.HeightMM} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: size %g", ErrInvalidDescriptor, v)
		}
	}
	if d.Kind != KindCylinder && d.Kind != KindSphere {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, d.Kind)
	}
	if d.Axis < AxisX || d.Axis > AxisZ {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, d.Axis)
	}
	return nil
}

func (d Descriptor) empty() bool {
	if d.DiameterMM <= 0 {
		return true
	}
	return d.Kind == KindCylinder && d.HeightMM <= 0
}

func (d Descriptor) solid() Solid {
	if d.Kind == KindSphere {
		return Sphere{Radius: d.DiameterMM / 2}
	}
	return Cylinder{Radius: d.DiameterMM / 2, Height: d.HeightMM, Facets: d.Resolution}
}

func (d Descriptor) String() string {
	if d.Kind == KindSphere {
		return fmt.Sprintf("sphere d=%gmm", d.DiameterMM)
	}
	return fmt.Sprintf("cylinder d=%gmm h=%gmm axis=%v", d.DiameterMM, d.HeightMM, d.Axis)
}

func validateSpacing(s r3.Vec) error {
	for _, v := range []float64{s.X, s.Y, s.Z} {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: (%g,%g,%g)", ErrInvalidSpacing, s.X, s.Y, s.Z)
		}
	}
	return nil
}

// Offset is a voxel displacement relative to the stamp center.
type Offset struct {
	DX, DY, DZ int
}

// Shape is an immutable stamp: the set of voxel offsets covered by a brush
// for one voxel spacing. It refers to no particular volume and may be applied
// at any center of any volume with the same spacing.
type Shape struct {
	desc    Descriptor
	spacing r3.Vec
	offsets []Offset
	min     Offset
	max     Offset
}

// Create rasterizes desc for the given voxel spacing.
//
// The solid is built in millimetres around the origin with its axis along +Y,
// rotated onto desc.Axis and scaled by 1/spacing into voxel-index space, then
// sampled at integer voxel centers by r. Offsets are ordered by DZ, then DY,
// then DX, and are unique.
//
// Returns:
//   - the shape; an empty shape when a size is zero or negative
//   - an error wrapping ErrInvalidSpacing or ErrInvalidDescriptor for bad input
func Create(spacing r3.Vec, desc Descriptor, r Rasterizer) (*Shape, error) {
	if err := validateSpacing(spacing); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	s := &Shape{desc: desc, spacing: spacing}
	if desc.empty() {
		return s, nil
	}

	toVoxels := IdentityTransform().
		ThenLinear(desc.Axis.basis()).
		ThenScale(r3.Vec{X: 1 / spacing.X, Y: 1 / spacing.Y, Z: 1 / spacing.Z})

	mask, err := r.Rasterize(desc.solid(), toVoxels)
	if err != nil {
		return nil, fmt.Errorf("failed to rasterize %v: %w", desc, err)
	}

	s.offsets = make([]Offset, 0, mask.Count())
	for k := mask.Min[2]; k <= mask.Max[2]; k++ {
		for j := mask.Min[1]; j <= mask.Max[1]; j++ {
			for i := mask.Min[0]; i <= mask.Max[0]; i++ {
				if mask.At(i, j, k) {
					s.add(Offset{DX: i, DY: j, DZ: k})
				}
			}
		}
	}
	return s, nil
}

func (s *Shape) add(o Offset) {
	if len(s.offsets) == 0 {
		s.min, s.max = o, o
	} else {
		s.min = Offset{min(s.min.DX, o.DX), min(s.min.DY, o.DY), min(s.min.DZ, o.DZ)}
		s.max = Offset{max(s.max.DX, o.DX), max(s.max.DY, o.DY), max(s.max.DZ, o.DZ)}
	}
	s.offsets = append(s.offsets, o)
}

// Offsets returns the stamp. The slice is shared and must not be modified.
func (s *Shape) Offsets() []Offset { return s.offsets }

// Len returns the number of voxels in the stamp.
func (s *Shape) Len() int { return len(s.offsets) }

// Extent returns the smallest and largest offset along each axis. Both are
// zero for an empty shape.
func (s *Shape) Extent() (lo, hi Offset) { return s.min, s.max }

// Descriptor returns the recipe the shape was built from.
func (s *Shape) Descriptor() Descriptor { return s.desc }

// Spacing returns the voxel spacing the shape was built for.
func (s *Shape) Spacing() r3.Vec { return s.spacing }

// LinearOffsets converts the stamp to flat buffer offsets for a volume with
// the given row and slice strides.
func (s *Shape) LinearOffsets(rowStride, sliceStride int) []int {
	out := make([]int, len(s.offsets))
	for n, o := range s.offsets {
		out[n] = o.DZ*sliceStride + o.DY*rowStride + o.DX
	}
	return out
}
