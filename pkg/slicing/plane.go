// Package slicing implements the geometry of a movable oblique cutting plane
// through a fixed volume: its axes, per-index step, valid index range and the
// mapping between world points and (slice index, u, v) coordinates.
package slicing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"labelbrush/pkg/volume"
)

// RoundingMode selects how a fractional slice position is snapped to an index.
type RoundingMode int

const (
	// RoundHalfAwayFromZero sends exact halves away from zero (2.5 -> 3, -2.5 -> -3).
	RoundHalfAwayFromZero RoundingMode = iota
	// RoundHalfEven sends exact halves to the even neighbour (2.5 -> 2, 3.5 -> 4).
	RoundHalfEven
)

func (m RoundingMode) round(x float64) float64 {
	if m == RoundHalfEven {
		return math.RoundToEven(x)
	}
	return math.Round(x)
}

func (m RoundingMode) String() string {
	switch m {
	case RoundHalfAwayFromZero:
		return "half-away-from-zero"
	case RoundHalfEven:
		return "half-even"
	default:
		return fmt.Sprintf("RoundingMode(%d)", int(m))
	}
}

// ParseRoundingMode maps a config string to a RoundingMode. An empty string
// selects the default.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch s {
	case "", "half-away-from-zero", "half-up":
		return RoundHalfAwayFromZero, nil
	case "half-even":
		return RoundHalfEven, nil
	default:
		return 0, fmt.Errorf("unknown rounding mode %q", s)
	}
}

// Observer is notified synchronously when the displayed plane moves, either
// because the slice index changed or because the orientation was replaced.
type Observer interface {
	PlaneMoved(info Info)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(info Info)

// PlaneMoved calls f(info).
func (f ObserverFunc) PlaneMoved(info Info) { f(info) }

// Info is an immutable snapshot of a plane's derived geometry.
type Info struct {
	Orientation    quat.Number
	AxisU          r3.Vec
	AxisV          r3.Vec
	Normal         r3.Vec
	Origin         r3.Vec
	StepMillimeter float64
	SpacingU       float64
	SpacingV       float64
	MinSliceIndex  int
	MaxSliceIndex  int
	SliceIndex     int
}

// Plane is a cutting plane through a fixed volume.
//
// The plane is parameterised by an orientation (a unit quaternion) and an
// integer slice index. Index 0 passes through the volume center; index n sits
// n*StepMillimeter along the normal. The index is clamped to a symmetric range
// derived from the volume's half extents so that every index intersects the
// volume box.
//
// A Plane is not safe for concurrent use.
type Plane struct {
	geom     volume.Geometry
	center   r3.Vec
	half     r3.Vec
	rounding RoundingMode

	orientation quat.Number
	axisU       r3.Vec
	axisV       r3.Vec
	normal      r3.Vec

	step     float64
	spacingU float64
	spacingV float64

	minIndex int
	maxIndex int
	index    int
	origin   r3.Vec

	observers []Observer
}

// Option configures a Plane at construction time.
type Option func(*Plane)

// WithRounding selects the index rounding used by TryWorldToSlice.
func WithRounding(m RoundingMode) Option {
	return func(p *Plane) { p.rounding = m }
}

// NewPlane builds a plane through geom with the given initial orientation.
// The orientation is normalised; a zero-length quaternion is rejected.
func NewPlane(geom volume.Geometry, orientation quat.Number, opts ...Option) (*Plane, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	p := &Plane{
		geom:   geom,
		center: geom.Center(),
		half:   geom.HalfExtents(),
	}
	for _, opt := range opts {
		opt(p)
	}
	q, err := normalize(orientation)
	if err != nil {
		return nil, err
	}
	p.applyOrientation(q)
	return p, nil
}

// SetOrientation replaces the plane's rotation and recomputes axes, step,
// index range, clamped index and origin. Observers are notified.
func (p *Plane) SetOrientation(orientation quat.Number) error {
	q, err := normalize(orientation)
	if err != nil {
		return err
	}
	p.applyOrientation(q)
	p.notify()
	return nil
}

func (p *Plane) applyOrientation(q quat.Number) {
	p.orientation = q
	p.axisU = r3.Unit(rotate(q, r3.Vec{X: 1}))
	p.axisV = r3.Unit(rotate(q, r3.Vec{Y: 1}))
	p.normal = r3.Unit(rotate(q, r3.Vec{Z: 1}))

	p.step = p.stepAlong(p.normal)
	p.spacingU = p.stepAlong(p.axisU)
	p.spacingV = p.stepAlong(p.axisV)

	// Support function of the half-extent box along the normal.
	maxDist := math.Abs(p.normal.X)*p.half.X +
		math.Abs(p.normal.Y)*p.half.Y +
		math.Abs(p.normal.Z)*p.half.Z
	p.maxIndex = int(math.Floor(maxDist/p.step + 1e-9))
	p.minIndex = -p.maxIndex

	p.index = p.clamp(p.index)
	p.origin = p.originAt(p.index)
}

// stepAlong returns the mm length along dir of one voxel step: dir is
// expressed in index space by dividing by the spacing, and the step is the
// reciprocal of that vector's length.
func (p *Plane) stepAlong(dir r3.Vec) float64 {
	s := p.geom.Spacing
	inIndexSpace := r3.Vec{X: dir.X / s.X, Y: dir.Y / s.Y, Z: dir.Z / s.Z}
	return 1 / r3.Norm(inIndexSpace)
}

func (p *Plane) clamp(idx int) int {
	return max(p.minIndex, min(p.maxIndex, idx))
}

func (p *Plane) originAt(idx int) r3.Vec {
	return r3.Add(p.center, r3.Scale(float64(idx)*p.step, p.normal))
}

// SetSliceIndex moves the plane to idx, clamped into the valid range. Nothing
// happens, and nobody is notified, when the clamped index equals the current one.
func (p *Plane) SetSliceIndex(idx int) {
	idx = p.clamp(idx)
	if idx == p.index {
		return
	}
	p.index = idx
	p.origin = p.originAt(idx)
	p.notify()
}

// TryWorldToSlice projects a world point onto the plane stack.
//
// The signed distance from the volume center along the normal is divided by
// the step and rounded to an index. The in-plane residual from that slice's
// origin is projected onto U and V and expressed in in-plane pixels.
//
// Returns:
//   - idx, u, v and true when the index falls within the valid range
//   - false otherwise (the point lies beyond the volume along the normal, or
//     has a NaN or infinite coordinate)
func (p *Plane) TryWorldToSlice(world r3.Vec) (idx int, u, v float64, ok bool) {
	dist := r3.Dot(r3.Sub(world, p.center), p.normal)
	fi := p.rounding.round(dist / p.step)
	if math.IsNaN(fi) || fi < float64(p.minIndex) || fi > float64(p.maxIndex) {
		return 0, 0, 0, false
	}
	idx = int(fi)

	residual := r3.Sub(world, p.originAt(idx))
	u = r3.Dot(residual, p.axisU) / p.spacingU
	v = r3.Dot(residual, p.axisV) / p.spacingV
	return idx, u, v, true
}

// SliceToWorld is the inverse of TryWorldToSlice: it returns the world point
// at pixel (u, v) of slice idx. idx is not clamped.
func (p *Plane) SliceToWorld(idx int, u, v float64) r3.Vec {
	w := p.originAt(idx)
	w = r3.Add(w, r3.Scale(u*p.spacingU, p.axisU))
	return r3.Add(w, r3.Scale(v*p.spacingV, p.axisV))
}

// AddObserver registers o for plane-moved notifications.
func (p *Plane) AddObserver(o Observer) {
	p.observers = append(p.observers, o)
}

func (p *Plane) notify() {
	if len(p.observers) == 0 {
		return
	}
	info := p.Info()
	for _, o := range p.observers {
		o.PlaneMoved(info)
	}
}

// Info returns a snapshot of the plane's current state.
func (p *Plane) Info() Info {
	return Info{
		Orientation:    p.orientation,
		AxisU:          p.axisU,
		AxisV:          p.axisV,
		Normal:         p.normal,
		Origin:         p.origin,
		StepMillimeter: p.step,
		SpacingU:       p.spacingU,
		SpacingV:       p.spacingV,
		MinSliceIndex:  p.minIndex,
		MaxSliceIndex:  p.maxIndex,
		SliceIndex:     p.index,
	}
}

// Geometry returns the volume the plane cuts through.
func (p *Plane) Geometry() volume.Geometry { return p.geom }

// Orientation returns the current unit quaternion.
func (p *Plane) Orientation() quat.Number { return p.orientation }

// AxisU is the in-plane horizontal direction.
func (p *Plane) AxisU() r3.Vec { return p.axisU }

// AxisV is the in-plane vertical direction.
func (p *Plane) AxisV() r3.Vec { return p.axisV }

// Normal points towards increasing slice indices.
func (p *Plane) Normal() r3.Vec { return p.normal }

// Origin is the world point of the plane at the current index.
func (p *Plane) Origin() r3.Vec { return p.origin }

// StepMillimeter is the distance between adjacent slice indices.
func (p *Plane) StepMillimeter() float64 { return p.step }

// SliceIndex returns the current index.
func (p *Plane) SliceIndex() int { return p.index }

// Range returns the inclusive index bounds.
func (p *Plane) Range() (minIdx, maxIdx int) { return p.minIndex, p.maxIndex }

// InPlaneSpacing returns the mm size of one pixel along U and V.
func (p *Plane) InPlaneSpacing() (u, v float64) { return p.spacingU, p.spacingV }
