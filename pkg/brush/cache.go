package brush

import (
	"errors"
	"fmt"
	"log"

	"labelbrush/pkg/volume"
)

var (
	// ErrNotBound is returned when offsets are requested before BindTargetSpacing.
	ErrNotBound = errors.New("brush cache is not bound to a target volume")
	// ErrNoGeometry is returned when offsets are requested before SetGeometry.
	ErrNoGeometry = errors.New("brush cache has no geometry")
)

// OffsetCache memoizes the rasterized stamp for the current brush geometry and
// target spacing.
//
// Mutators only bump a modification time; the stamp is rebuilt lazily inside
// the next query whose modification time differs from the one the cached stamp
// was built at. Queries between mutations return the same slices without any
// recomputation.
//
// An OffsetCache is not safe for concurrent use.
type OffsetCache struct {
	rasterizer Rasterizer
	logger     *log.Logger

	desc        Descriptor
	hasGeometry bool

	target volume.Geometry
	bound  bool

	mtime   uint64
	builtAt uint64
	shape   *Shape
	builds  int

	linear       []int
	linearShape  *Shape
	linearLayout [2]int
}

// CacheOption configures an OffsetCache.
type CacheOption func(*OffsetCache)

// WithLogger logs every rebuild to l.
func WithLogger(l *log.Logger) CacheOption {
	return func(c *OffsetCache) { c.logger = l }
}

// NewOffsetCache returns an empty cache that rasterizes with r. A nil r
// selects SDFRasterizer with the zero threshold.
func NewOffsetCache(r Rasterizer, opts ...CacheOption) *OffsetCache {
	if r == nil {
		r = SDFRasterizer{}
	}
	c := &OffsetCache{rasterizer: r}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetGeometry replaces the brush description. Setting the current
// description again does not invalidate the cache.
func (c *OffsetCache) SetGeometry(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if c.hasGeometry && c.desc == d {
		return nil
	}
	c.desc = d
	c.hasGeometry = true
	c.mtime++
	return nil
}

// Geometry returns the current brush description.
func (c *OffsetCache) Geometry() (Descriptor, bool) { return c.desc, c.hasGeometry }

// BindTargetSpacing couples the cache to the volume it will paint into: its
// spacing drives the mm to voxel scale and its dimensions the linear strides.
// Rebinding to a volume with a different spacing invalidates the stamp;
// rebinding to different dimensions only invalidates the linear offsets.
func (c *OffsetCache) BindTargetSpacing(target volume.Geometry) error {
	if err := validateSpacing(target.Spacing); err != nil {
		return err
	}
	if err := target.Validate(); err != nil {
		return err
	}
	if !c.bound || c.target.Spacing != target.Spacing {
		c.mtime++
	}
	c.target = target
	c.bound = true
	return nil
}

// Target returns the geometry of the bound volume.
func (c *OffsetCache) Target() (volume.Geometry, bool) { return c.target, c.bound }

// MTime is the pipeline modification time.
func (c *OffsetCache) MTime() uint64 { return c.mtime }

// Builds returns how many times the stamp has been rasterized.
func (c *OffsetCache) Builds() int { return c.builds }

// Shape returns the stamp for the current geometry and spacing, rebuilding it
// if either changed since the last build.
func (c *OffsetCache) Shape() (*Shape, error) {
	if !c.bound {
		return nil, ErrNotBound
	}
	if !c.hasGeometry {
		return nil, ErrNoGeometry
	}
	if mtime := c.MTime(); c.shape == nil || mtime != c.builtAt {
		shape, err := Create(c.target.Spacing, c.desc, c.rasterizer)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild brush: %w", err)
		}
		c.shape = shape
		c.builtAt = mtime
		c.builds++
		if c.logger != nil {
			c.logger.Printf("brush: rebuilt %v for spacing (%g,%g,%g): %d voxels",
				c.desc, c.target.Spacing.X, c.target.Spacing.Y, c.target.Spacing.Z, shape.Len())
		}
	}
	return c.shape, nil
}

// Offsets returns the current stamp as voxel offsets. The slice is shared
// with the cache and must not be modified.
func (c *OffsetCache) Offsets() ([]Offset, error) {
	s, err := c.Shape()
	if err != nil {
		return nil, err
	}
	return s.Offsets(), nil
}

// LinearOffsets returns the current stamp as flat offsets into the bound
// volume's voxel buffer (dz*sliceStride + dy*rowStride + dx).
func (c *OffsetCache) LinearOffsets() ([]int, error) {
	s, err := c.Shape()
	if err != nil {
		return nil, err
	}
	row, slice := c.target.Strides()
	if c.linearShape != s || c.linearLayout != [2]int{row, slice} {
		c.linear = s.LinearOffsets(row, slice)
		c.linearShape = s
		c.linearLayout = [2]int{row, slice}
	}
	return c.linear, nil
}
