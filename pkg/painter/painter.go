// Package painter stamps brush offsets into label volumes. It is the only
// package that writes label voxels.
package painter

import (
	"cmp"
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"labelbrush/pkg/brush"
	"labelbrush/pkg/volume"
)

// ErrTargetMismatch is returned when a brush cache is bound to a volume whose
// layout differs from the one being painted.
var ErrTargetMismatch = errors.New("brush cache is bound to a different volume layout")

// Painter writes a label value into every voxel covered by a brush stamp.
//
// The painter keeps the dimensions and voxel buffer of the last volume it
// painted and only re-resolves them when a different volume is passed in.
// A Painter is not safe for concurrent use, even across different volumes:
// give each goroutine its own Painter. It does not lock the volume either, so
// callers must not run two paint calls on the same volume at the same time.
type Painter struct {
	maxParallelism int
	logger         *log.Logger

	// bound volume
	vol    *volume.LabelVolume
	geom   volume.Geometry
	voxels []uint8
	nx     int
	ny     int
	nz     int
}

// Option configures a Painter.
type Option func(*Painter)

// WithMaxParallelism bounds the number of goroutines PaintMany uses.
// Values below 1 select runtime.NumCPU().
func WithMaxParallelism(n int) Option {
	return func(p *Painter) { p.maxParallelism = n }
}

// WithLogger logs a line per PaintMany call to l.
func WithLogger(l *log.Logger) Option {
	return func(p *Painter) { p.logger = l }
}

// New returns a painter.
func New(opts ...Option) *Painter {
	p := &Painter{}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxParallelism < 1 {
		p.maxParallelism = runtime.NumCPU()
	}
	return p
}

// MaxParallelism returns the goroutine bound used by PaintMany.
func (p *Painter) MaxParallelism() int { return p.maxParallelism }

func (p *Painter) bind(vol *volume.LabelVolume) {
	if vol == p.vol {
		return
	}
	p.vol = vol
	p.geom = vol.Geometry()
	p.voxels = vol.Voxels()
	p.nx, p.ny, p.nz = p.geom.Dims[0], p.geom.Dims[1], p.geom.Dims[2]
}

// Paint stamps offsets centered at the voxel nearest to center.
//
// Offsets landing outside the volume are skipped. When center itself lies
// outside the volume nothing is written and no notification is raised.
// Otherwise the volume is marked modified exactly once, even if no voxel was
// written.
//
// Returns:
//   - the number of voxel writes performed
func (p *Painter) Paint(vol *volume.LabelVolume, offsets []brush.Offset, center r3.Vec, label uint8) int {
	p.bind(vol)
	ci, cj, ck, ok := p.geom.WorldToIndex(center)
	if !ok {
		return 0
	}
	n := p.stamp(offsets, ci, cj, ck, label)
	vol.Modified()
	return n
}

// stamp writes offsets around (ci,cj,ck) with per-axis bounds checks.
func (p *Painter) stamp(offsets []brush.Offset, ci, cj, ck int, label uint8) int {
	nx, ny, nz := p.nx, p.ny, p.nz
	slice := nx * ny
	written := 0
	for _, o := range offsets {
		i, j, k := ci+o.DX, cj+o.DY, ck+o.DZ
		if i < 0 || i >= nx || j < 0 || j >= ny || k < 0 || k >= nz {
			continue
		}
		p.voxels[k*slice+j*nx+i] = label
		written++
	}
	return written
}

// PaintMany replays a stroke: every center is stamped as by Paint, and the
// volume is marked modified once at the end if any center was inside.
//
// The work is spread over up to MaxParallelism goroutines. The voxel rows the
// stroke can reach are cut into contiguous bands, one per goroutine, and each
// goroutine only writes rows inside its own band, so no two goroutines ever
// write the same byte.
//
// Returns:
//   - the number of voxel writes performed
func (p *Painter) PaintMany(vol *volume.LabelVolume, offsets []brush.Offset, centers []r3.Vec, label uint8) int {
	p.bind(vol)

	resolved := make([][3]int, 0, len(centers))
	for _, c := range centers {
		if i, j, k, ok := p.geom.WorldToIndex(c); ok {
			resolved = append(resolved, [3]int{i, j, k})
		}
	}
	if len(resolved) == 0 {
		return 0
	}

	runs := rowRuns(offsets)
	first, last := p.rowSpan(runs, resolved)
	workers := 0
	var written atomic.Int64
	if span := last - first + 1; span > 0 {
		workers = min(p.maxParallelism, span)
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			lo := first + span*w/workers
			hi := first + span*(w+1)/workers
			go func() {
				defer wg.Done()
				written.Add(int64(p.stampBand(runs, resolved, lo, hi, label)))
			}()
		}
		wg.Wait()
	}

	vol.Modified()
	if p.logger != nil {
		p.logger.Printf("painter: stamped %d centers (%d outside) with label %d using %d workers",
			len(resolved), len(centers)-len(resolved), label, workers)
	}
	return int(written.Load())
}

// run is the set of offsets sharing one (DY, DZ) row.
type run struct {
	dy, dz int
	dx     []int
}

// rowRuns groups offsets by row, sorted by DZ then DY.
func rowRuns(offsets []brush.Offset) []run {
	index := make(map[[2]int]int)
	var runs []run
	for _, o := range offsets {
		key := [2]int{o.DY, o.DZ}
		n, ok := index[key]
		if !ok {
			n = len(runs)
			index[key] = n
			runs = append(runs, run{dy: o.DY, dz: o.DZ})
		}
		runs[n].dx = append(runs[n].dx, o.DX)
	}
	slices.SortFunc(runs, func(a, b run) int {
		if a.dz != b.dz {
			return cmp.Compare(a.dz, b.dz)
		}
		return cmp.Compare(a.dy, b.dy)
	})
	return runs
}

// rowSpan returns bounds on the global row numbers (k*ny + j) the stamps can
// reach, from the run extents and clamped to the volume. last < first when
// there is nothing to write.
func (p *Painter) rowSpan(runs []run, centers [][3]int) (first, last int) {
	if len(runs) == 0 {
		return 0, -1
	}
	minDY, maxDY := runs[0].dy, runs[0].dy
	for _, r := range runs[1:] {
		minDY = min(minDY, r.dy)
		maxDY = max(maxDY, r.dy)
	}
	minDZ, maxDZ := runs[0].dz, runs[len(runs)-1].dz

	first, last = math.MaxInt, math.MinInt
	for _, c := range centers {
		first = min(first, (c[2]+minDZ)*p.ny+c[1]+minDY)
		last = max(last, (c[2]+maxDZ)*p.ny+c[1]+maxDY)
	}
	return max(first, 0), min(last, p.ny*p.nz-1)
}

// stampBand stamps every center but only writes rows in [lo, hi).
//
// Runs are sorted by (DZ, DY), so for a fixed center the in-volume rows they
// reach increase monotonically: the scan starts at the first run that can
// reach slice lo/ny and stops at the first row at or past hi.
func (p *Painter) stampBand(runs []run, centers [][3]int, lo, hi int, label uint8) int {
	nx, ny, nz := p.nx, p.ny, p.nz
	kLo := lo / ny
	written := 0
	for _, c := range centers {
		start := sort.Search(len(runs), func(n int) bool { return c[2]+runs[n].dz >= kLo })
		for _, r := range runs[start:] {
			j, k := c[1]+r.dy, c[2]+r.dz
			if k >= nz {
				break
			}
			if j < 0 || j >= ny || k < 0 {
				continue
			}
			row := k*ny + j
			if row < lo {
				continue
			}
			if row >= hi {
				break
			}
			base := row * nx
			for _, dx := range r.dx {
				i := c[0] + dx
				if i < 0 || i >= nx {
					continue
				}
				p.voxels[base+i] = label
				written++
			}
		}
	}
	return written
}

// PaintBrush stamps the cache's current brush centered at center.
//
// The cache must be bound to a volume with the same dimensions and spacing
// as vol. When the whole stamp fits inside the volume the precomputed linear
// offsets are written without per-axis checks.
func (p *Painter) PaintBrush(vol *volume.LabelVolume, cache *brush.OffsetCache, center r3.Vec, label uint8) (int, error) {
	shape, err := p.checkCache(vol, cache)
	if err != nil {
		return 0, err
	}
	p.bind(vol)
	ci, cj, ck, ok := p.geom.WorldToIndex(center)
	if !ok {
		return 0, nil
	}

	var n int
	if p.fits(shape, ci, cj, ck) {
		linear, err := cache.LinearOffsets()
		if err != nil {
			return 0, err
		}
		base := p.geom.LinearIndex(ci, cj, ck)
		for _, off := range linear {
			p.voxels[base+off] = label
		}
		n = len(linear)
	} else {
		n = p.stamp(shape.Offsets(), ci, cj, ck, label)
	}
	vol.Modified()
	return n, nil
}

// PaintBrushMany replays a stroke with the cache's current brush.
func (p *Painter) PaintBrushMany(vol *volume.LabelVolume, cache *brush.OffsetCache, centers []r3.Vec, label uint8) (int, error) {
	shape, err := p.checkCache(vol, cache)
	if err != nil {
		return 0, err
	}
	return p.PaintMany(vol, shape.Offsets(), centers, label), nil
}

func (p *Painter) checkCache(vol *volume.LabelVolume, cache *brush.OffsetCache) (*brush.Shape, error) {
	target, ok := cache.Target()
	if !ok {
		return nil, brush.ErrNotBound
	}
	if !target.SameLayout(vol.Geometry()) {
		return nil, fmt.Errorf("%w: cache %v, volume %v", ErrTargetMismatch, target, vol.Geometry())
	}
	return cache.Shape()
}

func (p *Painter) fits(s *brush.Shape, ci, cj, ck int) bool {
	if s.Len() == 0 {
		return true
	}
	lo, hi := s.Extent()
	return ci+lo.DX >= 0 && ci+hi.DX < p.nx &&
		cj+lo.DY >= 0 && cj+hi.DY < p.ny &&
		ck+lo.DZ >= 0 && ck+hi.DZ < p.nz
}
