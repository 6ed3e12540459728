package volume

import (
	"sync"
	"sync/atomic"
)

// Observer receives a call whenever a label volume is marked modified.
// Delivery is synchronous on the goroutine that called Modified.
type Observer interface {
	VolumeModified(v *LabelVolume)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(v *LabelVolume)

// VolumeModified calls f(v).
func (f ObserverFunc) VolumeModified(v *LabelVolume) { f(v) }

// LabelVolume is a segmentation map: one uint8 label per voxel, laid out in
// row-major order (x fastest, then y, then z) over the same grid as the image
// it overlays.
//
// Writes to the voxel buffer are not synchronised. Callers must not run two
// painting operations on the same volume at once.
type LabelVolume struct {
	geom   Geometry
	voxels []uint8

	mtime atomic.Uint64

	mu        sync.Mutex
	observers map[int]Observer
	nextID    int
}

// NewLabelVolume allocates an all-zero label volume over geom.
func NewLabelVolume(geom Geometry) (*LabelVolume, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	return &LabelVolume{
		geom:      geom,
		voxels:    make([]uint8, geom.NumVoxels()),
		observers: make(map[int]Observer),
	}, nil
}

// Geometry returns the grid description of the volume.
func (v *LabelVolume) Geometry() Geometry { return v.geom }

// Voxels returns the backing buffer. The slice aliases the volume's memory.
func (v *LabelVolume) Voxels() []uint8 { return v.voxels }

// At returns the label at (i,j,k). It panics if the index is out of range.
func (v *LabelVolume) At(i, j, k int) uint8 {
	return v.voxels[v.geom.LinearIndex(i, j, k)]
}

// Set writes a label at (i,j,k) without raising a notification.
func (v *LabelVolume) Set(i, j, k int, label uint8) {
	v.voxels[v.geom.LinearIndex(i, j, k)] = label
}

// Fill overwrites every voxel with label and marks the volume modified.
func (v *LabelVolume) Fill(label uint8) {
	for i := range v.voxels {
		v.voxels[i] = label
	}
	v.Modified()
}

// Count returns how many voxels carry label.
func (v *LabelVolume) Count(label uint8) int {
	n := 0
	for _, l := range v.voxels {
		if l == label {
			n++
		}
	}
	return n
}

// MTime is a counter bumped on every Modified call.
func (v *LabelVolume) MTime() uint64 { return v.mtime.Load() }

// Modified bumps the modification time and notifies observers.
func (v *LabelVolume) Modified() {
	v.mtime.Add(1)

	v.mu.Lock()
	observers := make([]Observer, 0, len(v.observers))
	for _, o := range v.observers {
		observers = append(observers, o)
	}
	v.mu.Unlock()

	for _, o := range observers {
		o.VolumeModified(v)
	}
}

// AddObserver registers o and returns a function that unregisters it.
func (v *LabelVolume) AddObserver(o Observer) (remove func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.observers[id] = o
	return func() {
		v.mu.Lock()
		delete(v.observers, id)
		v.mu.Unlock()
	}
}
