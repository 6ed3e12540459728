package visualization

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"labelbrush/pkg/slicing"
	"labelbrush/pkg/volume"
)

// newPatternVolume fills each voxel with a label derived from its index
func newPatternVolume(t *testing.T, dims [3]int) *volume.LabelVolume {
	t.Helper()
	geom, err := volume.NewGeometry(dims, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	if err != nil {
		t.Fatalf("Failed to create geometry: %v", err)
	}
	vol, err := volume.NewLabelVolume(geom)
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				vol.Set(i, j, k, pattern(i, j, k))
			}
		}
	}
	return vol
}

func pattern(i, j, k int) uint8 {
	return uint8(1 + i + 10*j + 100*k%7)
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	vol := newPatternVolume(t, [3]int{10, 8, 5})
	viewer := NewViewer(vol)

	for z := 0; z < 5; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}
		if img.Bounds() != image.Rect(0, 0, 10, 8) {
			t.Fatalf("Unexpected Z slice bounds %v", img.Bounds())
		}
		for y := 0; y < 8; y++ {
			for x := 0; x < 10; x++ {
				if got := img.GrayAt(x, y).Y; got != pattern(x, y, z) {
					t.Fatalf("Z slice %d at (%d,%d): expected %d, got %d", z, x, y, pattern(x, y, z), got)
				}
			}
		}
	}

	img, err := viewer.ExtractSlice("Y", 3)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 10, 5) {
		t.Fatalf("Unexpected Y slice bounds %v", img.Bounds())
	}
	if got := img.GrayAt(6, 4).Y; got != pattern(6, 3, 4) {
		t.Errorf("Y slice at (6,4): expected %d, got %d", pattern(6, 3, 4), got)
	}

	img, err = viewer.ExtractSlice("x", 9)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 5, 8) {
		t.Fatalf("Unexpected X slice bounds %v", img.Bounds())
	}
	if got := img.GrayAt(2, 7).Y; got != pattern(9, 7, 2) {
		t.Errorf("X slice at (2,7): expected %d, got %d", pattern(9, 7, 2), got)
	}
}

// TestExtractSliceErrors verifies invalid axes and positions are rejected
func TestExtractSliceErrors(t *testing.T) {
	viewer := NewViewer(newPatternVolume(t, [3]int{4, 4, 4}))

	if _, err := viewer.ExtractSlice("w", 0); err == nil {
		t.Error("Expected an error for an invalid axis")
	}
	if _, err := viewer.ExtractSlice("z", -1); err == nil {
		t.Error("Expected an error for a negative position")
	}
	if _, err := viewer.ExtractSlice("x", 4); err == nil {
		t.Error("Expected an error for a position past the end")
	}
}

// TestResliceAxial verifies an axial reslice equals the matching Z slice
func TestResliceAxial(t *testing.T) {
	vol := newPatternVolume(t, [3]int{10, 10, 5})
	viewer := NewViewer(vol)

	plane, err := slicing.NewPlane(vol.Geometry(), slicing.Axial())
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}
	plane.SetSliceIndex(1)

	got, err := viewer.Reslice(plane, 10, 10)
	if err != nil {
		t.Fatalf("Reslice failed: %v", err)
	}
	// Center is z=2, so index 1 is voxel plane k=3.
	want, _ := viewer.ExtractSlice("z", 3)
	for n := range want.Pix {
		if got.Pix[n] != want.Pix[n] {
			t.Fatalf("Pixel %d: expected %d, got %d", n, want.Pix[n], got.Pix[n])
		}
	}

	// A larger canvas pads with background around the volume.
	padded, err := viewer.Reslice(plane, 14, 14)
	if err != nil {
		t.Fatalf("Reslice failed: %v", err)
	}
	if padded.GrayAt(0, 0).Y != 0 || padded.GrayAt(13, 13).Y != 0 {
		t.Error("Expected background outside the volume")
	}
	if padded.GrayAt(2, 2).Y != pattern(0, 0, 3) {
		t.Errorf("Expected voxel (0,0,3) at pixel (2,2), got %d", padded.GrayAt(2, 2).Y)
	}
}

// TestResliceCoronal verifies a coronal reslice equals the matching Y slice
func TestResliceCoronal(t *testing.T) {
	vol := newPatternVolume(t, [3]int{9, 9, 5})
	viewer := NewViewer(vol)

	plane, err := slicing.NewPlane(vol.Geometry(), slicing.Coronal())
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}

	got, err := viewer.Reslice(plane, 9, 5)
	if err != nil {
		t.Fatalf("Reslice failed: %v", err)
	}
	want, _ := viewer.ExtractSlice("y", 4)
	for n := range want.Pix {
		if got.Pix[n] != want.Pix[n] {
			t.Fatalf("Pixel %d: expected %d, got %d", n, want.Pix[n], got.Pix[n])
		}
	}
}

// TestResliceErrors verifies mismatched planes and sizes are rejected
func TestResliceErrors(t *testing.T) {
	vol := newPatternVolume(t, [3]int{4, 4, 4})
	viewer := NewViewer(vol)

	other, err := volume.NewGeometry([3]int{5, 4, 4}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	if err != nil {
		t.Fatalf("Failed to create geometry: %v", err)
	}
	plane, err := slicing.NewPlane(other, slicing.Axial())
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}
	if _, err := viewer.Reslice(plane, 4, 4); err == nil {
		t.Error("Expected an error for a plane over a different grid")
	}

	plane, _ = slicing.NewPlane(vol.Geometry(), slicing.Axial())
	if _, err := viewer.Reslice(plane, 0, 4); err == nil {
		t.Error("Expected an error for an empty canvas")
	}
}

// TestSaveSliceSequence verifies PNG export and background skipping
func TestSaveSliceSequence(t *testing.T) {
	geom, err := volume.NewGeometry([3]int{6, 6, 6}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	if err != nil {
		t.Fatalf("Failed to create geometry: %v", err)
	}
	vol, _ := volume.NewLabelVolume(geom)
	vol.Set(2, 3, 4, 9)
	viewer := NewViewer(vol)

	dir := filepath.Join(t.TempDir(), "z")
	saved, err := viewer.SaveSliceSequence("z", dir, true)
	if err != nil {
		t.Fatalf("SaveSliceSequence failed: %v", err)
	}
	if saved != 1 {
		t.Fatalf("Expected 1 non-empty slice, got %d", saved)
	}

	f, err := os.Open(filepath.Join(dir, "slice_z_004.png"))
	if err != nil {
		t.Fatalf("Expected slice file: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("Expected a gray image, got %T", img)
	}
	if gray.GrayAt(2, 3).Y != 9 {
		t.Errorf("Expected label 9 at (2,3), got %d", gray.GrayAt(2, 3).Y)
	}

	all, err := viewer.SaveSliceSequence("x", filepath.Join(t.TempDir(), "x"), false)
	if err != nil {
		t.Fatalf("SaveSliceSequence failed: %v", err)
	}
	if all != 6 {
		t.Errorf("Expected 6 slices, got %d", all)
	}

	if _, err := viewer.SaveSliceSequence("q", t.TempDir(), false); err == nil {
		t.Error("Expected an error for an invalid axis")
	}
}

// TestSaveAxisSequences verifies the three axes are exported side by side
func TestSaveAxisSequences(t *testing.T) {
	geom, err := volume.NewGeometry([3]int{4, 5, 6}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	if err != nil {
		t.Fatalf("Failed to create geometry: %v", err)
	}
	vol, _ := volume.NewLabelVolume(geom)
	vol.Set(1, 2, 3, 7)
	vol.Set(2, 2, 5, 7)
	viewer := NewViewer(vol)

	dir := t.TempDir()
	saved, err := viewer.SaveAxisSequences(dir, true)
	if err != nil {
		t.Fatalf("SaveAxisSequences failed: %v", err)
	}
	for axis, want := range map[string]int{"x": 2, "y": 1, "z": 2} {
		if saved[axis] != want {
			t.Errorf("Axis %s: expected %d slices, got %d", axis, want, saved[axis])
		}
	}
	for _, name := range []string{"x/slice_x_001.png", "x/slice_x_002.png", "y/slice_y_002.png", "z/slice_z_003.png", "z/slice_z_005.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s: %v", name, err)
		}
	}

	all, err := viewer.SaveAxisSequences(t.TempDir(), false)
	if err != nil {
		t.Fatalf("SaveAxisSequences failed: %v", err)
	}
	if all["x"] != 4 || all["y"] != 5 || all["z"] != 6 {
		t.Errorf("Expected 4, 5 and 6 slices, got %v", all)
	}
}

// TestSaveAxisSequencesError verifies a failing axis is reported
func TestSaveAxisSequencesError(t *testing.T) {
	viewer := NewViewer(newPatternVolume(t, [3]int{3, 3, 3}))

	// A regular file where the y directory should go.
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "y"), nil, 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	saved, err := viewer.SaveAxisSequences(dir, false)
	if err == nil {
		t.Fatal("Expected an error when the y directory cannot be created")
	}
	if !strings.Contains(err.Error(), "y-axis") {
		t.Errorf("Expected the error to name the y axis, got %v", err)
	}
	if saved["x"] != 3 || saved["z"] != 3 || saved["y"] != 0 {
		t.Errorf("Expected the other axes to finish, got %v", saved)
	}
}
