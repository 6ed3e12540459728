package stl

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"labelbrush/pkg/volume"
)

func newVolume(t *testing.T, dims [3]int, spacing r3.Vec) *volume.LabelVolume {
	t.Helper()
	geom, err := volume.NewGeometry(dims, spacing, r3.Vec{X: 10, Y: 20, Z: 30})
	if err != nil {
		t.Fatalf("Failed to create geometry: %v", err)
	}
	vol, err := volume.NewLabelVolume(geom)
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	return vol
}

func toVec(v [3]float32) r3.Vec {
	return r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

// TestLabelSurfaceSingleVoxel verifies a lone voxel becomes a closed box
func TestLabelSurfaceSingleVoxel(t *testing.T) {
	vol := newVolume(t, [3]int{5, 5, 5}, r3.Vec{X: 1, Y: 2, Z: 0.5})
	vol.Set(2, 2, 2, 3)

	triangles := LabelSurface(vol, 3)
	if len(triangles) != 12 {
		t.Fatalf("Expected 12 triangles, got %d", len(triangles))
	}

	center := vol.Geometry().IndexToWorld(2, 2, 2)
	for n, tri := range triangles {
		a, b, c := toVec(tri.Vertex1), toVec(tri.Vertex2), toVec(tri.Vertex3)
		normal := toVec(tri.Normal)

		// Normals point away from the voxel center.
		mid := r3.Scale(1.0/3, r3.Add(a, r3.Add(b, c)))
		if r3.Dot(r3.Sub(mid, center), normal) <= 0 {
			t.Errorf("Triangle %d: normal %v points inward", n, normal)
		}
		// Winding agrees with the normal.
		if r3.Dot(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)), normal) <= 0 {
			t.Errorf("Triangle %d: winding disagrees with normal %v", n, normal)
		}
		// Vertices sit on the voxel's corners.
		for _, v := range []r3.Vec{a, b, c} {
			d := r3.Sub(v, center)
			if math.Abs(math.Abs(d.X)-0.5) > 1e-5 || math.Abs(math.Abs(d.Y)-1) > 1e-5 || math.Abs(math.Abs(d.Z)-0.25) > 1e-5 {
				t.Errorf("Triangle %d: vertex %v is not a voxel corner", n, v)
			}
		}
	}
}

// TestLabelSurfaceSharedFaces verifies faces between equal labels are dropped
func TestLabelSurfaceSharedFaces(t *testing.T) {
	vol := newVolume(t, [3]int{4, 4, 4}, r3.Vec{X: 1, Y: 1, Z: 1})
	vol.Set(1, 1, 1, 1)
	vol.Set(2, 1, 1, 1)
	vol.Set(1, 2, 1, 2)

	// Two voxels in a row: 10 faces.
	if got := len(LabelSurface(vol, 1)); got != 20 {
		t.Errorf("Expected 20 triangles for label 1, got %d", got)
	}
	// A different label does not hide faces.
	if got := len(LabelSurface(vol, 2)); got != 12 {
		t.Errorf("Expected 12 triangles for label 2, got %d", got)
	}
	if got := len(LabelSurface(vol, 9)); got != 0 {
		t.Errorf("Expected no triangles for an unused label, got %d", got)
	}
}

// TestLabelSurfaceVolumeEdge verifies voxels on the border still close the mesh
func TestLabelSurfaceVolumeEdge(t *testing.T) {
	vol := newVolume(t, [3]int{2, 1, 1}, r3.Vec{X: 1, Y: 1, Z: 1})
	vol.Fill(5)

	if got := len(LabelSurface(vol, 5)); got != 20 {
		t.Errorf("Expected 20 triangles, got %d", got)
	}
}

// TestSaveToSTL verifies the binary layout of the written file
func TestSaveToSTL(t *testing.T) {
	vol := newVolume(t, [3]int{3, 3, 3}, r3.Vec{X: 1, Y: 1, Z: 1})
	vol.Set(1, 1, 1, 1)
	triangles := LabelSurface(vol, 1)

	path := filepath.Join(t.TempDir(), "label.stl")
	if err := SaveToSTL(path, triangles); err != nil {
		t.Fatalf("SaveToSTL failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read STL file: %v", err)
	}
	if want := 80 + 4 + 50*len(triangles); len(data) != want {
		t.Fatalf("Expected %d bytes, got %d", want, len(data))
	}
	if n := binary.LittleEndian.Uint32(data[80:84]); int(n) != len(triangles) {
		t.Errorf("Expected facet count %d, got %d", len(triangles), n)
	}

	// First facet: normal then first vertex.
	first := data[84:]
	var got [12]float32
	if err := binary.Read(bytes.NewReader(first[:48]), binary.LittleEndian, &got); err != nil {
		t.Fatalf("Failed to decode facet: %v", err)
	}
	if got[0] != triangles[0].Normal[0] || got[3] != triangles[0].Vertex1[0] || got[11] != triangles[0].Vertex3[2] {
		t.Errorf("Facet does not match triangle: %v vs %+v", got, triangles[0])
	}
}

// TestWriteEmptySTL verifies an empty mesh is still a valid file
func TestWriteEmptySTL(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSTL(&buf, nil); err != nil {
		t.Fatalf("WriteSTL failed: %v", err)
	}
	if buf.Len() != 84 {
		t.Errorf("Expected 84 bytes, got %d", buf.Len())
	}
}
