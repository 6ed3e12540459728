// Package stl exports painted labels as triangle meshes in binary STL format.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"labelbrush/pkg/volume"
)

// Triangle is one facet of an STL mesh. Vertices are in millimetres and wound
// counter-clockwise when seen from the side the normal points to.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// faceAxes lists, for each axis a, the two axes b and c with b x c = a.
var faceAxes = [3][2]int{{1, 2}, {2, 0}, {0, 1}}

// LabelSurface returns the boundary of all voxels carrying label as a closed
// mesh of axis-aligned quads, two triangles per exposed voxel face. A face is
// exposed when the neighbouring voxel has another label or lies outside the
// volume.
func LabelSurface(vol *volume.LabelVolume, label uint8) []Triangle {
	geom := vol.Geometry()
	dims := geom.Dims
	voxels := vol.Voxels()
	half := r3.Scale(0.5, geom.Spacing)

	is := func(i, j, k int) bool {
		return geom.Contains(i, j, k) && voxels[geom.LinearIndex(i, j, k)] == label
	}

	var triangles []Triangle
	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				if voxels[geom.LinearIndex(i, j, k)] != label {
					continue
				}
				center := geom.IndexToWorld(i, j, k)
				idx := [3]int{i, j, k}
				for axis := 0; axis < 3; axis++ {
					for _, sign := range []int{-1, 1} {
						n := idx
						n[axis] += sign
						if is(n[0], n[1], n[2]) {
							continue
						}
						triangles = append(triangles, face(center, half, axis, sign)...)
					}
				}
			}
		}
	}
	return triangles
}

// face returns the two triangles of the voxel face on the sign side of axis.
func face(center, half r3.Vec, axis, sign int) []Triangle {
	h := [3]float64{half.X, half.Y, half.Z}
	c := [3]float64{center.X, center.Y, center.Z}
	b, cc := faceAxes[axis][0], faceAxes[axis][1]

	corner := func(sb, sc float64) [3]float32 {
		p := c
		p[axis] += float64(sign) * h[axis]
		p[b] += sb * h[b]
		p[cc] += sc * h[cc]
		return [3]float32{float32(p[0]), float32(p[1]), float32(p[2])}
	}
	quad := [4][3]float32{corner(-1, -1), corner(1, -1), corner(1, 1), corner(-1, 1)}
	if sign < 0 {
		quad[1], quad[3] = quad[3], quad[1]
	}

	var normal [3]float32
	normal[axis] = float32(sign)
	return []Triangle{
		{Normal: normal, Vertex1: quad[0], Vertex2: quad[1], Vertex3: quad[2]},
		{Normal: normal, Vertex1: quad[0], Vertex2: quad[2], Vertex3: quad[3]},
	}
}

// WriteSTL encodes triangles as binary STL: an 80 byte header, a uint32
// facet count and 50 bytes per facet, all little endian.
func WriteSTL(w io.Writer, triangles []Triangle) error {
	if uint64(len(triangles)) > math.MaxUint32 {
		return fmt.Errorf("too many triangles for STL: %d", len(triangles))
	}

	var header [80]byte
	copy(header[:], "labelbrush label surface")
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	var buf [50]byte
	for _, t := range triangles {
		off := 0
		for _, v := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for _, f := range v {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
				off += 4
			}
		}
		// Attribute byte count stays zero.
		buf[48], buf[49] = 0, 0
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// SaveToSTL writes triangles to a binary STL file
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := WriteSTL(w, triangles); err != nil {
		return fmt.Errorf("failed to write STL file: %w", err)
	}
	return w.Flush()
}
