package visualization

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"labelbrush/pkg/slicing"
	"labelbrush/pkg/volume"
)

// Viewer renders label volumes as 2D images. Pixel values are the raw labels.
type Viewer struct {
	vol *volume.LabelVolume
}

// NewViewer creates a viewer over a label volume
func NewViewer(vol *volume.LabelVolume) *Viewer {
	return &Viewer{vol: vol}
}

func (v *Viewer) axisLength(axis string) (int, error) {
	dims := v.vol.Geometry().Dims
	switch axis {
	case "x", "X":
		return dims[0], nil
	case "y", "Y":
		return dims[1], nil
	case "z", "Z":
		return dims[2], nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice from the label volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray, error) {
	n, err := v.axisLength(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, n, axis)
	}

	dims := v.vol.Geometry().Dims
	width, height, depth := dims[0], dims[1], dims[2]
	voxels := v.vol.Voxels()

	var img *image.Gray
	switch axis {
	case "x", "X":
		// YZ plane, z along the image x axis
		img = image.NewGray(image.Rect(0, 0, depth, height))
		for y := 0; y < height; y++ {
			for z := 0; z < depth; z++ {
				img.Pix[y*img.Stride+z] = voxels[z*width*height+y*width+position]
			}
		}

	case "y", "Y":
		// XZ plane
		img = image.NewGray(image.Rect(0, 0, width, depth))
		for z := 0; z < depth; z++ {
			row := voxels[z*width*height+position*width:]
			copy(img.Pix[z*img.Stride:z*img.Stride+width], row[:width])
		}

	default:
		// XY plane, one contiguous block
		img = image.NewGray(image.Rect(0, 0, width, height))
		copy(img.Pix, voxels[position*width*height:(position+1)*width*height])
	}

	return img, nil
}

// Reslice samples the label volume on the plane's current slice with nearest
// neighbour lookup. The image is centered on the slice origin; one pixel is
// one in-plane pixel along U (columns) and V (rows).
// Samples falling outside the volume are 0.
func (v *Viewer) Reslice(plane *slicing.Plane, width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("reslice size must be positive, got %dx%d", width, height)
	}
	geom := v.vol.Geometry()
	if !plane.Geometry().SameLayout(geom) {
		return nil, fmt.Errorf("plane geometry %v does not match volume %v", plane.Geometry(), geom)
	}

	idx := plane.SliceIndex()
	cu := float64(width-1) / 2
	cv := float64(height-1) / 2
	voxels := v.vol.Voxels()

	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := plane.SliceToWorld(idx, float64(x)-cu, float64(y)-cv)
			i, j, k, ok := geom.WorldToIndex(p)
			if !ok {
				continue
			}
			img.Pix[y*img.Stride+x] = voxels[geom.LinearIndex(i, j, k)]
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves every slice along the specified axis.
// When skipEmpty is set, slices containing only background are not written.
//
// Returns:
//   - the number of images written
func (v *Viewer) SaveSliceSequence(axis string, outputDir string, skipEmpty bool) (int, error) {
	n, err := v.axisLength(axis)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	saved := 0
	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return saved, err
		}
		if skipEmpty && isEmpty(img) {
			continue
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return saved, err
		}
		saved++
	}

	return saved, nil
}

// SaveAxisSequences saves the slice sequences along x, y and z concurrently,
// each into its own subdirectory of outputDir named after the axis. The first
// failure is returned after all three sequences have stopped.
//
// Returns:
//   - the number of images written per axis
func (v *Viewer) SaveAxisSequences(outputDir string, skipEmpty bool) (map[string]int, error) {
	axes := []string{"x", "y", "z"}
	counts := make([]int, len(axes))

	var g errgroup.Group
	for n, axis := range axes {
		g.Go(func() error {
			saved, err := v.SaveSliceSequence(axis, filepath.Join(outputDir, axis), skipEmpty)
			counts[n] = saved
			if err != nil {
				return fmt.Errorf("%s-axis slices: %w", axis, err)
			}
			return nil
		})
	}
	err := g.Wait()

	saved := make(map[string]int, len(axes))
	for n, axis := range axes {
		saved[axis] = counts[n]
	}
	return saved, err
}

func isEmpty(img *image.Gray) bool {
	for _, p := range img.Pix {
		if p != 0 {
			return false
		}
	}
	return true
}
