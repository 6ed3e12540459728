package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/lumberjack"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"labelbrush/internal/models"
	"labelbrush/pkg/brush"
	"labelbrush/pkg/config"
	"labelbrush/pkg/painter"
	"labelbrush/pkg/slicing"
	"labelbrush/pkg/stl"
	"labelbrush/pkg/visualization"
	"labelbrush/pkg/volume"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "labelbrush.yaml", "YAML configuration file")
	createConfig := flag.Bool("create-config", false, "Write a default configuration file and exit")
	sessionPath := flag.String("session", "", "YAML session file with strokes to replay (default: a demo stroke)")
	numCores := flag.Int("cores", 0, "Number of goroutines used to paint (default: from config)")
	label := flag.Int("label", -1, "Label painted by the demo stroke (default: from config)")
	extractSlices := flag.Bool("extract-slices", false, "Save painted label slices along all axes and the oblique plane")
	slicesDir := flag.String("slices-dir", "", "Directory to save extracted slices (default: from config)")
	stlDir := flag.String("stl-dir", "", "Directory to save one STL surface per painted label")
	flag.Parse()

	if *createConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create config file: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the configuration file
	if *numCores > 0 {
		cfg.Painter.MaxParallelism = *numCores
	}
	if *label >= 0 {
		if *label > 255 {
			log.Fatalf("Label %d does not fit in a uint8", *label)
		}
		cfg.Brush.Label = uint8(*label)
	}
	if *extractSlices {
		cfg.Output.ExportSlices = true
	}
	if *slicesDir != "" {
		cfg.Output.SlicesDir = *slicesDir
	}
	if *stlDir != "" {
		cfg.Output.STLDir = *stlDir
	}

	setLogger(cfg)

	fmt.Println("================================")
	fmt.Println("LABEL MAP BRUSH PAINTING ON OBLIQUE SLICES")
	fmt.Println("================================")

	// Volume and label map
	geom, err := volume.NewGeometry(cfg.Volume.Dimensions, vec(cfg.Volume.Spacing), vec(cfg.Volume.Origin))
	if err != nil {
		log.Fatalf("Invalid volume: %v", err)
	}
	labels, err := volume.NewLabelVolume(geom)
	if err != nil {
		log.Fatalf("Failed to allocate label volume: %v", err)
	}
	modifications := 0
	labels.AddObserver(volume.ObserverFunc(func(*volume.LabelVolume) { modifications++ }))

	// Session: recorded strokes or a demo stroke on the configured slice
	session, err := loadSession(*sessionPath, cfg)
	if err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}

	// Slice plane
	rounding, err := slicing.ParseRoundingMode(cfg.Slice.Rounding)
	if err != nil {
		log.Fatalf("Invalid rounding mode: %v", err)
	}
	plane, err := slicing.NewPlane(geom, session.Orientation.Quaternion(), slicing.WithRounding(rounding))
	if err != nil {
		log.Fatalf("Invalid slice orientation: %v", err)
	}
	plane.AddObserver(slicing.ObserverFunc(func(info slicing.Info) {
		if cfg.Output.Verbose {
			log.Printf("slice plane moved to index %d in [%d, %d], origin %v", info.SliceIndex, info.MinSliceIndex, info.MaxSliceIndex, info.Origin)
		}
	}))
	plane.SetSliceIndex(session.SliceIndex)
	if len(session.Strokes) == 0 {
		session.Strokes = []models.Stroke{demoStroke(plane, cfg)}
	}

	// Brush
	desc, err := cfg.BrushDescriptor()
	if err != nil {
		log.Fatalf("Invalid brush: %v", err)
	}
	var cacheOpts []brush.CacheOption
	var painterOpts []painter.Option
	if cfg.Output.Verbose {
		cacheOpts = append(cacheOpts, brush.WithLogger(log.Default()))
		painterOpts = append(painterOpts, painter.WithLogger(log.Default()))
	}
	cache := brush.NewOffsetCache(brush.SDFRasterizer{Threshold: cfg.Brush.InsideThreshold}, cacheOpts...)
	if err := cache.SetGeometry(desc); err != nil {
		log.Fatalf("Invalid brush: %v", err)
	}
	if err := cache.BindTargetSpacing(geom); err != nil {
		log.Fatalf("Failed to bind brush to volume: %v", err)
	}

	p := painter.New(append(painterOpts, painter.WithMaxParallelism(cfg.Painter.MaxParallelism))...)

	info := plane.Info()
	fmt.Printf("Volume: %s (%s voxels, %s)\n", geom,
		humanize.Comma(int64(geom.NumVoxels())), humanize.Bytes(uint64(geom.NumVoxels())))
	fmt.Printf("Slice: index %d of [%d, %d], step %.4f mm\n", info.SliceIndex, info.MinSliceIndex, info.MaxSliceIndex, info.StepMillimeter)
	fmt.Printf("Brush: %s\n", desc)

	// Replay the strokes
	fmt.Printf("Painting %d strokes (%s brush centers) with %d workers...\n",
		len(session.Strokes), humanize.Comma(int64(session.NumPoints())), p.MaxParallelism())
	startTime := time.Now()
	writes := 0
	for i, stroke := range session.Strokes {
		n, err := p.PaintBrushMany(labels, cache, stroke.Centers(), stroke.Label)
		if err != nil {
			log.Fatalf("Stroke %d failed: %v", i, err)
		}
		writes += n
	}
	paintTime := time.Since(startTime)

	shape, err := cache.Shape()
	if err != nil {
		log.Fatalf("Failed to read brush: %v", err)
	}
	lo, hi := shape.Extent()

	fmt.Printf("\nPainting completed in %s\n", paintTime)
	fmt.Printf("- Brush stamp: %d voxels, extent %v..%v, rasterized %d time(s)\n", shape.Len(), lo, hi, cache.Builds())
	fmt.Printf("- Voxel writes: %s\n", humanize.Comma(int64(writes)))
	fmt.Printf("- Volume modifications: %d\n", modifications)
	painted := paintedLabels(session)
	for _, l := range painted {
		fmt.Printf("- Label %d now covers %s voxels\n", l, humanize.Comma(int64(labels.Count(l))))
	}

	if cfg.Output.ExportSlices {
		if err := exportSlices(labels, plane, cfg.Output.SlicesDir); err != nil {
			log.Fatalf("Failed to export slices: %v", err)
		}
	}
	if cfg.Output.STLDir != "" {
		if err := exportSurfaces(labels, painted, cfg.Output.STLDir); err != nil {
			log.Fatalf("Failed to export surfaces: %v", err)
		}
	}
}

// paintedLabels returns the distinct stroke labels in first-use order
func paintedLabels(s *models.Session) []uint8 {
	var seen [256]bool
	var out []uint8
	for _, st := range s.Strokes {
		if !seen[st.Label] {
			seen[st.Label] = true
			out = append(out, st.Label)
		}
	}
	return out
}

// exportSurfaces writes the voxel surface of each label as a binary STL file
func exportSurfaces(labels *volume.LabelVolume, painted []uint8, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, l := range painted {
		triangles := stl.LabelSurface(labels, l)
		name := filepath.Join(dir, fmt.Sprintf("label_%03d.stl", l))
		if err := stl.SaveToSTL(name, triangles); err != nil {
			return err
		}
		fmt.Printf("Saved label %d surface (%s triangles, %s) to: %s\n", l,
			humanize.Comma(int64(len(triangles))), humanize.Bytes(uint64(84+50*len(triangles))), name)
	}
	return nil
}

// setLogger sends log output to a rotating file when one is configured
func setLogger(cfg *config.Config) {
	if cfg.Output.LogFile == "" {
		return
	}
	fmt.Printf("Sending log messages to: %s\n", cfg.Output.LogFile)
	log.SetOutput(&lumberjack.Logger{
		Filename: cfg.Output.LogFile,
		MaxSize:  cfg.Output.MaxLogSizeMB,  // megabytes
		MaxAge:   cfg.Output.MaxLogAgeDays, // days
	})
}

func vec(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}

// loadSession reads the session file, or builds an empty session from the
// slice section of the configuration when no file is given.
func loadSession(path string, cfg *config.Config) (*models.Session, error) {
	if path != "" {
		return models.LoadSession(path)
	}
	return &models.Session{
		Orientation: models.Orientation{Axis: cfg.Slice.Axis, AngleDegrees: cfg.Slice.AngleDegrees},
		SliceIndex:  cfg.Slice.Index,
	}, nil
}

// demoStroke drags the brush along U through the middle of the current
// slice, one center per in-plane pixel.
func demoStroke(plane *slicing.Plane, cfg *config.Config) models.Stroke {
	dims := plane.Geometry().Dims
	reach := max(dims[0], dims[1], dims[2]) / 3

	stroke := models.Stroke{Label: cfg.Brush.Label}
	for u := -reach; u <= reach; u++ {
		w := plane.SliceToWorld(plane.SliceIndex(), float64(u), 0)
		stroke.Points = append(stroke.Points, [3]float64{w.X, w.Y, w.Z})
	}
	return stroke
}

// exportSlices writes every non-empty axis-aligned slice and the current
// oblique slice as PNG images.
func exportSlices(labels *volume.LabelVolume, plane *slicing.Plane, dir string) error {
	fmt.Println("\nExtracting label slices along all axes...")
	viewer := visualization.NewViewer(labels)

	saved, err := viewer.SaveAxisSequences(dir, true)
	if err != nil {
		log.Printf("Warning: Failed to save axis slices: %v", err)
	}
	for _, axis := range []string{"x", "y", "z"} {
		fmt.Printf("Saved %d %s-axis slices to: %s\n", saved[axis], axis, filepath.Join(dir, axis))
	}

	dims := labels.Geometry().Dims
	size := max(dims[0], dims[1], dims[2])
	img, err := viewer.Reslice(plane, size, size)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	name := filepath.Join(dir, fmt.Sprintf("slice_%s_%+04d.png", orientationTag(plane.Orientation()), plane.SliceIndex()))
	if err := viewer.SaveSlice(img, name); err != nil {
		return err
	}
	fmt.Printf("Saved oblique slice to: %s\n", name)
	return nil
}

// orientationTag names the preset orientations and falls back to "oblique".
// q and -q are the same rotation, so both match a preset.
func orientationTag(q quat.Number) string {
	for name, preset := range map[string]quat.Number{
		"axial":    slicing.Axial(),
		"coronal":  slicing.Coronal(),
		"sagittal": slicing.Sagittal(),
	} {
		if min(quat.Abs(quat.Sub(q, preset)), quat.Abs(quat.Add(q, preset))) < 1e-9 {
			return name
		}
	}
	return "oblique"
}
