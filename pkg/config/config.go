// Package config provides configuration loading and management for labelbrush.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"labelbrush/pkg/brush"
	"labelbrush/pkg/slicing"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Volume describes the grid the label map is painted on
	Volume struct {
		// Dimensions is the number of voxels along X, Y and Z
		Dimensions [3]int `yaml:"dimensions"`

		// Spacing is the physical voxel size in mm along X, Y and Z
		Spacing [3]float64 `yaml:"spacing"`

		// Origin is the world position of voxel (0,0,0) in mm
		Origin [3]float64 `yaml:"origin"`
	} `yaml:"volume"`

	// Slice parameters for the oblique cutting plane
	Slice struct {
		// Axis and AngleDegrees define the initial plane rotation
		Axis         [3]float64 `yaml:"axis"`
		AngleDegrees float64    `yaml:"angleDegrees"`

		// Index is the initial slice index, clamped into range
		Index int `yaml:"index"`

		// Rounding selects the tie-break when snapping to a slice index
		Rounding string `yaml:"rounding"`
	} `yaml:"slice"`

	// Brush parameters
	Brush struct {
		// Shape is "cylinder" or "sphere"
		Shape string `yaml:"shape"`

		DiameterMM float64 `yaml:"diameterMM"`
		HeightMM   float64 `yaml:"heightMM"`

		// Axis is the volume axis the cylinder height is aligned with
		Axis string `yaml:"axis"`

		// Resolution is the number of facets of the cylinder cross-section (0 = circle)
		Resolution int `yaml:"resolution"`

		// InsideThreshold is the signed distance below which a voxel center counts as inside
		InsideThreshold float64 `yaml:"insideThreshold"`

		// Label is the value written into the label volume
		Label uint8 `yaml:"label"`
	} `yaml:"brush"`

	// Painter parameters
	Painter struct {
		// MaxParallelism bounds the goroutines used to replay strokes
		MaxParallelism int `yaml:"maxParallelism"`
	} `yaml:"painter"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogFile redirects log output to a rotating file when set
		LogFile       string `yaml:"logFile"`
		MaxLogSizeMB  int    `yaml:"maxLogSizeMB"`
		MaxLogAgeDays int    `yaml:"maxLogAgeDays"`

		// ExportSlices writes painted label slices as PNG images
		ExportSlices bool   `yaml:"exportSlices"`
		SlicesDir    string `yaml:"slicesDir"`

		// STLDir receives one binary STL surface per painted label when set
		STLDir string `yaml:"stlDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// 100^3 isotropic volume at the origin
	cfg.Volume.Dimensions = [3]int{100, 100, 100}
	cfg.Volume.Spacing = [3]float64{1, 1, 1}

	// Axial plane through the center
	cfg.Slice.Axis = [3]float64{0, 0, 1}
	cfg.Slice.Rounding = slicing.RoundHalfAwayFromZero.String()

	cfg.Brush.Shape = brush.KindCylinder.String()
	cfg.Brush.DiameterMM = 3
	cfg.Brush.HeightMM = 1
	cfg.Brush.Axis = brush.AxisZ.String()
	cfg.Brush.Label = 1

	cfg.Painter.MaxParallelism = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Verbose = true
	cfg.Output.MaxLogSizeMB = 10
	cfg.Output.MaxLogAgeDays = 7
	cfg.Output.SlicesDir = "label_slices"

	return cfg
}

// Validate checks the values that cannot be expressed by the YAML types alone
func (c *Config) Validate() error {
	for i, n := range c.Volume.Dimensions {
		if n <= 0 {
			return fmt.Errorf("volume.dimensions[%d] must be positive, got %d", i, n)
		}
	}
	for i, s := range c.Volume.Spacing {
		if s <= 0 {
			return fmt.Errorf("volume.spacing[%d] must be positive, got %g", i, s)
		}
	}
	if _, err := slicing.ParseRoundingMode(c.Slice.Rounding); err != nil {
		return fmt.Errorf("slice.rounding: %w", err)
	}
	if _, err := brush.ParseKind(c.Brush.Shape); err != nil {
		return fmt.Errorf("brush.shape: %w", err)
	}
	if _, err := brush.ParseAxis(c.Brush.Axis); err != nil {
		return fmt.Errorf("brush.axis: %w", err)
	}
	if c.Painter.MaxParallelism < 0 {
		return fmt.Errorf("painter.maxParallelism must not be negative, got %d", c.Painter.MaxParallelism)
	}
	return nil
}

// BrushDescriptor converts the brush section into a brush.Descriptor
func (c *Config) BrushDescriptor() (brush.Descriptor, error) {
	kind, err := brush.ParseKind(c.Brush.Shape)
	if err != nil {
		return brush.Descriptor{}, err
	}
	axis, err := brush.ParseAxis(c.Brush.Axis)
	if err != nil {
		return brush.Descriptor{}, err
	}
	return brush.Descriptor{
		Kind:       kind,
		DiameterMM: c.Brush.DiameterMM,
		HeightMM:   c.Brush.HeightMM,
		Axis:       axis,
		Resolution: c.Brush.Resolution,
	}, nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
