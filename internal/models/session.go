package models

import (
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"labelbrush/pkg/slicing"
)

// Orientation is an axis/angle rotation of the slice plane
type Orientation struct {
	// Axis of rotation, need not be normalised; zero means identity
	Axis [3]float64 `yaml:"axis"`

	// AngleDegrees is the rotation angle about Axis
	AngleDegrees float64 `yaml:"angleDegrees"`
}

// Quaternion returns the unit quaternion for o
func (o Orientation) Quaternion() quat.Number {
	return slicing.AxisAngle(o.AngleDegrees, r3.Vec{X: o.Axis[0], Y: o.Axis[1], Z: o.Axis[2]})
}

// Stroke is one continuous brush gesture: the label painted and the world
// positions (mm) of the brush center along the gesture
type Stroke struct {
	Label  uint8        `yaml:"label"`
	Points [][3]float64 `yaml:"points"`
}

// Centers converts the stroke points into world vectors
func (s Stroke) Centers() []r3.Vec {
	centers := make([]r3.Vec, len(s.Points))
	for i, p := range s.Points {
		centers[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}
	return centers
}

// Session is a recorded painting session that can be replayed onto an empty
// label volume
type Session struct {
	// Orientation of the slice plane while painting
	Orientation Orientation `yaml:"orientation"`

	// SliceIndex is the slice the plane was moved to before painting
	SliceIndex int `yaml:"sliceIndex"`

	Strokes []Stroke `yaml:"strokes"`
}

// NumPoints returns the total number of brush centers across all strokes
func (s *Session) NumPoints() int {
	n := 0
	for _, st := range s.Strokes {
		n += len(st.Points)
	}
	return n
}

// Validate rejects strokes that would paint the background label
func (s *Session) Validate() error {
	for i, st := range s.Strokes {
		if st.Label == 0 {
			return fmt.Errorf("stroke %d: label 0 is reserved for background", i)
		}
	}
	return nil
}

// LoadSession reads a session from a YAML file
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading session file: %w", err)
	}

	s := &Session{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("error parsing session file: %w", err)
	}
	if len(s.Strokes) == 0 {
		return nil, errors.New("session file contains no strokes")
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session file %s: %w", path, err)
	}
	return s, nil
}

// SaveSession writes a session to a YAML file
func SaveSession(s *Session, path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error marshaling session: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing session file: %w", err)
	}
	return nil
}
