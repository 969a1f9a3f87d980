// Package model loads trained recognition and layout models and exposes
// them behind small inference interfaces. Models are ONNX graphs executed
// through the shared onnxruntime library; every model ships with a YAML
// metadata sidecar describing its input geometry, its normalization
// constants and, for recognition models, the alphabet it was trained on.
//
// The class count declared by the metadata must match the alphabet exactly
// (alphabet size plus the reserved blank class). Loading fails on any
// mismatch, so a model can never silently decode against the wrong
// alphabet.
package model

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scriptorium/scriptor/pkg/codec"
	"github.com/scriptorium/scriptor/pkg/ctc"
	"github.com/scriptorium/scriptor/pkg/geom"
	"github.com/scriptorium/scriptor/pkg/segment"
)

// ErrModel is returned when a model file or its metadata cannot be loaded.
var ErrModel = errors.New("model load failure")

// ErrIncompatible is returned when a model's declared class count does not
// match its alphabet, or when a recognizer is paired with an alphabet of a
// different size. The mismatch is detected at load time.
var ErrIncompatible = errors.New("model and alphabet are incompatible")

// Kind distinguishes the two model roles.
type Kind string

const (
	// KindRecognition models transcribe a normalized line image into a
	// per-timestep class probability matrix.
	KindRecognition Kind = "recognition"
	// KindLayout models map a page image to per-pixel class heatmaps.
	KindLayout Kind = "layout"
)

// Metadata is the YAML sidecar accompanying every model file. For a model
// stored as foo.onnx the sidecar is foo.yaml.
type Metadata struct {
	Kind Kind `yaml:"kind"`
	// InputHeight is the fixed input height in pixels. Recognition models
	// consume lines normalized to this height; layout models consume pages
	// scaled so the larger side does not exceed it (0 means native size).
	InputHeight int `yaml:"input_height"`
	// Classes is the model's output class count including the blank.
	Classes int `yaml:"classes,omitempty"`
	// Direction is the reading direction the model was trained for
	// ("ltr", "rtl" or "ttb").
	Direction string `yaml:"direction,omitempty"`
	// Mean and Std normalize gray pixel values: (v/255 - mean) / std.
	Mean float32 `yaml:"mean"`
	Std  float32 `yaml:"std"`
	// Input and Output name the graph's input and output nodes.
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	// Alphabet is the recognition alphabet, keyed grapheme to class.
	Alphabet *codec.Codec `yaml:"alphabet,omitempty"`
	// Regions lists the region types of a layout model's output planes, in
	// channel order after the baseline plane.
	Regions []segment.RegionType `yaml:"regions,omitempty"`
}

// Validate checks internal consistency. Recognition metadata must carry an
// alphabet whose size matches the declared class count.
func (m *Metadata) Validate() error {
	switch m.Kind {
	case KindRecognition:
		if m.InputHeight <= 0 {
			return fmt.Errorf("recognition model without input height: %w", ErrModel)
		}
		if m.Alphabet == nil {
			return fmt.Errorf("recognition model without alphabet: %w", ErrModel)
		}
		if m.Classes != m.Alphabet.Size() {
			return fmt.Errorf("model emits %d classes but the alphabet defines %d: %w",
				m.Classes, m.Alphabet.Size(), ErrIncompatible)
		}
		if m.Direction != "" {
			if _, err := geom.ParseDirection(m.Direction); err != nil {
				return fmt.Errorf("%v: %w", err, ErrModel)
			}
		}
	case KindLayout:
		if len(m.Regions) == 0 && m.Output == "" {
			return fmt.Errorf("layout model without outputs: %w", ErrModel)
		}
	default:
		return fmt.Errorf("unknown model kind %q: %w", m.Kind, ErrModel)
	}
	if m.Std == 0 {
		return fmt.Errorf("zero std in normalization constants: %w", ErrModel)
	}
	if m.Input == "" || m.Output == "" {
		return fmt.Errorf("missing graph node names: %w", ErrModel)
	}
	return nil
}

// ReadingDirection returns the direction the model was trained for,
// defaulting to left-to-right.
func (m *Metadata) ReadingDirection() geom.Direction {
	d, err := geom.ParseDirection(m.Direction)
	if err != nil {
		return geom.LeftToRight
	}
	return d
}

// ReadMetadata parses and validates a metadata sidecar.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	var m Metadata
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing model metadata: %v: %w", err, ErrModel)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadMetadata reads the metadata sidecar for the given model file.
func LoadMetadata(modelPath string) (*Metadata, error) {
	f, err := os.Open(SidecarPath(modelPath))
	if err != nil {
		return nil, fmt.Errorf("opening model metadata: %v: %w", err, ErrModel)
	}
	defer f.Close()
	return ReadMetadata(f)
}

// SidecarPath returns the metadata path for a model file: the model path
// with its extension replaced by .yaml.
func SidecarPath(modelPath string) string {
	if i := strings.LastIndex(modelPath, "."); i > strings.LastIndex(modelPath, "/") {
		return modelPath[:i] + ".yaml"
	}
	return modelPath + ".yaml"
}

// Recognizer transcribes one normalized line image into a matrix of
// per-timestep class probabilities. Implementations are safe for sequential
// use; concurrent callers must hold one Recognizer per goroutine or
// serialize access.
type Recognizer interface {
	// Predict runs the model over a line normalized to InputHeight. The
	// returned matrix has one row per timestep and Alphabet().Size()
	// columns, class 0 being the blank.
	Predict(line *image.Gray) (*ctc.Matrix, error)
	// Alphabet returns the alphabet the model emits classes for.
	Alphabet() *codec.Codec
	// InputHeight returns the line height the model expects.
	InputHeight() int
	Close() error
}

// LayoutModel maps a page image to per-pixel class heatmaps for learned
// segmentation.
type LayoutModel interface {
	Heatmap(page image.Image) (*segment.Heatmap, error)
	Close() error
}
