package model

import (
	"errors"
	"image"
	"math"
	"strings"
	"testing"

	"github.com/scriptorium/scriptor/pkg/geom"
)

const recognitionMeta = `
kind: recognition
input_height: 48
classes: 3
direction: rtl
mean: 0.5
std: 0.5
input: line
output: probs
alphabet:
  graphemes:
    a: 1
    b: 2
`

func TestReadMetadataRecognition(t *testing.T) {
	m, err := ReadMetadata(strings.NewReader(recognitionMeta))
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if m.Kind != KindRecognition || m.InputHeight != 48 {
		t.Errorf("unexpected metadata: %+v", m)
	}
	if m.Alphabet == nil || m.Alphabet.Size() != 3 {
		t.Fatalf("alphabet not restored: %+v", m.Alphabet)
	}
	if got := m.Alphabet.Class("b"); got != 2 {
		t.Errorf("Class(b) = %d, want 2", got)
	}
	if m.ReadingDirection() != geom.RightToLeft {
		t.Errorf("direction = %v, want rtl", m.ReadingDirection())
	}
}

func TestReadMetadataClassMismatch(t *testing.T) {
	bad := strings.Replace(recognitionMeta, "classes: 3", "classes: 7", 1)
	_, err := ReadMetadata(strings.NewReader(bad))
	if !errors.Is(err, ErrIncompatible) {
		t.Errorf("class/alphabet mismatch: want ErrIncompatible, got %v", err)
	}
}

func TestReadMetadataMissingAlphabet(t *testing.T) {
	lines := []string{}
	for _, l := range strings.Split(recognitionMeta, "\n") {
		if strings.Contains(l, "alphabet") || strings.Contains(l, "graphemes") ||
			strings.Contains(l, "a: 1") || strings.Contains(l, "b: 2") {
			continue
		}
		lines = append(lines, l)
	}
	_, err := ReadMetadata(strings.NewReader(strings.Join(lines, "\n")))
	if !errors.Is(err, ErrModel) {
		t.Errorf("missing alphabet: want ErrModel, got %v", err)
	}
}

func TestReadMetadataUnknownKind(t *testing.T) {
	bad := strings.Replace(recognitionMeta, "kind: recognition", "kind: detection", 1)
	if _, err := ReadMetadata(strings.NewReader(bad)); !errors.Is(err, ErrModel) {
		t.Errorf("unknown kind: want ErrModel, got %v", err)
	}
}

func TestReadMetadataBadDirection(t *testing.T) {
	bad := strings.Replace(recognitionMeta, "direction: rtl", "direction: boustrophedon", 1)
	if _, err := ReadMetadata(strings.NewReader(bad)); !errors.Is(err, ErrModel) {
		t.Errorf("bad direction: want ErrModel, got %v", err)
	}
}

func TestReadMetadataLayout(t *testing.T) {
	meta := `
kind: layout
input_height: 1200
mean: 0.5
std: 0.5
input: page
output: planes
regions: [text, marginalia]
`
	m, err := ReadMetadata(strings.NewReader(meta))
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if m.Kind != KindLayout || len(m.Regions) != 2 {
		t.Errorf("unexpected layout metadata: %+v", m)
	}
}

func TestSidecarPath(t *testing.T) {
	cases := map[string]string{
		"models/latin.onnx":  "models/latin.yaml",
		"latin.onnx":         "latin.yaml",
		"models/latin":       "models/latin.yaml",
		"mod.els/weights":    "mod.els/weights.yaml",
		"mod.els/w.v2.onnx":  "mod.els/w.v2.yaml",
	}
	for in, want := range cases {
		if got := SidecarPath(in); got != want {
			t.Errorf("SidecarPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTensorize(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.Pix = []uint8{0, 128, 255, 255, 0, 128}

	data, shape := tensorize(img, 0.5, 0.5)
	if len(shape) != 4 || shape[0] != 1 || shape[1] != 1 || shape[2] != 2 || shape[3] != 3 {
		t.Fatalf("shape = %v, want [1 1 2 3]", shape)
	}
	if len(data) != 6 {
		t.Fatalf("got %d values, want 6", len(data))
	}
	// Black maps to -1, white to +1.
	if math.Abs(float64(data[0])+1) > 1e-6 {
		t.Errorf("black pixel = %v, want -1", data[0])
	}
	if math.Abs(float64(data[2])-1) > 1e-6 {
		t.Errorf("white pixel = %v, want 1", data[2])
	}
	if data[1] <= data[0] || data[1] >= data[2] {
		t.Errorf("midtone %v not between black and white", data[1])
	}
}

func TestPlaneAt(t *testing.T) {
	data := []float32{
		1, 2, 3, 4, 5, 6, // plane 0, 3x2
		7, 8, 9, 10, 11, 12, // plane 1
	}
	p := planeAt(data, 1, 3, 2)
	if p.W != 3 || p.H != 2 {
		t.Fatalf("plane is %dx%d, want 3x2", p.W, p.H)
	}
	if p.At(0, 0) != 7 || p.At(2, 1) != 12 {
		t.Errorf("plane values wrong: %+v", p.Data)
	}
	// The plane owns its values.
	data[6] = 99
	if p.At(0, 0) != 7 {
		t.Error("plane aliases the source tensor")
	}
}
