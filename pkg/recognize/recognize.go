// Package recognize transcribes segmented text lines. It drives the full
// per-line path: dewarp and normalize the line raster, run the recognition
// model, decode the probability matrix, and map every decoded grapheme back
// to a region of the page through its timestep provenance.
package recognize

import (
	"fmt"
	"image"

	"github.com/scriptorium/scriptor/pkg/ctc"
	"github.com/scriptorium/scriptor/pkg/geom"
	"github.com/scriptorium/scriptor/pkg/linenorm"
	"github.com/scriptorium/scriptor/pkg/model"
	"github.com/scriptorium/scriptor/pkg/segment"
)

// Symbol is one decoded grapheme with its provenance: the timestep run that
// produced it and the page area it was read from.
type Symbol struct {
	Grapheme   string
	Confidence float64
	// Start and End are the half-open timestep bounds [Start, End) of the
	// run in the probability matrix, as emitted by pkg/ctc.
	Start, End int
	// Box bounds the page area the grapheme was read from, derived from
	// the baseline span covered by the timestep run.
	Box geom.Rect
}

// Transcription is the recognition result for one line.
type Transcription struct {
	Text string
	// Confidence is the product of the per-symbol confidences; an empty
	// transcription has confidence 1.
	Confidence float64
	Symbols    []Symbol
	// Line is the segmented line the transcription was read from.
	Line segment.Line
}

// Config holds the per-line recognition parameters.
type Config struct {
	// BeamWidth selects prefix beam search decoding when greater than 1;
	// otherwise decoding is greedy best-path.
	BeamWidth int
	// BaselineRatio positions the writing line in the normalized raster.
	BaselineRatio float64
	// Degree is the polynomial degree for baseline dewarping.
	Degree int
}

// DefaultConfig returns recognition parameters matching the bundled models.
func DefaultConfig() Config {
	ln := linenorm.DefaultConfig()
	return Config{
		BaselineRatio: ln.BaselineRatio,
		Degree:        ln.Degree,
	}
}

// Engine recognizes lines with a fixed model. It holds no per-line state
// and may be shared by callers that serialize access to the model.
type Engine struct {
	rec model.Recognizer
	cfg Config
}

// New returns an Engine recognizing with the given model.
func New(rec model.Recognizer, cfg Config) *Engine {
	if cfg.BaselineRatio <= 0 || cfg.BaselineRatio >= 1 {
		cfg.BaselineRatio = linenorm.DefaultConfig().BaselineRatio
	}
	if cfg.Degree <= 0 {
		cfg.Degree = linenorm.DefaultConfig().Degree
	}
	return &Engine{rec: rec, cfg: cfg}
}

// Line transcribes one segmented line from the page image.
func (e *Engine) Line(page image.Image, ln segment.Line) (*Transcription, error) {
	norm, err := e.normalize(page, ln)
	if err != nil {
		return nil, fmt.Errorf("normalizing line: %w", err)
	}

	m, err := e.rec.Predict(norm)
	if err != nil {
		return nil, err
	}
	if m.Classes() != e.rec.Alphabet().Size() {
		return nil, fmt.Errorf("model emitted %d classes for an alphabet of %d: %w",
			m.Classes(), e.rec.Alphabet().Size(), model.ErrIncompatible)
	}

	var seq ctc.Sequence
	if e.cfg.BeamWidth > 1 {
		seq = ctc.BeamDecode(m, e.cfg.BeamWidth)
	} else {
		seq = ctc.Greedy(m)
	}
	return e.transcription(seq, m.Steps(), ln)
}

func (e *Engine) normalize(page image.Image, ln segment.Line) (*image.Gray, error) {
	cfg := linenorm.Config{
		Height:        e.rec.InputHeight(),
		BaselineRatio: e.cfg.BaselineRatio,
		Degree:        e.cfg.Degree,
	}
	if ln.Polygon.Len() >= 3 {
		return linenorm.NormalizePolygon(page, ln.Baseline, ln.Polygon, ln.Height, cfg)
	}
	return linenorm.Normalize(page, ln.Baseline, ln.Height, cfg)
}

// transcription converts a decoded sequence into a Transcription, mapping
// each symbol's timestep run onto the stretch of baseline it covers.
func (e *Engine) transcription(seq ctc.Sequence, steps int, ln segment.Line) (*Transcription, error) {
	out := &Transcription{
		Confidence: seq.Confidence(),
		Line:       ln,
	}
	if len(seq.Symbols) == 0 {
		return out, nil
	}

	// steps+1 fence posts along the baseline arc, one per timestep
	// boundary.
	posts := ln.Baseline.Sample(steps + 1)
	up := ln.Height * e.cfg.BaselineRatio
	down := ln.Height - up

	text := make([]byte, 0, len(seq.Symbols))
	for _, sym := range seq.Symbols {
		g, err := e.rec.Alphabet().Decode([]int{sym.Class})
		if err != nil {
			return nil, fmt.Errorf("timesteps %d-%d: %w", sym.Start, sym.End, err)
		}
		text = append(text, g...)
		out.Symbols = append(out.Symbols, Symbol{
			Grapheme:   g,
			Confidence: sym.Confidence,
			Start:      sym.Start,
			End:        sym.End,
			Box:        spanBox(posts, sym.Start, sym.End, up, down),
		})
	}
	out.Text = string(text)
	return out, nil
}

// spanBox bounds the baseline stretch between the fence posts of a
// half-open timestep run [start, end), extended by the line's ascender and
// descender extents. A run covering timesteps start..end-1 spans posts
// start..end.
func spanBox(posts []geom.Point, start, end int, up, down float64) geom.Rect {
	if start < 0 {
		start = 0
	}
	if end > len(posts)-1 {
		end = len(posts) - 1
	}
	if end <= start {
		end = start + 1
	}
	r := geom.Rect{X1: posts[start].X, Y1: posts[start].Y, X2: posts[start].X, Y2: posts[start].Y}
	for _, p := range posts[start : end+1] {
		if p.X < r.X1 {
			r.X1 = p.X
		}
		if p.X > r.X2 {
			r.X2 = p.X
		}
		if p.Y < r.Y1 {
			r.Y1 = p.Y
		}
		if p.Y > r.Y2 {
			r.Y2 = p.Y
		}
	}
	r.Y1 -= up
	r.Y2 += down
	return r
}
