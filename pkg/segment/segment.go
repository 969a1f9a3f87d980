// Package segment implements page layout analysis: it turns a page image
// (optionally with per-pixel heatmaps from a trained layout model) into an
// ordered set of baselines and region polygons.
//
// Two operating modes produce the same output shape:
//
//   - Heuristic mode works on the raw image with classical image
//     processing: Otsu binarization, projection-profile line bands and
//     connected-component trimming. It needs no model and serves as the
//     fallback for material the learned models were never trained on.
//   - Learned mode consumes per-pixel class heatmaps: baselines are
//     extracted from the baseline-likelihood plane by thinning and skeleton
//     tracing, regions from the per-type region planes, and lines are
//     associated to regions by geometric containment.
//
// Both modes guarantee the same invariants: every emitted baseline has at
// least two points and non-zero length, a baseline belongs to at most one
// region, and the emitted line order is a total reading order over all
// lines. A blank page yields an empty result, not an error.
package segment

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/scriptorium/scriptor/pkg/geom"
)

// ErrSegmentation is returned when a page's geometry cannot be extracted,
// e.g. a malformed heatmap that cannot be thinned or traced. The failure is
// scoped to the page; batch drivers continue with the remaining pages.
var ErrSegmentation = errors.New("segmentation failure")

// RegionType classifies a page area by semantic type.
type RegionType string

// Region types emitted by the bundled layout models.
const (
	RegionText       RegionType = "text"
	RegionMarginalia RegionType = "marginalia"
	RegionTable      RegionType = "table"
	RegionImage      RegionType = "image"
)

// Line is one segmented text line: its baseline, the polygon bounding its
// pixels, the estimated line height, and the index of the owning region in
// Segmentation.Regions (-1 for lines outside every region).
type Line struct {
	Baseline geom.Baseline
	Polygon  geom.Polygon
	Height   float64
	Region   int
}

// Region is a typed page area owning zero or more lines.
type Region struct {
	Type    RegionType
	Polygon geom.Polygon
}

// Segmentation is the result of analyzing one page. Lines appear in reading
// order. The zero value describes an empty page.
type Segmentation struct {
	// Direction is the reading direction the ordering was computed for.
	Direction geom.Direction
	Lines     []Line
	Regions   []Region
}

// Validate checks the output invariants shared by both segmentation modes.
// It exists mainly for callers that construct or transform segmentations
// themselves; results returned by Segmenter always pass.
func (s *Segmentation) Validate() error {
	for i, ln := range s.Lines {
		if ln.Baseline.Len() < 2 {
			return fmt.Errorf("line %d: baseline has %d points: %w", i, ln.Baseline.Len(), geom.ErrDegenerate)
		}
		if ln.Baseline.Length() <= 0 {
			return fmt.Errorf("line %d: zero-length baseline: %w", i, geom.ErrDegenerate)
		}
		if ln.Region < -1 || ln.Region >= len(s.Regions) {
			return fmt.Errorf("line %d: region index %d out of range", i, ln.Region)
		}
	}
	for i := range s.Regions {
		for j := i + 1; j < len(s.Regions); j++ {
			if s.Regions[i].Type != s.Regions[j].Type {
				continue
			}
			if regionsOverlap(s.Regions[i].Polygon, s.Regions[j].Polygon) {
				return fmt.Errorf("regions %d and %d of type %q overlap", i, j, s.Regions[i].Type)
			}
		}
	}
	return nil
}

// regionsOverlap reports whether either polygon's centroid lies inside the
// other; adjacent regions may share boundary pixels without being considered
// overlapping.
func regionsOverlap(a, b geom.Polygon) bool {
	return a.Contains(b.Centroid()) || b.Contains(a.Centroid())
}

// Config holds the segmentation parameters.
type Config struct {
	// ScriptSample is a short sample of text in the page's script; its
	// Unicode bidi classes determine the reading direction. Empty means
	// left-to-right.
	ScriptSample string
	// Vertical forces top-to-bottom line layout regardless of ScriptSample.
	Vertical bool
	// Threshold binarizes heatmap planes in learned mode.
	Threshold float32
	// MinLineLength drops baseline candidates shorter than this many
	// pixels; speckle otherwise turns into one-point lines.
	MinLineLength float64
	// DefaultLineHeight is the fallback line height in pixels when the
	// page carries too few lines to estimate spacing.
	DefaultLineHeight float64
	// Logger receives warnings about skipped candidates; nil discards
	// them.
	Logger io.Writer
}

// DefaultConfig returns segmentation parameters suitable for 300 dpi book
// scans.
func DefaultConfig() Config {
	return Config{
		Threshold:         0.5,
		MinLineLength:     8,
		DefaultLineHeight: 32,
	}
}

// Segmenter analyzes pages. It holds no per-page state and is safe for
// concurrent use across pages.
type Segmenter struct {
	cfg Config
	dir geom.Direction
}

// New returns a Segmenter for the given configuration.
func New(cfg Config) *Segmenter {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.MinLineLength <= 0 {
		cfg.MinLineLength = DefaultConfig().MinLineLength
	}
	if cfg.DefaultLineHeight <= 0 {
		cfg.DefaultLineHeight = DefaultConfig().DefaultLineHeight
	}
	dir := DirectionForText(cfg.ScriptSample)
	if cfg.Vertical {
		dir = geom.TopToBottom
	}
	return &Segmenter{cfg: cfg, dir: dir}
}

// Direction returns the reading direction the segmenter orders lines for.
func (s *Segmenter) Direction() geom.Direction { return s.dir }

// Segment analyzes a page, selecting learned mode when a heatmap is
// supplied and heuristic mode otherwise. Callers never need to branch on
// the mode: both satisfy the same output invariants.
func (s *Segmenter) Segment(img image.Image, hm *Heatmap) (*Segmentation, error) {
	if hm != nil {
		return s.SegmentHeatmap(hm)
	}
	return s.SegmentHeuristic(img)
}

func (s *Segmenter) warnf(format string, args ...interface{}) {
	if s.cfg.Logger != nil {
		fmt.Fprintf(s.cfg.Logger, format+"\n", args...)
	}
}
