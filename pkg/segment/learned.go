package segment

import (
	"fmt"
	"math"
	"sort"

	"github.com/scriptorium/scriptor/pkg/geom"
)

// Plane is one per-pixel class likelihood map produced by a layout model,
// row-major, values nominally in [0, 1].
type Plane struct {
	W, H int
	Data []float32
}

// At returns the likelihood at (x, y).
func (p *Plane) At(x, y int) float32 { return p.Data[y*p.W+x] }

func (p *Plane) valid() error {
	if p.W <= 0 || p.H <= 0 || len(p.Data) != p.W*p.H {
		return fmt.Errorf("plane %dx%d with %d values", p.W, p.H, len(p.Data))
	}
	for i, v := range p.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("plane value %v at offset %d", v, i)
		}
	}
	return nil
}

// Heatmap bundles the per-pixel outputs of a layout model for one page: a
// baseline-likelihood plane and zero or more region-likelihood planes by
// type.
type Heatmap struct {
	Baselines *Plane
	Regions   map[RegionType]*Plane
}

// SegmentHeatmap analyzes a page in learned mode: baseline skeletons are
// extracted from the baseline plane by thinning and tracing, regions from
// the region planes, and each line is assigned to the region containing its
// baseline.
func (s *Segmenter) SegmentHeatmap(hm *Heatmap) (*Segmentation, error) {
	if hm == nil || hm.Baselines == nil {
		return nil, fmt.Errorf("missing baseline plane: %w", ErrSegmentation)
	}
	if err := hm.Baselines.valid(); err != nil {
		return nil, fmt.Errorf("baseline plane: %v: %w", err, ErrSegmentation)
	}
	for typ, plane := range hm.Regions {
		if plane == nil {
			continue
		}
		if err := plane.valid(); err != nil {
			return nil, fmt.Errorf("region plane %q: %v: %w", typ, err, ErrSegmentation)
		}
		if plane.W != hm.Baselines.W || plane.H != hm.Baselines.H {
			return nil, fmt.Errorf("region plane %q is %dx%d, baseline plane %dx%d: %w",
				typ, plane.W, plane.H, hm.Baselines.W, hm.Baselines.H, ErrSegmentation)
		}
	}

	bin := binarize(hm.Baselines, s.cfg.Threshold)
	skeleton := thin(bin)
	polylines := tracePolylines(skeleton)

	seg := &Segmentation{Direction: s.dir}
	var baselines []geom.Baseline
	for _, pts := range polylines {
		bl, err := geom.NewBaseline(pts)
		if err != nil {
			continue
		}
		if bl.Length() < s.cfg.MinLineLength {
			s.warnf("dropping baseline of length %.1f: below minimum %v", bl.Length(), s.cfg.MinLineLength)
			continue
		}
		bl = s.orient(bl)
		baselines = append(baselines, bl)
	}

	// Regions from the per-type planes. Components of the same type whose
	// hulls overlap are merged, so no two same-type regions claim the same
	// area.
	for _, typ := range sortedRegionTypes(hm.Regions) {
		plane := hm.Regions[typ]
		if plane == nil {
			continue
		}
		for _, hull := range regionHulls(binarize(plane, s.cfg.Threshold)) {
			poly, err := geom.NewPolygon(hull)
			if err != nil {
				continue
			}
			seg.Regions = append(seg.Regions, Region{Type: typ, Polygon: poly})
		}
	}

	heights := estimateLineHeights(baselines, s.cfg.DefaultLineHeight)
	for i, bl := range baselines {
		region := -1
		for ri, r := range seg.Regions {
			if r.Polygon.ContainsBaseline(bl) {
				region = ri
				break
			}
		}
		poly, err := polygonize(bl, heights[i])
		if err != nil {
			s.warnf("dropping untraceable line %d: %v", i, err)
			continue
		}
		seg.Lines = append(seg.Lines, Line{
			Baseline: bl,
			Polygon:  poly,
			Height:   heights[i],
			Region:   region,
		})
	}

	s.orderLines(seg)
	return seg, nil
}

// orient flips a traced baseline so its point order matches the configured
// reading direction. Tracing yields an arbitrary endpoint order.
func (s *Segmenter) orient(bl geom.Baseline) geom.Baseline {
	start, end := bl.Start(), bl.End()
	switch s.dir {
	case geom.RightToLeft:
		if start.X < end.X {
			return bl.Reversed()
		}
	case geom.TopToBottom:
		if start.Y > end.Y {
			return bl.Reversed()
		}
	default:
		if start.X > end.X {
			return bl.Reversed()
		}
	}
	return bl
}

// estimateLineHeights derives a per-line height from the vertical spacing
// between neighboring baselines, falling back to the configured default when
// the page carries too few lines for a spacing estimate.
func estimateLineHeights(baselines []geom.Baseline, fallback float64) []float64 {
	heights := make([]float64, len(baselines))
	centers := make([]float64, len(baselines))
	for i, bl := range baselines {
		centers[i] = bl.Bounds().Center().Y
	}
	var gaps []float64
	sorted := append([]float64(nil), centers...)
	sort.Float64s(sorted)
	for i := 1; i < len(sorted); i++ {
		if g := sorted[i] - sorted[i-1]; g > 2 {
			gaps = append(gaps, g)
		}
	}
	height := fallback
	if len(gaps) > 0 {
		sort.Float64s(gaps)
		median := gaps[len(gaps)/2]
		if est := 0.8 * median; est >= 4 {
			height = est
		}
	}
	for i := range heights {
		heights[i] = height
	}
	return heights
}

// polygonize builds a closed line polygon by offsetting the baseline by the
// ascender extent upwards and the descender extent downwards.
func polygonize(bl geom.Baseline, height float64) (geom.Polygon, error) {
	const ascendRatio = 0.75
	up := height * ascendRatio
	down := height - up

	pts := bl.Points()
	top := make([]geom.Point, len(pts))
	bottom := make([]geom.Point, len(pts))
	for i, p := range pts {
		// Per-point normal from the adjacent segments.
		var dx, dy float64
		if i > 0 {
			dx += p.X - pts[i-1].X
			dy += p.Y - pts[i-1].Y
		}
		if i < len(pts)-1 {
			dx += pts[i+1].X - p.X
			dy += pts[i+1].Y - p.Y
		}
		norm := math.Hypot(dx, dy)
		if norm == 0 {
			return geom.Polygon{}, fmt.Errorf("coincident baseline points at %d: %w", i, geom.ErrDegenerate)
		}
		nx, ny := -dy/norm, dx/norm
		top[i] = geom.Point{X: p.X - nx*up, Y: p.Y - ny*up}
		bottom[i] = geom.Point{X: p.X + nx*down, Y: p.Y + ny*down}
	}

	ring := make([]geom.Point, 0, 2*len(pts))
	ring = append(ring, top...)
	for i := len(bottom) - 1; i >= 0; i-- {
		ring = append(ring, bottom[i])
	}
	return geom.NewPolygon(ring)
}

func sortedRegionTypes(planes map[RegionType]*Plane) []RegionType {
	types := make([]RegionType, 0, len(planes))
	for typ := range planes {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
