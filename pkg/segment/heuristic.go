package segment

import (
	"image"

	"github.com/up-zero/gotool/imageutil"

	"github.com/scriptorium/scriptor/pkg/geom"
)

// SegmentHeuristic analyzes a page with the classical pipeline: Otsu
// binarization, a smoothed projection profile for line bands, and
// connected-pixel extent trimming for the horizontal span of each band.
// Baselines come out straight; curved lines need learned mode.
func (s *Segmenter) SegmentHeuristic(img image.Image) (*Segmentation, error) {
	gray := imageutil.Grayscale(img)
	if s.dir == geom.TopToBottom {
		gray = transpose(gray)
	}

	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return &Segmentation{Direction: s.dir}, nil
	}
	thresh := otsu(gray)

	// Otsu places the threshold on the last background-class bin when the
	// histogram is bimodal with nothing in between, so the comparison must
	// be inclusive: on a pure 0/255 page the threshold is 0 and the ink is
	// exactly at it.
	dark := func(x, y int) bool {
		return gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y <= thresh
	}

	// Row projection profile, lightly smoothed.
	profile := make([]int, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if dark(x, y) {
				profile[y]++
			}
		}
	}
	profile = smooth(profile, 2)

	// An all-background page has a flat profile; that is a valid empty
	// page, not a failure.
	floor := max(2, w/100)
	bands := findBands(profile, floor)

	seg := &Segmentation{Direction: s.dir}
	for _, bd := range bands {
		x1, x2 := -1, -1
		for x := 0; x < w; x++ {
			for y := bd.top; y <= bd.bottom; y++ {
				if dark(x, y) {
					if x1 < 0 {
						x1 = x
					}
					x2 = x
					break
				}
			}
		}
		if x1 < 0 || float64(x2-x1) < s.cfg.MinLineLength {
			s.warnf("dropping line band rows %d-%d: support too short", bd.top, bd.bottom)
			continue
		}
		height := float64(bd.bottom - bd.top + 1)
		if height < 4 {
			height = 4
		}
		// The writing line sits near the bottom of the x-height band;
		// descenders below it barely register in the profile.
		baseY := float64(bd.top) + 0.8*height

		pts := []geom.Point{{X: float64(x1), Y: baseY}, {X: float64(x2), Y: baseY}}
		bl, err := geom.NewBaseline(pts)
		if err != nil {
			s.warnf("dropping line band rows %d-%d: %v", bd.top, bd.bottom, err)
			continue
		}
		if s.dir == geom.RightToLeft {
			bl = bl.Reversed()
		}
		poly := geom.FromRect(geom.Rect{
			X1: float64(x1), Y1: float64(bd.top),
			X2: float64(x2) + 1, Y2: float64(bd.bottom) + 1,
		})
		seg.Lines = append(seg.Lines, Line{
			Baseline: bl,
			Polygon:  poly,
			Height:   height,
			Region:   0,
		})
	}

	if len(seg.Lines) == 0 {
		return &Segmentation{Direction: s.dir}, nil
	}

	// Heuristic mode knows only one region type: a single text region
	// covering all detected lines.
	bounds := seg.Lines[0].Polygon.Bounds()
	for _, ln := range seg.Lines[1:] {
		bounds = bounds.Union(ln.Polygon.Bounds())
	}
	seg.Regions = []Region{{Type: RegionText, Polygon: geom.FromRect(bounds)}}

	if s.dir == geom.TopToBottom {
		transposeSegmentation(seg)
	}
	s.orderLines(seg)
	return seg, nil
}

type band struct {
	top, bottom int
}

// findBands returns maximal runs of profile values above the noise floor,
// merging runs separated by a single-row gap.
func findBands(profile []int, floor int) []band {
	var bands []band
	start := -1
	for y, v := range profile {
		if v >= floor {
			if start < 0 {
				start = y
			}
			continue
		}
		if start >= 0 {
			bands = append(bands, band{top: start, bottom: y - 1})
			start = -1
		}
	}
	if start >= 0 {
		bands = append(bands, band{top: start, bottom: len(profile) - 1})
	}

	// Merge near-adjacent bands; a one-row dip is usually the gap between
	// x-height body and a sparse diacritic row, not a line break.
	var merged []band
	for _, b := range bands {
		if n := len(merged); n > 0 && b.top-merged[n-1].bottom <= 2 {
			merged[n-1].bottom = b.bottom
			continue
		}
		merged = append(merged, b)
	}
	var kept []band
	for _, b := range merged {
		if b.bottom-b.top >= 1 {
			kept = append(kept, b)
		}
	}
	return kept
}

// otsu computes the between-class-variance-maximizing threshold of the
// image's gray histogram. Values at or below the threshold are the darker
// class.
func otsu(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	var sum float64
	for v, n := range hist {
		sum += float64(v) * float64(n)
	}

	var sumBg, weightBg float64
	bestThresh, bestVar := uint8(0), -1.0
	for v := 0; v < 256; v++ {
		weightBg += float64(hist[v])
		if weightBg == 0 {
			continue
		}
		weightFg := float64(total) - weightBg
		if weightFg == 0 {
			break
		}
		sumBg += float64(v) * float64(hist[v])
		meanBg := sumBg / weightBg
		meanFg := (sum - sumBg) / weightFg
		between := weightBg * weightFg * (meanBg - meanFg) * (meanBg - meanFg)
		if between > bestVar {
			bestVar = between
			bestThresh = uint8(v)
		}
	}
	return bestThresh
}

func smooth(vals []int, radius int) []int {
	out := make([]int, len(vals))
	for i := range vals {
		sum, n := 0, 0
		for j := i - radius; j <= i+radius; j++ {
			if j >= 0 && j < len(vals) {
				sum += vals[j]
				n++
			}
		}
		out[i] = sum / n
	}
	return out
}

// transpose mirrors the image across its main diagonal.
func transpose(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetGray(y-b.Min.Y, x-b.Min.X, img.GrayAt(x, y))
		}
	}
	return out
}

// transposeSegmentation swaps x and y in every coordinate, mapping results
// computed on a transposed raster back into page space.
func transposeSegmentation(seg *Segmentation) {
	swapPts := func(pts []geom.Point) []geom.Point {
		out := make([]geom.Point, len(pts))
		for i, p := range pts {
			out[i] = geom.Point{X: p.Y, Y: p.X}
		}
		return out
	}
	for i, ln := range seg.Lines {
		bl, err := geom.NewBaseline(swapPts(ln.Baseline.Points()))
		if err == nil {
			seg.Lines[i].Baseline = bl
		}
		poly, err := geom.NewPolygon(swapPts(ln.Polygon.Points()))
		if err == nil {
			seg.Lines[i].Polygon = poly
		}
	}
	for i, r := range seg.Regions {
		poly, err := geom.NewPolygon(swapPts(r.Polygon.Points()))
		if err == nil {
			seg.Regions[i].Polygon = poly
		}
	}
}
