package segment

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/scriptorium/scriptor/pkg/geom"
)

func whitePage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func drawBand(img *image.Gray, x1, x2, y1, y2 int) {
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
}

func TestDirectionForText(t *testing.T) {
	cases := []struct {
		sample string
		want   geom.Direction
	}{
		{"", geom.LeftToRight},
		{"abc", geom.LeftToRight},
		{"שלום", geom.RightToLeft},
		{"مرحبا", geom.RightToLeft},
		{"123 שלום", geom.RightToLeft},
	}
	for _, c := range cases {
		if got := DirectionForText(c.sample); got != c.want {
			t.Errorf("DirectionForText(%q) = %v, want %v", c.sample, got, c.want)
		}
	}
}

func TestHeuristicEmptyPage(t *testing.T) {
	s := New(DefaultConfig())
	seg, err := s.SegmentHeuristic(whitePage(200, 100))
	if err != nil {
		t.Fatalf("blank page must not fail: %v", err)
	}
	if len(seg.Lines) != 0 || len(seg.Regions) != 0 {
		t.Errorf("blank page: %d lines, %d regions, want 0/0", len(seg.Lines), len(seg.Regions))
	}
}

func TestHeuristicSingleLine(t *testing.T) {
	page := whitePage(200, 100)
	drawBand(page, 20, 180, 50, 58)

	s := New(DefaultConfig())
	seg, err := s.SegmentHeuristic(page)
	if err != nil {
		t.Fatalf("SegmentHeuristic: %v", err)
	}
	if len(seg.Lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(seg.Lines))
	}
	if err := seg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	b := seg.Lines[0].Baseline.Bounds()
	if math.Abs(b.X1-20) > 3 || math.Abs(b.X2-180) > 3 {
		t.Errorf("baseline spans x %v..%v, want about 20..180", b.X1, b.X2)
	}
	if b.Y1 < 50 || b.Y1 > 60 {
		t.Errorf("baseline at y %v, want inside band 50..60", b.Y1)
	}
	if len(seg.Regions) != 1 || seg.Regions[0].Type != RegionText {
		t.Errorf("want one text region, got %+v", seg.Regions)
	}
	if seg.Lines[0].Region != 0 {
		t.Errorf("line region = %d, want 0", seg.Lines[0].Region)
	}
}

func TestOtsuSeparatesBimodalHistogram(t *testing.T) {
	// A pre-thresholded scan has only 0 and 255 in its histogram, so Otsu
	// lands on bin 0 and the ink sits exactly at the threshold.
	page := whitePage(200, 100)
	drawBand(page, 20, 180, 50, 58)
	if th := otsu(page); th > 10 {
		t.Errorf("bimodal 0/255 threshold = %d, want near 0", th)
	}
	seg, err := New(DefaultConfig()).SegmentHeuristic(page)
	if err != nil {
		t.Fatalf("SegmentHeuristic: %v", err)
	}
	if len(seg.Lines) != 1 {
		t.Fatalf("black-on-white page: got %d lines, want 1", len(seg.Lines))
	}

	// Midtone scan: ink at 40, paper at 220.
	mid := image.NewGray(image.Rect(0, 0, 200, 100))
	for i := range mid.Pix {
		mid.Pix[i] = 220
	}
	for y := 50; y <= 58; y++ {
		for x := 20; x <= 180; x++ {
			mid.SetGray(x, y, color.Gray{Y: 40})
		}
	}
	if th := otsu(mid); th < 40 || th >= 220 {
		t.Errorf("midtone threshold = %d, want in [40, 220)", th)
	}
	seg, err = New(DefaultConfig()).SegmentHeuristic(mid)
	if err != nil {
		t.Fatalf("SegmentHeuristic: %v", err)
	}
	if len(seg.Lines) != 1 {
		t.Errorf("midtone page: got %d lines, want 1", len(seg.Lines))
	}
}

func TestHeuristicTopToBottomOrder(t *testing.T) {
	page := whitePage(200, 120)
	drawBand(page, 20, 180, 80, 88) // lower line drawn first
	drawBand(page, 20, 180, 30, 38)

	s := New(DefaultConfig())
	seg, err := s.SegmentHeuristic(page)
	if err != nil {
		t.Fatalf("SegmentHeuristic: %v", err)
	}
	if len(seg.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(seg.Lines))
	}
	if seg.Lines[0].Baseline.Bounds().Y1 > seg.Lines[1].Baseline.Bounds().Y1 {
		t.Error("lines not ordered top to bottom")
	}
}

func TestRTLBaselineDirection(t *testing.T) {
	page := whitePage(200, 100)
	drawBand(page, 20, 180, 50, 58)

	s := New(Config{ScriptSample: "שלום"})
	seg, err := s.SegmentHeuristic(page)
	if err != nil {
		t.Fatalf("SegmentHeuristic: %v", err)
	}
	if len(seg.Lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(seg.Lines))
	}
	bl := seg.Lines[0].Baseline
	if bl.Start().X < bl.End().X {
		t.Error("RTL baseline should start at the right edge")
	}
	if bl.Direction() != geom.RightToLeft {
		t.Errorf("baseline direction = %v, want rtl", bl.Direction())
	}
}

func TestRTLSameRowOrder(t *testing.T) {
	s := New(Config{ScriptSample: "م"})
	mkLine := func(x1, x2 float64) Line {
		bl, err := geom.NewBaseline([]geom.Point{{X: x2, Y: 50}, {X: x1, Y: 50}})
		if err != nil {
			t.Fatalf("NewBaseline: %v", err)
		}
		return Line{Baseline: bl, Height: 12, Region: -1}
	}
	seg := &Segmentation{
		Direction: geom.RightToLeft,
		Lines:     []Line{mkLine(10, 90), mkLine(110, 190)},
	}
	s.orderLines(seg)
	if seg.Lines[0].Baseline.Bounds().X1 != 110 {
		t.Error("RTL reading order must start with the rightmost line")
	}
}

func newPlane(w, h int) *Plane {
	return &Plane{W: w, H: h, Data: make([]float32, w*h)}
}

func strokePlane(p *Plane, x1, x2, y int) {
	for x := x1; x <= x2; x++ {
		p.Data[y*p.W+x] = 1
	}
}

func fillPlane(p *Plane, x1, y1, x2, y2 int) {
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			p.Data[y*p.W+x] = 1
		}
	}
}

func TestLearnedModeBaselinesAndRegions(t *testing.T) {
	base := newPlane(120, 80)
	strokePlane(base, 10, 100, 20)
	strokePlane(base, 10, 100, 44)

	text := newPlane(120, 80)
	fillPlane(text, 5, 10, 110, 55)

	s := New(DefaultConfig())
	seg, err := s.SegmentHeatmap(&Heatmap{
		Baselines: base,
		Regions:   map[RegionType]*Plane{RegionText: text},
	})
	if err != nil {
		t.Fatalf("SegmentHeatmap: %v", err)
	}
	if err := seg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if len(seg.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(seg.Lines))
	}
	if len(seg.Regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(seg.Regions))
	}
	for i, ln := range seg.Lines {
		if ln.Region != 0 {
			t.Errorf("line %d not assigned to the text region", i)
		}
		if ln.Baseline.Length() < 60 {
			t.Errorf("line %d baseline too short: %v", i, ln.Baseline.Length())
		}
	}
	if seg.Lines[0].Baseline.Bounds().Y1 > seg.Lines[1].Baseline.Bounds().Y1 {
		t.Error("learned-mode lines not in top-to-bottom order")
	}
}

func TestLearnedModeEmptyHeatmap(t *testing.T) {
	s := New(DefaultConfig())
	seg, err := s.SegmentHeatmap(&Heatmap{Baselines: newPlane(50, 50)})
	if err != nil {
		t.Fatalf("empty heatmap must segment to an empty page: %v", err)
	}
	if len(seg.Lines) != 0 {
		t.Errorf("got %d lines from an empty heatmap", len(seg.Lines))
	}
}

func TestLearnedModeMalformedHeatmap(t *testing.T) {
	base := newPlane(50, 50)
	base.Data[10] = float32(math.NaN())
	s := New(DefaultConfig())
	if _, err := s.SegmentHeatmap(&Heatmap{Baselines: base}); !errors.Is(err, ErrSegmentation) {
		t.Errorf("NaN heatmap: want ErrSegmentation, got %v", err)
	}

	region := newPlane(20, 20)
	if _, err := s.SegmentHeatmap(&Heatmap{
		Baselines: newPlane(50, 50),
		Regions:   map[RegionType]*Plane{RegionText: region},
	}); !errors.Is(err, ErrSegmentation) {
		t.Errorf("mismatched plane dims: want ErrSegmentation, got %v", err)
	}
}

func TestReadingOrderIsPermutation(t *testing.T) {
	base := newPlane(200, 200)
	rows := []int{20, 60, 100, 140, 180}
	for _, y := range rows {
		strokePlane(base, 10, 180, y)
	}
	s := New(DefaultConfig())
	seg, err := s.SegmentHeatmap(&Heatmap{Baselines: base})
	if err != nil {
		t.Fatalf("SegmentHeatmap: %v", err)
	}
	if len(seg.Lines) != len(rows) {
		t.Fatalf("got %d lines, want %d", len(seg.Lines), len(rows))
	}
	seen := map[int]bool{}
	for _, ln := range seg.Lines {
		y := int(math.Round(ln.Baseline.Start().Y))
		if seen[y] {
			t.Errorf("row %d appears twice in the reading order", y)
		}
		seen[y] = true
	}
	for _, y := range rows {
		if !seen[y] {
			t.Errorf("row %d missing from the reading order", y)
		}
	}
}

func TestThinAndTrace(t *testing.T) {
	b := newBitmap(60, 20)
	for y := 8; y <= 12; y++ {
		for x := 5; x <= 55; x++ {
			b.set(x, y, true)
		}
	}
	skeleton := thin(b)
	lines := tracePolylines(skeleton)
	if len(lines) != 1 {
		t.Fatalf("got %d polylines, want 1", len(lines))
	}
	bl, err := geom.NewBaseline(lines[0])
	if err != nil {
		t.Fatalf("traced polyline invalid: %v", err)
	}
	if bl.Length() < 40 {
		t.Errorf("traced polyline length %v, want most of the 50 px stroke", bl.Length())
	}
}

func TestValidateCatchesBadRegionIndex(t *testing.T) {
	bl, _ := geom.NewBaseline([]geom.Point{{X: 0, Y: 0}, {X: 10, Y: 0}})
	seg := &Segmentation{Lines: []Line{{Baseline: bl, Region: 3}}}
	if err := seg.Validate(); err == nil {
		t.Error("out-of-range region index accepted")
	}
}
