package hocr

import (
	"fmt"
	"math"
	"strings"

	"github.com/scriptorium/scriptor/pkg/geom"
	"github.com/scriptorium/scriptor/pkg/pipeline"
	"github.com/scriptorium/scriptor/pkg/recognize"
)

// BuildOptions names the document-level fields of a generated hOCR file.
type BuildOptions struct {
	Title    string
	System   string
	Language string
	// Images are the per-page source image names, matched to pages by
	// index.
	Images []string
}

// Build converts recognition results into an hOCR document. Pages keep
// their input order; a nil result (a failed page in a batch) becomes an
// empty page so page numbering stays aligned with the input.
func Build(results []*pipeline.PageResult, opts BuildOptions) *Document {
	doc := &Document{
		Title:    opts.Title,
		System:   opts.System,
		Language: opts.Language,
		Metadata: map[string]string{},
	}
	if doc.System == "" {
		doc.System = "scriptor"
	}

	for i, res := range results {
		page := Page{
			ID:     fmt.Sprintf("page_%d", i+1),
			Number: i + 1,
		}
		if i < len(opts.Images) {
			page.Image = opts.Images[i]
		}
		if res != nil {
			fillPage(&page, res, i+1)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc
}

func fillPage(page *Page, res *pipeline.PageResult, pageno int) {
	for ri, r := range res.Segmentation.Regions {
		page.Regions = append(page.Regions, Region{
			ID:   fmt.Sprintf("region_%d_%d", pageno, ri+1),
			Type: string(r.Type),
			BBox: boxFromRect(r.Polygon.Bounds()),
		})
	}

	for li, tr := range res.Lines {
		line := buildLine(fmt.Sprintf("line_%d_%d", pageno, li+1), tr)
		if ri := tr.Line.Region; ri >= 0 && ri < len(page.Regions) {
			page.Regions[ri].Lines = append(page.Regions[ri].Lines, line)
		} else {
			page.Lines = append(page.Lines, line)
		}
	}

	boxes := make([]BBox, 0, len(page.Regions)+len(page.Lines))
	for _, r := range page.Regions {
		boxes = append(boxes, r.BBox)
	}
	for _, l := range page.Lines {
		boxes = append(boxes, l.BBox)
	}
	if len(boxes) > 0 {
		page.BBox = boxes[0]
		for _, b := range boxes[1:] {
			page.BBox = page.BBox.Union(b)
		}
	}
}

// buildLine converts one transcription. Words split at whitespace
// graphemes; each word's box is the union of its symbols' boxes and its
// confidence the product of theirs, scaled to the hOCR 0-100 range.
func buildLine(id string, tr *recognize.Transcription) Line {
	line := Line{ID: id}
	if tr.Line.Polygon.Len() >= 3 {
		line.BBox = boxFromRect(tr.Line.Polygon.Bounds())
	}

	var wordSyms []recognize.Symbol
	flush := func() {
		if len(wordSyms) == 0 {
			return
		}
		var sb strings.Builder
		box := boxFromRect(wordSyms[0].Box)
		conf := 1.0
		for _, s := range wordSyms {
			sb.WriteString(s.Grapheme)
			box = box.Union(boxFromRect(s.Box))
			conf *= s.Confidence
		}
		line.Words = append(line.Words, Word{
			ID:         fmt.Sprintf("%s_word_%d", id, len(line.Words)+1),
			Text:       sb.String(),
			BBox:       box,
			Confidence: 100 * conf,
		})
		wordSyms = wordSyms[:0]
	}
	for _, s := range tr.Symbols {
		if strings.TrimSpace(s.Grapheme) == "" {
			flush()
			continue
		}
		wordSyms = append(wordSyms, s)
	}
	flush()

	if line.BBox == (BBox{}) && len(line.Words) > 0 {
		line.BBox = line.Words[0].BBox
		for _, w := range line.Words[1:] {
			line.BBox = line.BBox.Union(w.BBox)
		}
	}
	line.Baseline = baselineOf(tr.Line.Baseline, line.BBox)
	return line
}

// baselineOf fits the hOCR linear baseline through the polyline's
// endpoints: slope in image coordinates, offset at the box's left edge
// relative to its bottom edge.
func baselineOf(bl geom.Baseline, box BBox) Baseline {
	if bl.Len() < 2 {
		return Baseline{}
	}
	start, end := bl.Start(), bl.End()
	if end.X < start.X {
		start, end = end, start
	}
	var slope float64
	if dx := end.X - start.X; dx != 0 {
		slope = (end.Y - start.Y) / dx
	}
	yAtLeft := start.Y + slope*(float64(box.X1)-start.X)
	return Baseline{
		Slope:  slope,
		Offset: yAtLeft - float64(box.Y2),
	}
}

func boxFromRect(r geom.Rect) BBox {
	return BBox{
		X1: int(math.Floor(r.X1)),
		Y1: int(math.Floor(r.Y1)),
		X2: int(math.Ceil(r.X2)),
		Y2: int(math.Ceil(r.Y2)),
	}
}
