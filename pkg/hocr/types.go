package hocr

import "fmt"

// Document is a parsed or generated hOCR document.
type Document struct {
	Title    string
	System   string // ocr-system meta tag
	Language string
	Metadata map[string]string // remaining head metadata
	Pages    []Page
}

// Page is one recognized page.
// Corresponds to the hOCR element with class 'ocr_page'.
type Page struct {
	ID     string
	Number int    // ppageno property
	Image  string // source image filename
	BBox   BBox
	// Regions are the page's content areas. Lines holds lines outside
	// every region.
	Regions []Region
	Lines   []Line
}

// Class returns the hOCR class of a page element.
func (Page) Class() string { return "ocr_page" }

// Region is a content area owning lines.
// Corresponds to the hOCR element with class 'ocr_carea'.
type Region struct {
	ID    string
	Type  string // region type, kept in the title as a scriptor:type property
	BBox  BBox
	Lines []Line
}

// Class returns the hOCR class of a region element.
func (Region) Class() string { return "ocr_carea" }

// Line is one text line with its writing-line geometry.
// Corresponds to the hOCR element with class 'ocr_line'.
type Line struct {
	ID       string
	BBox     BBox
	Baseline Baseline
	Words    []Word
}

// Class returns the hOCR class of a line element.
func (Line) Class() string { return "ocr_line" }

// Text joins the line's words with single spaces.
func (l Line) Text() string {
	out := ""
	for i, w := range l.Words {
		if i > 0 {
			out += " "
		}
		out += w.Text
	}
	return out
}

// Word is a recognized word.
// Corresponds to the hOCR element with class 'ocrx_word'.
type Word struct {
	ID   string
	Text string
	BBox BBox
	// Confidence is the recognition confidence on the hOCR x_wconf scale
	// of 0-100.
	Confidence float64
}

// Class returns the hOCR class of a word element.
func (Word) Class() string { return "ocrx_word" }

// Baseline is the hOCR linear baseline approximation: within the line's
// bounding box, the writing line is y = Slope*x + Offset with x measured
// from the left edge and y from the bottom edge (negative is up).
type Baseline struct {
	Slope  float64
	Offset float64
}

// BBox is an axis-aligned box in page pixel coordinates, as stored in hOCR
// bbox properties.
type BBox struct {
	X1, Y1, X2, Y2 int
}

// String formats the box the way hOCR titles carry it.
func (b BBox) String() string {
	return fmt.Sprintf("%d %d %d %d", b.X1, b.Y1, b.X2, b.Y2)
}

// Union returns the smallest box covering both.
func (b BBox) Union(o BBox) BBox {
	if o.X1 < b.X1 {
		b.X1 = o.X1
	}
	if o.Y1 < b.Y1 {
		b.Y1 = o.Y1
	}
	if o.X2 > b.X2 {
		b.X2 = o.X2
	}
	if o.Y2 > b.Y2 {
		b.Y2 = o.Y2
	}
	return b
}
