package pdfocr

import (
	"fmt"

	"codeberg.org/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/scriptorium/scriptor/pkg/hocr"
)

// drawTextLayer draws the page's words into a named, toggleable layer.
// Each word sits on its line's baseline and is stretched horizontally to
// its bounding box, so selections line up with the scan underneath.
func drawTextLayer(pdf *fpdf.Fpdf, page hocr.Page, pageNum int, cfg Config) error {
	layer := pdf.AddLayer(fmt.Sprintf("%s (Page %d)", cfg.LayerName, pageNum), true)
	pdf.BeginLayer(layer)
	pdf.SetFont(cfg.Font.Name, cfg.Font.Style, cfg.Font.Size)

	if cfg.Debug {
		pdf.SetTextColor(255, 0, 0)
	} else {
		pdf.SetAlpha(0.0, "Normal")
	}

	encodingErrors := 0
	wordCount := 0
	for _, line := range page.AllLines() {
		for _, word := range line.Words {
			drawWord(pdf, line, word, cfg, &encodingErrors)
			wordCount++
		}
	}

	pdf.EndLayer()
	if !cfg.Debug {
		pdf.SetAlpha(1.0, "Normal")
	}

	if wordCount > 0 && encodingErrors > wordCount/10 {
		return fmt.Errorf("character encoding issues in %d of %d words",
			encodingErrors, wordCount)
	}
	return nil
}

// drawWord renders a single word onto the current layer.
func drawWord(pdf *fpdf.Fpdf, line hocr.Line, word hocr.Word, cfg Config, encodingErrors *int) {
	x := float64(word.BBox.X1)
	width := float64(word.BBox.X2 - word.BBox.X1)

	// Core PDF fonts only cover latin-1. Unencodable words keep their raw
	// bytes so the rest of the layer stays searchable.
	latin1, err := charmap.ISO8859_1.NewEncoder().String(word.Text)
	if err != nil {
		*encodingErrors++
		latin1 = word.Text
	}

	if strWidth := pdf.GetStringWidth(latin1); strWidth > 0 && width > 0 {
		pdf.SetFontSize(cfg.Font.Size * width / strWidth)
	}

	pdf.Text(x, baselineY(line, x), latin1)
	pdf.SetFontSize(cfg.Font.Size)

	if cfg.Debug {
		pdf.Rect(x, float64(word.BBox.Y1), width, float64(word.BBox.Y2-word.BBox.Y1), "D")
	}
}

// baselineY evaluates the line's baseline at x in page coordinates. A
// zero-valued baseline degrades to the line box's bottom edge.
func baselineY(line hocr.Line, x float64) float64 {
	dx := x - float64(line.BBox.X1)
	return float64(line.BBox.Y2) + line.Baseline.Offset + line.Baseline.Slope*dx
}
