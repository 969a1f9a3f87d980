// Package pdfocr assembles searchable PDFs from page images and
// recognition output.
//
// Each PDF page carries the source image with an invisible text layer on
// top, positioned from the hOCR geometry: every word is drawn at its
// baseline, scaled horizontally to its bounding box, so text selection and
// search hit the right spot on the scan. The text layer is a named PDF
// optional content group per page, so compatible viewers can toggle it.
package pdfocr

import (
	"fmt"

	"github.com/scriptorium/scriptor/pkg/hocr"
)

// Assemble builds a searchable PDF: one page per document page, imaged
// from images[i] and overlaid with that page's text. Images must be PNG or
// JPEG and there must be one per page.
func Assemble(doc *hocr.Document, images [][]byte, cfg Config) ([]byte, error) {
	if doc == nil || len(doc.Pages) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	if len(images) != len(doc.Pages) {
		return nil, fmt.Errorf("%d images for %d pages", len(images), len(doc.Pages))
	}
	for i, data := range images {
		if len(data) == 0 {
			return nil, fmt.Errorf("image %d is empty", i+1)
		}
		if _, err := detectImageType(data); err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
	}
	return assemble(doc, images, cfg)
}
