package pdfocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"codeberg.org/go-pdf/fpdf"

	"github.com/scriptorium/scriptor/pkg/hocr"
)

// assemble builds the PDF. Inputs have been validated by Assemble.
func assemble(doc *hocr.Document, images [][]byte, cfg Config) ([]byte, error) {
	if cfg.LayerName == "" {
		cfg.LayerName = DefaultConfig().LayerName
	}
	if cfg.Font.Name == "" {
		cfg.Font = DefaultFont
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	if doc.Title != "" {
		pdf.SetTitle(doc.Title, true)
	}
	if doc.System != "" {
		pdf.SetCreator(doc.System, true)
	}

	for i, page := range doc.Pages {
		w, h := float64(page.BBox.X2), float64(page.BBox.Y2)
		if w <= 0 || h <= 0 {
			// Pages without text have an empty bbox; size them from the
			// scan instead.
			conf, _, err := image.DecodeConfig(bytes.NewReader(images[i]))
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", i+1, err)
			}
			w, h = float64(conf.Width), float64(conf.Height)
		}
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})

		format, err := detectImageType(images[i])
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		name := fmt.Sprintf("page%d", i+1)
		opts := fpdf.ImageOptions{ImageType: format}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(images[i]))
		pdf.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")

		if err := drawTextLayer(pdf, page, i+1, cfg); err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("generating PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// detectImageType sniffs the image format from the encoded data.
func detectImageType(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding image config: %w", err)
	}
	return strings.ToUpper(format), nil
}
