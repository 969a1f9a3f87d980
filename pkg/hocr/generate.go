package hocr

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"strings"
	"text/template"
)

//go:embed templates/hocr.tmpl
var templateFS embed.FS

// Render generates the hOCR HTML for a document.
func Render(doc *Document) (string, error) {
	tmpl, err := template.New("hocr.tmpl").Funcs(template.FuncMap{
		"escape":      html.EscapeString,
		"pageTitle":   pageTitle,
		"regionTitle": regionTitle,
		"lineTitle":   lineTitle,
		"wordTitle":   wordTitle,
	}).ParseFS(templateFS, "templates/hocr.tmpl")
	if err != nil {
		return "", fmt.Errorf("parsing hOCR template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("rendering hOCR: %w", err)
	}
	return buf.String(), nil
}

func pageTitle(p Page) string {
	parts := []string{"bbox " + p.BBox.String()}
	if p.Image != "" {
		// Unquoted: a quote would terminate the title attribute. The
		// parser accepts both forms.
		parts = append(parts, "image "+p.Image)
	}
	parts = append(parts, fmt.Sprintf("ppageno %d", p.Number))
	return strings.Join(parts, "; ")
}

func regionTitle(r Region) string {
	title := "bbox " + r.BBox.String()
	if r.Type != "" {
		title += "; scriptor:type " + r.Type
	}
	return title
}

func lineTitle(l Line) string {
	return fmt.Sprintf("bbox %s; baseline %g %g", l.BBox, l.Baseline.Slope, l.Baseline.Offset)
}

func wordTitle(w Word) string {
	return fmt.Sprintf("bbox %s; x_wconf %.0f", w.BBox, w.Confidence)
}
