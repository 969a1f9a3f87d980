package hocr

import "strings"

// Text extracts the document's plain text: lines in document order, pages
// separated by blank lines.
func (d *Document) Text() string {
	var sb strings.Builder
	for pi, page := range d.Pages {
		if pi > 0 {
			sb.WriteString("\n\n")
		}
		for _, line := range page.AllLines() {
			sb.WriteString(line.Text())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// AllLines returns the page's lines in document order: region lines first,
// region by region, then lines outside every region.
func (p *Page) AllLines() []Line {
	var out []Line
	for _, r := range p.Regions {
		out = append(out, r.Lines...)
	}
	return append(out, p.Lines...)
}

// LineTexts returns the text of every line in the document, in document
// order. Training dataset loaders consume this as ground truth.
func (d *Document) LineTexts() []string {
	var out []string
	for _, page := range d.Pages {
		for _, line := range page.AllLines() {
			out = append(out, line.Text())
		}
	}
	return out
}
