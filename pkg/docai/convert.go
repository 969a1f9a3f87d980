package docai

import (
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"

	"github.com/scriptorium/scriptor/pkg/hocr"
)

// Convert maps a Document AI response onto the standard document model.
// Blocks become regions, unassigned lines attach directly to the page.
// Document AI reports geometry as vertices normalized to 0..1; they are
// scaled back to pixels using the page dimensions.
func Convert(doc *documentaipb.Document) *hocr.Document {
	out := &hocr.Document{
		System:   "documentai",
		Language: documentLanguage(doc),
		Metadata: map[string]string{},
	}
	if doc == nil {
		return out
	}
	if langs := allLanguages(doc); len(langs) > 0 {
		out.Metadata["ocr-langs"] = strings.Join(langs, ", ")
	}

	for i, page := range doc.Pages {
		num := int(page.PageNumber)
		if num == 0 {
			num = i + 1
		}
		out.Pages = append(out.Pages, convertPage(page, doc.Text, num))
	}
	sort.SliceStable(out.Pages, func(i, j int) bool {
		return out.Pages[i].Number < out.Pages[j].Number
	})
	return out
}

func convertPage(page *documentaipb.Document_Page, fullText string, num int) hocr.Page {
	out := hocr.Page{
		ID:     fmt.Sprintf("page_%d", num),
		Number: num,
	}
	if box, ok := boxOf(page.Layout, page.Dimension); ok {
		out.BBox = box
	} else if page.Dimension != nil {
		out.BBox = hocr.BBox{
			X2: int(page.Dimension.Width + 0.5),
			Y2: int(page.Dimension.Height + 0.5),
		}
	}

	assigned := make([]bool, len(page.Lines))
	for bi, block := range page.Blocks {
		region := hocr.Region{
			ID:   fmt.Sprintf("%s_region_%d", out.ID, bi+1),
			Type: "text",
		}
		if box, ok := boxOf(block.Layout, page.Dimension); ok {
			region.BBox = box
		}
		for li, line := range page.Lines {
			if assigned[li] || !within(line.Layout, block.Layout) {
				continue
			}
			assigned[li] = true
			region.Lines = append(region.Lines, convertLine(line, page, fullText, out.ID, li+1))
		}
		out.Regions = append(out.Regions, region)
	}
	for li, line := range page.Lines {
		if !assigned[li] {
			out.Lines = append(out.Lines, convertLine(line, page, fullText, out.ID, li+1))
		}
	}
	return out
}

func convertLine(line *documentaipb.Document_Page_Line, page *documentaipb.Document_Page,
	fullText, pageID string, num int) hocr.Line {

	out := hocr.Line{ID: fmt.Sprintf("%s_line_%d", pageID, num)}
	if box, ok := boxOf(line.Layout, page.Dimension); ok {
		out.BBox = box
	}

	wordNum := 0
	for _, token := range page.Tokens {
		if !within(token.Layout, line.Layout) {
			continue
		}
		text := tokenText(token, fullText)
		if text == "" {
			continue
		}
		wordNum++
		word := hocr.Word{
			ID:   fmt.Sprintf("%s_word_%d", out.ID, wordNum),
			Text: text,
		}
		if box, ok := boxOf(token.Layout, page.Dimension); ok {
			word.BBox = box
		}
		if token.Layout != nil {
			word.Confidence = float64(token.Layout.Confidence) * 100
		}
		out.Words = append(out.Words, word)
	}
	return out
}

// tokenText extracts a token's text with line breaks flattened. A token
// carrying a detected break includes the break character in its anchor
// range, so the trailing whitespace is stripped.
func tokenText(token *documentaipb.Document_Page_Token, fullText string) string {
	text := textFromLayout(token.Layout, fullText)
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", "")
	if token.DetectedBreak != nil &&
		token.DetectedBreak.Type != documentaipb.Document_Page_Token_DetectedBreak_TYPE_UNSPECIFIED {
		text = strings.TrimRight(text, " \t")
	}
	return strings.TrimSpace(text)
}

// boxOf scales a layout's normalized bounding polygon to pixel
// coordinates.
func boxOf(layout *documentaipb.Document_Page_Layout, dim *documentaipb.Document_Page_Dimension) (hocr.BBox, bool) {
	if layout == nil || layout.BoundingPoly == nil || dim == nil {
		return hocr.BBox{}, false
	}
	vertices := layout.BoundingPoly.NormalizedVertices
	if len(vertices) < 4 {
		return hocr.BBox{}, false
	}
	return hocr.BBox{
		X1: int(vertices[0].X*dim.Width + 0.5),
		Y1: int(vertices[0].Y*dim.Height + 0.5),
		X2: int(vertices[2].X*dim.Width + 0.5),
		Y2: int(vertices[2].Y*dim.Height + 0.5),
	}, true
}

// within reports whether the element's text range is contained in the
// parent's. Document AI expresses the block/line/token hierarchy only
// through these shared anchor ranges.
func within(element, parent *documentaipb.Document_Page_Layout) bool {
	if element == nil || parent == nil ||
		element.TextAnchor == nil || parent.TextAnchor == nil ||
		len(element.TextAnchor.TextSegments) == 0 || len(parent.TextAnchor.TextSegments) == 0 {
		return false
	}
	es := element.TextAnchor.TextSegments[0]
	ps := parent.TextAnchor.TextSegments[0]
	return es.StartIndex >= ps.StartIndex && es.EndIndex <= ps.EndIndex
}

// documentLanguage returns the most frequently detected language across
// all pages and tokens.
func documentLanguage(doc *documentaipb.Document) string {
	if doc == nil {
		return ""
	}
	counts := make(map[string]int)
	for _, page := range doc.Pages {
		for _, lang := range page.DetectedLanguages {
			counts[lang.LanguageCode]++
		}
		for _, token := range page.Tokens {
			for _, lang := range token.DetectedLanguages {
				counts[lang.LanguageCode]++
			}
		}
	}
	best := ""
	for lang, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && lang < best) {
			best = lang
		}
	}
	return best
}

// allLanguages returns every detected language code, sorted.
func allLanguages(doc *documentaipb.Document) []string {
	seen := make(map[string]bool)
	for _, page := range doc.Pages {
		for _, lang := range page.DetectedLanguages {
			seen[lang.LanguageCode] = true
		}
		for _, token := range page.Tokens {
			for _, lang := range token.DetectedLanguages {
				seen[lang.LanguageCode] = true
			}
		}
	}
	langs := make([]string, 0, len(seen))
	for lang := range seen {
		if lang != "" {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}
