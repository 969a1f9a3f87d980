package docai

import (
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
)

// textFromLayout reassembles the text covered by a layout's anchor
// segments. Out-of-range segments are clamped rather than rejected,
// matching the lenient handling in the Document AI client samples.
func textFromLayout(layout *documentaipb.Document_Page_Layout, fullText string) string {
	if layout == nil || layout.TextAnchor == nil {
		return ""
	}
	runes := []rune(fullText)
	var sb strings.Builder
	for _, seg := range layout.TextAnchor.TextSegments {
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(runes) {
			end = len(runes)
		}
		if start > end {
			start = end
		}
		sb.WriteString(string(runes[start:end]))
	}
	return sb.String()
}

// PageText extracts the text a single page covers from the document's
// full text.
func PageText(page *documentaipb.Document_Page, fullText string) string {
	if page == nil {
		return ""
	}
	return textFromLayout(page.Layout, fullText)
}
