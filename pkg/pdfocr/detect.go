package pdfocr

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf16"
)

// Optional content groups as fpdf and most OCR tools emit them. Layer
// names are PDF literal strings with escaped parentheses, often UTF-16BE.
var ocgName = regexp.MustCompile(`/Type\s*/OCG\s*/Name\s*\(((?:[^()\\]|\\.)*)\)`)

// TextLayers lists the optional content group names found in raw PDF
// data. Layer dictionaries sit outside the compressed content streams, so
// no full PDF parse is needed.
func TextLayers(pdfData []byte) ([]string, error) {
	if len(pdfData) == 0 {
		return nil, fmt.Errorf("empty PDF data")
	}

	var layers []string
	seen := make(map[string]bool)
	for _, match := range ocgName.FindAllSubmatch(pdfData, -1) {
		name := decodeUTF16BE(unescapePDFString(match[1]))
		if !seen[name] {
			seen[name] = true
			layers = append(layers, name)
		}
	}
	return layers, nil
}

// HasTextLayer reports whether the PDF already carries a text layer with
// the given base name, as written by Assemble ("name (Page N)") or under
// the exact name. Callers use this to avoid OCRing a document twice.
func HasTextLayer(pdfData []byte, layerName string) (bool, error) {
	layers, err := TextLayers(pdfData)
	if err != nil {
		return false, err
	}
	pageLayer := regexp.MustCompile(`^` + regexp.QuoteMeta(layerName) + `\s*\(Page\s*\d+\)`)
	for _, layer := range layers {
		if layer == layerName || pageLayer.MatchString(layer) {
			return true, nil
		}
	}
	return false, nil
}

// unescapePDFString resolves backslash escapes in a PDF literal string.
func unescapePDFString(s []byte) []byte {
	if !strings.Contains(string(s), `\`) {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			out = append(out, s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		default:
			out = append(out, s[i])
		}
	}
	return out
}

// decodeUTF16BE converts a BOM-prefixed UTF-16BE string to UTF-8 and
// passes anything else through unchanged.
func decodeUTF16BE(b []byte) string {
	if len(b) < 2 || b[0] != 0xfe || b[1] != 0xff {
		return string(b)
	}
	b = b[2:]
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return string(utf16.Decode(units))
}
