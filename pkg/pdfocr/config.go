package pdfocr

// Config holds the assembly options.
type Config struct {
	// Debug renders the text layer visibly in red with word outlines
	// instead of hiding it.
	Debug bool
	// LayerName is the base name of the per-page text layer; the page
	// number is appended.
	LayerName string
	Font      FontConfig
}

// DefaultConfig returns assembly options producing standard searchable
// PDFs.
func DefaultConfig() Config {
	return Config{
		LayerName: "OCR Text",
		Font:      DefaultFont,
	}
}

// FontConfig selects the font for the hidden text layer.
type FontConfig struct {
	Name  string  // core PDF font name
	Style string  // "", "B", "I", "BI"
	Size  float64 // base size before per-word scaling
}

// DefaultFont is Helvetica, which every PDF viewer renders with
// predictable metrics.
var DefaultFont = FontConfig{
	Name: "Helvetica",
	Size: 10,
}
