package train

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scriptorium/scriptor/pkg/hocr"
)

// LineSample pairs a line image with its transcript on disk.
type LineSample struct {
	ImagePath string
	Text      string
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff"}

// LoadGroundTruth scans a directory for line transcripts in the
// image-plus-sidecar layout: every "<stem>.gt.txt" file holds the
// transcript for the line image "<stem>.<ext>" next to it. Transcripts
// without an image fail the load, since a dangling transcript usually
// means a copy step went wrong.
func LoadGroundTruth(dir string) ([]LineSample, error) {
	transcripts, err := filepath.Glob(filepath.Join(dir, "*.gt.txt"))
	if err != nil {
		return nil, err
	}
	if len(transcripts) == 0 {
		return nil, fmt.Errorf("no *.gt.txt transcripts in %s", dir)
	}
	sort.Strings(transcripts)

	var samples []LineSample
	for _, path := range transcripts {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		stem := strings.TrimSuffix(path, ".gt.txt")
		imagePath := ""
		for _, ext := range imageExtensions {
			if _, err := os.Stat(stem + ext); err == nil {
				imagePath = stem + ext
				break
			}
		}
		if imagePath == "" {
			return nil, fmt.Errorf("transcript %s has no line image", path)
		}
		samples = append(samples, LineSample{
			ImagePath: imagePath,
			Text:      strings.TrimRight(string(data), "\r\n"),
		})
	}
	return samples, nil
}

// Texts strips the dataset down to the transcripts, for alphabet work.
func Texts(lines []LineSample) []Sample {
	out := make([]Sample, len(lines))
	for i, ln := range lines {
		out[i] = Sample{Text: ln.Text}
	}
	return out
}

// FromHOCR extracts transcripts from an hOCR document, one sample per
// text line. hOCR carries no per-line image files, so only the texts
// survive; use this for alphabet derivation and evaluation.
func FromHOCR(data []byte) ([]Sample, error) {
	doc, err := hocr.Parse(data)
	if err != nil {
		return nil, err
	}
	texts := doc.LineTexts()
	samples := make([]Sample, len(texts))
	for i, text := range texts {
		samples[i] = Sample{Text: text}
	}
	return samples, nil
}
