package train

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoadGroundTruth(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "line_002.gt.txt"), "zweite Zeile\n")
	writeFile(t, filepath.Join(dir, "line_002.jpg"), "jpg")
	writeFile(t, filepath.Join(dir, "line_001.gt.txt"), "erste Zeile\n")
	writeFile(t, filepath.Join(dir, "line_001.png"), "png")

	samples, err := LoadGroundTruth(dir)
	if err != nil {
		t.Fatalf("LoadGroundTruth: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].Text != "erste Zeile" || samples[1].Text != "zweite Zeile" {
		t.Errorf("texts out of order or untrimmed: %+v", samples)
	}
	if filepath.Base(samples[0].ImagePath) != "line_001.png" {
		t.Errorf("image pairing: %q", samples[0].ImagePath)
	}
	if filepath.Base(samples[1].ImagePath) != "line_002.jpg" {
		t.Errorf("image pairing: %q", samples[1].ImagePath)
	}

	texts := Texts(samples)
	if len(texts) != 2 || texts[0].Text != "erste Zeile" {
		t.Errorf("Texts = %+v", texts)
	}
}

func TestLoadGroundTruthMissingImage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "orphan.gt.txt"), "text\n")
	if _, err := LoadGroundTruth(dir); err == nil {
		t.Error("dangling transcript accepted")
	}
}

func TestLoadGroundTruthEmptyDir(t *testing.T) {
	if _, err := LoadGroundTruth(t.TempDir()); err == nil {
		t.Error("empty dataset accepted")
	}
}

func TestFromHOCR(t *testing.T) {
	input := `<html><body>
<div class="ocr_page" id="page_1" title="bbox 0 0 100 100">
 <span class="ocr_line" id="l1" title="bbox 0 0 100 20">
  <span class="ocrx_word" id="w1" title="bbox 0 0 40 20">Guten</span>
  <span class="ocrx_word" id="w2" title="bbox 50 0 100 20">Tag</span>
 </span>
</div>
</body></html>`
	samples, err := FromHOCR([]byte(input))
	if err != nil {
		t.Fatalf("FromHOCR: %v", err)
	}
	if len(samples) != 1 || samples[0].Text != "Guten Tag" {
		t.Errorf("samples = %+v", samples)
	}

	if _, err := FromHOCR([]byte("<html><body></body></html>")); err == nil {
		t.Error("pageless hOCR accepted")
	}
}
