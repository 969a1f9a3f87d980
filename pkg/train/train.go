// Package train holds the training-side utilities of the engine: deriving
// recognition alphabets from ground truth, reconciling an existing model
// alphabet with new material, and scoring model output against transcripts.
//
// Training the network weights themselves happens outside this module; the
// package prepares and validates everything the trainer consumes and
// evaluates what it produces.
package train

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/scriptorium/scriptor/pkg/codec"
	"github.com/scriptorium/scriptor/pkg/ctc"
)

// ErrAlphabetMismatch is returned when ground truth contains graphemes the
// model's alphabet cannot encode and the resize policy forbids extending it.
var ErrAlphabetMismatch = errors.New("ground truth exceeds model alphabet")

// Sample is one ground-truth line: a transcript tied to line imagery
// elsewhere in the dataset.
type Sample struct {
	// Text is the transcript in reading order.
	Text string
}

// DeriveAlphabet builds a codec from the set of code points appearing in
// the transcripts, sorted for determinism. Every rune becomes its own
// grapheme class; multi-codepoint classes are a curated-alphabet concern
// and come in through dict files instead.
func DeriveAlphabet(samples []Sample) (*codec.Codec, error) {
	seen := make(map[rune]bool)
	for _, s := range samples {
		for _, r := range s.Text {
			seen[r] = true
		}
	}
	if len(seen) == 0 {
		return nil, errors.New("no transcripts to derive an alphabet from")
	}
	runes := make([]rune, 0, len(seen))
	for r := range seen {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	graphemes := make([]string, len(runes))
	for i, r := range runes {
		graphemes[i] = string(r)
	}
	return codec.New(graphemes)
}

// Missing returns the graphemes needed to encode the transcripts that the
// codec lacks, deduplicated and sorted. An empty result means every sample
// is encodable. The scan matches greedily the way Encode does, so text
// covered by multi-codepoint graphemes is not reported rune by rune.
func Missing(c *codec.Codec, samples []Sample) []string {
	maxLen := 1
	for _, g := range c.Graphemes() {
		if n := len([]rune(g)); n > maxLen {
			maxLen = n
		}
	}

	seen := make(map[string]bool)
	for _, s := range samples {
		runes := []rune(s.Text)
		for pos := 0; pos < len(runes); {
			matched := 0
			for n := min(maxLen, len(runes)-pos); n > 0; n-- {
				if c.Contains(string(runes[pos : pos+n])) {
					matched = n
					break
				}
			}
			if matched == 0 {
				seen[string(runes[pos])] = true
				matched = 1
			}
			pos += matched
		}
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// ResizeMode selects how an existing model alphabet is reconciled with the
// alphabet of new ground truth before fine-tuning.
type ResizeMode string

const (
	// ResizeFail refuses training material outside the model alphabet.
	ResizeFail ResizeMode = "fail"
	// ResizeAdd extends the alphabet with the new graphemes; existing
	// classes keep their indices.
	ResizeAdd ResizeMode = "add"
	// ResizeUnion resizes to exactly the ground-truth alphabet: shared
	// classes keep their indices, obsolete classes are deleted.
	ResizeUnion ResizeMode = "union"
)

// ParseResizeMode validates a mode name from configuration.
func ParseResizeMode(s string) (ResizeMode, error) {
	switch m := ResizeMode(s); m {
	case ResizeFail, ResizeAdd, ResizeUnion:
		return m, nil
	}
	return "", fmt.Errorf("unknown resize mode %q", s)
}

// Resize reconciles the model codec with ground-truth samples under the
// given mode. It returns the codec to train against and the class indices
// deleted from the model (non-empty only under ResizeUnion), so the caller
// can drop the corresponding output rows.
func Resize(model *codec.Codec, samples []Sample, mode ResizeMode) (*codec.Codec, []int, error) {
	missing := Missing(model, samples)
	switch mode {
	case ResizeFail:
		if len(missing) > 0 {
			return nil, nil, fmt.Errorf("%d graphemes outside the alphabet (%s): %w",
				len(missing), strings.Join(preview(missing, 8), " "), ErrAlphabetMismatch)
		}
		return model, nil, nil
	case ResizeAdd:
		next, err := model.Add(missing)
		if err != nil {
			return nil, nil, err
		}
		return next, nil, nil
	case ResizeUnion:
		gt, err := DeriveAlphabet(samples)
		if err != nil {
			return nil, nil, err
		}
		return model.Merge(gt)
	}
	return nil, nil, fmt.Errorf("unknown resize mode %q", mode)
}

func preview(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	out := append([]string(nil), items[:n]...)
	return append(out, "...")
}

// SampleLoss scores one model output matrix against a transcript: the
// transcript is encoded with the training codec and fed to the CTC forward
// algorithm. Lower is better; a perfectly confident correct model scores
// near zero.
func SampleLoss(m *ctc.Matrix, c *codec.Codec, text string) (float64, error) {
	target, err := c.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encoding transcript: %w", err)
	}
	return ctc.Loss(m, target)
}
