package train

import (
	"fmt"
	"strings"
)

// Report accumulates recognition accuracy over an evaluation set.
type Report struct {
	Lines      int
	Chars      int // reference character count
	CharErrors int // rune-level edit distance
	Words      int // reference word count
	WordErrors int // word-level edit distance
}

// CER returns the character error rate: edit distance over reference
// length. An empty reference scores 0 against an empty hypothesis and 1
// otherwise.
func (r *Report) CER() float64 {
	if r.Chars == 0 {
		if r.CharErrors == 0 {
			return 0
		}
		return 1
	}
	return float64(r.CharErrors) / float64(r.Chars)
}

// WER returns the word error rate, with the same empty-reference
// convention as CER.
func (r *Report) WER() float64 {
	if r.Words == 0 {
		if r.WordErrors == 0 {
			return 0
		}
		return 1
	}
	return float64(r.WordErrors) / float64(r.Words)
}

// Add scores one recognized line against its reference transcript and
// folds it into the report.
func (r *Report) Add(reference, hypothesis string) {
	refRunes := []rune(reference)
	hypRunes := []rune(hypothesis)
	r.Lines++
	r.Chars += len(refRunes)
	r.CharErrors += levenshtein(refRunes, hypRunes)

	refWords := strings.Fields(reference)
	hypWords := strings.Fields(hypothesis)
	r.Words += len(refWords)
	r.WordErrors += levenshteinStrings(refWords, hypWords)
}

// String formats the report the way evaluation runs print it.
func (r *Report) String() string {
	return fmt.Sprintf("%d lines, CER %.2f%% (%d/%d), WER %.2f%% (%d/%d)",
		r.Lines, 100*r.CER(), r.CharErrors, r.Chars, 100*r.WER(), r.WordErrors, r.Words)
}

// levenshtein computes the edit distance between two rune sequences with
// the usual two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func levenshteinStrings(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
