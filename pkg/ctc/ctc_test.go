package ctc

import (
	"errors"
	"math"
	"testing"
)

// matrixFromPath builds a T×classes matrix whose argmax at each timestep is
// the given class, with probability p for the winner and the remainder
// spread over the other classes.
func matrixFromPath(t *testing.T, path []int, classes int, p float32) *Matrix {
	t.Helper()
	m, err := NewMatrix(len(path), classes)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	rest := (1 - p) / float32(classes-1)
	for step, win := range path {
		for c := 0; c < classes; c++ {
			if c == win {
				m.Set(step, c, p)
			} else {
				m.Set(step, c, rest)
			}
		}
	}
	return m
}

func classesEqual(got Sequence, want []int) bool {
	cs := got.Classes()
	if len(cs) != len(want) {
		return false
	}
	for i := range want {
		if cs[i] != want[i] {
			return false
		}
	}
	return true
}

func TestCollapseLiteral(t *testing.T) {
	const a, b = 1, 2
	in := []int{a, a, Blank, a, Blank, Blank, b}
	got := Collapse(in)
	want := []int{a, a, b}
	if len(got) != len(want) {
		t.Fatalf("Collapse = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Collapse = %v, want %v", got, want)
		}
	}
}

func TestCollapseRepeatsWithoutBlank(t *testing.T) {
	const a = 1
	if got := Collapse([]int{a, a, a}); len(got) != 1 || got[0] != a {
		t.Errorf("Collapse([a a a]) = %v, want [a]", got)
	}
	if got := Collapse([]int{a, a, Blank, a}); len(got) != 2 {
		t.Errorf("Collapse([a a blank a]) = %v, want [a a]", got)
	}
}

func TestCollapseIdempotent(t *testing.T) {
	in := []int{1, 1, Blank, 2, 2, Blank, 1}
	once := Collapse(in)
	twice := Collapse(once)
	if len(once) != len(twice) {
		t.Fatalf("collapse not idempotent: %v vs %v", once, twice)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("collapse not idempotent: %v vs %v", once, twice)
		}
	}
}

func TestCollapsePreservesBlankSeparatedRepeats(t *testing.T) {
	// [1, Blank, 1] encodes a doubled label; collapsing the result again
	// would merge it, so double collapse loses information.
	once := Collapse([]int{1, Blank, 1})
	if len(once) != 2 || once[0] != 1 || once[1] != 1 {
		t.Fatalf("Collapse([1, Blank, 1]) = %v, want [1 1]", once)
	}
	if twice := Collapse(once); len(twice) != 1 {
		t.Errorf("re-collapsing %v gave %v; repeat-bearing outputs are not fixed points", once, twice)
	}
}

func TestGreedyDecodeAndProvenance(t *testing.T) {
	// [a a blank a blank blank b] over 3 classes.
	path := []int{1, 1, Blank, 1, Blank, Blank, 2}
	m := matrixFromPath(t, path, 3, 0.9)
	seq := Greedy(m)

	if !classesEqual(seq, []int{1, 1, 2}) {
		t.Fatalf("Greedy classes = %v, want [1 1 2]", seq.Classes())
	}
	spans := [][2]int{{0, 2}, {3, 4}, {6, 7}}
	for i, sym := range seq.Symbols {
		if sym.Start != spans[i][0] || sym.End != spans[i][1] {
			t.Errorf("symbol %d span = [%d,%d), want [%d,%d)", i, sym.Start, sym.End, spans[i][0], spans[i][1])
		}
	}
}

func TestConfidenceBounds(t *testing.T) {
	path := []int{1, Blank, 2, 1}
	m := matrixFromPath(t, path, 4, 0.7)
	seq := Greedy(m)
	for i, sym := range seq.Symbols {
		if sym.Confidence < 0 || sym.Confidence > 1 {
			t.Errorf("symbol %d confidence %v outside [0,1]", i, sym.Confidence)
		}
	}
	if c := seq.Confidence(); c < 0 || c > 1 {
		t.Errorf("sequence confidence %v outside [0,1]", c)
	}
}

func TestSequenceConfidenceMonotone(t *testing.T) {
	high := Sequence{Symbols: []Symbol{{Confidence: 0.9}, {Confidence: 0.9}}}
	withLow := Sequence{Symbols: append(append([]Symbol(nil), high.Symbols...), Symbol{Confidence: 0.2})}
	if withLow.Confidence() > high.Confidence() {
		t.Errorf("adding a low-confidence symbol increased sequence confidence: %v > %v",
			withLow.Confidence(), high.Confidence())
	}
}

func TestGreedyEmpty(t *testing.T) {
	m := matrixFromPath(t, []int{Blank, Blank, Blank}, 3, 0.95)
	seq := Greedy(m)
	if len(seq.Symbols) != 0 {
		t.Errorf("all-blank matrix decoded to %v", seq.Classes())
	}
	if seq.Confidence() != 1 {
		t.Errorf("empty sequence confidence = %v, want 1", seq.Confidence())
	}
}

func TestBeamMatchesGreedyOnPeakedMatrix(t *testing.T) {
	path := []int{1, 1, Blank, 1, Blank, 2, 2}
	m := matrixFromPath(t, path, 3, 0.95)
	greedy := Greedy(m)
	for _, width := range []int{1, 4, 16} {
		beam := BeamDecode(m, width)
		if !classesEqual(beam, greedy.Classes()) {
			t.Errorf("width %d: beam %v != greedy %v", width, beam.Classes(), greedy.Classes())
		}
	}
}

func TestBeamSumsOverPaths(t *testing.T) {
	// Classic case where best-path and best-labeling differ: two timesteps,
	// blank is the argmax everywhere, but the paths [a a], [a blank],
	// [blank a] together outweigh [blank blank].
	m, err := NewMatrix(2, 2)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	for _, tc := range []struct{ t, c int; v float32 }{
		{0, Blank, 0.6}, {0, 1, 0.4},
		{1, Blank, 0.6}, {1, 1, 0.4},
	} {
		m.Set(tc.t, tc.c, tc.v)
	}
	if got := Greedy(m); len(got.Symbols) != 0 {
		t.Fatalf("greedy should decode empty, got %v", got.Classes())
	}
	beam := BeamDecode(m, 8)
	if !classesEqual(beam, []int{1}) {
		t.Errorf("beam = %v, want [1]: P(a)=0.64 > P(empty)=0.36", beam.Classes())
	}
}

func TestLossPerfectPath(t *testing.T) {
	path := []int{1, Blank, 2}
	m := matrixFromPath(t, path, 3, 0.99)
	loss, err := Loss(m, []int{1, 2})
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	if loss < 0 {
		t.Errorf("loss %v negative", loss)
	}
	// A near-deterministic matrix aligned to its own argmax path has a loss
	// close to zero.
	if loss > 0.2 {
		t.Errorf("loss %v too large for near-deterministic alignment", loss)
	}
}

func TestLossPrefersMatchingTarget(t *testing.T) {
	path := []int{1, 1, Blank, 2}
	m := matrixFromPath(t, path, 3, 0.9)
	matching, err := Loss(m, []int{1, 2})
	if err != nil {
		t.Fatalf("Loss(matching): %v", err)
	}
	other, err := Loss(m, []int{2, 1})
	if err != nil {
		t.Fatalf("Loss(other): %v", err)
	}
	if matching >= other {
		t.Errorf("matching target loss %v not below mismatched target loss %v", matching, other)
	}
}

func TestLossRepeatedLabelNeedsBlank(t *testing.T) {
	// Target [a a] needs at least 3 timesteps (a blank a).
	m := matrixFromPath(t, []int{1, 1}, 3, 0.9)
	if _, err := Loss(m, []int{1, 1}); !errors.Is(err, ErrAlignment) {
		t.Errorf("want ErrAlignment for 2 timesteps, got %v", err)
	}
}

func TestLossRejectsBlankInTarget(t *testing.T) {
	m := matrixFromPath(t, []int{1, 2}, 3, 0.9)
	if _, err := Loss(m, []int{1, Blank}); err == nil {
		t.Error("blank in target accepted")
	}
}

func TestLossSumsToOneOverLabelings(t *testing.T) {
	// With a 2-class model (blank + a), every path labels to a^k for some k.
	// Check the likelihoods of all labelings up to T sum to 1.
	m, err := NewMatrix(3, 2)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	for step := 0; step < 3; step++ {
		m.Set(step, Blank, 0.3)
		m.Set(step, 1, 0.7)
	}
	sum := 0.0
	// Empty labeling: all-blank path.
	sum += 0.3 * 0.3 * 0.3
	for _, target := range [][]int{{1}, {1, 1}} {
		loss, err := Loss(m, target)
		if err != nil {
			t.Fatalf("Loss(%v): %v", target, err)
		}
		sum += math.Exp(-loss)
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("likelihoods sum to %v, want 1", sum)
	}
}

func TestFromSliceShape(t *testing.T) {
	if _, err := FromSlice(make([]float32, 5), 2, 3); !errors.Is(err, ErrShape) {
		t.Errorf("want ErrShape, got %v", err)
	}
	if _, err := FromSlice(make([]float32, 6), 2, 3); err != nil {
		t.Errorf("valid shape rejected: %v", err)
	}
}
