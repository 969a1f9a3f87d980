// Package ctc implements the decoding and alignment engine for
// connectionist temporal classification outputs: the collapse rule shared by
// inference and training, greedy best-path decoding with timestep
// provenance, a prefix beam-search decoder, and the forward-algorithm
// alignment cost used as training loss.
//
// A recognition network emits one class distribution per timestep; class
// ctc.Blank (0) is the reserved no-symbol class. Decoding collapses that
// per-timestep sequence into a compact label sequence by merging consecutive
// repeats of the same non-blank class and dropping blanks, so
// [a a blank a] decodes to [a a] while [a a a] decodes to [a].
package ctc

import (
	"errors"
	"fmt"
	"math"
)

// Blank is the reserved class index for the CTC no-symbol output.
const Blank = 0

// ErrShape is returned when a probability matrix has inconsistent or empty
// dimensions.
var ErrShape = errors.New("invalid matrix shape")

// Matrix is a T×C matrix of per-timestep class scores. Timesteps run along
// the writing direction of the normalized line raster, so timestep provenance
// can be mapped back to raster columns.
type Matrix struct {
	data    []float32
	steps   int
	classes int
}

// NewMatrix returns a zeroed matrix with the given dimensions.
func NewMatrix(steps, classes int) (*Matrix, error) {
	if steps <= 0 || classes < 2 {
		return nil, fmt.Errorf("%w: %d timesteps, %d classes", ErrShape, steps, classes)
	}
	return &Matrix{data: make([]float32, steps*classes), steps: steps, classes: classes}, nil
}

// FromSlice wraps a flat row-major slice (timestep-major, as produced by
// inference runtimes) as a matrix. The slice is not copied.
func FromSlice(data []float32, steps, classes int) (*Matrix, error) {
	if steps <= 0 || classes < 2 || len(data) != steps*classes {
		return nil, fmt.Errorf("%w: %d values for %d×%d", ErrShape, len(data), steps, classes)
	}
	return &Matrix{data: data, steps: steps, classes: classes}, nil
}

// Steps returns the number of timesteps T.
func (m *Matrix) Steps() int { return m.steps }

// Classes returns the number of classes C, including the blank.
func (m *Matrix) Classes() int { return m.classes }

// At returns the score of class c at timestep t.
func (m *Matrix) At(t, c int) float32 { return m.data[t*m.classes+c] }

// Set assigns the score of class c at timestep t.
func (m *Matrix) Set(t, c int, v float32) { m.data[t*m.classes+c] = v }

// Row returns the score slice of one timestep. The slice aliases the matrix.
func (m *Matrix) Row(t int) []float32 {
	return m.data[t*m.classes : (t+1)*m.classes]
}

// argmax returns the winning class and its score at timestep t.
func (m *Matrix) argmax(t int) (int, float32) {
	row := m.Row(t)
	best, bestVal := 0, row[0]
	for c := 1; c < len(row); c++ {
		if row[c] > bestVal {
			best, bestVal = c, row[c]
		}
	}
	return best, bestVal
}

// Collapse applies the CTC collapse rule to a raw per-timestep class
// sequence: consecutive repeats of the same class merge into one occurrence,
// then all blanks are dropped. The rule is idempotent only when its output
// contains no consecutive repeats: a blank-separated repeat such as
// [1, Blank, 1] collapses to [1, 1], which a second collapse would merge
// into [1]. Collapse raw label paths exactly once.
func Collapse(classes []int) []int {
	out := make([]int, 0, len(classes))
	prev := -1
	for _, c := range classes {
		if c != prev && c != Blank {
			out = append(out, c)
		}
		prev = c
	}
	return out
}

// Symbol is one decoded label with its timestep provenance: the half-open
// span [Start, End) of timesteps the collapsed run covered, and the
// confidence of the winning class at the best timestep of the run.
type Symbol struct {
	Class      int
	Start      int
	End        int
	Confidence float64
}

// Sequence is a decoded label sequence.
type Sequence struct {
	Symbols []Symbol
}

// Classes returns the bare class indices of the sequence.
func (s Sequence) Classes() []int {
	out := make([]int, len(s.Symbols))
	for i, sym := range s.Symbols {
		out[i] = sym.Class
	}
	return out
}

// Confidence returns the sequence confidence: the product of the symbol
// confidences. It is 1 for an empty sequence and monotonically
// non-increasing in the number of low-confidence symbols included.
func (s Sequence) Confidence() float64 {
	conf := 1.0
	for _, sym := range s.Symbols {
		conf *= sym.Confidence
	}
	return conf
}

// Greedy performs best-path decoding: the highest-scoring class at each
// timestep, collapsed by the CTC rule. Every emitted symbol retains the
// timestep span of its run, so callers can map symbols back to raster
// columns of the normalized line.
func Greedy(m *Matrix) Sequence {
	var seq Sequence
	prev := -1
	for t := 0; t < m.steps; t++ {
		c, score := m.argmax(t)
		switch {
		case c == Blank:
			// run boundary
		case c == prev:
			last := &seq.Symbols[len(seq.Symbols)-1]
			last.End = t + 1
			if float64(score) > last.Confidence {
				last.Confidence = float64(score)
			}
		default:
			seq.Symbols = append(seq.Symbols, Symbol{
				Class:      c,
				Start:      t,
				End:        t + 1,
				Confidence: float64(score),
			})
		}
		prev = c
	}
	return seq
}

// logSumExp returns log(exp(a) + exp(b)) without overflow.
func logSumExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}
