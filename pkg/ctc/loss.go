package ctc

import (
	"errors"
	"fmt"
	"math"
)

// ErrAlignment is returned when a target sequence cannot be aligned to the
// matrix, e.g. because it is longer than the number of timesteps allows.
var ErrAlignment = errors.New("target cannot be aligned")

// Loss computes the CTC alignment cost of a target label sequence against a
// probability matrix: the negative log-likelihood of all paths that collapse
// to the target, computed with the standard forward algorithm in log space.
//
// This is the training-side counterpart of the decoding collapse rule: a
// path contributes to the likelihood exactly when Collapse maps it to the
// target, so decoding and training cannot drift apart.
//
// The target must not contain the blank class. Targets with repeated
// adjacent labels need a separating blank timestep, so their minimum
// alignable length is larger than their label count.
func Loss(m *Matrix, target []int) (float64, error) {
	for i, c := range target {
		if c == Blank {
			return 0, fmt.Errorf("target contains blank at position %d", i)
		}
		if c < 0 || c >= m.classes {
			return 0, fmt.Errorf("target class %d at position %d outside matrix width %d", c, i, m.classes)
		}
	}

	// Extended target with blanks interleaved: blank l1 blank l2 ... blank.
	ext := make([]int, 2*len(target)+1)
	for i := range ext {
		if i%2 == 1 {
			ext[i] = target[i/2]
		} else {
			ext[i] = Blank
		}
	}

	minLen := len(target)
	for i := 1; i < len(target); i++ {
		if target[i] == target[i-1] {
			minLen++
		}
	}
	if m.steps < minLen {
		return 0, fmt.Errorf("%d timesteps for target of minimum path length %d: %w", m.steps, minLen, ErrAlignment)
	}

	neg := math.Inf(-1)
	logAt := func(t, c int) float64 {
		v := float64(m.At(t, c))
		if v <= 0 {
			return neg
		}
		return math.Log(v)
	}

	alpha := make([]float64, len(ext))
	next := make([]float64, len(ext))
	for i := range alpha {
		alpha[i] = neg
	}
	alpha[0] = logAt(0, ext[0])
	if len(ext) > 1 {
		alpha[1] = logAt(0, ext[1])
	}

	for t := 1; t < m.steps; t++ {
		for s := range ext {
			a := alpha[s]
			if s > 0 {
				a = logSumExp(a, alpha[s-1])
			}
			// Skip over a blank is allowed unless the labels around it repeat.
			if s > 1 && ext[s] != Blank && ext[s] != ext[s-2] {
				a = logSumExp(a, alpha[s-2])
			}
			next[s] = a + logAt(t, ext[s])
		}
		alpha, next = next, alpha
	}

	ll := alpha[len(ext)-1]
	if len(ext) > 1 {
		ll = logSumExp(ll, alpha[len(ext)-2])
	}
	if math.IsInf(ll, -1) {
		return 0, fmt.Errorf("no feasible path: %w", ErrAlignment)
	}
	return -ll, nil
}
