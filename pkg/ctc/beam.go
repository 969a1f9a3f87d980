package ctc

import (
	"math"
	"sort"
)

// BeamDecode performs prefix beam-search decoding with the given beam width.
// It tracks, per candidate prefix, the probability mass of paths ending in a
// blank and ending in the prefix's last label, so blank/repeat collapse
// semantics are exactly those of Collapse and Greedy; with width 1 it
// degenerates to best-path decoding of the same rule.
//
// Symbol provenance is coarser than Greedy's: each symbol records the
// timestep at which its label first entered the winning prefix, extended to
// the following symbol's start.
func BeamDecode(m *Matrix, width int) Sequence {
	if width < 1 {
		width = 1
	}

	type prefix struct {
		classes []int
		starts  []int
		pBlank  float64 // mass of paths ending in blank
		pLabel  float64 // mass of paths ending in the last label
	}
	total := func(p *prefix) float64 { return p.pBlank + p.pLabel }

	beams := []*prefix{{pBlank: 1, pLabel: 0}}

	for t := 0; t < m.steps; t++ {
		row := m.Row(t)
		nextBeams := make(map[string]*prefix, width*2)
		key := func(classes []int) string {
			b := make([]byte, 0, len(classes)*2)
			for _, c := range classes {
				b = append(b, byte(c), byte(c>>8))
			}
			return string(b)
		}
		get := func(classes, starts []int) *prefix {
			k := key(classes)
			p, ok := nextBeams[k]
			if !ok {
				p = &prefix{classes: classes, starts: starts}
				nextBeams[k] = p
			}
			return p
		}

		for _, b := range beams {
			pTot := total(b)
			// Extend with blank: prefix unchanged.
			np := get(b.classes, b.starts)
			np.pBlank += pTot * float64(row[Blank])

			var last = -1
			if len(b.classes) > 0 {
				last = b.classes[len(b.classes)-1]
			}

			for c := 1; c < m.classes; c++ {
				pc := float64(row[c])
				if pc == 0 {
					continue
				}
				if c == last {
					// Same label again without separating blank merges into
					// the existing final label.
					np := get(b.classes, b.starts)
					np.pLabel += b.pLabel * pc
					// After a blank it starts a new occurrence.
					ext := get(appendCopy(b.classes, c), appendCopy(b.starts, t))
					ext.pLabel += b.pBlank * pc
				} else {
					ext := get(appendCopy(b.classes, c), appendCopy(b.starts, t))
					ext.pLabel += pTot * pc
				}
			}
		}

		pruned := make([]*prefix, 0, len(nextBeams))
		for _, p := range nextBeams {
			pruned = append(pruned, p)
		}
		sort.Slice(pruned, func(i, j int) bool { return total(pruned[i]) > total(pruned[j]) })
		if len(pruned) > width {
			pruned = pruned[:width]
		}
		beams = pruned
	}

	best := beams[0]
	for _, b := range beams[1:] {
		if total(b) > total(best) {
			best = b
		}
	}

	seq := Sequence{Symbols: make([]Symbol, len(best.classes))}
	for i, c := range best.classes {
		start := best.starts[i]
		end := m.steps
		if i+1 < len(best.starts) {
			end = best.starts[i+1]
		}
		seq.Symbols[i] = Symbol{
			Class:      c,
			Start:      start,
			End:        end,
			Confidence: bestRunConfidence(m, c, start, end),
		}
	}
	return seq
}

func appendCopy(s []int, v int) []int {
	out := make([]int, len(s)+1)
	copy(out, s)
	out[len(s)] = v
	return out
}

// bestRunConfidence returns the maximum probability of class c over the
// span, clamped to [0, 1].
func bestRunConfidence(m *Matrix, c, start, end int) float64 {
	var best float64
	for t := start; t < end && t < m.steps; t++ {
		if v := float64(m.At(t, c)); v > best {
			best = v
		}
	}
	return math.Min(best, 1)
}
