package segment

import (
	"sort"

	"github.com/scriptorium/scriptor/pkg/geom"
)

// orderLines sorts seg.Lines into reading order: regions first (top to
// bottom, start side to end side for the script), then lines within each
// region. Lines outside every region are interleaved by their own position.
// Sorting is a permutation, so order totality holds by construction.
//
// The tie-break for vertically overlapping lines is a banded comparison:
// lines whose vertical centers fall within half a line height of each other
// count as the same row and are ordered horizontally from the reading start
// side.
func (s *Segmenter) orderLines(seg *Segmentation) {
	if len(seg.Lines) < 2 {
		return
	}

	bandSize := medianHeight(seg.Lines) * 0.75
	if bandSize < 4 {
		bandSize = 4
	}

	type key struct {
		primary, secondary float64
	}

	lineKey := func(ln Line) key {
		b := ln.Baseline.Bounds()
		switch s.dir {
		case geom.TopToBottom:
			// Vertical columns read right to left.
			return key{primary: -float64(int(b.Center().X / bandSize)), secondary: b.Y1}
		case geom.RightToLeft:
			return key{primary: float64(int(b.Center().Y / bandSize)), secondary: -b.X2}
		default:
			return key{primary: float64(int(b.Center().Y / bandSize)), secondary: b.X1}
		}
	}

	regionKey := func(ln Line) key {
		if ln.Region < 0 {
			return lineKey(ln)
		}
		b := seg.Regions[ln.Region].Polygon.Bounds()
		switch s.dir {
		case geom.TopToBottom:
			return key{primary: -float64(int(b.Center().X / bandSize)), secondary: b.Y1}
		case geom.RightToLeft:
			return key{primary: float64(int(b.Y1 / bandSize)), secondary: -b.X2}
		default:
			return key{primary: float64(int(b.Y1 / bandSize)), secondary: b.X1}
		}
	}

	sort.SliceStable(seg.Lines, func(i, j int) bool {
		ri, rj := regionKey(seg.Lines[i]), regionKey(seg.Lines[j])
		if ri != rj {
			if ri.primary != rj.primary {
				return ri.primary < rj.primary
			}
			return ri.secondary < rj.secondary
		}
		li, lj := lineKey(seg.Lines[i]), lineKey(seg.Lines[j])
		if li.primary != lj.primary {
			return li.primary < lj.primary
		}
		return li.secondary < lj.secondary
	})
}

func medianHeight(lines []Line) float64 {
	hs := make([]float64, 0, len(lines))
	for _, ln := range lines {
		if ln.Height > 0 {
			hs = append(hs, ln.Height)
		}
	}
	if len(hs) == 0 {
		return 0
	}
	sort.Float64s(hs)
	return hs[len(hs)/2]
}
