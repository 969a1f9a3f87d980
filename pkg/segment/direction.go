package segment

import (
	"golang.org/x/text/unicode/bidi"

	"github.com/scriptorium/scriptor/pkg/geom"
)

// DirectionForText returns the reading direction implied by the first
// strong bidirectional character in the sample: right-to-left for Hebrew,
// Arabic and other RTL scripts, left-to-right otherwise.
func DirectionForText(sample string) geom.Direction {
	for len(sample) > 0 {
		props, size := bidi.LookupString(sample)
		switch props.Class() {
		case bidi.R, bidi.AL:
			return geom.RightToLeft
		case bidi.L:
			return geom.LeftToRight
		}
		sample = sample[size:]
	}
	return geom.LeftToRight
}
