// Package geom provides the geometric value types shared by the segmentation
// and recognition stages: points, rectangles, baselines and polygons.
//
// All types are plain immutable values. Operations that "modify" geometry
// (shifting, simplification, polygonization) return new values and never edit
// their receiver, so geometry can be shared freely across concurrently
// processed pages and lines.
package geom

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerate is returned when geometry is too small or malformed to
// support the requested operation (e.g. a baseline with fewer than two
// distinct points).
var ErrDegenerate = errors.New("degenerate geometry")

// Point is a 2D point in page pixel coordinates, origin in the upper-left
// corner, y growing downwards.
type Point struct {
	X float64
	Y float64
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Rect is an axis-aligned rectangle identified by its upper-left (X1, Y1)
// and lower-right (X2, Y2) corners.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 { return r.X2 - r.X1 }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

// IsEmpty reports whether the rectangle has non-positive dimensions.
func (r Rect) IsEmpty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// Intersects reports whether r and s share any area.
func (r Rect) Intersects(s Rect) bool {
	return r.X1 < s.X2 && s.X1 < r.X2 && r.Y1 < s.Y2 && s.Y1 < r.Y2
}

// Union returns the smallest rectangle covering both r and s.
func (r Rect) Union(s Rect) Rect {
	return Rect{
		X1: math.Min(r.X1, s.X1),
		Y1: math.Min(r.Y1, s.Y1),
		X2: math.Max(r.X2, s.X2),
		Y2: math.Max(r.Y2, s.Y2),
	}
}

// Contains reports whether the point lies inside or on the boundary of r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X1 && p.X <= r.X2 && p.Y >= r.Y1 && p.Y <= r.Y2
}

// Direction describes the reading direction of a script or text line.
type Direction int

const (
	// LeftToRight is the direction of Latin, Cyrillic, CJK horizontal, etc.
	LeftToRight Direction = iota
	// RightToLeft is the direction of Arabic, Hebrew, Syriac, etc.
	RightToLeft
	// TopToBottom is the direction of vertical CJK and Mongolian layouts.
	TopToBottom
)

// String returns the conventional short name of the direction.
func (d Direction) String() string {
	switch d {
	case LeftToRight:
		return "ltr"
	case RightToLeft:
		return "rtl"
	case TopToBottom:
		return "ttb"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// ParseDirection converts a short direction name ("ltr", "rtl", "ttb")
// back into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "ltr":
		return LeftToRight, nil
	case "rtl":
		return RightToLeft, nil
	case "ttb":
		return TopToBottom, nil
	}
	return LeftToRight, fmt.Errorf("unknown direction %q", s)
}

// Horizontal reports whether lines written in this direction run
// horizontally across the page.
func (d Direction) Horizontal() bool { return d != TopToBottom }

// Baseline is an open polyline approximating the writing line of a single
// text line. The point order encodes the reading direction of the line: the
// first point is where reading starts.
type Baseline struct {
	points []Point
}

// NewBaseline builds a baseline from points, copying the slice. It returns
// ErrDegenerate if fewer than two distinct points remain after dropping
// consecutive duplicates.
func NewBaseline(points []Point) (Baseline, error) {
	var kept []Point
	for _, p := range points {
		if len(kept) > 0 && kept[len(kept)-1] == p {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) < 2 {
		return Baseline{}, fmt.Errorf("baseline needs at least 2 distinct points, got %d: %w", len(kept), ErrDegenerate)
	}
	return Baseline{points: kept}, nil
}

// Points returns a copy of the baseline's points.
func (b Baseline) Points() []Point {
	return append([]Point(nil), b.points...)
}

// Len returns the number of points.
func (b Baseline) Len() int { return len(b.points) }

// At returns the i-th point.
func (b Baseline) At(i int) Point { return b.points[i] }

// Start returns the first point (where reading begins).
func (b Baseline) Start() Point { return b.points[0] }

// End returns the last point.
func (b Baseline) End() Point { return b.points[len(b.points)-1] }

// Length returns the total arc length of the polyline.
func (b Baseline) Length() float64 {
	var l float64
	for i := 1; i < len(b.points); i++ {
		l += b.points[i-1].Dist(b.points[i])
	}
	return l
}

// Bounds returns the bounding rectangle of the baseline.
func (b Baseline) Bounds() Rect {
	return boundsOf(b.points)
}

// Direction returns the dominant reading direction encoded by the point
// order: right-to-left when the polyline predominantly runs towards smaller
// x, top-to-bottom when the vertical extent dominates the horizontal one.
func (b Baseline) Direction() Direction {
	dx := b.End().X - b.Start().X
	dy := b.End().Y - b.Start().Y
	if math.Abs(dy) > math.Abs(dx) {
		return TopToBottom
	}
	if dx < 0 {
		return RightToLeft
	}
	return LeftToRight
}

// Reversed returns a new baseline with the point order inverted.
func (b Baseline) Reversed() Baseline {
	pts := make([]Point, len(b.points))
	for i, p := range b.points {
		pts[len(pts)-1-i] = p
	}
	return Baseline{points: pts}
}

// Sample returns n points evenly spaced along the arc length of the
// baseline, including both endpoints. n must be at least 2.
func (b Baseline) Sample(n int) []Point {
	if n < 2 {
		n = 2
	}
	total := b.Length()
	out := make([]Point, 0, n)
	out = append(out, b.points[0])

	seg := 1               // current segment index
	covered := float64(0)  // arc length before current segment
	segLen := b.points[0].Dist(b.points[1])

	for i := 1; i < n-1; i++ {
		target := total * float64(i) / float64(n-1)
		for seg < len(b.points)-1 && covered+segLen < target {
			covered += segLen
			seg++
			segLen = b.points[seg-1].Dist(b.points[seg])
		}
		t := 0.0
		if segLen > 0 {
			t = (target - covered) / segLen
		}
		p0, p1 := b.points[seg-1], b.points[seg]
		out = append(out, Point{
			X: p0.X + t*(p1.X-p0.X),
			Y: p0.Y + t*(p1.Y-p0.Y),
		})
	}
	out = append(out, b.points[len(b.points)-1])
	return out
}

// Polygon is a closed polygon bounding the pixels of a text line or region.
// The closing edge from the last point back to the first is implicit.
type Polygon struct {
	points []Point
}

// NewPolygon builds a polygon from points, copying the slice. It returns
// ErrDegenerate if fewer than three distinct points are given.
func NewPolygon(points []Point) (Polygon, error) {
	var kept []Point
	for _, p := range points {
		if len(kept) > 0 && kept[len(kept)-1] == p {
			continue
		}
		kept = append(kept, p)
	}
	// Drop an explicit closing point.
	if len(kept) > 1 && kept[0] == kept[len(kept)-1] {
		kept = kept[:len(kept)-1]
	}
	if len(kept) < 3 {
		return Polygon{}, fmt.Errorf("polygon needs at least 3 distinct points, got %d: %w", len(kept), ErrDegenerate)
	}
	return Polygon{points: kept}, nil
}

// Points returns a copy of the polygon's points, without the implicit
// closing point.
func (p Polygon) Points() []Point {
	return append([]Point(nil), p.points...)
}

// Len returns the number of points.
func (p Polygon) Len() int { return len(p.points) }

// Bounds returns the bounding rectangle of the polygon.
func (p Polygon) Bounds() Rect {
	return boundsOf(p.points)
}

// Area returns the unsigned area enclosed by the polygon (shoelace formula).
func (p Polygon) Area() float64 {
	var a float64
	n := len(p.points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += p.points[i].X*p.points[j].Y - p.points[j].X*p.points[i].Y
	}
	return math.Abs(a) / 2
}

// Centroid returns the arithmetic mean of the polygon's vertices.
func (p Polygon) Centroid() Point {
	var c Point
	for _, pt := range p.points {
		c.X += pt.X
		c.Y += pt.Y
	}
	n := float64(len(p.points))
	return Point{X: c.X / n, Y: c.Y / n}
}

// Contains reports whether the point lies inside the polygon, using the
// even-odd ray casting rule. Points exactly on an edge may land on either
// side; callers that care should test the bounding rectangle first.
func (p Polygon) Contains(pt Point) bool {
	inside := false
	n := len(p.points)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := p.points[i], p.points[j]
		if (pi.Y > pt.Y) != (pj.Y > pt.Y) &&
			pt.X < (pj.X-pi.X)*(pt.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

// ContainsBaseline reports whether the majority of the baseline's points lie
// inside the polygon. Segmentation uses this to associate lines with
// regions; requiring only a majority tolerates baselines that poke slightly
// past a region boundary.
func (p Polygon) ContainsBaseline(b Baseline) bool {
	inside := 0
	for _, pt := range b.Points() {
		if p.Contains(pt) {
			inside++
		}
	}
	return inside*2 > b.Len()
}

// FromRect returns the rectangle as a four-point polygon.
func FromRect(r Rect) Polygon {
	return Polygon{points: []Point{
		{X: r.X1, Y: r.Y1},
		{X: r.X2, Y: r.Y1},
		{X: r.X2, Y: r.Y2},
		{X: r.X1, Y: r.Y2},
	}}
}

func boundsOf(pts []Point) Rect {
	r := Rect{X1: math.Inf(1), Y1: math.Inf(1), X2: math.Inf(-1), Y2: math.Inf(-1)}
	for _, p := range pts {
		r.X1 = math.Min(r.X1, p.X)
		r.Y1 = math.Min(r.Y1, p.Y)
		r.X2 = math.Max(r.X2, p.X)
		r.Y2 = math.Max(r.Y2, p.Y)
	}
	return r
}
