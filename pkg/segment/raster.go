package segment

import (
	"sort"

	"github.com/scriptorium/scriptor/pkg/geom"
)

// bitmap is a binary raster used for thinning and component extraction.
type bitmap struct {
	w, h int
	pix  []bool
}

func newBitmap(w, h int) *bitmap {
	return &bitmap{w: w, h: h, pix: make([]bool, w*h)}
}

func (b *bitmap) at(x, y int) bool {
	if x < 0 || x >= b.w || y < 0 || y >= b.h {
		return false
	}
	return b.pix[y*b.w+x]
}

func (b *bitmap) set(x, y int, v bool) { b.pix[y*b.w+x] = v }

func (b *bitmap) clone() *bitmap {
	out := newBitmap(b.w, b.h)
	copy(out.pix, b.pix)
	return out
}

func binarize(p *Plane, threshold float32) *bitmap {
	out := newBitmap(p.W, p.H)
	for i, v := range p.Data {
		out.pix[i] = v >= threshold
	}
	return out
}

// neighbors8 lists the 8-neighborhood clockwise from north, as used by the
// thinning transition count.
var neighbors8 = [8][2]int{
	{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
}

// thin reduces foreground blobs to one-pixel-wide skeletons with the
// Zhang-Suen iterative thinning algorithm.
func thin(b *bitmap) *bitmap {
	img := b.clone()
	for {
		changed := false
		for pass := 0; pass < 2; pass++ {
			var remove [][2]int
			for y := 0; y < img.h; y++ {
				for x := 0; x < img.w; x++ {
					if !img.at(x, y) {
						continue
					}
					var n [8]bool
					count := 0
					for i, d := range neighbors8 {
						n[i] = img.at(x+d[0], y+d[1])
						if n[i] {
							count++
						}
					}
					if count < 2 || count > 6 {
						continue
					}
					transitions := 0
					for i := 0; i < 8; i++ {
						if !n[i] && n[(i+1)%8] {
							transitions++
						}
					}
					if transitions != 1 {
						continue
					}
					// n[0]=N, n[2]=E, n[4]=S, n[6]=W
					if pass == 0 {
						if (n[0] && n[2] && n[4]) || (n[2] && n[4] && n[6]) {
							continue
						}
					} else {
						if (n[0] && n[2] && n[6]) || (n[0] && n[4] && n[6]) {
							continue
						}
					}
					remove = append(remove, [2]int{x, y})
				}
			}
			for _, p := range remove {
				img.set(p[0], p[1], false)
			}
			if len(remove) > 0 {
				changed = true
			}
		}
		if !changed {
			return img
		}
	}
}

// tracePolylines extracts one polyline per skeleton component: the longest
// simple path through the component, found with two breadth-first sweeps,
// then simplified. Short spurs off the main stroke are ignored.
func tracePolylines(skeleton *bitmap) [][]geom.Point {
	labels := make([]int, skeleton.w*skeleton.h)
	var lines [][]geom.Point
	next := 0
	for y := 0; y < skeleton.h; y++ {
		for x := 0; x < skeleton.w; x++ {
			if !skeleton.at(x, y) || labels[y*skeleton.w+x] != 0 {
				continue
			}
			next++
			component := flood(skeleton, labels, x, y, next)
			if len(component) < 2 {
				continue
			}
			far, _ := bfsFarthest(skeleton, component[0])
			end, parents := bfsFarthest(skeleton, far)
			path := walkParents(parents, far, end, skeleton.w)
			if len(path) < 2 {
				continue
			}
			lines = append(lines, simplify(path, 1.5))
		}
	}
	return lines
}

func flood(b *bitmap, labels []int, x, y, label int) [][2]int {
	var out [][2]int
	stack := [][2]int{{x, y}}
	labels[y*b.w+x] = label
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, p)
		for _, d := range neighbors8 {
			nx, ny := p[0]+d[0], p[1]+d[1]
			if b.at(nx, ny) && labels[ny*b.w+nx] == 0 {
				labels[ny*b.w+nx] = label
				stack = append(stack, [2]int{nx, ny})
			}
		}
	}
	return out
}

// bfsFarthest runs a breadth-first search over skeleton pixels from start
// and returns the farthest pixel reached together with the parent table.
func bfsFarthest(b *bitmap, start [2]int) ([2]int, map[int]int) {
	parents := map[int]int{start[1]*b.w + start[0]: -1}
	queue := [][2]int{start}
	last := start
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		last = p
		for _, d := range neighbors8 {
			nx, ny := p[0]+d[0], p[1]+d[1]
			if !b.at(nx, ny) {
				continue
			}
			idx := ny*b.w + nx
			if _, seen := parents[idx]; seen {
				continue
			}
			parents[idx] = p[1]*b.w + p[0]
			queue = append(queue, [2]int{nx, ny})
		}
	}
	return last, parents
}

func walkParents(parents map[int]int, from, to [2]int, w int) []geom.Point {
	var path []geom.Point
	idx := to[1]*w + to[0]
	for idx >= 0 {
		path = append(path, geom.Point{X: float64(idx % w), Y: float64(idx / w)})
		next, ok := parents[idx]
		if !ok {
			break
		}
		idx = next
	}
	// Reverse so the path runs from -> to.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// simplify applies Douglas-Peucker polyline simplification.
func simplify(pts []geom.Point, epsilon float64) []geom.Point {
	if len(pts) <= 2 {
		return pts
	}
	maxDist, maxIdx := 0.0, 0
	a, b := pts[0], pts[len(pts)-1]
	for i := 1; i < len(pts)-1; i++ {
		if d := perpDist(pts[i], a, b); d > maxDist {
			maxDist, maxIdx = d, i
		}
	}
	if maxDist <= epsilon {
		return []geom.Point{a, b}
	}
	left := simplify(pts[:maxIdx+1], epsilon)
	right := simplify(pts[maxIdx:], epsilon)
	return append(left[:len(left)-1], right...)
}

func perpDist(p, a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := a.Dist(b)
	if length == 0 {
		return p.Dist(a)
	}
	return abs64(dy*p.X-dx*p.Y+b.X*a.Y-b.Y*a.X) / length
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// regionHulls extracts the convex hull of every sufficiently large
// foreground component and merges hulls that overlap, so same-type regions
// never claim the same area twice.
func regionHulls(b *bitmap) [][]geom.Point {
	const minArea = 16
	labels := make([]int, b.w*b.h)
	var pointSets [][]geom.Point
	next := 0
	for y := 0; y < b.h; y++ {
		for x := 0; x < b.w; x++ {
			if !b.at(x, y) || labels[y*b.w+x] != 0 {
				continue
			}
			next++
			component := flood(b, labels, x, y, next)
			if len(component) < minArea {
				continue
			}
			pts := make([]geom.Point, 0, 2*len(component))
			for _, p := range component {
				// Pixel corners, so single-pixel-wide components still
				// enclose area.
				pts = append(pts,
					geom.Point{X: float64(p[0]), Y: float64(p[1])},
					geom.Point{X: float64(p[0] + 1), Y: float64(p[1] + 1)},
				)
			}
			pointSets = append(pointSets, pts)
		}
	}

	hulls := make([][]geom.Point, len(pointSets))
	for i, pts := range pointSets {
		hulls[i] = convexHull(pts)
	}

	// Merge any overlapping pair until stable.
	for {
		merged := false
		for i := 0; i < len(hulls) && !merged; i++ {
			for j := i + 1; j < len(hulls); j++ {
				if !hullsOverlap(hulls[i], hulls[j]) {
					continue
				}
				hulls[i] = convexHull(append(append([]geom.Point(nil), hulls[i]...), hulls[j]...))
				hulls = append(hulls[:j], hulls[j+1:]...)
				merged = true
				break
			}
		}
		if !merged {
			return hulls
		}
	}
}

func hullsOverlap(a, b []geom.Point) bool {
	pa, errA := geom.NewPolygon(a)
	pb, errB := geom.NewPolygon(b)
	if errA != nil || errB != nil {
		return false
	}
	if !pa.Bounds().Intersects(pb.Bounds()) {
		return false
	}
	for _, p := range b {
		if pa.Contains(p) {
			return true
		}
	}
	for _, p := range a {
		if pb.Contains(p) {
			return true
		}
	}
	return pa.Contains(pb.Centroid()) || pb.Contains(pa.Centroid())
}

// convexHull computes the convex hull with the Andrew monotone chain
// algorithm, counter-clockwise in image coordinates.
func convexHull(pts []geom.Point) []geom.Point {
	if len(pts) < 3 {
		return pts
	}
	sorted := append([]geom.Point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	cross := func(o, a, b geom.Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	var lower []geom.Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	var upper []geom.Point
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}
