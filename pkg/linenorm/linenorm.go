// Package linenorm rectifies polygon-bounded text line regions into
// fixed-height rasters for the recognition network.
//
// The transform fits a low-degree polynomial through the baseline points,
// resamples the page along normals to that curve, and pins the baseline to a
// fixed row of the output raster. Curved and skewed lines come out straight;
// the output width is proportional to the physical length of the line. The
// transform is pure: identical inputs produce byte-identical rasters.
package linenorm

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/up-zero/gotool/imageutil"
	xdraw "golang.org/x/image/draw"

	"github.com/scriptorium/scriptor/pkg/geom"
)

// background is the fill value for samples outside the page or the line
// polygon; pages are dark-on-light.
const background = 0xff

// Config holds the normalization parameters.
type Config struct {
	// Height is the fixed height of the output raster in pixels.
	Height int
	// BaselineRatio is the fraction of the output height above the
	// baseline (the ascender share). The baseline lands on row
	// Height*BaselineRatio.
	BaselineRatio float64
	// Degree is the degree of the polynomial fitted through the baseline
	// points. Values above 3 rarely help and start chasing noise.
	Degree int
}

// DefaultConfig returns the parameters used by the bundled recognition
// models: 48 px lines with the baseline at three quarters height.
func DefaultConfig() Config {
	return Config{
		Height:        48,
		BaselineRatio: 0.75,
		Degree:        3,
	}
}

// Normalize dewarps the line written along baseline into a raster of
// cfg.Height pixels. lineHeight is the nominal distance in page pixels from
// descender to ascender; the output width is the baseline arc length scaled
// by cfg.Height/lineHeight.
//
// A baseline with fewer than two distinct points never leaves
// geom.NewBaseline, but a zero or negative lineHeight is reported as
// degenerate geometry here.
func Normalize(src image.Image, baseline geom.Baseline, lineHeight float64, cfg Config) (*image.Gray, error) {
	return normalize(src, baseline, nil, lineHeight, cfg)
}

// NormalizePolygon dewarps a line like Normalize but additionally masks
// samples outside the line polygon to the background value, so ascenders and
// descenders of neighboring lines do not bleed into the raster.
func NormalizePolygon(src image.Image, baseline geom.Baseline, polygon geom.Polygon, lineHeight float64, cfg Config) (*image.Gray, error) {
	return normalize(src, baseline, &polygon, lineHeight, cfg)
}

func normalize(src image.Image, baseline geom.Baseline, mask *geom.Polygon, lineHeight float64, cfg Config) (*image.Gray, error) {
	if lineHeight <= 0 {
		return nil, fmt.Errorf("line height %v: %w", lineHeight, geom.ErrDegenerate)
	}
	if cfg.Height <= 0 {
		return nil, fmt.Errorf("output height %d must be positive", cfg.Height)
	}
	if cfg.BaselineRatio <= 0 || cfg.BaselineRatio >= 1 {
		return nil, fmt.Errorf("baseline ratio %v outside (0,1)", cfg.BaselineRatio)
	}

	gray := imageutil.Grayscale(src)

	curve, err := fitCurve(baseline, cfg.Degree)
	if err != nil {
		return nil, err
	}

	// Dewarp at page resolution first, then scale to the fixed height in a
	// single resampling pass.
	nativeH := int(math.Round(lineHeight))
	if nativeH < 2 {
		nativeH = 2
	}
	nativeW := int(math.Round(baseline.Length()))
	if nativeW < 1 {
		nativeW = 1
	}
	ascend := lineHeight * cfg.BaselineRatio

	native := image.NewGray(image.Rect(0, 0, nativeW, nativeH))
	for x := 0; x < nativeW; x++ {
		t := 0.0
		if nativeW > 1 {
			t = float64(x) / float64(nativeW-1)
		}
		p, nx, ny := curve.at(t)
		for y := 0; y < nativeH; y++ {
			// Signed distance from the baseline in page pixels; negative
			// rows lie above the baseline (ascender side).
			d := float64(y) - ascend
			sx := p.X + nx*d
			sy := p.Y + ny*d
			v := uint8(background)
			if mask == nil || mask.Contains(geom.Point{X: sx, Y: sy}) {
				v = sampleBilinear(gray, sx, sy)
			}
			native.SetGray(x, y, color.Gray{Y: v})
		}
	}

	outW := int(math.Round(float64(nativeW) * float64(cfg.Height) / float64(nativeH)))
	if outW < 1 {
		outW = 1
	}
	out := image.NewGray(image.Rect(0, 0, outW, cfg.Height))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), native, native.Bounds(), xdraw.Src, nil)
	return out, nil
}

// curve is a pair of polynomials x(t), y(t) over t in [0, 1] with
// precomputed arc-length reparameterization so at(t) moves at constant
// speed along the fitted curve.
type curve struct {
	cx, cy []float64 // polynomial coefficients, low order first
	ts     []float64 // arc-length lookup: ts[i] is the parameter at i/(n-1) of total length
}

const curveSamples = 64

// fitCurve fits least-squares polynomials through the baseline points,
// parameterized by normalized arc length along the polyline.
func fitCurve(baseline geom.Baseline, degree int) (*curve, error) {
	pts := baseline.Points()
	if degree < 1 {
		degree = 1
	}
	if degree > len(pts)-1 {
		degree = len(pts) - 1
	}

	// Chord-length parameterization of the input points.
	params := make([]float64, len(pts))
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += pts[i-1].Dist(pts[i])
		params[i] = total
	}
	if total == 0 {
		return nil, fmt.Errorf("zero-length baseline: %w", geom.ErrDegenerate)
	}
	for i := range params {
		params[i] /= total
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.X
		ys[i] = p.Y
	}
	cx, err := polyfit(params, xs, degree)
	if err != nil {
		return nil, err
	}
	cy, err := polyfit(params, ys, degree)
	if err != nil {
		return nil, err
	}

	c := &curve{cx: cx, cy: cy}
	c.buildArcTable()
	return c, nil
}

func (c *curve) buildArcTable() {
	// Cumulative length at uniformly spaced parameters, inverted into a
	// uniform-length table.
	lens := make([]float64, curveSamples)
	prev := c.point(0)
	for i := 1; i < curveSamples; i++ {
		t := float64(i) / float64(curveSamples-1)
		p := c.point(t)
		lens[i] = lens[i-1] + prev.Dist(p)
		prev = p
	}
	total := lens[curveSamples-1]
	c.ts = make([]float64, curveSamples)
	if total == 0 {
		for i := range c.ts {
			c.ts[i] = float64(i) / float64(curveSamples-1)
		}
		return
	}
	j := 0
	for i := range c.ts {
		target := total * float64(i) / float64(curveSamples-1)
		for j < curveSamples-2 && lens[j+1] < target {
			j++
		}
		span := lens[j+1] - lens[j]
		frac := 0.0
		if span > 0 {
			frac = (target - lens[j]) / span
		}
		c.ts[i] = (float64(j) + frac) / float64(curveSamples-1)
	}
}

func (c *curve) point(t float64) geom.Point {
	return geom.Point{X: polyval(c.cx, t), Y: polyval(c.cy, t)}
}

// at returns the curve point at normalized arc length t together with the
// unit normal (pointing to the descender side for left-to-right lines).
func (c *curve) at(t float64) (geom.Point, float64, float64) {
	// Map arc length to curve parameter through the lookup table.
	pos := t * float64(curveSamples-1)
	i := int(pos)
	if i >= curveSamples-1 {
		i = curveSamples - 2
	}
	frac := pos - float64(i)
	u := c.ts[i] + (c.ts[i+1]-c.ts[i])*frac

	p := c.point(u)
	dx := polyderiv(c.cx, u)
	dy := polyderiv(c.cy, u)
	norm := math.Hypot(dx, dy)
	if norm == 0 {
		return p, 0, 1
	}
	// Rotate the unit tangent by 90 degrees.
	return p, -dy / norm, dx / norm
}

// polyfit solves the least-squares polynomial fit of the given degree using
// the normal equations; the handful of coefficients involved keeps the
// system tiny, Gaussian elimination with partial pivoting is plenty.
func polyfit(xs, ys []float64, degree int) ([]float64, error) {
	n := degree + 1
	// Normal equations A^T A c = A^T y for the Vandermonde matrix A.
	ata := make([][]float64, n)
	aty := make([]float64, n)
	for i := range ata {
		ata[i] = make([]float64, n)
	}
	for k, x := range xs {
		pow := make([]float64, n)
		pow[0] = 1
		for i := 1; i < n; i++ {
			pow[i] = pow[i-1] * x
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				ata[i][j] += pow[i] * pow[j]
			}
			aty[i] += pow[i] * ys[k]
		}
	}
	coef, err := solve(ata, aty)
	if err != nil {
		return nil, fmt.Errorf("polynomial fit: %w", err)
	}
	return coef, nil
}

func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for row := col + 1; row < n; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= f * a[col][k]
			}
			b[row] -= f * b[col]
		}
	}
	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

func polyval(coef []float64, x float64) float64 {
	v := 0.0
	for i := len(coef) - 1; i >= 0; i-- {
		v = v*x + coef[i]
	}
	return v
}

func polyderiv(coef []float64, x float64) float64 {
	v := 0.0
	for i := len(coef) - 1; i >= 1; i-- {
		v = v*x + coef[i]*float64(i)
	}
	return v
}

// sampleBilinear reads the grayscale image at a fractional position,
// returning the background value outside the image.
func sampleBilinear(img *image.Gray, x, y float64) uint8 {
	b := img.Bounds()
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	at := func(px, py int) float64 {
		if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
			return background
		}
		return float64(img.GrayAt(px, py).Y)
	}

	v := at(x0, y0)*(1-fx)*(1-fy) +
		at(x0+1, y0)*fx*(1-fy) +
		at(x0, y0+1)*(1-fx)*fy +
		at(x0+1, y0+1)*fx*fy
	return uint8(math.Round(v))
}
