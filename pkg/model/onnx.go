package model

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	ort "github.com/getcharzp/onnxruntime_purego"
	"github.com/up-zero/gotool/imageutil"

	"github.com/scriptorium/scriptor/pkg/codec"
	"github.com/scriptorium/scriptor/pkg/ctc"
	"github.com/scriptorium/scriptor/pkg/segment"
)

// DefaultLibraryPath returns the conventional location of the bundled
// onnxruntime shared library for the current platform.
func DefaultLibraryPath() string {
	base := "./lib/onnxruntime"
	switch runtime.GOOS {
	case "windows":
		return base + ".dll"
	case "darwin":
		return fmt.Sprintf("%s_%s.dylib", base, runtime.GOARCH)
	default:
		return fmt.Sprintf("%s_%s.so", base, runtime.GOARCH)
	}
}

// The runtime library is loaded once per process and shared by every
// session.
var (
	engineOnce sync.Once
	engine     *ort.Engine
	engineErr  error
)

func sharedEngine(libPath string) (*ort.Engine, error) {
	engineOnce.Do(func() {
		if libPath == "" {
			libPath = DefaultLibraryPath()
		}
		engine, engineErr = ort.NewEngine(libPath)
		if engineErr != nil {
			engineErr = fmt.Errorf("loading onnxruntime from %s: %v: %w", libPath, engineErr, ErrModel)
		}
	})
	return engine, engineErr
}

func newSession(modelPath, libPath string) (*ort.Session, error) {
	eng, err := sharedEngine(libPath)
	if err != nil {
		return nil, err
	}
	sess, err := eng.NewSession(modelPath, nil)
	if err != nil {
		return nil, fmt.Errorf("opening model %s: %v: %w", modelPath, err, ErrModel)
	}
	return sess, nil
}

// Options configures model loading.
type Options struct {
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string
}

// ONNXRecognizer is a Recognizer backed by an ONNX sequence model. The
// graph consumes a single-channel line image of fixed height and arbitrary
// width and emits a softmax probability matrix of shape [1, T, classes].
type ONNXRecognizer struct {
	sess *ort.Session
	meta *Metadata
}

// LoadRecognizer opens a recognition model and its metadata sidecar. The
// declared class count is checked against the alphabet before any inference
// runs.
func LoadRecognizer(modelPath string, opts Options) (*ONNXRecognizer, error) {
	meta, err := LoadMetadata(modelPath)
	if err != nil {
		return nil, err
	}
	if meta.Kind != KindRecognition {
		return nil, fmt.Errorf("%s is a %q model, not a recognition model: %w", modelPath, meta.Kind, ErrModel)
	}
	sess, err := newSession(modelPath, opts.LibraryPath)
	if err != nil {
		return nil, err
	}
	return &ONNXRecognizer{sess: sess, meta: meta}, nil
}

// Alphabet returns the alphabet the model was trained on.
func (r *ONNXRecognizer) Alphabet() *codec.Codec { return r.meta.Alphabet }

// InputHeight returns the normalized line height the model expects.
func (r *ONNXRecognizer) InputHeight() int { return r.meta.InputHeight }

// Metadata returns the model's metadata sidecar.
func (r *ONNXRecognizer) Metadata() Metadata { return *r.meta }

// Predict runs the model over one normalized line.
func (r *ONNXRecognizer) Predict(line *image.Gray) (*ctc.Matrix, error) {
	h := line.Bounds().Dy()
	w := line.Bounds().Dx()
	if h != r.meta.InputHeight {
		return nil, fmt.Errorf("line height %d, model expects %d: %w", h, r.meta.InputHeight, ErrIncompatible)
	}
	if w == 0 {
		return nil, fmt.Errorf("zero-width line: %w", ErrModel)
	}

	data, shape := tensorize(line, r.meta.Mean, r.meta.Std)
	input, err := ort.NewTensor(shape, data)
	if err != nil {
		return nil, fmt.Errorf("building input tensor: %v: %w", err, ErrModel)
	}
	defer input.Destroy()

	outputs, err := r.sess.Run(map[string]*ort.Value{r.meta.Input: input})
	if err != nil {
		return nil, fmt.Errorf("recognition inference: %v: %w", err, ErrModel)
	}
	out, ok := outputs[r.meta.Output]
	if !ok {
		return nil, fmt.Errorf("model has no output node %q: %w", r.meta.Output, ErrModel)
	}
	defer out.Destroy()

	probs, err := ort.GetTensorData[float32](out)
	if err != nil {
		return nil, fmt.Errorf("reading output tensor: %v: %w", err, ErrModel)
	}
	classes := r.meta.Classes
	if len(probs) == 0 || len(probs)%classes != 0 {
		return nil, fmt.Errorf("output of %d values is not a multiple of %d classes: %w",
			len(probs), classes, ErrIncompatible)
	}
	return ctc.FromSlice(probs, len(probs)/classes, classes)
}

// Close releases the underlying session.
func (r *ONNXRecognizer) Close() error {
	if r.sess != nil {
		r.sess.Destroy()
		r.sess = nil
	}
	return nil
}

// ONNXLayout is a LayoutModel backed by an ONNX pixel classifier. The graph
// consumes a single-channel page image and emits per-pixel class planes of
// shape [1, 1+len(regions), H, W], the first plane being baseline
// likelihood.
type ONNXLayout struct {
	sess *ort.Session
	meta *Metadata
}

// LoadLayout opens a layout model and its metadata sidecar.
func LoadLayout(modelPath string, opts Options) (*ONNXLayout, error) {
	meta, err := LoadMetadata(modelPath)
	if err != nil {
		return nil, err
	}
	if meta.Kind != KindLayout {
		return nil, fmt.Errorf("%s is a %q model, not a layout model: %w", modelPath, meta.Kind, ErrModel)
	}
	sess, err := newSession(modelPath, opts.LibraryPath)
	if err != nil {
		return nil, err
	}
	return &ONNXLayout{sess: sess, meta: meta}, nil
}

// Heatmap runs the pixel classifier over a page. Pages larger than the
// model's input bound are scaled down first; plane coordinates are in the
// scaled raster, which segmentation tolerates because baselines and regions
// scale together.
func (l *ONNXLayout) Heatmap(page image.Image) (*segment.Heatmap, error) {
	gray := imageutil.Grayscale(page)
	if m := l.meta.InputHeight; m > 0 {
		b := gray.Bounds()
		if b.Dx() > m || b.Dy() > m {
			scale := float64(m) / float64(max(b.Dx(), b.Dy()))
			gray = imageutil.Grayscale(imageutil.Resize(gray,
				int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)))
		}
	}
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty page image: %w", ErrModel)
	}

	data, shape := tensorize(gray, l.meta.Mean, l.meta.Std)
	input, err := ort.NewTensor(shape, data)
	if err != nil {
		return nil, fmt.Errorf("building input tensor: %v: %w", err, ErrModel)
	}
	defer input.Destroy()

	outputs, err := l.sess.Run(map[string]*ort.Value{l.meta.Input: input})
	if err != nil {
		return nil, fmt.Errorf("layout inference: %v: %w", err, ErrModel)
	}
	out, ok := outputs[l.meta.Output]
	if !ok {
		return nil, fmt.Errorf("model has no output node %q: %w", l.meta.Output, ErrModel)
	}
	defer out.Destroy()

	planes, err := ort.GetTensorData[float32](out)
	if err != nil {
		return nil, fmt.Errorf("reading output tensor: %v: %w", err, ErrModel)
	}
	nplanes := 1 + len(l.meta.Regions)
	if len(planes) != nplanes*w*h {
		return nil, fmt.Errorf("output of %d values for %d planes of %dx%d: %w",
			len(planes), nplanes, w, h, ErrIncompatible)
	}

	hm := &segment.Heatmap{
		Baselines: planeAt(planes, 0, w, h),
		Regions:   make(map[segment.RegionType]*segment.Plane, len(l.meta.Regions)),
	}
	for i, typ := range l.meta.Regions {
		hm.Regions[typ] = planeAt(planes, i+1, w, h)
	}
	return hm, nil
}

// Close releases the underlying session.
func (l *ONNXLayout) Close() error {
	if l.sess != nil {
		l.sess.Destroy()
		l.sess = nil
	}
	return nil
}

func planeAt(data []float32, idx, w, h int) *segment.Plane {
	out := make([]float32, w*h)
	copy(out, data[idx*w*h:(idx+1)*w*h])
	return &segment.Plane{W: w, H: h, Data: out}
}

// tensorize converts a gray image into an NCHW float tensor with the given
// normalization constants.
func tensorize(img *image.Gray, mean, std float32) ([]float32, []int64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]float32, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, pix := range row {
			data[y*w+x] = (float32(pix)/255 - mean) / std
		}
	}
	return data, []int64{1, 1, int64(h), int64(w)}
}
