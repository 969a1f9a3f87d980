package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/scriptorium/scriptor/pkg/codec"
	"github.com/scriptorium/scriptor/pkg/ctc"
	"github.com/scriptorium/scriptor/pkg/model"
	"github.com/scriptorium/scriptor/pkg/recognize"
	"github.com/scriptorium/scriptor/pkg/segment"
)

// stubModel replays a fixed probability matrix for every line.
type stubModel struct {
	alphabet *codec.Codec
	matrix   *ctc.Matrix
	calls    atomic.Int32
}

func (s *stubModel) Predict(line *image.Gray) (*ctc.Matrix, error) {
	s.calls.Add(1)
	return s.matrix, nil
}

func (s *stubModel) Alphabet() *codec.Codec { return s.alphabet }
func (s *stubModel) InputHeight() int       { return 48 }
func (s *stubModel) Close() error           { return nil }

type stubLayout struct {
	hm  *segment.Heatmap
	err error
}

func (s *stubLayout) Heatmap(page image.Image) (*segment.Heatmap, error) { return s.hm, s.err }
func (s *stubLayout) Close() error                                       { return nil }

func abMatrix(t *testing.T) *ctc.Matrix {
	t.Helper()
	// [A, A, blank, B]: collapses to "AB".
	path := []int{1, 1, 0, 2}
	m, err := ctc.NewMatrix(len(path), 3)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	for step, cls := range path {
		for c := 0; c < 3; c++ {
			if c == cls {
				m.Set(step, c, 0.9)
			} else {
				m.Set(step, c, 0.05)
			}
		}
	}
	return m
}

func abEngine(t *testing.T) (*recognize.Engine, *stubModel) {
	t.Helper()
	alphabet, err := codec.New([]string{"A", "B"})
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}
	stub := &stubModel{alphabet: alphabet, matrix: abMatrix(t)}
	return recognize.New(stub, recognize.DefaultConfig()), stub
}

// pageWithBands draws dark text bands on a white page.
func pageWithBands(w, h int, rows ...int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	for _, top := range rows {
		for y := top; y < top+8; y++ {
			for x := 20; x <= w-20; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return img
}

func TestPageEndToEnd(t *testing.T) {
	eng, stub := abEngine(t)
	p := New(segment.New(segment.DefaultConfig()), nil, eng, Config{})

	result, err := p.Page(context.Background(), pageWithBands(200, 100, 40))
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if stub.calls.Load() != 1 {
		t.Errorf("model ran %d times, want 1", stub.calls.Load())
	}
	if result.Text() != "AB" {
		t.Errorf("page text = %q, want AB", result.Text())
	}
	if len(result.Lines) != 1 || len(result.Lines[0].Symbols) != 2 {
		t.Fatalf("unexpected result shape: %+v", result.Lines)
	}
	if c := result.Confidence(); c <= 0 || c > 1 {
		t.Errorf("page confidence %v out of (0, 1]", c)
	}

	a, b := result.Lines[0].Symbols[0], result.Lines[0].Symbols[1]
	if a.Grapheme != "A" || b.Grapheme != "B" {
		t.Errorf("symbols %q, %q, want A, B", a.Grapheme, b.Grapheme)
	}
	if a.Box.X2 > b.Box.X1 {
		t.Error("symbol boxes out of reading order")
	}
}

func TestPageMultiLineReadingOrder(t *testing.T) {
	eng, stub := abEngine(t)
	p := New(segment.New(segment.DefaultConfig()), nil, eng, Config{})

	result, err := p.Page(context.Background(), pageWithBands(200, 160, 100, 30))
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(result.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(result.Lines))
	}
	if stub.calls.Load() != 2 {
		t.Errorf("model ran %d times, want 2", stub.calls.Load())
	}
	if result.Text() != "AB\nAB" {
		t.Errorf("page text = %q, want two lines of AB", result.Text())
	}
	first := result.Lines[0].Line.Baseline.Bounds().Y1
	second := result.Lines[1].Line.Baseline.Bounds().Y1
	if first > second {
		t.Error("transcriptions not in reading order")
	}
}

func TestPageEmpty(t *testing.T) {
	eng, stub := abEngine(t)
	p := New(segment.New(segment.DefaultConfig()), nil, eng, Config{})

	result, err := p.Page(context.Background(), pageWithBands(200, 100))
	if err != nil {
		t.Fatalf("blank page must not fail: %v", err)
	}
	if len(result.Lines) != 0 || result.Text() != "" {
		t.Errorf("blank page produced %q", result.Text())
	}
	if stub.calls.Load() != 0 {
		t.Errorf("model ran %d times on a blank page", stub.calls.Load())
	}
}

func TestPageLayoutFailureAborts(t *testing.T) {
	eng, _ := abEngine(t)
	layoutErr := fmt.Errorf("corrupt plane: %w", segment.ErrSegmentation)
	p := New(segment.New(segment.DefaultConfig()), &stubLayout{err: layoutErr}, eng, Config{})

	_, err := p.Page(context.Background(), pageWithBands(200, 100, 40))
	if !errors.Is(err, segment.ErrSegmentation) {
		t.Errorf("want wrapped segmentation error, got %v", err)
	}
}

func TestPageContextCancelled(t *testing.T) {
	eng, _ := abEngine(t)
	p := New(segment.New(segment.DefaultConfig()), nil, eng, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Page(ctx, pageWithBands(200, 100, 40)); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func TestBatchIsolatesFailures(t *testing.T) {
	eng, _ := abEngine(t)
	p := New(segment.New(segment.DefaultConfig()), nil, eng, Config{})

	good := pageWithBands(200, 100, 40)
	results, errs, err := p.Batch(context.Background(), []image.Image{good, good})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	for i := range results {
		if errs[i] != nil {
			t.Errorf("page %d failed: %v", i, errs[i])
		}
		if results[i] == nil || results[i].Text() != "AB" {
			t.Errorf("page %d text wrong", i)
		}
	}
}

func TestBatchCollectsPerPageErrors(t *testing.T) {
	eng, _ := abEngine(t)
	p := New(segment.New(segment.DefaultConfig()),
		&stubLayout{err: fmt.Errorf("bad: %w", segment.ErrSegmentation)}, eng, Config{})

	results, errs, err := p.Batch(context.Background(), []image.Image{
		pageWithBands(200, 100, 40),
		pageWithBands(200, 100, 40),
	})
	if err != nil {
		t.Fatalf("Batch must not fail outright: %v", err)
	}
	for i := range results {
		if results[i] != nil {
			t.Errorf("page %d has a result despite the failure", i)
		}
		if !errors.Is(errs[i], segment.ErrSegmentation) {
			t.Errorf("page %d error = %v, want segmentation failure", i, errs[i])
		}
	}
}

func TestBatchAbortsOnIncompatibleModel(t *testing.T) {
	alphabet, err := codec.New([]string{"A", "B"}) // size 3 with blank
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}
	// Five output classes against a three-class alphabet: the model and
	// codec do not belong together, and no page can change that.
	m, err := ctc.NewMatrix(4, 5)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	for step := 0; step < 4; step++ {
		for c := 0; c < 5; c++ {
			m.Set(step, c, 0.2)
		}
	}
	stub := &stubModel{alphabet: alphabet, matrix: m}
	p := New(segment.New(segment.DefaultConfig()), nil,
		recognize.New(stub, recognize.DefaultConfig()), Config{})

	page := pageWithBands(200, 100, 40)
	results, errs, err := p.Batch(context.Background(), []image.Image{page, page})
	if !errors.Is(err, model.ErrIncompatible) {
		t.Fatalf("Batch error = %v, want model.ErrIncompatible", err)
	}
	if calls := stub.calls.Load(); calls != 1 {
		t.Errorf("model ran %d times, want 1 before the batch aborts", calls)
	}
	if !errors.Is(errs[0], model.ErrIncompatible) {
		t.Errorf("page 1 error = %v, want model.ErrIncompatible", errs[0])
	}
	if results[1] != nil || errs[1] != nil {
		t.Error("page 2 ran after the incompatibility surfaced")
	}
}

func TestBatchConcurrent(t *testing.T) {
	eng, _ := abEngine(t)
	p := New(segment.New(segment.DefaultConfig()), nil, eng, Config{Workers: 4})

	pages := make([]image.Image, 8)
	for i := range pages {
		pages[i] = pageWithBands(200, 100, 40)
	}
	results, errs, err := p.Batch(context.Background(), pages)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	for i := range results {
		if errs[i] != nil || results[i] == nil {
			t.Fatalf("page %d: %v", i, errs[i])
		}
		if results[i].Text() != "AB" {
			t.Errorf("page %d text = %q", i, results[i].Text())
		}
	}
}

func TestBatchCancelled(t *testing.T) {
	eng, _ := abEngine(t)
	p := New(segment.New(segment.DefaultConfig()), nil, eng, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := p.Batch(ctx, []image.Image{pageWithBands(200, 100, 40)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}
