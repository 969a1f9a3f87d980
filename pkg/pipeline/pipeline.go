// Package pipeline drives full-page and batch recognition: layout analysis
// first, then line recognition in reading order, with per-page error
// isolation for batch runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"

	"github.com/scriptorium/scriptor/pkg/model"
	"github.com/scriptorium/scriptor/pkg/recognize"
	"github.com/scriptorium/scriptor/pkg/segment"
)

// PageResult is the outcome of recognizing one page. Lines appear in the
// reading order established by segmentation.
type PageResult struct {
	Segmentation *segment.Segmentation
	Lines        []*recognize.Transcription
}

// Text returns the page transcription, one line per text line in reading
// order.
func (r *PageResult) Text() string {
	parts := make([]string, len(r.Lines))
	for i, ln := range r.Lines {
		parts[i] = ln.Text
	}
	return strings.Join(parts, "\n")
}

// Confidence returns the product of the line confidences; an empty page has
// confidence 1.
func (r *PageResult) Confidence() float64 {
	conf := 1.0
	for _, ln := range r.Lines {
		conf *= ln.Confidence
	}
	return conf
}

// Config holds the batch parameters.
type Config struct {
	// Workers bounds the number of pages processed concurrently in Batch.
	// Values below 2 process pages sequentially. Concurrent batches
	// require a Recognizer whose Predict is safe for concurrent use, which
	// holds for the ONNX backend.
	Workers int
	// Logger receives per-page progress and skip notes; nil discards them.
	Logger io.Writer
}

// Pipeline binds a segmenter, an optional layout model and a recognition
// engine into a page driver.
type Pipeline struct {
	seg    *segment.Segmenter
	layout model.LayoutModel
	eng    *recognize.Engine
	cfg    Config
}

// New returns a Pipeline. layout may be nil, in which case segmentation
// falls back to the heuristic mode.
func New(seg *segment.Segmenter, layout model.LayoutModel, eng *recognize.Engine, cfg Config) *Pipeline {
	return &Pipeline{seg: seg, layout: layout, eng: eng, cfg: cfg}
}

// Page recognizes one page: segment, then transcribe every line in reading
// order. A segmentation failure aborts the page; so does the first line
// recognition failure, since partial pages are worse than absent ones for
// downstream document assembly.
func (p *Pipeline) Page(ctx context.Context, img image.Image) (*PageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var hm *segment.Heatmap
	if p.layout != nil {
		var err error
		hm, err = p.layout.Heatmap(img)
		if err != nil {
			return nil, fmt.Errorf("layout analysis: %w", err)
		}
	}
	seg, err := p.seg.Segment(img, hm)
	if err != nil {
		return nil, err
	}

	result := &PageResult{Segmentation: seg}
	for i, ln := range seg.Lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr, err := p.eng.Line(img, ln)
		if err != nil {
			return nil, fmt.Errorf("line %d of %d: %w", i+1, len(seg.Lines), err)
		}
		result.Lines = append(result.Lines, tr)
	}
	return result, nil
}

// Batch recognizes pages independently: a failing page yields an entry in
// Errs and a nil entry in Pages at the same index, and the remaining pages
// still run. Batch itself fails when the context is cancelled, or when a
// page surfaces model.ErrIncompatible: a model that cannot serve one page
// cannot serve any, so the batch stops instead of failing page by page.
func (p *Pipeline) Batch(ctx context.Context, pages []image.Image) ([]*PageResult, []error, error) {
	results := make([]*PageResult, len(pages))
	errs := make([]error, len(pages))

	workers := p.cfg.Workers
	if workers < 2 {
		for i, img := range pages {
			if err := ctx.Err(); err != nil {
				return results, errs, err
			}
			results[i], errs[i] = p.runPage(ctx, i, img)
			if errors.Is(errs[i], model.ErrIncompatible) {
				return results, errs, errs[i]
			}
		}
		return results, errs, ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var mu sync.Mutex
	var fatal error

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, img := range pages {
		select {
		case <-ctx.Done():
			wg.Wait()
			return results, errs, p.batchErr(ctx, &mu, &fatal)
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, img image.Image) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errs[i] = p.runPage(ctx, i, img)
			if errors.Is(errs[i], model.ErrIncompatible) {
				mu.Lock()
				if fatal == nil {
					fatal = errs[i]
				}
				mu.Unlock()
				cancel()
			}
		}(i, img)
	}
	wg.Wait()
	return results, errs, p.batchErr(ctx, &mu, &fatal)
}

// batchErr reports the structural failure if one was recorded, otherwise
// the context state.
func (p *Pipeline) batchErr(ctx context.Context, mu *sync.Mutex, fatal *error) error {
	mu.Lock()
	defer mu.Unlock()
	if *fatal != nil {
		return *fatal
	}
	return ctx.Err()
}

func (p *Pipeline) runPage(ctx context.Context, idx int, img image.Image) (*PageResult, error) {
	result, err := p.Page(ctx, img)
	if err != nil {
		p.logf("page %d failed: %v", idx+1, err)
		return nil, fmt.Errorf("page %d: %w", idx+1, err)
	}
	p.logf("page %d: %d lines", idx+1, len(result.Lines))
	return result, nil
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.cfg.Logger != nil {
		fmt.Fprintf(p.cfg.Logger, format+"\n", args...)
	}
}
