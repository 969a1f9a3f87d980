// scriptor is a command-line tool that turns scanned pages into searchable
// text, hOCR and PDF output.
//
// It runs either locally, with ONNX recognition (and optionally layout)
// models, or remotely through Google Document AI.
//
// Local usage:
//
//	scriptor -model line.onnx -image-dir ./pages [options]
//
// Required local flags:
//
//	-model string      Path to the recognition model (.onnx with a .yaml sidecar)
//	-image-dir string  Directory containing page images (PNG or JPEG)
//
// Remote usage:
//
//	scriptor -docai config.yml -pdf input.pdf [options]
//
// The Document AI config is a YAML file:
//
//	project_id: "your-gcp-project-id"
//	location: "eu"
//	processor_id: "your-processor-id"
//
// Output options (at least one required):
//
//	-text string   Path to save the plain text transcription
//	-hocr string   Path to save hOCR output
//	-output string Path to save a searchable PDF
//
// Processing options:
//
//	-layout string  Path to a layout model for learned segmentation
//	-script string  Sample text in the page's script; sets reading direction
//	-vertical       Order lines top-to-bottom regardless of script
//	-beam int       Beam width for decoding (1 = greedy)
//	-workers int    Pages processed concurrently
//	-onnx-lib string Path to the ONNX Runtime shared library
//	-title string   Document title for hOCR and PDF output
//	-debug          Render the PDF text layer visibly
//	-overwrite      Overwrite output files if they exist
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/scriptorium/scriptor/pkg/docai"
	"github.com/scriptorium/scriptor/pkg/geom"
	"github.com/scriptorium/scriptor/pkg/hocr"
	"github.com/scriptorium/scriptor/pkg/model"
	"github.com/scriptorium/scriptor/pkg/pdfocr"
	"github.com/scriptorium/scriptor/pkg/pipeline"
	"github.com/scriptorium/scriptor/pkg/recognize"
	"github.com/scriptorium/scriptor/pkg/segment"
)

func main() {
	modelPath := flag.String("model", "", "Path to the recognition model")
	layoutPath := flag.String("layout", "", "Path to a layout model for learned segmentation")
	imageDir := flag.String("image-dir", "", "Directory containing page images")
	docaiPath := flag.String("docai", "", "Path to a Document AI config YAML; enables remote recognition")
	pdfPath := flag.String("pdf", "", "Input PDF for remote recognition")

	textPath := flag.String("text", "", "Path to save the plain text transcription")
	hocrPath := flag.String("hocr", "", "Path to save hOCR output")
	outputPath := flag.String("output", "", "Path to save a searchable PDF")

	script := flag.String("script", "", "Sample text in the page's script; sets reading direction")
	vertical := flag.Bool("vertical", false, "Order lines top-to-bottom regardless of script")
	beam := flag.Int("beam", 1, "Beam width for decoding (1 = greedy)")
	workers := flag.Int("workers", 1, "Pages processed concurrently")
	onnxLib := flag.String("onnx-lib", "", "Path to the ONNX Runtime shared library")
	title := flag.String("title", "", "Document title for hOCR and PDF output")
	debug := flag.Bool("debug", false, "Render the PDF text layer visibly")
	overwrite := flag.Bool("overwrite", false, "Overwrite output files if they exist")
	flag.Parse()

	remote := *docaiPath != ""
	if remote == (*modelPath != "") {
		fmt.Fprintln(os.Stderr, "Error: provide either -model (local) or -docai (remote)")
		os.Exit(1)
	}
	if remote && *pdfPath == "" {
		fmt.Fprintln(os.Stderr, "Error: remote recognition requires -pdf")
		os.Exit(1)
	}
	if !remote && *imageDir == "" {
		fmt.Fprintln(os.Stderr, "Error: local recognition requires -image-dir")
		os.Exit(1)
	}
	if *textPath == "" && *hocrPath == "" && *outputPath == "" {
		fmt.Fprintln(os.Stderr, "Error: at least one of -text, -hocr or -output is required")
		os.Exit(1)
	}
	for _, path := range []string{*textPath, *hocrPath, *outputPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil && !*overwrite {
			fmt.Printf("Output file %s already exists. Use -overwrite to overwrite.\n", path)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	var doc *hocr.Document
	var images [][]byte

	if remote {
		var err error
		doc, images, err = runRemote(ctx, *docaiPath, *pdfPath)
		if err != nil {
			log.Fatalf("Remote recognition failed: %v", err)
		}
	} else {
		var err error
		doc, images, err = runLocal(ctx, localOptions{
			modelPath:  *modelPath,
			layoutPath: *layoutPath,
			imageDir:   *imageDir,
			script:     *script,
			vertical:   *vertical,
			beam:       *beam,
			workers:    *workers,
			onnxLib:    *onnxLib,
		})
		if err != nil {
			log.Fatalf("Recognition failed: %v", err)
		}
	}
	doc.Title = *title

	if *textPath != "" {
		if err := os.WriteFile(*textPath, []byte(doc.Text()), 0644); err != nil {
			log.Fatalf("Failed to write text output: %v", err)
		}
		fmt.Println("Transcription saved to:", *textPath)
	}
	if *hocrPath != "" {
		html, err := hocr.Render(doc)
		if err != nil {
			log.Fatalf("Failed to render hOCR: %v", err)
		}
		if err := os.WriteFile(*hocrPath, []byte(html), 0644); err != nil {
			log.Fatalf("Failed to write hOCR output: %v", err)
		}
		fmt.Println("hOCR output saved to:", *hocrPath)
	}
	if *outputPath != "" {
		if len(images) != len(doc.Pages) {
			log.Fatalf("No page images available for PDF assembly")
		}
		cfg := pdfocr.DefaultConfig()
		cfg.Debug = *debug
		pdf, err := pdfocr.Assemble(doc, images, cfg)
		if err != nil {
			log.Fatalf("Failed to assemble PDF: %v", err)
		}
		if err := os.WriteFile(*outputPath, pdf, 0644); err != nil {
			log.Fatalf("Failed to write PDF: %v", err)
		}
		fmt.Println("Searchable PDF saved to:", *outputPath)
	}
}

type localOptions struct {
	modelPath  string
	layoutPath string
	imageDir   string
	script     string
	vertical   bool
	beam       int
	workers    int
	onnxLib    string
}

// runLocal recognizes every image in the directory with the ONNX models
// and returns the document plus the raw image bytes for PDF assembly.
func runLocal(ctx context.Context, opts localOptions) (*hocr.Document, [][]byte, error) {
	paths, err := pageImagePaths(opts.imageDir)
	if err != nil {
		return nil, nil, err
	}
	fmt.Printf("Found %d page images in %s\n", len(paths), opts.imageDir)

	modelOpts := model.Options{LibraryPath: opts.onnxLib}
	rec, err := model.LoadRecognizer(opts.modelPath, modelOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("loading recognition model: %w", err)
	}
	defer rec.Close()

	var layout model.LayoutModel
	if opts.layoutPath != "" {
		l, err := model.LoadLayout(opts.layoutPath, modelOpts)
		if err != nil {
			return nil, nil, fmt.Errorf("loading layout model: %w", err)
		}
		defer l.Close()
		layout = l
	}

	script := opts.script
	if script == "" {
		// The model knows which script it reads; seed the direction from
		// its metadata when no sample is given.
		meta := rec.Metadata()
		if meta.ReadingDirection() == geom.RightToLeft {
			script = "א" // any strong RTL character
		}
	}
	seg := segment.New(segment.Config{
		ScriptSample: script,
		Vertical:     opts.vertical,
		Logger:       os.Stderr,
	})
	engCfg := recognize.DefaultConfig()
	engCfg.BeamWidth = opts.beam
	eng := recognize.New(rec, engCfg)
	pipe := pipeline.New(seg, layout, eng, pipeline.Config{
		Workers: opts.workers,
		Logger:  os.Stderr,
	})

	var pages []image.Image
	var imagesData [][]byte
	var names []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", path, err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		pages = append(pages, img)
		imagesData = append(imagesData, data)
		names = append(names, filepath.Base(path))
	}

	results, errs, err := pipe.Batch(ctx, pages)
	if err != nil {
		return nil, nil, err
	}
	for _, pageErr := range errs {
		fmt.Fprintln(os.Stderr, "Warning:", pageErr)
	}

	doc := hocr.Build(results, hocr.BuildOptions{Images: names})
	return doc, imagesData, nil
}

// runRemote sends the PDF through Document AI and returns the converted
// document plus the page images the service rendered.
func runRemote(ctx context.Context, configPath, pdfPath string) (*hocr.Document, [][]byte, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg docai.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing config: %w", err)
	}

	client, err := docai.NewClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	defer client.Close()

	pdfBytes, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading PDF: %w", err)
	}
	fmt.Println("Processing PDF with Document AI:", pdfPath)
	resp, err := client.Process(ctx, pdfBytes, "application/pdf")
	if err != nil {
		return nil, nil, err
	}

	var images [][]byte
	for i, page := range resp.Pages {
		img, err := docai.PageImage(page)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: page %d carries no image: %v\n", i+1, err)
			images = nil
			break
		}
		images = append(images, img)
	}
	return docai.Convert(resp), images, nil
}

// pageImagePaths lists the directory's images in name order.
func pageImagePaths(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{"*.png", "*.PNG", "*.jpg", "*.jpeg", "*.JPG"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no page images found in %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}
