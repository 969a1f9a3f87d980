// scriptrain is a command-line tool for alphabet management and model
// evaluation.
//
// Ground truth is read from plain text files (one line per text line) or
// from hOCR documents.
//
// Derive an alphabet from ground truth:
//
//	scriptrain -gt lines.txt -alphabet alphabet.yaml
//
// Resize a model's alphabet against a new dataset:
//
//	scriptrain -gt lines.txt -model line.onnx -resize add -alphabet alphabet.yaml
//
// Resize modes:
//
//	fail   Refuse when the ground truth contains graphemes the model
//	       cannot encode (default)
//	add    Keep all model classes, append the new graphemes
//	union  Rebuild from the ground truth alone; classes for dropped
//	       graphemes are deleted
//
// Score a transcription against ground truth:
//
//	scriptrain -gt lines.txt -eval hypothesis.txt
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scriptorium/scriptor/pkg/codec"
	"github.com/scriptorium/scriptor/pkg/hocr"
	"github.com/scriptorium/scriptor/pkg/model"
	"github.com/scriptorium/scriptor/pkg/train"
)

func main() {
	gtPath := flag.String("gt", "", "Ground truth file (.txt or .hocr)")
	hypPath := flag.String("eval", "", "Hypothesis file to score against the ground truth")
	modelPath := flag.String("model", "", "Model whose alphabet to resize (.onnx with a .yaml sidecar)")
	resizeMode := flag.String("resize", "fail", "Alphabet resize mode: fail, add or union")
	alphabetOut := flag.String("alphabet", "", "Path to write the resulting alphabet YAML")
	flag.Parse()

	if *gtPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -gt is required")
		flag.PrintDefaults()
		os.Exit(1)
	}
	gtLines, err := loadLines(*gtPath)
	if err != nil {
		log.Fatalf("Failed to read ground truth: %v", err)
	}

	switch {
	case *hypPath != "":
		hypLines, err := loadLines(*hypPath)
		if err != nil {
			log.Fatalf("Failed to read hypothesis: %v", err)
		}
		if len(hypLines) != len(gtLines) {
			log.Fatalf("Line count mismatch: %d ground truth, %d hypothesis",
				len(gtLines), len(hypLines))
		}
		var report train.Report
		for i := range gtLines {
			report.Add(gtLines[i], hypLines[i])
		}
		fmt.Println(report.String())

	case *modelPath != "":
		mode, err := train.ParseResizeMode(*resizeMode)
		if err != nil {
			log.Fatalf("Invalid -resize: %v", err)
		}
		meta, err := model.LoadMetadata(*modelPath)
		if err != nil {
			log.Fatalf("Failed to load model metadata: %v", err)
		}
		if meta.Alphabet == nil {
			log.Fatalf("Model metadata carries no alphabet")
		}
		resized, deleted, err := train.Resize(meta.Alphabet, samples(gtLines), mode)
		if err != nil {
			log.Fatalf("Resize failed: %v", err)
		}
		fmt.Printf("Alphabet resized from %d to %d classes\n",
			meta.Alphabet.Size(), resized.Size())
		if len(deleted) > 0 {
			fmt.Printf("Deleted classes: %v (model output layer must shrink accordingly)\n", deleted)
		}
		if err := writeAlphabet(*alphabetOut, resized); err != nil {
			log.Fatal(err)
		}

	default:
		derived, err := train.DeriveAlphabet(samples(gtLines))
		if err != nil {
			log.Fatalf("Failed to derive alphabet: %v", err)
		}
		fmt.Printf("Derived alphabet with %d classes from %d lines\n",
			derived.Size(), len(gtLines))
		if err := writeAlphabet(*alphabetOut, derived); err != nil {
			log.Fatal(err)
		}
	}
}

func samples(lines []string) []train.Sample {
	out := make([]train.Sample, len(lines))
	for i, line := range lines {
		out[i] = train.Sample{Text: line}
	}
	return out
}

// loadLines reads text lines from a plain text file or the line texts of
// an hOCR document, keyed off the file extension.
func loadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hocr", ".html", ".xhtml":
		doc, err := hocr.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return doc.LineTexts(), nil
	default:
		var lines []string
		for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		return lines, nil
	}
}

func writeAlphabet(path string, c *codec.Codec) error {
	if path == "" {
		return nil
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding alphabet: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing alphabet: %w", err)
	}
	fmt.Println("Alphabet saved to:", path)
	return nil
}
