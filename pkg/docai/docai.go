// Package docai runs pages through Google Document AI as a remote
// recognition backend.
//
// It complements the local ONNX models: the same scans can be sent to a
// cloud OCR processor and its response converted into the document model
// used everywhere else, so downstream consumers (hOCR rendering, PDF
// assembly, accuracy reports) do not care which engine produced the text.
//
// Authentication follows the standard Google Cloud conventions; by
// default credentials come from the GOOGLE_APPLICATION_CREDENTIALS
// environment variable.
package docai

import (
	"context"
	"fmt"

	"github.com/scriptorium/scriptor/pkg/hocr"
)

// Recognize sends a PDF through Document AI and converts the response
// into the standard document model.
func Recognize(ctx context.Context, client *Client, pdf []byte) (*hocr.Document, error) {
	resp, err := client.Process(ctx, pdf, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("processing document: %w", err)
	}
	return Convert(resp), nil
}
