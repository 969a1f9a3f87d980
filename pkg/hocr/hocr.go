// Package hocr reads and writes hOCR, the HTML-based interchange format
// for OCR results.
//
// The object model mirrors the hOCR hierarchy the engine produces and
// consumes: Document → Pages → Regions (ocr_carea) → Lines (ocr_line) →
// Words (ocrx_word), with bounding boxes, linear baselines and word
// confidences carried in title properties.
//
// Three operations cover the format's roles in the engine:
//
//   - Build converts recognition results into a Document, splitting line
//     transcriptions into words at whitespace graphemes so word boxes can
//     be derived from symbol provenance.
//   - Render generates the hOCR HTML for a Document.
//   - Parse reads hOCR produced by this engine or others, which is how
//     ground-truth transcriptions enter the training pipeline.
package hocr
