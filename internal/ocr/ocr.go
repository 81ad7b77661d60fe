// Package ocr turns scanned invoice documents (PDFs and page images) into
// per-page recognized text. Rendering and recognition are both behind
// interfaces so the pipeline can run against Tesseract locally or Gemini
// in the cloud, and against stubs in tests.
package ocr

import (
	"errors"
	"image"
	"strings"
)

// ErrDocumentLoad indicates the byte stream could not be opened as a
// document (corrupt PDF, unsupported image format).
var ErrDocumentLoad = errors.New("cannot load document")

// ErrRecognition indicates the recognition engine could not be initialized
// or failed on a page.
var ErrRecognition = errors.New("text recognition failed")

// Rasterizer opens a document byte stream for page rendering.
type Rasterizer interface {
	Open(data []byte) (Document, error)
}

// Document is an open document whose pages can be rendered to raster
// images. Close must be called when done.
type Document interface {
	// PageCount returns the number of pages.
	PageCount() int
	// Render rasterizes the zero-based page at the given upscaling factor
	// relative to the document's native resolution.
	Render(pageIndex int, scale float64) (image.Image, error)
	Close() error
}

// Engine creates recognition sessions. A session is opened once per
// document and reused for every page; engine setup is expensive.
type Engine interface {
	Open(language string) (Session, error)
}

// Session recognizes text in raster images. Close releases the underlying
// engine resources and must be called even when recognition fails.
type Session interface {
	Recognize(img image.Image) (Recognition, error)
	Close() error
}

// Recognition is the raw engine output for one image.
type Recognition struct {
	// Text is the full recognized text.
	Text string
	// Confidence is the engine's mean confidence on a 0-100 scale.
	// Zero means the engine provides no confidence signal.
	Confidence float64
	// Paragraphs carries the structured layout when the engine provides
	// one; nil when only plain text is available.
	Paragraphs []Paragraph
}

// Paragraph groups recognized lines.
type Paragraph struct {
	Lines []Line
}

// Line is a single recognized text line.
type Line struct {
	Text string
}

// PageResult holds the recognized content of one document page.
type PageResult struct {
	PageNumber int      `json:"page_number"`
	Text       string   `json:"text"`
	Lines      []string `json:"lines"`
	Confidence float64  `json:"confidence"`
}

// Result is the ordered per-page output for one document.
type Result struct {
	Pages []PageResult `json:"pages"`
}

// PlainText joins the page texts with blank lines, in page order.
func (r *Result) PlainText() string {
	texts := make([]string, 0, len(r.Pages))
	for _, p := range r.Pages {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n\n")
}
