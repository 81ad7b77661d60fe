package ocr

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// go-fitz renders at 72 DPI for scale 1.0.
const nativeDPI = 72

// FitzRasterizer opens PDF documents with MuPDF via go-fitz.
type FitzRasterizer struct{}

// NewFitzRasterizer creates a new FitzRasterizer.
func NewFitzRasterizer() *FitzRasterizer {
	return &FitzRasterizer{}
}

// Open opens a PDF byte stream for rendering.
func (r *FitzRasterizer) Open(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %v", ErrDocumentLoad, err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) PageCount() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) Render(pageIndex int, scale float64) (image.Image, error) {
	if scale <= 0 {
		scale = 1
	}
	img, err := d.doc.ImageDPI(pageIndex, nativeDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("rendering page %d: %w", pageIndex+1, err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
