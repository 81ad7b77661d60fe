package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/gen2brain/heic"
)

// ImageRasterizer opens single scanned-page images (PNG, JPEG, GIF, HEIC)
// as one-page documents. Phone cameras commonly produce HEIC, which the
// standard image package does not decode.
type ImageRasterizer struct{}

// NewImageRasterizer creates a new ImageRasterizer.
func NewImageRasterizer() *ImageRasterizer {
	return &ImageRasterizer{}
}

// Open decodes an image byte stream into a one-page document.
func (r *ImageRasterizer) Open(data []byte) (Document, error) {
	var img image.Image
	var err error
	if isHEIC(data) {
		img, err = heic.Decode(bytes.NewReader(data))
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decoding image: %v", ErrDocumentLoad, err)
	}
	return &imageDocument{img: img}, nil
}

type imageDocument struct {
	img image.Image
}

func (d *imageDocument) PageCount() int { return 1 }

// Render returns the decoded image as-is; scans are already at capture
// resolution, so no upscaling is applied.
func (d *imageDocument) Render(pageIndex int, scale float64) (image.Image, error) {
	if pageIndex != 0 {
		return nil, fmt.Errorf("page %d out of range", pageIndex+1)
	}
	return d.img, nil
}

func (d *imageDocument) Close() error { return nil }

// isHEIC checks the ftyp box for HEIC/HEIF brands.
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// IsPDF reports whether the byte stream starts with a PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF"))
}
