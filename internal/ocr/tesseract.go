package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine recognizes text locally through the gosseract client.
// It is the default engine; it needs the tesseract shared library and the
// trained data for the configured language installed on the host.
type TesseractEngine struct{}

// NewTesseractEngine creates a new TesseractEngine.
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{}
}

// Open creates a recognition session for the given language ("ita",
// "eng", ...). The underlying client is reused for every page of a
// document; creating one is expensive.
func (e *TesseractEngine) Open(language string) (Session, error) {
	client := gosseract.NewClient()
	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: setting language %q: %v", ErrRecognition, language, err)
		}
	}
	return &tesseractSession{client: client}, nil
}

type tesseractSession struct {
	client *gosseract.Client
}

func (s *tesseractSession) Recognize(img image.Image) (Recognition, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Recognition{}, fmt.Errorf("encoding page image: %w", err)
	}
	if err := s.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return Recognition{}, fmt.Errorf("setting page image: %w", err)
	}

	text, err := s.client.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("recognizing text: %w", err)
	}

	rec := Recognition{Text: text}

	// Line boxes give both the layout structure and a confidence signal.
	boxes, err := s.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil || len(boxes) == 0 {
		return rec, nil
	}

	var sum float64
	paragraph := Paragraph{Lines: make([]Line, 0, len(boxes))}
	for _, b := range boxes {
		sum += b.Confidence
		if line := strings.TrimSpace(b.Word); line != "" {
			paragraph.Lines = append(paragraph.Lines, Line{Text: line})
		}
	}
	rec.Confidence = sum / float64(len(boxes))
	rec.Paragraphs = []Paragraph{paragraph}
	return rec, nil
}

func (s *tesseractSession) Close() error {
	return s.client.Close()
}
