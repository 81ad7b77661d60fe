package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcribePrompt asks the model for a faithful transcription rather than
// a summary; page text is consumed verbatim downstream.
const transcribePrompt = `You are transcribing a scanned supplier invoice page. Read all text in the image and return it as plain text, line by line, in reading order. Preserve numbers, dates and codes exactly as printed. Return only the transcription, with no commentary and no markdown code blocks.`

// GeminiEngine recognizes text through the Google Gemini vision API. It is
// the cloud alternative to the local Tesseract engine. Gemini returns no
// confidence signal, so sessions report a confidence of zero.
type GeminiEngine struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiEngine creates a new GeminiEngine.
func NewGeminiEngine(apiKey string, modelName string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiEngine{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Open creates a recognition session. The language hint is passed to the
// model in the prompt.
func (e *GeminiEngine) Open(language string) (Session, error) {
	return &geminiSession{model: e.model, language: language}, nil
}

// Close closes the underlying API client.
func (e *GeminiEngine) Close() error {
	return e.client.Close()
}

type geminiSession struct {
	model    *genai.GenerativeModel
	language string
}

func (s *geminiSession) Recognize(img image.Image) (Recognition, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Recognition{}, fmt.Errorf("encoding page image: %w", err)
	}

	prompt := transcribePrompt
	if s.language != "" {
		prompt = fmt.Sprintf("%s The page is most likely in language %q.", prompt, s.language)
	}

	resp, err := s.model.GenerateContent(ctx,
		genai.ImageData("png", buf.Bytes()),
		genai.Text(prompt),
	)
	if err != nil {
		return Recognition{}, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Recognition{}, fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := strings.TrimSpace(text.String())
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")

	return Recognition{Text: strings.TrimSpace(out)}, nil
}

func (s *geminiSession) Close() error {
	return nil
}
