package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// maxImageDownload caps the bytes read when fetching a page image.
const maxImageDownload = 25 << 20

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient transcribes and corrects essays with the Gemini API.
type GeminiClient struct {
	models      contentGenerator
	httpClient  *http.Client
	visionModel string
	textModel   string
	maxAttempts int
}

func NewGeminiClient(ctx context.Context, apiKey, visionModel, textModel string, maxAttempts int) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		models:      client.Models,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		visionModel: visionModel,
		textModel:   textModel,
		maxAttempts: maxAttempts,
	}, nil
}

// Transcribe downloads the page image and asks the vision model for a
// verbatim transcription.
func (g *GeminiClient) Transcribe(ctx context.Context, imageURL, instructions string) (string, error) {
	data, mimeType, err := fetchImage(ctx, g.httpClient, imageURL)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(instructions),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}

	return g.generate(ctx, g.visionModel, contents, nil)
}

// Correct sends the essay text with the correction instructions as the
// system instruction.
func (g *GeminiClient) Correct(ctx context.Context, text, instructions string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instructions, genai.RoleUser),
	}
	return g.generate(ctx, g.textModel, genai.Text(text), cfg)
}

func (g *GeminiClient) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	var out string
	err := RetryWithBackoff(ctx, g.maxAttempts, func(ctx context.Context) error {
		resp, err := g.models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			return fmt.Errorf("gemini %s: %w", model, err)
		}
		if resp == nil {
			return fmt.Errorf("gemini %s: empty response", model)
		}
		out = resp.Text()
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func fetchImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageDownload))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	return data, mimeType, nil
}
