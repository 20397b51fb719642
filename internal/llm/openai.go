package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	visionModel string
	textModel   string
	maxAttempts int
	httpClient  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func NewOpenAIClient(baseURL, apiKey, visionModel, textModel string, maxAttempts int) *OpenAIClient {
	return &OpenAIClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		visionModel: visionModel,
		textModel:   textModel,
		maxAttempts: maxAttempts,
		// Per-call deadlines come from the caller's context.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Transcribe passes the public image URL to the vision model.
func (c *OpenAIClient) Transcribe(ctx context.Context, imageURLStr, instructions string) (string, error) {
	req := chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: instructions},
				{Type: "image_url", ImageURL: &imageURL{URL: imageURLStr}},
			},
		}},
	}
	return c.complete(ctx, req)
}

func (c *OpenAIClient) Correct(ctx context.Context, text, instructions string) (string, error) {
	req := chatRequest{
		Model: c.textModel,
		Messages: []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: text},
		},
	}
	return c.complete(ctx, req)
}

func (c *OpenAIClient) complete(ctx context.Context, chatReq chatRequest) (string, error) {
	jsonData, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var out string
	err = RetryWithBackoff(ctx, c.maxAttempts, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("chat completion failed: status %d, body: %s", resp.StatusCode, string(body))
		}

		var result chatResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if result.Error != nil {
			return fmt.Errorf("chat completion failed: %s", result.Error.Message)
		}
		if len(result.Choices) == 0 {
			out = ""
			return nil
		}
		out = result.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
