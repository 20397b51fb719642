package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	reply    string
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(f.reply, genai.RoleModel),
		}},
	}, nil
}

func newTestGemini(gen contentGenerator) *GeminiClient {
	return &GeminiClient{
		models:      gen,
		httpClient:  http.DefaultClient,
		visionModel: "vision",
		textModel:   "text",
		maxAttempts: 1,
	}
}

// 1x1 PNG header bytes are enough for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestGeminiClient_Transcribe(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes)
	}))
	defer img.Close()

	gen := &fakeGenerator{reply: " Dear diary \n"}
	client := newTestGemini(gen)

	text, err := client.Transcribe(context.Background(), img.URL+"/page.png", "transcribe")
	require.NoError(t, err)
	assert.Equal(t, "Dear diary", text)
	assert.Equal(t, "vision", gen.model)

	require.Len(t, gen.contents, 1)
	parts := gen.contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "transcribe", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)
	assert.Equal(t, pngBytes, parts[1].InlineData.Data)
}

func TestGeminiClient_TranscribeImageMissing(t *testing.T) {
	img := httptest.NewServer(http.NotFoundHandler())
	defer img.Close()

	gen := &fakeGenerator{reply: "unused"}
	client := newTestGemini(gen)

	_, err := client.Transcribe(context.Background(), img.URL+"/gone.png", "transcribe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Empty(t, gen.model)
}

func TestGeminiClient_Correct(t *testing.T) {
	gen := &fakeGenerator{reply: "Score: 8/10"}
	client := newTestGemini(gen)

	feedback, err := client.Correct(context.Background(), "my essay", "be strict")
	require.NoError(t, err)
	assert.Equal(t, "Score: 8/10", feedback)
	assert.Equal(t, "text", gen.model)
	require.NotNil(t, gen.config)
	require.NotNil(t, gen.config.SystemInstruction)
	assert.Equal(t, "be strict", gen.config.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "my essay", gen.contents[0].Parts[0].Text)
}

func TestGeminiClient_CorrectError(t *testing.T) {
	gen := &fakeGenerator{err: assert.AnError}
	client := newTestGemini(gen)

	_, err := client.Correct(context.Background(), "my essay", "be strict")
	assert.ErrorIs(t, err, assert.AnError)
}
