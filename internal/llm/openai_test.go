package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"essay-corrector-backend/internal/llm"
)

func newChatServer(t *testing.T, status int, reply string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_Transcribe(t *testing.T) {
	var body map[string]any
	srv := newChatServer(t, http.StatusOK, `{"choices":[{"message":{"content":"  My summer holidays  "}}]}`, &body)

	client := llm.NewOpenAIClient(srv.URL+"/", "test-key", "vision-model", "text-model", 1)
	text, err := client.Transcribe(context.Background(), "https://cdn.test/page.png", "transcribe this")

	require.NoError(t, err)
	assert.Equal(t, "My summer holidays", text)
	assert.Equal(t, "vision-model", body["model"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "transcribe this", parts[0].(map[string]any)["text"])
	assert.Equal(t, "https://cdn.test/page.png", parts[1].(map[string]any)["image_url"].(map[string]any)["url"])
}

func TestOpenAIClient_Correct(t *testing.T) {
	var body map[string]any
	srv := newChatServer(t, http.StatusOK, `{"choices":[{"message":{"content":"Score: 7/10"}}]}`, &body)

	client := llm.NewOpenAIClient(srv.URL, "test-key", "vision-model", "text-model", 1)
	feedback, err := client.Correct(context.Background(), "essay", "correct this")

	require.NoError(t, err)
	assert.Equal(t, "Score: 7/10", feedback)
	assert.Equal(t, "text-model", body["model"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "correct this", messages[0].(map[string]any)["content"])
	assert.Equal(t, "essay", messages[1].(map[string]any)["content"])
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, `{"choices":[]}`, nil)

	client := llm.NewOpenAIClient(srv.URL, "test-key", "v", "t", 1)
	text, err := client.Correct(context.Background(), "essay", "correct")

	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestOpenAIClient_HTTPError(t *testing.T) {
	srv := newChatServer(t, http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`, nil)

	client := llm.NewOpenAIClient(srv.URL, "test-key", "v", "t", 1)
	_, err := client.Correct(context.Background(), "essay", "correct")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestOpenAIClient_ErrorPayload(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, `{"error":{"message":"model overloaded"}}`, nil)

	client := llm.NewOpenAIClient(srv.URL, "test-key", "v", "t", 1)
	_, err := client.Transcribe(context.Background(), "https://cdn.test/p.png", "t")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}
