package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/medibot/internal/apperr"
)

func TestOpenAIChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Len(t, body["messages"], 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "A hormone."}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProviderWithBaseURL("sk-test", srv.URL)
	resp, err := p.ChatCompletion(context.Background(), ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "what is insulin?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "A hormone.", resp.Content)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, 15, resp.TotalTokens)
}

func TestOpenAIGenerateEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		assert.EqualValues(t, 2, body["dimensions"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]},
				{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	resp, err := NewOpenAIProviderWithBaseURL("sk-test", srv.URL).GenerateEmbedding(context.Background(), EmbeddingRequest{
		Input:      []string{"a", "b"},
		Dimensions: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", resp.Model)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, resp.Embeddings)
	assert.Equal(t, 4, resp.Tokens)
}

func TestOpenAIStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, apperr.ErrRejected},
		{http.StatusTooManyRequests, apperr.ErrTransient},
		{http.StatusBadGateway, apperr.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope", "type": "invalid_request_error"}}`))
			}))
			defer srv.Close()

			_, err := NewOpenAIProviderWithBaseURL("sk-test", srv.URL).ChatCompletion(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
