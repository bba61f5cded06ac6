package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/medibot/internal/apperr"
	"github.com/nikhilbhutani/medibot/internal/config"
)

// scriptedProvider returns the queued errors in order, then succeeds.
type scriptedProvider struct {
	name       string
	errs       []error
	chatCalls  int
	embedCalls int
	lastChat   ChatRequest
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) next() error {
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

func (p *scriptedProvider) ChatCompletion(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	p.chatCalls++
	p.lastChat = req
	if err := p.next(); err != nil {
		return nil, err
	}
	return &ChatResponse{Provider: p.name, Content: "answer from " + p.name}, nil
}

func (p *scriptedProvider) GenerateEmbedding(_ context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	p.embedCalls++
	if err := p.next(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(req.Input))
	for i := range out {
		out[i] = []float32{1}
	}
	return &EmbeddingResponse{Provider: p.name, Embeddings: out}, nil
}

func testGateway(cfg config.LLMConfig, providers ...Provider) *gateway {
	g := NewGatewayWithProviders(cfg, providers...).(*gateway)
	g.backoff = func(int) time.Duration { return 0 }
	return g
}

func TestGateway_RetriesTransient(t *testing.T) {
	p := &scriptedProvider{name: "gemini", errs: []error{
		apperr.Transient("chat", errors.New("503")),
		apperr.Transient("chat", errors.New("429")),
	}}
	g := testGateway(config.LLMConfig{DefaultProvider: "gemini", MaxRetries: 2}, p)

	resp, err := g.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "answer from gemini", resp.Content)
	assert.Equal(t, 3, p.chatCalls)
}

func TestGateway_DoesNotRetryRejected(t *testing.T) {
	p := &scriptedProvider{name: "gemini", errs: []error{apperr.Rejected("chat", errors.New("400"))}}
	g := testGateway(config.LLMConfig{DefaultProvider: "gemini", MaxRetries: 3}, p)

	_, err := g.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrRejected)
	assert.Equal(t, 1, p.chatCalls)
}

func TestGateway_RetriesExhausted(t *testing.T) {
	transient := apperr.Transient("chat", errors.New("down"))
	p := &scriptedProvider{name: "gemini", errs: []error{transient, transient, transient}}
	g := testGateway(config.LLMConfig{DefaultProvider: "gemini", MaxRetries: 1}, p)

	_, err := g.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrTransient)
	assert.Equal(t, 2, p.chatCalls)
}

func TestGateway_Fallback(t *testing.T) {
	primary := &scriptedProvider{name: "gemini", errs: []error{apperr.Rejected("chat", errors.New("quota"))}}
	fallback := &scriptedProvider{name: "openai"}
	g := testGateway(config.LLMConfig{DefaultProvider: "gemini", FallbackProvider: "openai"}, primary, fallback)

	resp, err := g.Chat(context.Background(), ChatRequest{Model: "gemini-2.0-flash"})
	require.NoError(t, err)
	assert.Equal(t, "answer from openai", resp.Content)
	assert.Equal(t, DefaultChatModel("openai"), fallback.lastChat.Model)
}

func TestGateway_FallbackModelFromConfig(t *testing.T) {
	primary := &scriptedProvider{name: "gemini", errs: []error{apperr.Rejected("chat", errors.New("quota"))}}
	fallback := &scriptedProvider{name: "openai"}
	g := testGateway(config.LLMConfig{
		DefaultProvider:  "gemini",
		FallbackProvider: "openai",
		FallbackModel:    "gpt-4o",
	}, primary, fallback)

	_, err := g.Chat(context.Background(), ChatRequest{Model: "gemini-2.0-flash"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", fallback.lastChat.Model)
}

func TestGateway_FallbackToHTTPProvider(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": [{"text": "from gemini"}]}}]}`))
	}))
	defer srv.Close()

	primary := &scriptedProvider{name: "openai", errs: []error{apperr.Rejected("chat", errors.New("invalid key"))}}
	g := testGateway(config.LLMConfig{DefaultProvider: "openai", FallbackProvider: "gemini"},
		primary, NewGeminiProviderWithBaseURL("k", srv.URL))

	resp, err := g.Chat(context.Background(), ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "from gemini", resp.Content)
	assert.Equal(t, []string{"/models/gemini-2.0-flash:generateContent"}, paths)
}

func TestGateway_EmptyModelUsesProviderDefault(t *testing.T) {
	p := &scriptedProvider{name: "anthropic"}
	g := testGateway(config.LLMConfig{DefaultProvider: "anthropic"}, p)

	_, err := g.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku-20240307", p.lastChat.Model)
}

func TestGateway_UnknownProvider(t *testing.T) {
	g := testGateway(config.LLMConfig{DefaultProvider: "gemini"})
	_, err := g.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, apperr.ErrConfig)
}

func TestGateway_EmbedRouting(t *testing.T) {
	chat := &scriptedProvider{name: "anthropic"}
	embed := &scriptedProvider{name: "gemini", errs: []error{apperr.Transient("embed", errors.New("blip"))}}
	g := testGateway(config.LLMConfig{DefaultProvider: "anthropic", EmbeddingProvider: "gemini", MaxRetries: 1}, chat, embed)

	resp, err := g.Embed(context.Background(), EmbeddingRequest{Input: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "gemini", resp.Provider)
	assert.Equal(t, 2, embed.embedCalls)
	assert.Zero(t, chat.embedCalls)
}

func TestGateway_CanceledContextStopsRetrying(t *testing.T) {
	p := &scriptedProvider{name: "gemini", errs: []error{apperr.Transient("chat", errors.New("down"))}}
	g := testGateway(config.LLMConfig{DefaultProvider: "gemini", MaxRetries: 5}, p)
	g.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Chat(ctx, ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, p.chatCalls)
}

func TestCalculateCost(t *testing.T) {
	assert.InDelta(t, 0.0001+0.0004, CalculateCost("gemini-2.0-flash", 1000, 1000), 1e-12)
	assert.Zero(t, CalculateCost("llama3", 1000, 1000))
}
