package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/medibot/internal/apperr"
	"github.com/nikhilbhutani/medibot/internal/config"
)

type gateway struct {
	providers         map[string]Provider
	defaultProvider   string
	fallbackProvider  string
	fallbackModel     string
	embeddingProvider string
	maxRetries        int
	backoff           func(attempt int) time.Duration
}

func quadraticBackoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 500 * time.Millisecond
}

func NewGateway(cfg config.LLMConfig) Gateway {
	g := newGateway(cfg)

	if cfg.GeminiKey != "" {
		g.register(NewGeminiProvider(cfg.GeminiKey))
	}
	if cfg.OpenAIKey != "" {
		g.register(NewOpenAIProvider(cfg.OpenAIKey))
	}
	if cfg.AnthropicKey != "" {
		g.register(NewAnthropicProvider(cfg.AnthropicKey))
	}
	if cfg.OllamaURL != "" {
		g.register(NewOllamaProvider(cfg.OllamaURL))
	}

	return g
}

// NewGatewayWithProviders builds a gateway over an explicit provider set.
func NewGatewayWithProviders(cfg config.LLMConfig, providers ...Provider) Gateway {
	g := newGateway(cfg)
	for _, p := range providers {
		g.register(p)
	}
	return g
}

func newGateway(cfg config.LLMConfig) *gateway {
	return &gateway{
		providers:         make(map[string]Provider),
		defaultProvider:   cfg.DefaultProvider,
		fallbackProvider:  cfg.FallbackProvider,
		fallbackModel:     cfg.FallbackModel,
		embeddingProvider: cfg.EmbeddingProvider,
		maxRetries:        cfg.MaxRetries,
		backoff:           quadraticBackoff,
	}
}

func (g *gateway) register(p Provider) {
	g.providers[p.Name()] = p
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, apperr.Config("llm gateway", fmt.Errorf("provider %q not configured", name))
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != providerName {
		if _, ok := g.providers[g.fallbackProvider]; ok && ctx.Err() == nil {
			slog.Warn("primary provider failed, trying fallback",
				"primary", providerName,
				"fallback", g.fallbackProvider,
				"error", err,
			)
			// The model name belongs to the primary provider.
			fb := req
			fb.Model = g.fallbackModel
			return g.chatWithRetry(ctx, g.fallbackProvider, fb)
		}
	}
	return resp, err
}

func (g *gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}
	if req.Model == "" {
		req.Model = DefaultChatModel(providerName)
	}
	return withRetry(ctx, g, providerName, func() (*ChatResponse, error) {
		return p.ChatCompletion(ctx, req)
	})
}

func (g *gateway) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.embeddingProvider
	}
	if providerName == "" {
		providerName = g.defaultProvider
	}

	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}
	return withRetry(ctx, g, providerName, func() (*EmbeddingResponse, error) {
		return p.GenerateEmbedding(ctx, req)
	})
}

// withRetry repeats call while it fails with a transient error, up to
// maxRetries extra attempts.
func withRetry[T any](ctx context.Context, g *gateway, providerName string, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, apperr.Transient(providerName, ctx.Err())
			case <-time.After(g.backoff(attempt)):
			}
			slog.Debug("retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		resp, err := call()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !apperr.IsRetryable(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}
