package llm

import (
	"context"
)

// Provider abstracts a hosted model API (OpenAI, Anthropic, Gemini, Ollama).
type Provider interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)
	Name() string
}

// Gateway routes chat and embedding calls to configured providers with retry
// on transient failures and an optional chat fallback.
type Gateway interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)
	Provider(name string) (Provider, error)
}

// defaultChatModels is used when a request names no model, which is always
// the case for the fallback provider unless LLM_FALLBACK_MODEL is set.
var defaultChatModels = map[string]string{
	"gemini":    "gemini-2.0-flash",
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-haiku-20240307",
	"ollama":    "llama3.2",
}

// DefaultChatModel returns the chat model used for provider when none is given.
func DefaultChatModel(provider string) string {
	return defaultChatModels[provider]
}

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is the input for chat completions.
type ChatRequest struct {
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// ChatResponse is the output from chat completions.
type ChatResponse struct {
	ID           string  `json:"id"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Content      string  `json:"content"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	LatencyMs    int64   `json:"latency_ms"`
}

// EmbeddingTask tells providers that distinguish them whether the texts are
// stored documents or search queries.
type EmbeddingTask string

const (
	TaskDocument EmbeddingTask = "document"
	TaskQuery    EmbeddingTask = "query"
)

// EmbeddingRequest is the input for embedding generation.
type EmbeddingRequest struct {
	Provider   string        `json:"provider,omitempty"`
	Model      string        `json:"model"`
	Input      []string      `json:"input"`
	Dimensions int           `json:"dimensions,omitempty"`
	Task       EmbeddingTask `json:"task,omitempty"`
}

// EmbeddingResponse is the output from embedding generation.
type EmbeddingResponse struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Tokens     int         `json:"tokens"`
	CostUSD    float64     `json:"cost_usd"`
}
