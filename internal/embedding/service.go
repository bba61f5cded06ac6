package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikhilbhutani/medibot/internal/apperr"
	"github.com/nikhilbhutani/medibot/internal/llm"
)

// Embedder turns texts into vectors. Ingestion and retrieval must share one
// so stored and query vectors live in the same space.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Service embeds through the LLM gateway with a fixed provider, model and
// output dimension.
type Service struct {
	gateway   llm.Gateway
	provider  string
	model     string
	dimension int
	batchSize int
}

type Options struct {
	Provider  string
	Model     string
	Dimension int
	// BatchSize caps the number of texts per provider call.
	BatchSize int
}

func NewService(gw llm.Gateway, opts Options) *Service {
	if opts.Model == "" {
		opts.Model = "text-embedding-004"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Service{
		gateway:   gw,
		provider:  opts.Provider,
		model:     opts.Model,
		dimension: opts.Dimension,
		batchSize: opts.BatchSize,
	}
}

func (s *Service) Dimension() int { return s.dimension }

func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed(ctx, texts, llm.TaskDocument)
}

func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.embed(ctx, []string{text}, llm.TaskQuery)
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (s *Service) embed(ctx context.Context, texts []string, task llm.EmbeddingTask) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += s.batchSize {
		end := min(i+s.batchSize, len(texts))
		batch := texts[i:end]

		resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
			Provider:   s.provider,
			Model:      s.model,
			Input:      batch,
			Dimensions: s.dimension,
			Task:       task,
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", i/s.batchSize, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, apperr.Rejected("embed",
				fmt.Errorf("batch %d: got %d embeddings for %d texts", i/s.batchSize, len(resp.Embeddings), len(batch)))
		}
		for _, e := range resp.Embeddings {
			if s.dimension > 0 && len(e) != s.dimension {
				return nil, apperr.Rejected("embed",
					fmt.Errorf("%w: got %d, want %d", ErrDimension, len(e), s.dimension))
			}
		}
		all = append(all, resp.Embeddings...)
	}

	return all, nil
}

// ErrDimension reports a vector whose length differs from the index dimension.
var ErrDimension = errors.New("embedding dimension mismatch")
