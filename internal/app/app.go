// Package app wires configuration into the long-lived service handles shared
// by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/medibot/internal/config"
	"github.com/nikhilbhutani/medibot/internal/database"
	"github.com/nikhilbhutani/medibot/internal/embedding"
	"github.com/nikhilbhutani/medibot/internal/ingest"
	"github.com/nikhilbhutani/medibot/internal/llm"
	"github.com/nikhilbhutani/medibot/internal/rag"
	"github.com/nikhilbhutani/medibot/internal/vectorstore"
	"github.com/nikhilbhutani/medibot/pkg/chunker"
)

// NewLogger installs a JSON slog handler as the process default.
func NewLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

type Services struct {
	Config    *config.Config
	DB        *pgxpool.Pool
	Store     *vectorstore.PgVectorStore
	Gateway   llm.Gateway
	Embedder  *embedding.Service
	Readiness *rag.Readiness
	Logger    *slog.Logger
}

func IndexSpec(cfg config.IndexConfig) vectorstore.IndexSpec {
	return vectorstore.IndexSpec{
		Name:      cfg.Name,
		Dimension: cfg.Dimension,
		Metric:    vectorstore.Metric(cfg.Metric),
		Cloud:     cfg.Cloud,
		Region:    cfg.Region,
	}
}

func ChunkOptions(cfg config.IngestConfig) chunker.Options {
	opts := chunker.DefaultOptions()
	opts.ChunkSize = cfg.ChunkSize
	opts.ChunkOverlap = cfg.ChunkOverlap
	return opts
}

// Open validates cfg, connects to Postgres, applies migrations and makes sure
// the configured index exists. Any failure here is a startup failure.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	gw := llm.NewGateway(cfg.LLM)
	svc := &Services{
		Config:  cfg,
		DB:      db,
		Store:   vectorstore.NewPgVectorStore(db),
		Gateway: gw,
		Embedder: embedding.NewService(gw, embedding.Options{
			Provider:  cfg.LLM.EmbeddingProvider,
			Model:     cfg.LLM.EmbeddingModel,
			Dimension: cfg.Index.Dimension,
		}),
		Readiness: rag.NewReadiness(),
		Logger:    logger,
	}

	if err := svc.EnsureIndex(ctx, cfg.Index.Name); err != nil {
		db.Close()
		return nil, err
	}
	svc.Readiness.MarkIndexReady()
	return svc, nil
}

// EnsureIndex makes sure index exists, sized to the embedder's output and
// using the configured metric.
func (s *Services) EnsureIndex(ctx context.Context, index string) error {
	spec := IndexSpec(s.Config.Index)
	spec.Name = index
	spec.Dimension = s.Embedder.Dimension()

	created, err := vectorstore.EnsureIndex(ctx, s.Store, spec)
	if err != nil {
		return err
	}
	s.Logger.Info("vector index ready",
		"index", spec.Name,
		"dimension", spec.Dimension,
		"metric", spec.Metric,
		"created", created,
	)
	return nil
}

func (s *Services) Close() {
	s.DB.Close()
}

func (s *Services) Pipeline(progress ingest.ProgressFunc) *ingest.Pipeline {
	return ingest.NewPipeline(s.Store, s.Embedder, ingest.Options{
		BatchSize: s.Config.Ingest.BatchSize,
		Progress:  progress,
		Readiness: s.Readiness,
		Logger:    s.Logger,
	})
}

// Composer builds the answering path and marks the service queryable.
func (s *Services) Composer() (*rag.Composer, error) {
	retriever := rag.NewRetriever(s.Store, s.Embedder, s.Config.Index.Name)
	composer := rag.NewComposer(retriever, s.Gateway, rag.ComposerOptions{
		Provider:        s.Config.LLM.DefaultProvider,
		Model:           s.Config.LLM.DefaultModel,
		Temperature:     s.Config.LLM.Temperature,
		TopK:            s.Config.RAG.TopK,
		MaxHistoryTurns: s.Config.RAG.MaxHistoryTurns,
	}, s.Logger)
	if err := s.Readiness.MarkQueryable(); err != nil {
		return nil, err
	}
	return composer, nil
}
