package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/medibot/internal/apperr"
	"github.com/nikhilbhutani/medibot/internal/ingest"
	"github.com/nikhilbhutani/medibot/internal/queue"
	"github.com/nikhilbhutani/medibot/internal/rag"
	"github.com/nikhilbhutani/medibot/pkg/chunker"
)

// Runner is the part of the ingestion pipeline the worker needs.
type Runner interface {
	RunWithID(ctx context.Context, runID string, chunks []rag.Chunk, index string) (*ingest.Report, error)
}

// IndexEnsurer creates an index if it is missing.
type IndexEnsurer interface {
	EnsureIndex(ctx context.Context, index string) error
}

type IngestWorker struct {
	pipeline  Runner
	indexes   IndexEnsurer
	chunkOpts chunker.Options
	load      func(path string, opts chunker.Options) (*ingest.Source, error)
}

func NewIngestWorker(pipeline Runner, indexes IndexEnsurer, chunkOpts chunker.Options) *IngestWorker {
	return &IngestWorker{pipeline: pipeline, indexes: indexes, chunkOpts: chunkOpts, load: ingest.Load}
}

func (w *IngestWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.IngestDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	log := slog.With("run_id", payload.RunID, "pdf_path", payload.PDFPath, "index", payload.IndexName)
	log.Info("processing ingestion task")

	// A task may target an index other than the one the worker started with.
	if err := w.indexes.EnsureIndex(ctx, payload.IndexName); err != nil {
		if errors.Is(err, apperr.ErrPrecondition) {
			return fmt.Errorf("index %s: %w: %w", payload.IndexName, err, asynq.SkipRetry)
		}
		return fmt.Errorf("index %s: %w", payload.IndexName, err)
	}

	src, err := w.load(payload.PDFPath, w.chunkOpts)
	if err != nil {
		return fmt.Errorf("load %s: %w", payload.PDFPath, err)
	}
	log.Info("document split", "pages", src.Pages, "chunks", len(src.Chunks))

	report, err := w.pipeline.RunWithID(ctx, payload.RunID, src.Chunks, payload.IndexName)
	if err != nil {
		return fmt.Errorf("ingest run %s: %w", payload.RunID, err)
	}

	log.Info("ingestion task complete",
		"stored", report.Stored,
		"failed", report.Failed,
		"tokens_est", report.Tokens,
		"initial_count", report.InitialCount,
	)
	if rw := t.ResultWriter(); rw != nil {
		data, _ := json.Marshal(report)
		if _, err := rw.Write(data); err != nil {
			log.Warn("failed to write task result", "error", err)
		}
	}
	return nil
}
