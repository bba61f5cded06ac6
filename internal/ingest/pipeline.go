// Package ingest turns document chunks into stored vector records.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/medibot/internal/embedding"
	"github.com/nikhilbhutani/medibot/internal/rag"
	"github.com/nikhilbhutani/medibot/internal/vectorstore"
	"github.com/nikhilbhutani/medibot/pkg/chunker"
	"github.com/nikhilbhutani/medibot/pkg/textextract"
)

const DefaultBatchSize = 32

// ProgressFunc is called after every batch with the number of chunks
// processed so far, successful or not, and the total.
type ProgressFunc func(done, total int)

type Options struct {
	BatchSize int
	Progress  ProgressFunc
	// Readiness, when set, must have reached rag.IndexReady before a run.
	Readiness *rag.Readiness
	Logger    *slog.Logger
}

type Pipeline struct {
	store    vectorstore.Store
	embedder embedding.Embedder
	opts     Options
	logger   *slog.Logger
}

func NewPipeline(store vectorstore.Store, embedder embedding.Embedder, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, embedder: embedder, opts: opts, logger: logger}
}

// BatchError records a batch that was skipped.
type BatchError struct {
	Batch int    `json:"batch"`
	Start int    `json:"start"`
	Size  int    `json:"size"`
	Stage string `json:"stage"`
	Err   string `json:"error"`
}

type Report struct {
	RunID         string        `json:"run_id"`
	Index         string        `json:"index"`
	InitialCount  int           `json:"initial_count"`
	Chunks        int           `json:"chunks"`
	Tokens        int           `json:"tokens"`
	Batches       int           `json:"batches"`
	Stored        int           `json:"stored"`
	Failed        int           `json:"failed"`
	FailedBatches []BatchError  `json:"failed_batches,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// RecordID is the identifier of the chunk at offset within a run that started
// with initial vectors already in the index.
func RecordID(initial, offset int) string {
	return fmt.Sprintf("doc_%d", initial+offset)
}

// Run embeds and upserts chunks batch by batch. The index count is read once
// before any write and used as the base for every ID, so a rerun appends a
// disjoint set of records. A failing batch is logged and skipped; only a
// failure to read the initial count aborts the run.
func (p *Pipeline) Run(ctx context.Context, chunks []rag.Chunk, index string) (*Report, error) {
	return p.RunWithID(ctx, uuid.NewString(), chunks, index)
}

// RunWithID is Run with a caller-chosen run ID, used when a queued task
// already carries one.
func (p *Pipeline) RunWithID(ctx context.Context, runID string, chunks []rag.Chunk, index string) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: runID, Index: index, Chunks: len(chunks)}
	for _, c := range chunks {
		report.Tokens += c.TokenCount
	}
	log := p.logger.With("run_id", report.RunID, "index", index)

	if len(chunks) == 0 {
		log.Info("no chunks to ingest")
		return report, nil
	}
	if p.opts.Readiness != nil {
		if err := p.opts.Readiness.Require(rag.IndexReady); err != nil {
			return nil, err
		}
	}

	initial, err := p.store.Count(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("read initial vector count: %w", err)
	}
	report.InitialCount = initial
	log.Info("ingestion started",
		"chunks", len(chunks),
		"tokens_est", report.Tokens,
		"initial_count", initial,
		"batch_size", p.opts.BatchSize,
	)

	for i := 0; i < len(chunks); i += p.opts.BatchSize {
		end := min(i+p.opts.BatchSize, len(chunks))
		batch := chunks[i:end]
		n := report.Batches
		report.Batches++

		if stage, err := p.storeBatch(ctx, index, initial, i, batch); err != nil {
			log.Error("batch failed, skipping",
				"batch", n,
				"start", i,
				"size", len(batch),
				"stage", stage,
				"error", err,
			)
			report.Failed += len(batch)
			report.FailedBatches = append(report.FailedBatches, BatchError{
				Batch: n, Start: i, Size: len(batch), Stage: stage, Err: err.Error(),
			})
		} else {
			report.Stored += len(batch)
			log.Debug("batch stored", "batch", n, "first_id", RecordID(initial, i), "size", len(batch))
		}

		if p.opts.Progress != nil {
			p.opts.Progress(end, len(chunks))
		}
	}

	report.Duration = time.Since(start)
	log.Info("ingestion finished",
		"stored", report.Stored,
		"failed", report.Failed,
		"batches", report.Batches,
		"duration", report.Duration,
	)
	return report, nil
}

func (p *Pipeline) storeBatch(ctx context.Context, index string, initial, offset int, batch []rag.Chunk) (string, error) {
	texts := make([]string, len(batch))
	for j, c := range batch {
		texts[j] = c.Text
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return "embed", err
	}
	if len(vectors) != len(batch) {
		return "embed", fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(batch))
	}

	records := make([]vectorstore.Record, len(batch))
	for j, c := range batch {
		records[j] = vectorstore.Record{
			ID:     RecordID(initial, offset+j),
			Values: vectors[j],
			Metadata: vectorstore.Metadata{
				Source: c.Source,
				Page:   c.Page,
				Text:   c.Text,
			},
		}
	}

	if err := p.store.Upsert(ctx, index, records); err != nil {
		return "upsert", err
	}
	return "", nil
}

// Source is a document extracted and split into chunks.
type Source struct {
	Path string
	// Pages counts every page in the file, including pages without text.
	Pages  int
	Chunks []rag.Chunk
}

// Load extracts path and splits it into chunks.
func Load(path string, opts chunker.Options) (*Source, error) {
	extracted, err := textextract.ExtractFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return &Source{
		Path:   path,
		Pages:  extracted.PageCount,
		Chunks: rag.Split(rag.NewDocument(extracted), opts),
	}, nil
}

// IngestFile loads path and runs the pipeline over its chunks.
func (p *Pipeline) IngestFile(ctx context.Context, path, index string, opts chunker.Options) (*Report, error) {
	src, err := Load(path, opts)
	if err != nil {
		return nil, err
	}
	p.logger.Info("document split", "path", path, "pages", src.Pages, "chunks", len(src.Chunks))
	return p.Run(ctx, src.Chunks, index)
}
