package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/medibot/internal/app"
	"github.com/nikhilbhutani/medibot/internal/config"
	"github.com/nikhilbhutani/medibot/internal/ingest"
	"github.com/nikhilbhutani/medibot/internal/queue"
)

type ingestFlags struct {
	pdfPath   string
	index     string
	batchSize int
	enqueue   bool
	verbose   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a PDF into the MediBot knowledge index",
		Long: `Extracts the PDF page by page, splits it into overlapping chunks, embeds
them and appends them to the vector index. Every run appends: IDs continue
after the vectors already stored, so rerunning without clearing the index
stores a second copy.

Examples:
  ingest
  ingest --pdf knowledge_source/diabetes_common.pdf --index diabetes-knowledge
  ingest --enqueue`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, f)

			level := slog.LevelInfo
			if f.verbose {
				level = slog.LevelDebug
			}
			logger := app.NewLogger(level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if f.enqueue {
				return enqueue(cmd, cfg)
			}
			return runIngest(ctx, cmd, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&f.pdfPath, "pdf", "knowledge_source/diabetes_common.pdf", "PDF file to ingest")
	cmd.Flags().StringVar(&f.index, "index", "diabetes-knowledge", "vector index name")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", ingest.DefaultBatchSize, "chunks per embedding and upsert call")
	cmd.Flags().BoolVar(&f.enqueue, "enqueue", false, "submit the run to the background worker instead of running it here")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log every batch")

	return cmd
}

// applyFlags lets explicit flags override environment configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f ingestFlags) {
	if cmd.Flags().Changed("pdf") || os.Getenv("INGEST_PDF_PATH") == "" {
		cfg.Ingest.PDFPath = f.pdfPath
	}
	if cmd.Flags().Changed("index") || os.Getenv("INDEX_NAME") == "" {
		cfg.Index.Name = f.index
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Ingest.BatchSize = f.batchSize
	}
}

func runIngest(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	if _, err := os.Stat(cfg.Ingest.PDFPath); err != nil {
		return fmt.Errorf("pdf not readable: %w", err)
	}

	svc, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	src, err := ingest.Load(cfg.Ingest.PDFPath, app.ChunkOptions(cfg.Ingest))
	if err != nil {
		return err
	}
	chunks := src.Chunks
	fmt.Fprintf(cmd.OutOrStdout(), "Split %s (%d pages) into %d chunks\n", src.Path, src.Pages, len(chunks))
	if len(chunks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to ingest.")
		return nil
	}

	bar := progressbar.NewOptions(len(chunks),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)

	pipeline := svc.Pipeline(func(done, total int) {
		_ = bar.Set(done)
	})

	report, err := pipeline.Run(ctx, chunks, cfg.Index.Name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: stored %d of %d chunks (~%d tokens) in %d batches (index had %d vectors)\n",
		report.RunID, report.Stored, report.Chunks, report.Tokens, report.Batches, report.InitialCount)
	for _, b := range report.FailedBatches {
		fmt.Fprintf(out, "  batch %d (chunks %d-%d) failed at %s: %s\n", b.Batch, b.Start, b.Start+b.Size-1, b.Stage, b.Err)
	}
	if report.Stored == 0 {
		return errors.New("no chunks were stored")
	}
	return nil
}

func enqueue(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.Redis.Addr == "" {
		return errors.New("--enqueue needs REDIS_ADDR")
	}
	client := queue.NewClient(cfg.Redis)
	defer client.Close()

	runID := uuid.NewString()
	id, err := client.EnqueueIngestDocument(queue.IngestDocumentPayload{
		PDFPath:   cfg.Ingest.PDFPath,
		IndexName: cfg.Index.Name,
		RunID:     runID,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued ingestion run %s (task %s)\n", runID, id)
	return nil
}
