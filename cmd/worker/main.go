package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/medibot/internal/app"
	"github.com/nikhilbhutani/medibot/internal/config"
	"github.com/nikhilbhutani/medibot/internal/queue"
	"github.com/nikhilbhutani/medibot/internal/queue/workers"
)

func main() {
	logger := app.NewLogger(slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.Addr == "" {
		slog.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}

	svc, err := app.Open(context.Background(), cfg, logger)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	ingestWorker := workers.NewIngestWorker(svc.Pipeline(nil), svc, app.ChunkOptions(cfg.Ingest))
	mux := queue.NewServeMux(asynq.HandlerFunc(ingestWorker.ProcessTask))

	srv := queue.NewServer(cfg.Redis)
	slog.Info("starting worker", "queue", "default", "index", cfg.Index.Name)
	if err := srv.Run(mux); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
