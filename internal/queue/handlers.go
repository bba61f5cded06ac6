package queue

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/medibot/internal/config"
)

// NewServer builds the worker-side asynq server. Ingestion runs are
// sequential by contract, so one worker slot is enough.
func NewServer(cfg config.RedisConfig) *asynq.Server {
	return asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{"default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			slog.Error("task failed", "type", task.Type(), "error", err)
		}),
	})
}

// NewServeMux routes each task type to its handler.
func NewServeMux(ingest asynq.Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeIngestDocument, ingest)
	return mux
}
