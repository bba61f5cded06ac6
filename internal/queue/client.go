package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/medibot/internal/config"
)

type Client struct {
	client *asynq.Client
}

// RedisOpt converts the shared Redis settings into asynq's connection options.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueIngestDocument submits an ingestion run. Retries are disabled: a
// second attempt would append a duplicate copy of every stored chunk.
func (c *Client) EnqueueIngestDocument(payload IngestDocumentPayload) (string, error) {
	task, err := NewIngestDocumentTask(payload)
	if err != nil {
		return "", err
	}
	info, err := c.client.Enqueue(task, asynq.MaxRetry(0), asynq.Timeout(30*time.Minute), asynq.TaskID(payload.RunID))
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TypeIngestDocument, err)
	}
	return info.ID, nil
}

func NewIngestDocumentTask(payload IngestDocumentPayload) (*asynq.Task, error) {
	if payload.PDFPath == "" || payload.IndexName == "" || payload.RunID == "" {
		return nil, fmt.Errorf("ingest task needs pdf_path, index_name and run_id")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeIngestDocument, data), nil
}
