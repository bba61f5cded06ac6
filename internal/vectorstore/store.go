package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikhilbhutani/medibot/internal/apperr"
)

var (
	// ErrIndexNotFound is returned when an operation names an index that was never created.
	ErrIndexNotFound = errors.New("vector index not found")

	// ErrIndexMismatch is returned by EnsureIndex when an index of the requested
	// name exists with a different dimension or metric.
	ErrIndexMismatch = errors.New("vector index exists with a different configuration")

	// ErrDimension is returned when a vector's length differs from the index dimension.
	ErrDimension = errors.New("vector dimension mismatch")
)

type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dotproduct"
)

func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricEuclidean, MetricDotProduct:
		return true
	}
	return false
}

// IndexSpec describes a named vector collection. Cloud and Region record
// where the collection is hosted and are informational only.
type IndexSpec struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
	Cloud     string `json:"cloud,omitempty"`
	Region    string `json:"region,omitempty"`
}

// Metadata is stored next to every vector. Text duplicates the chunk so a hit
// can be shown and cited without a second lookup.
type Metadata struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Text   string `json:"text"`
}

type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// IndexManager lists and creates vector collections.
type IndexManager interface {
	ListIndexes(ctx context.Context) ([]IndexSpec, error)
	CreateIndex(ctx context.Context, spec IndexSpec) error
}

// Store reads and writes vectors of one named index at a time.
type Store interface {
	Count(ctx context.Context, index string) (int, error)
	Upsert(ctx context.Context, index string, records []Record) error
	Query(ctx context.Context, index string, vector []float32, topK int) ([]Match, error)
}

// EnsureIndex creates the index described by spec unless one with that name
// already exists. An existing index is accepted only when its dimension and
// metric match spec; otherwise ErrIndexMismatch is returned and nothing is
// changed. The boolean reports whether the index was created by this call.
func EnsureIndex(ctx context.Context, m IndexManager, spec IndexSpec) (bool, error) {
	if spec.Name == "" {
		return false, fmt.Errorf("ensure index: empty name")
	}
	if spec.Dimension <= 0 {
		return false, fmt.Errorf("ensure index %q: dimension must be positive", spec.Name)
	}
	if !spec.Metric.Valid() {
		return false, fmt.Errorf("ensure index %q: unsupported metric %q", spec.Name, spec.Metric)
	}

	existing, err := m.ListIndexes(ctx)
	if err != nil {
		return false, fmt.Errorf("list indexes: %w", err)
	}

	for _, idx := range existing {
		if idx.Name != spec.Name {
			continue
		}
		if idx.Dimension != spec.Dimension || idx.Metric != spec.Metric {
			return false, apperr.Precondition("ensure index", fmt.Errorf("%w: %q has dimension=%d metric=%s, requested dimension=%d metric=%s",
				ErrIndexMismatch, spec.Name, idx.Dimension, idx.Metric, spec.Dimension, spec.Metric))
		}
		return false, nil
	}

	if err := m.CreateIndex(ctx, spec); err != nil {
		return false, fmt.Errorf("create index %q: %w", spec.Name, err)
	}
	return true, nil
}
