package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/nikhilbhutani/medibot/internal/apperr"
)

type memIndex struct {
	spec    IndexSpec
	records map[string]Record
}

// MemoryStore is an in-process IndexManager and Store. It is safe for
// concurrent use and scores by brute force, which suits tests and small
// local corpora.
type MemoryStore struct {
	mu      sync.RWMutex
	indexes map[string]*memIndex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indexes: make(map[string]*memIndex)}
}

func (s *MemoryStore) ListIndexes(_ context.Context) ([]IndexSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	specs := make([]IndexSpec, 0, len(s.indexes))
	for _, idx := range s.indexes {
		specs = append(specs, idx.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

func (s *MemoryStore) CreateIndex(_ context.Context, spec IndexSpec) error {
	if !spec.Metric.Valid() {
		return apperr.Rejected("create index", fmt.Errorf("unsupported metric %q", spec.Metric))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[spec.Name]; !ok {
		s.indexes[spec.Name] = &memIndex{spec: spec, records: make(map[string]Record)}
	}
	return nil
}

func (s *MemoryStore) Count(_ context.Context, index string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, err := s.lookup(index)
	if err != nil {
		return 0, err
	}
	return len(idx.records), nil
}

// Upsert validates every record before writing any, so a rejected call
// leaves the index unchanged.
func (s *MemoryStore) Upsert(_ context.Context, index string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.lookup(index)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Values) != idx.spec.Dimension {
			return apperr.Rejected("upsert vectors", fmt.Errorf("%w: record %s has %d values, index %q expects %d",
				ErrDimension, r.ID, len(r.Values), index, idx.spec.Dimension))
		}
	}
	for _, r := range records {
		r.Values = append([]float32(nil), r.Values...)
		idx.records[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, index string, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, err := s.lookup(index)
	if err != nil {
		return nil, err
	}
	if len(vector) != idx.spec.Dimension {
		return nil, apperr.Rejected("query vectors", fmt.Errorf("%w: query has %d values, index %q expects %d",
			ErrDimension, len(vector), index, idx.spec.Dimension))
	}

	matches := make([]Match, 0, len(idx.records))
	for _, r := range idx.records {
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    score(idx.spec.Metric, vector, r.Values),
			Metadata: r.Metadata,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Records returns a copy of the stored records of index, keyed by ID.
func (s *MemoryStore) Records(index string) map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[index]
	if !ok {
		return nil
	}
	out := make(map[string]Record, len(idx.records))
	for id, r := range idx.records {
		out[id] = r
	}
	return out
}

func (s *MemoryStore) lookup(index string) (*memIndex, error) {
	idx, ok := s.indexes[index]
	if !ok {
		return nil, apperr.Precondition("lookup index", fmt.Errorf("%w: %q", ErrIndexNotFound, index))
	}
	return idx, nil
}

func score(metric Metric, a, b []float32) float64 {
	var dot, na, nb, sq float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		sq += (x - y) * (x - y)
	}
	switch metric {
	case MetricDotProduct:
		return dot
	case MetricEuclidean:
		return -math.Sqrt(sq)
	default:
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}
