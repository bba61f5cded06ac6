package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/medibot/internal/apperr"
	"github.com/nikhilbhutani/medibot/internal/rag"
	"github.com/nikhilbhutani/medibot/internal/vectorstore"
	"github.com/nikhilbhutani/medibot/pkg/chunker"
	"github.com/nikhilbhutani/medibot/pkg/textextract"
)

const testIndex = "diabetes-knowledge"

type fakeEmbedder struct {
	calls  int
	failOn map[int]bool // 0-based call numbers that fail
}

func (e *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	call := e.calls
	e.calls++
	if e.failOn[call] {
		return nil, apperr.Transient("embed", fmt.Errorf("call %d failed", call))
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, float32(len(t)), 0}
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (e *fakeEmbedder) Dimension() int { return 3 }

// recordingStore counts calls and can fail selected upserts.
type recordingStore struct {
	*vectorstore.MemoryStore
	counts     int
	upserts    int
	failUpsert map[int]bool
	countErr   error
}

func (s *recordingStore) Count(ctx context.Context, index string) (int, error) {
	s.counts++
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.MemoryStore.Count(ctx, index)
}

func (s *recordingStore) Upsert(ctx context.Context, index string, records []vectorstore.Record) error {
	call := s.upserts
	s.upserts++
	if s.failUpsert[call] {
		return apperr.Transient("upsert", errors.New("connection reset"))
	}
	return s.MemoryStore.Upsert(ctx, index, records)
}

func newStore(t *testing.T) *recordingStore {
	t.Helper()
	mem := vectorstore.NewMemoryStore()
	_, err := vectorstore.EnsureIndex(context.Background(), mem, vectorstore.IndexSpec{
		Name: testIndex, Dimension: 3, Metric: vectorstore.MetricCosine,
	})
	require.NoError(t, err)
	return &recordingStore{MemoryStore: mem}
}

func makeChunks(n int) []rag.Chunk {
	chunks := make([]rag.Chunk, n)
	for i := range chunks {
		chunks[i] = rag.Chunk{Text: fmt.Sprintf("chunk %d", i), Source: "a.pdf", Page: i / 10}
	}
	return chunks
}

func ids(s *recordingStore) []string {
	var out []string
	for id := range s.Records(testIndex) {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func expectedIDs(from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = RecordID(from, i)
	}
	sort.Strings(out)
	return out
}

func TestRun_IDsAppendAfterExisting(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p := NewPipeline(store, &fakeEmbedder{}, Options{BatchSize: 4})

	first, err := p.Run(ctx, makeChunks(10), testIndex)
	require.NoError(t, err)
	assert.Zero(t, first.InitialCount)
	assert.Equal(t, 3, first.Batches)
	assert.Equal(t, 10, first.Stored)
	assert.NotEmpty(t, first.RunID)

	second, err := p.Run(ctx, makeChunks(7), testIndex)
	require.NoError(t, err)
	assert.Equal(t, 10, second.InitialCount)
	assert.NotEqual(t, first.RunID, second.RunID)

	assert.Equal(t, expectedIDs(0, 17), ids(store))
	assert.Equal(t, 2, store.counts)
}

func TestRun_BatchSizeDoesNotChangeIDs(t *testing.T) {
	for _, size := range []int{1, 3, 32, 100} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.MemoryStore.Upsert(context.Background(), testIndex, []vectorstore.Record{
				{ID: "existing-a", Values: []float32{1, 0, 0}},
				{ID: "existing-b", Values: []float32{1, 0, 0}},
			}))

			_, err := NewPipeline(store, &fakeEmbedder{}, Options{BatchSize: size}).Run(context.Background(), makeChunks(40), testIndex)
			require.NoError(t, err)

			got := ids(store)
			want := append(expectedIDs(2, 40), "existing-a", "existing-b")
			sort.Strings(want)
			assert.Equal(t, want, got)
		})
	}
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	store.failUpsert = map[int]bool{1: true}
	emb := &fakeEmbedder{failOn: map[int]bool{3: true}}

	var progress [][2]int
	p := NewPipeline(store, emb, Options{
		BatchSize: 5,
		Progress:  func(done, total int) { progress = append(progress, [2]int{done, total}) },
	})

	report, err := p.Run(ctx, makeChunks(22), testIndex)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Batches)
	assert.Equal(t, 12, report.Stored)
	assert.Equal(t, 10, report.Failed)
	require.Len(t, report.FailedBatches, 2)
	assert.Equal(t, BatchError{Batch: 1, Start: 5, Size: 5, Stage: "upsert", Err: report.FailedBatches[0].Err}, report.FailedBatches[0])
	assert.Equal(t, "embed", report.FailedBatches[1].Stage)
	assert.Equal(t, 15, report.FailedBatches[1].Start)

	n, err := store.Count(ctx, testIndex)
	require.NoError(t, err)
	assert.Equal(t, report.InitialCount+report.Stored, n)

	records := store.Records(testIndex)
	assert.Contains(t, records, "doc_0")
	assert.NotContains(t, records, "doc_5")
	assert.NotContains(t, records, "doc_15")
	assert.Contains(t, records, "doc_21")

	assert.Equal(t, [][2]int{{5, 22}, {10, 22}, {15, 22}, {20, 22}, {22, 22}}, progress)
}

func TestRun_NoChunksTouchesNothing(t *testing.T) {
	store := newStore(t)
	emb := &fakeEmbedder{}
	report, err := NewPipeline(store, emb, Options{}).Run(context.Background(), nil, testIndex)
	require.NoError(t, err)
	assert.Zero(t, report.Batches)
	assert.Zero(t, store.counts)
	assert.Zero(t, store.upserts)
	assert.Zero(t, emb.calls)
}

func TestRun_CountFailureIsFatal(t *testing.T) {
	store := newStore(t)
	store.countErr = apperr.Transient("count", errors.New("db down"))
	emb := &fakeEmbedder{}

	_, err := NewPipeline(store, emb, Options{}).Run(context.Background(), makeChunks(3), testIndex)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrTransient)
	assert.Zero(t, store.upserts)
	assert.Zero(t, emb.calls)
}

func TestRun_RequiresIndexReady(t *testing.T) {
	store := newStore(t)
	ready := rag.NewReadiness()
	p := NewPipeline(store, &fakeEmbedder{}, Options{Readiness: ready})

	_, err := p.Run(context.Background(), makeChunks(1), testIndex)
	assert.ErrorIs(t, err, apperr.ErrPrecondition)
	assert.Zero(t, store.counts)

	ready.MarkIndexReady()
	_, err = p.Run(context.Background(), makeChunks(1), testIndex)
	assert.NoError(t, err)
}

func TestRun_ThreeChunkDocument(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	doc := rag.Document{
		Source: "diabetes_common.pdf",
		Pages: []textextract.Page{
			{Number: 0, Text: strings.Repeat("Type 1 diabetes is autoimmune. ", 20) + "\n\n" + strings.Repeat("Type 2 diabetes is common. ", 25)},
			{Number: 1, Text: "Insulin regulates blood glucose."},
		},
	}
	chunks := rag.Split(doc, chunker.DefaultOptions())
	require.Len(t, chunks, 3)

	report, err := NewPipeline(store, &fakeEmbedder{}, Options{}).Run(ctx, chunks, testIndex)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Stored)

	n, err := store.Count(ctx, testIndex)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records := store.Records(testIndex)
	assert.Equal(t, []string{"doc_0", "doc_1", "doc_2"}, ids(store))
	assert.Equal(t, 0, records["doc_0"].Metadata.Page)
	assert.Equal(t, 0, records["doc_1"].Metadata.Page)
	assert.Equal(t, 1, records["doc_2"].Metadata.Page)
	for id, r := range records {
		assert.Equal(t, "diabetes_common.pdf", r.Metadata.Source, id)
	}
	assert.Equal(t, "Insulin regulates blood glucose.", records["doc_2"].Metadata.Text)
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Metformin is a first-line medication."), 0o644))

	store := newStore(t)
	report, err := NewPipeline(store, &fakeEmbedder{}, Options{}).IngestFile(context.Background(), path, testIndex, chunker.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stored)
	assert.Positive(t, report.Tokens)
	assert.Equal(t, "notes.txt", store.Records(testIndex)["doc_0"].Metadata.Source)

	_, err = Load(filepath.Join(dir, "missing.pdf"), chunker.DefaultOptions())
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Type 1 diabetes.\n\nType 2 diabetes."), 0o644))

	src, err := Load(path, chunker.Options{ChunkSize: 20, ChunkOverlap: 0})
	require.NoError(t, err)
	assert.Equal(t, path, src.Path)
	assert.Equal(t, 1, src.Pages)
	require.Len(t, src.Chunks, 2)
	assert.Equal(t, "notes.txt", src.Chunks[0].Source)
}

func TestRun_ReportsTokenTotal(t *testing.T) {
	chunks := []rag.Chunk{
		{Text: "a", Source: "s.pdf", TokenCount: 3},
		{Text: "b", Source: "s.pdf", TokenCount: 4},
	}
	report, err := NewPipeline(newStore(t), &fakeEmbedder{}, Options{}).Run(context.Background(), chunks, testIndex)
	require.NoError(t, err)
	assert.Equal(t, 7, report.Tokens)
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "doc_0", RecordID(0, 0))
	assert.Equal(t, "doc_42", RecordID(40, 2))
}
