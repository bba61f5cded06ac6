package rag

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/medibot/internal/embedding"
	"github.com/nikhilbhutani/medibot/internal/vectorstore"
)

// DefaultTopK is the number of chunks retrieved when the caller does not say.
const DefaultTopK = 5

// Searcher returns the chunks most similar to a query.
type Searcher interface {
	Retrieve(ctx context.Context, query string, k int) ([]vectorstore.Match, error)
}

type Retriever struct {
	store    vectorstore.Store
	embedder embedding.Embedder
	index    string
}

func NewRetriever(store vectorstore.Store, embedder embedding.Embedder, index string) *Retriever {
	return &Retriever{store: store, embedder: embedder, index: index}
}

// Retrieve embeds query and returns up to k matches ordered by descending
// similarity. k <= 0 means DefaultTopK.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.store.Query(ctx, r.index, queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("query index %s: %w", r.index, err)
	}
	return matches, nil
}
