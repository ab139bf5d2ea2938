// Package retriever ranks stored chunks against a query.
package retriever

import (
	"context"
	"fmt"

	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/vectorstore"
)

// Defaults preserved from the original system's constants; configurable,
// not derived.
const (
	DefaultTopK      = 4
	DefaultThreshold = 0.3
)

// Retriever embeds queries and filters store matches by relevance.
type Retriever struct {
	provider  embedding.Provider
	store     vectorstore.Store
	topK      int
	threshold float64
}

// New creates a retriever. Non-positive topK or a negative threshold fall
// back to the defaults; a threshold of exactly 0 disables filtering.
func New(provider embedding.Provider, store vectorstore.Store, topK int, threshold float64) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Retriever{
		provider:  provider,
		store:     store,
		topK:      topK,
		threshold: threshold,
	}
}

// Retrieve returns the most relevant chunks for the query in descending
// similarity order. An empty result means no relevant context was found and
// is not an error. A query embedding failure is fatal to the retrieval; no
// retries happen here.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]vectorstore.SearchResult, error) {
	return r.RetrieveN(ctx, query, r.topK)
}

// RetrieveN is Retrieve with a per-call result cap. Non-positive topK uses
// the configured default.
func (r *Retriever) RetrieveN(ctx context.Context, query string, topK int) ([]vectorstore.SearchResult, error) {
	if topK <= 0 {
		topK = r.topK
	}

	vector, err := r.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.store.SearchSimilar(ctx, vector, topK, r.threshold)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	// Server backends threshold remotely, the local backend does not;
	// filtering here keeps the guarantee regardless of backend.
	filtered := matches[:0]
	for _, m := range matches {
		if m.Similarity >= r.threshold {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}
