// Package embed defines the embedding contract shared by the indexing and
// retrieval pipelines. Both must use the same model: vectors are only
// comparable when they come from the same embedder, so the Embedder
// exposes its model id and dimensionality for compatibility checks.
package embed

import (
	"context"
	"fmt"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm"
)

// Embedder maps text to fixed-dimensionality vectors.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// ModelID identifies the embedding model (e.g. "nomic-embed-text").
	ModelID() string
	// Dimensions is the fixed vector length this model produces.
	Dimensions() int
}

// ProviderEmbedder adapts an llm.Provider to the Embedder contract,
// splitting large inputs into batches and validating the dimensionality
// of every returned vector.
type ProviderEmbedder struct {
	provider  llm.Provider
	modelID   string
	dims      int
	batchSize int
}

// NewProviderEmbedder wraps provider as an Embedder. dims must match what
// the model actually produces; it is validated on every call so a
// misconfiguration fails at the first embedding, not at the vector store.
func NewProviderEmbedder(provider llm.Provider, modelID string, dims, batchSize int) *ProviderEmbedder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &ProviderEmbedder{
		provider:  provider,
		modelID:   modelID,
		dims:      dims,
		batchSize: batchSize,
	}
}

func (e *ProviderEmbedder) ModelID() string { return e.modelID }

func (e *ProviderEmbedder) Dimensions() int { return e.dims }

func (e *ProviderEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := e.provider.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batch))
		}
		for i, v := range vectors {
			if e.dims > 0 && len(v) != e.dims {
				return nil, fmt.Errorf("embedding %d: model %s returned %d dimensions, configured %d",
					start+i, e.modelID, len(v), e.dims)
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

var _ Embedder = (*ProviderEmbedder)(nil)
