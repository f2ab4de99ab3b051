package embed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm"
)

// stubProvider embeds each text as a 3-dim vector and records batch sizes.
type stubProvider struct {
	batches [][]string
	dims    int
	fail    error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, p *llm.Prompt, o *llm.RequestOptions) (*llm.Response, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.batches = append(s.batches, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, s.dims)
		v[0] = float32(len(texts[i]))
		out[i] = v
	}
	return out, nil
}

func TestProviderEmbedder_Batches(t *testing.T) {
	stub := &stubProvider{dims: 3}
	e := NewProviderEmbedder(stub, "test-model", 3, 2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	if len(stub.batches) != 3 {
		t.Errorf("expected 3 batches of size <=2, got %d", len(stub.batches))
	}
	// Order preserved across batches: vector[i] encodes len(texts[i]).
	for i, v := range vectors {
		if v[0] != float32(len(texts[i])) {
			t.Errorf("vector %d out of order: got %v for %q", i, v[0], texts[i])
		}
	}
}

func TestProviderEmbedder_Empty(t *testing.T) {
	e := NewProviderEmbedder(&stubProvider{dims: 3}, "test-model", 3, 2)
	vectors, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected no vectors, got %d", len(vectors))
	}
}

func TestProviderEmbedder_DimensionMismatch(t *testing.T) {
	stub := &stubProvider{dims: 4}
	e := NewProviderEmbedder(stub, "test-model", 3, 8)

	_, err := e.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestProviderEmbedder_ProviderError(t *testing.T) {
	stub := &stubProvider{dims: 3, fail: fmt.Errorf("connection refused")}
	e := NewProviderEmbedder(stub, "test-model", 3, 8)

	_, err := e.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected provider error to propagate")
	}
}
