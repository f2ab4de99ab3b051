package retrieve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/graph"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector/memory"
)

type fakeEmbedder struct {
	vec []float32
}

func (f *fakeEmbedder) ModelID() string { return "nomic-embed-text" }
func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type fakeGenerator struct {
	calls   int
	lastMsg string
	answer  string
	err     error
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	f.calls++
	f.lastMsg = prompt.Messages[len(prompt.Messages)-1].Content
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.answer, Model: "phi3", InputTokens: 10, OutputTokens: 5}, nil
}

func (f *fakeGenerator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not an embedder")
}

type fakeCatalog struct {
	models []string
	err    error
}

func (f *fakeCatalog) Models(ctx context.Context) ([]string, error) { return f.models, f.err }

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	if err := store.EnsureCollection(ctx, vector.CollectionSpec{Name: "test", Dimensions: 2, Metric: vector.MetricCosine}, false); err != nil {
		t.Fatal(err)
	}
	err := store.Upsert(ctx, []vector.Record{
		{ID: "a0", DocumentID: "a", ChunkIndex: 0, Content: "alpha chunk", Vector: []float32{1, 0}},
		{ID: "a1", DocumentID: "a", ChunkIndex: 1, Content: "beta chunk", Vector: []float32{0.9, 0.1}},
		{ID: "a2", DocumentID: "a", ChunkIndex: 2, Content: "gamma chunk", Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestAsk_GeneratesGroundedAnswer(t *testing.T) {
	gen := &fakeGenerator{answer: "The answer is alpha."}
	p, err := New(Options{
		Embedder:       &fakeEmbedder{vec: []float32{1, 0}},
		Store:          seedStore(t),
		Generator:      gen,
		GeneratorModel: "phi3",
		TopK:           2,
	})
	if err != nil {
		t.Fatal(err)
	}

	ans, err := p.Ask(context.Background(), "what is alpha?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ans.Text != "The answer is alpha." {
		t.Errorf("answer = %q", ans.Text)
	}
	if ans.NoContext {
		t.Error("answer flagged as no-context despite hits")
	}
	if len(ans.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(ans.Sources))
	}
	if ans.Sources[0].DocumentID != "a" || ans.Sources[0].ChunkIndex != 0 {
		t.Errorf("top source = %+v, want chunk a:0", ans.Sources[0])
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times", gen.calls)
	}
	if !strings.Contains(gen.lastMsg, "alpha chunk") || !strings.Contains(gen.lastMsg, "what is alpha?") {
		t.Errorf("prompt missing context or question:\n%s", gen.lastMsg)
	}
}

func TestAsk_NoResultsSkipsGenerator(t *testing.T) {
	store := memory.New()
	if err := store.EnsureCollection(context.Background(), vector.CollectionSpec{Name: "empty", Dimensions: 2, Metric: vector.MetricCosine}, false); err != nil {
		t.Fatal(err)
	}
	gen := &fakeGenerator{answer: "should not be called"}
	p, err := New(Options{
		Embedder:  &fakeEmbedder{vec: []float32{1, 0}},
		Store:     store,
		Generator: gen,
	})
	if err != nil {
		t.Fatal(err)
	}

	ans, err := p.Ask(context.Background(), "anything?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !ans.NoContext || ans.Text != NoContextAnswer {
		t.Errorf("expected no-context answer, got %+v", ans)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times on empty corpus", gen.calls)
	}
}

func TestAsk_ModelMismatchRefused(t *testing.T) {
	p, err := New(Options{
		Embedder: &fakeEmbedder{vec: []float32{1, 0}},
		Store:    seedStore(t),
		Catalog:  &fakeCatalog{models: []string{"other-model"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Ask(context.Background(), "question?")
	if !errors.Is(err, ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch, got %v", err)
	}
}

func TestAsk_MatchingModelAccepted(t *testing.T) {
	p, err := New(Options{
		Embedder: &fakeEmbedder{vec: []float32{1, 0}},
		Store:    seedStore(t),
		Catalog:  &fakeCatalog{models: []string{"nomic-embed-text"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Ask(context.Background(), "question?"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAsk_NilGeneratorReturnsContext(t *testing.T) {
	p, err := New(Options{
		Embedder: &fakeEmbedder{vec: []float32{1, 0}},
		Store:    seedStore(t),
		TopK:     1,
	})
	if err != nil {
		t.Fatal(err)
	}

	ans, err := p.Ask(context.Background(), "question?")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != "alpha chunk" {
		t.Errorf("context = %q, want the top chunk", ans.Text)
	}
}

func TestAsk_NeighborExpansion(t *testing.T) {
	store := seedStore(t)
	g := graph.NewMemoryRepository()
	if err := g.StoreDocument(context.Background(), "a", []graph.ChunkNode{
		{ID: "a0", DocumentID: "a", Index: 0},
		{ID: "a1", DocumentID: "a", Index: 1},
		{ID: "a2", DocumentID: "a", Index: 2},
	}); err != nil {
		t.Fatal(err)
	}

	gen := &fakeGenerator{answer: "ok"}
	p, err := New(Options{
		Embedder:        &fakeEmbedder{vec: []float32{1, 0}},
		Store:           store,
		Generator:       gen,
		Graph:           g,
		TopK:            1,
		ExpandNeighbors: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	ans, err := p.Ask(context.Background(), "question?")
	if err != nil {
		t.Fatal(err)
	}
	// Top hit is a0; its neighbor a1 should join the context.
	if !strings.Contains(gen.lastMsg, "beta chunk") {
		t.Errorf("neighbor chunk missing from prompt:\n%s", gen.lastMsg)
	}
	if len(ans.Sources) != 2 {
		t.Errorf("sources = %d, want hit plus neighbor", len(ans.Sources))
	}
}

func TestAsk_GeneratorErrorPropagates(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model offline")}
	p, err := New(Options{
		Embedder:  &fakeEmbedder{vec: []float32{1, 0}},
		Store:     seedStore(t),
		Generator: gen,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Ask(context.Background(), "question?"); err == nil {
		t.Error("expected generator error to propagate")
	}
}

func TestAssembleContext_DropsLowestFirst(t *testing.T) {
	results := []vector.SearchResult{
		{ID: "1", DocumentID: "a", ChunkIndex: 0, Score: 0.9, Content: strings.Repeat("x", 50)},
		{ID: "2", DocumentID: "a", ChunkIndex: 1, Score: 0.8, Content: strings.Repeat("y", 50)},
		{ID: "3", DocumentID: "a", ChunkIndex: 2, Score: 0.7, Content: strings.Repeat("z", 50)},
	}

	text, kept := assembleContext(results, 110)
	if len(kept) != 2 {
		t.Fatalf("kept %d chunks, want 2", len(kept))
	}
	if strings.Contains(text, "z") {
		t.Error("lowest-scoring chunk survived truncation")
	}
	if !strings.Contains(text, "x") || !strings.Contains(text, "y") {
		t.Error("higher-scoring chunks were dropped")
	}
}

func TestAssembleContext_OrdersByDocumentPosition(t *testing.T) {
	results := []vector.SearchResult{
		{ID: "2", DocumentID: "a", ChunkIndex: 2, Score: 0.9, Content: "second"},
		{ID: "1", DocumentID: "a", ChunkIndex: 0, Score: 0.8, Content: "first"},
	}
	text, _ := assembleContext(results, 1000)
	if strings.Index(text, "first") > strings.Index(text, "second") {
		t.Errorf("context not in document order:\n%s", text)
	}
}

func TestStripThinkingInAnswer(t *testing.T) {
	gen := &fakeGenerator{answer: "<think>internal reasoning</think>The answer."}
	p, err := New(Options{
		Embedder:  &fakeEmbedder{vec: []float32{1, 0}},
		Store:     seedStore(t),
		Generator: gen,
	})
	if err != nil {
		t.Fatal(err)
	}
	ans, err := p.Ask(context.Background(), "question?")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != "The answer." {
		t.Errorf("thinking tags leaked: %q", ans.Text)
	}
}
