package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBeginCompleteRoundTrip(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	entry := Entry{
		ID:         "paper.pdf",
		Source:     "/data/paper.pdf",
		SHA256:     "abc123",
		EmbedModel: "nomic-embed-text",
		Dimensions: 768,
		Metric:     "cosine",
	}
	if err := c.Begin(ctx, entry); err != nil {
		t.Fatalf("begin: %v", err)
	}

	got, err := c.Get(ctx, "paper.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusIndexing {
		t.Errorf("status = %s, want %s", got.Status, StatusIndexing)
	}

	if err := c.Complete(ctx, "paper.pdf", 11); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err = c.Get(ctx, "paper.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusIndexed || got.ChunkCount != 11 {
		t.Errorf("got status=%s chunks=%d, want indexed/11", got.Status, got.ChunkCount)
	}
	if got.IndexedAt.IsZero() {
		t.Error("indexed_at not set on completion")
	}
	if got.EmbedModel != "nomic-embed-text" || got.Dimensions != 768 {
		t.Errorf("model metadata lost: %+v", got)
	}
}

func TestFailRecordsStage(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	if err := c.Begin(ctx, Entry{ID: "doc", Source: "doc.txt", EmbedModel: "m", Dimensions: 4, Metric: "cosine"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Fail(ctx, "doc", "embed"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, err := c.Get(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.FailedStage != "embed" {
		t.Errorf("got status=%s stage=%s, want failed/embed", got.Status, got.FailedStage)
	}
}

func TestBeginReplacesPreviousEntry(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	if err := c.Begin(ctx, Entry{ID: "doc", Source: "v1", SHA256: "h1", EmbedModel: "m", Dimensions: 4, Metric: "cosine"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Complete(ctx, "doc", 5); err != nil {
		t.Fatal(err)
	}
	if err := c.Begin(ctx, Entry{ID: "doc", Source: "v2", SHA256: "h2", EmbedModel: "m", Dimensions: 4, Metric: "cosine"}); err != nil {
		t.Fatal(err)
	}

	got, err := c.Get(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != "v2" || got.SHA256 != "h2" || got.Status != StatusIndexing || got.ChunkCount != 0 {
		t.Errorf("re-ingest did not reset entry: %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	c := openTest(t)
	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := c.Complete(context.Background(), "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("complete on missing: expected ErrNotFound, got %v", err)
	}
}

func TestModelsDistinctIndexedOnly(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	for _, e := range []Entry{
		{ID: "a", Source: "a", EmbedModel: "nomic-embed-text", Dimensions: 768, Metric: "cosine"},
		{ID: "b", Source: "b", EmbedModel: "nomic-embed-text", Dimensions: 768, Metric: "cosine"},
		{ID: "c", Source: "c", EmbedModel: "other-model", Dimensions: 384, Metric: "cosine"},
	} {
		if err := c.Begin(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Complete(ctx, "a", 1); err != nil {
		t.Fatal(err)
	}
	if err := c.Complete(ctx, "b", 1); err != nil {
		t.Fatal(err)
	}
	// c stays in indexing state and must not count.

	models, err := c.Models(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 1 || models[0] != "nomic-embed-text" {
		t.Errorf("models = %v, want [nomic-embed-text]", models)
	}
}

func TestDeleteAndList(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := c.Begin(ctx, Entry{ID: id, Source: id, EmbedModel: "m", Dimensions: 4, Metric: "cosine"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	entries, err := c.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != "b" {
		t.Errorf("list after delete = %+v, want only b", entries)
	}
}
