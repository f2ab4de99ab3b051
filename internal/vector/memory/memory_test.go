package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector"
)

func testSpec() vector.CollectionSpec {
	return vector.CollectionSpec{Name: "test", Dimensions: 3, Metric: vector.MetricCosine}
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.EnsureCollection(ctx, testSpec(), false); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}
	err := s.Upsert(ctx, []vector.Record{
		{ID: "a:0", DocumentID: "a", ChunkIndex: 0, Content: "alpha", Vector: []float32{1, 0, 0}},
		{ID: "a:1", DocumentID: "a", ChunkIndex: 1, Content: "beta", Vector: []float32{0, 1, 0}},
		{ID: "b:0", DocumentID: "b", ChunkIndex: 0, Content: "gamma", Vector: []float32{0.9, 0.1, 0}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestSearch_OrdersByScoreDescending(t *testing.T) {
	s := New()
	seed(t, s)

	got, err := s.Search(context.Background(), []float32{1, 0, 0}, 3, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].ID != "a:0" || got[1].ID != "b:0" {
		t.Errorf("unexpected order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not descending at %d: %f > %f", i, got[i].Score, got[i-1].Score)
		}
	}
}

func TestSearch_TopKNeverPads(t *testing.T) {
	s := New()
	seed(t, s)

	got, err := s.Search(context.Background(), []float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected all 3 stored records, got %d", len(got))
	}

	got, err = s.Search(context.Background(), []float32{1, 0, 0}, 0, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("topK=0 should return nothing, got %d", len(got))
	}
}

func TestSearch_DocumentFilter(t *testing.T) {
	s := New()
	seed(t, s)

	got, err := s.Search(context.Background(), []float32{1, 0, 0}, 10, &vector.Filter{DocumentID: "b"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].DocumentID != "b" {
		t.Errorf("filter leaked foreign documents: %+v", got)
	}
}

func TestUpsert_RejectsWrongDimensions(t *testing.T) {
	s := New()
	if err := s.EnsureCollection(context.Background(), testSpec(), false); err != nil {
		t.Fatal(err)
	}
	err := s.Upsert(context.Background(), []vector.Record{
		{ID: "x:0", DocumentID: "x", Vector: []float32{1, 2}},
	})
	if !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("rejected batch must not be partially applied, have %d records", s.Len())
	}
}

func TestSearch_RejectsWrongDimensions(t *testing.T) {
	s := New()
	seed(t, s)

	_, err := s.Search(context.Background(), []float32{1, 0}, 3, nil)
	if !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestUpsert_ReplacesByID(t *testing.T) {
	s := New()
	seed(t, s)

	err := s.Upsert(context.Background(), []vector.Record{
		{ID: "a:0", DocumentID: "a", ChunkIndex: 0, Content: "updated", Vector: []float32{0, 0, 1}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("re-upsert must not grow the store, have %d", s.Len())
	}

	got, err := s.Search(context.Background(), []float32{0, 0, 1}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Content != "updated" {
		t.Errorf("expected replaced content, got %q", got[0].Content)
	}
}

func TestDeleteAndCountByDocument(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()

	n, err := s.CountByDocument(ctx, "a")
	if err != nil || n != 2 {
		t.Fatalf("count(a) = %d, %v; want 2", n, err)
	}

	if err := s.DeleteByDocument(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, err = s.CountByDocument(ctx, "a")
	if err != nil || n != 0 {
		t.Errorf("count(a) after delete = %d, %v; want 0", n, err)
	}
	n, err = s.CountByDocument(ctx, "b")
	if err != nil || n != 1 {
		t.Errorf("count(b) = %d, %v; other documents must survive", n, err)
	}
}

func TestEnsureCollection_MetricMismatch(t *testing.T) {
	s := New()
	seed(t, s)

	spec := testSpec()
	spec.Metric = vector.MetricDot
	err := s.EnsureCollection(context.Background(), spec, false)
	if !errors.Is(err, vector.ErrMetricMismatch) {
		t.Errorf("expected ErrMetricMismatch, got %v", err)
	}
}

func TestEnsureCollection_RecreateDropsData(t *testing.T) {
	s := New()
	seed(t, s)

	if err := s.EnsureCollection(context.Background(), testSpec(), true); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("recreate must drop all records, have %d", s.Len())
	}
}

func TestDotMetric(t *testing.T) {
	s := New()
	spec := vector.CollectionSpec{Name: "dot", Dimensions: 2, Metric: vector.MetricDot}
	ctx := context.Background()
	if err := s.EnsureCollection(ctx, spec, false); err != nil {
		t.Fatal(err)
	}
	err := s.Upsert(ctx, []vector.Record{
		{ID: "x:0", DocumentID: "x", Content: "small", Vector: []float32{1, 0}},
		{ID: "x:1", DocumentID: "x", Content: "large", Vector: []float32{3, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Search(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Dot product rewards magnitude; cosine would tie these.
	if got[0].ID != "x:1" {
		t.Errorf("expected x:1 first under dot metric, got %s", got[0].ID)
	}
}
