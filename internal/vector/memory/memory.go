// Package memory is an in-process vector.Store using brute-force
// similarity. It backs tests and store-less runs; anything bigger than a
// few thousand chunks belongs in Qdrant.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector"
)

// Store implements vector.Store with a map and linear scans.
type Store struct {
	mu      sync.RWMutex
	spec    vector.CollectionSpec
	records map[string]vector.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]vector.Record)}
}

func (s *Store) EnsureCollection(ctx context.Context, spec vector.CollectionSpec, recreate bool) error {
	switch spec.Metric {
	case vector.MetricCosine, vector.MetricDot, "":
	default:
		return fmt.Errorf("%w: unknown metric %q", vector.ErrMetricMismatch, spec.Metric)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spec.Name == spec.Name && len(s.records) > 0 && !recreate {
		if s.spec.Dimensions != spec.Dimensions {
			return fmt.Errorf("%w: collection %s has %d, configured %d",
				vector.ErrDimensionMismatch, spec.Name, s.spec.Dimensions, spec.Dimensions)
		}
		if s.spec.Metric != spec.Metric {
			return fmt.Errorf("%w: collection %s uses %s, configured %s",
				vector.ErrMetricMismatch, spec.Name, s.spec.Metric, spec.Metric)
		}
		return nil
	}

	s.spec = spec
	s.records = make(map[string]vector.Record)
	return nil
}

func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if s.spec.Dimensions > 0 && len(rec.Vector) != s.spec.Dimensions {
			return fmt.Errorf("%w: record %s has %d, collection wants %d",
				vector.ErrDimensionMismatch, rec.ID, len(rec.Vector), s.spec.Dimensions)
		}
	}
	for _, rec := range records {
		s.records[rec.ID] = rec
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vec []float32, topK int, filter *vector.Filter) ([]vector.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.spec.Dimensions > 0 && len(vec) != s.spec.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, collection wants %d",
			vector.ErrDimensionMismatch, len(vec), s.spec.Dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}

	results := make([]vector.SearchResult, 0, len(s.records))
	for _, rec := range s.records {
		if filter != nil && filter.DocumentID != "" && rec.DocumentID != filter.DocumentID {
			continue
		}
		results = append(results, vector.SearchResult{
			ID:         rec.ID,
			Score:      s.score(vec, rec.Vector),
			DocumentID: rec.DocumentID,
			ChunkIndex: rec.ChunkIndex,
			Content:    rec.Content,
			Metadata:   rec.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID // stable order for ties
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Store) Fetch(ctx context.Context, ids []string) ([]vector.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []vector.Record
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.records {
		if rec.DocumentID == documentID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *Store) CountByDocument(ctx context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.records {
		if rec.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

// Len returns the total number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Close() error { return nil }

func (s *Store) score(a, b []float32) float32 {
	switch s.spec.Metric {
	case vector.MetricDot:
		return dot(a, b)
	default:
		return cosine(a, b)
	}
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func cosine(a, b []float32) float32 {
	var na, nb float64
	for _, v := range a {
		na += float64(v) * float64(v)
	}
	for _, v := range b {
		nb += float64(v) * float64(v)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / float32(math.Sqrt(na)*math.Sqrt(nb))
}

var _ vector.Store = (*Store)(nil)
