// Package vector defines the storage contract for embedded chunks. Any
// store satisfying upsert / filtered search / delete-by-document semantics
// is compliant; the wire protocol is not part of the contract.
package vector

import (
	"context"
	"errors"
)

// Metric is the similarity function of a collection. It is fixed when the
// collection is created; mixing metrics between stored vectors and
// queries is undefined, so a detected mismatch fails fast.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
)

// ErrDimensionMismatch reports a vector whose length differs from the
// collection's fixed dimensionality. This is a caller bug: never retried.
var ErrDimensionMismatch = errors.New("vector dimensionality does not match collection")

// ErrMetricMismatch reports a collection whose similarity metric differs
// from the one configured. Fatal; the collection must be re-created.
var ErrMetricMismatch = errors.New("collection similarity metric does not match configuration")

// CollectionSpec fixes a collection's shape for its lifetime.
type CollectionSpec struct {
	Name       string
	Dimensions int
	Metric     Metric
}

// Record is one indexed chunk. ID is deterministic per (document, chunk
// index) so re-upserting an unchanged document is a no-op in effect.
type Record struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Content    string
	Vector     []float32
	Metadata   map[string]string
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID         string
	Score      float32
	DocumentID string
	ChunkIndex int
	Content    string
	Metadata   map[string]string
}

// Filter restricts a search to matching records. Zero value matches all.
type Filter struct {
	DocumentID string
}

// Store provides vector persistence and similarity search. The indexing
// pipeline owns the write path; retrieval only reads.
type Store interface {
	// EnsureCollection creates the collection if absent and validates its
	// dimensionality and metric if present. recreate drops existing data.
	EnsureCollection(ctx context.Context, spec CollectionSpec, recreate bool) error
	// Upsert inserts or replaces records by id.
	Upsert(ctx context.Context, records []Record) error
	// Search returns at most topK results ordered by descending score.
	Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error)
	// Fetch returns the records with the given ids; missing ids are
	// silently skipped.
	Fetch(ctx context.Context, ids []string) ([]Record, error)
	// DeleteByDocument removes every record belonging to the document.
	DeleteByDocument(ctx context.Context, documentID string) error
	// CountByDocument returns the number of live records for the document.
	CountByDocument(ctx context.Context, documentID string) (int, error)
	// Close releases resources.
	Close() error
}
