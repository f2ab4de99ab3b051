// Package graph stores chunk adjacency. Chunks carry no ordering inside
// the vector store, so retrieval-time neighbor expansion needs a side
// structure mapping each chunk to its predecessor and successor.
package graph

import "context"

// ChunkNode is one chunk's position within its document.
type ChunkNode struct {
	ID         string
	DocumentID string
	Index      int
}

// Repository persists per-document chunk chains and answers neighbor
// lookups. Implementations must make StoreDocument idempotent for a
// given document id.
type Repository interface {
	// StoreDocument replaces the chunk chain for a document.
	StoreDocument(ctx context.Context, documentID string, chunks []ChunkNode) error
	// Neighbors returns the chunk ids within distance hops of the given
	// chunk along the chain, excluding the chunk itself.
	Neighbors(ctx context.Context, chunkID string, distance int) ([]string, error)
	// DeleteDocument removes a document's chain.
	DeleteDocument(ctx context.Context, documentID string) error
	// Close releases resources.
	Close(ctx context.Context) error
}
