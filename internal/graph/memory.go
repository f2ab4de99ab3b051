package graph

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process Repository for tests and runs
// without a graph database.
type MemoryRepository struct {
	mu     sync.RWMutex
	chains map[string][]ChunkNode // document id -> ordered chunks
	byID   map[string]ChunkNode
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		chains: make(map[string][]ChunkNode),
		byID:   make(map[string]ChunkNode),
	}
}

func (m *MemoryRepository) StoreDocument(ctx context.Context, documentID string, chunks []ChunkNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.chains[documentID] {
		delete(m.byID, c.ID)
	}
	chain := make([]ChunkNode, len(chunks))
	copy(chain, chunks)
	m.chains[documentID] = chain
	for _, c := range chain {
		m.byID[c.ID] = c
	}
	return nil
}

func (m *MemoryRepository) Neighbors(ctx context.Context, chunkID string, distance int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.byID[chunkID]
	if !ok || distance <= 0 {
		return nil, nil
	}
	chain := m.chains[node.DocumentID]

	pos := -1
	for i, c := range chain {
		if c.ID == chunkID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, nil
	}

	var ids []string
	for i := pos - distance; i <= pos+distance; i++ {
		if i < 0 || i >= len(chain) || i == pos {
			continue
		}
		ids = append(ids, chain[i].ID)
	}
	return ids, nil
}

func (m *MemoryRepository) DeleteDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.chains[documentID] {
		delete(m.byID, c.ID)
	}
	delete(m.chains, documentID)
	return nil
}

func (m *MemoryRepository) Close(ctx context.Context) error { return nil }

var _ Repository = (*MemoryRepository)(nil)
