package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/graph"
)

// Repository implements graph.Repository using Neo4j. Documents and
// chunks become nodes; [:HAS_CHUNK] ties a chunk to its document and
// [:NEXT] links consecutive chunks.
type Repository struct {
	driver neo4j.DriverWithContext
}

// New creates a Neo4j-backed repository and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver}, nil
}

func (r *Repository) StoreDocument(ctx context.Context, documentID string, chunks []graph.ChunkNode) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Replace the whole chain so re-ingestion never leaves stale links.
		_, err := tx.Run(ctx,
			"MATCH (d:Document {id: $id}) OPTIONAL MATCH (d)-[:HAS_CHUNK]->(c:Chunk) DETACH DELETE c, d",
			map[string]any{"id": documentID})
		if err != nil {
			return nil, err
		}

		_, err = tx.Run(ctx,
			"MERGE (d:Document {id: $id})",
			map[string]any{"id": documentID})
		if err != nil {
			return nil, err
		}

		for _, c := range chunks {
			_, err := tx.Run(ctx,
				"MATCH (d:Document {id: $doc}) "+
					"MERGE (c:Chunk {id: $id}) SET c.idx = $idx "+
					"MERGE (d)-[:HAS_CHUNK]->(c)",
				map[string]any{"doc": documentID, "id": c.ID, "idx": c.Index})
			if err != nil {
				return nil, err
			}
		}

		for i := 1; i < len(chunks); i++ {
			_, err := tx.Run(ctx,
				"MATCH (a:Chunk {id: $prev}), (b:Chunk {id: $next}) MERGE (a)-[:NEXT]->(b)",
				map[string]any{"prev": chunks[i-1].ID, "next": chunks[i].ID})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store chunk chain for %s: %w", documentID, err)
	}
	return nil
}

func (r *Repository) Neighbors(ctx context.Context, chunkID string, distance int) ([]string, error) {
	if distance <= 0 {
		return nil, nil
	}
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			fmt.Sprintf("MATCH (c:Chunk {id: $id})-[:NEXT*1..%d]-(n:Chunk) RETURN DISTINCT n.id AS id ORDER BY n.idx", distance),
			map[string]any{"id": chunkID})
		if err != nil {
			return nil, err
		}
		var ids []string
		for records.Next(ctx) {
			v, _ := records.Record().Get("id")
			if s, ok := v.(string); ok && s != chunkID {
				ids = append(ids, s)
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", chunkID, err)
	}
	return result.([]string), nil
}

func (r *Repository) DeleteDocument(ctx context.Context, documentID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx,
			"MATCH (d:Document {id: $id}) OPTIONAL MATCH (d)-[:HAS_CHUNK]->(c:Chunk) DETACH DELETE c, d",
			map[string]any{"id": documentID})
	})
	if err != nil {
		return fmt.Errorf("delete chunk chain for %s: %w", documentID, err)
	}
	return nil
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Repository)(nil)
