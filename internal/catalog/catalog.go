// Package catalog is the ingestion ledger: one SQLite row per indexed
// document recording its source, content hash, chunk count and the
// embedding model that produced its vectors. Retrieval consults it to
// refuse querying with a different model than the one that indexed.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound reports a document id with no catalog entry.
var ErrNotFound = errors.New("document not found in catalog")

// Status of a document in the ingestion ledger.
type Status string

const (
	StatusIndexing Status = "indexing"
	StatusIndexed  Status = "indexed"
	StatusFailed   Status = "failed"
)

// Entry is one catalog row.
type Entry struct {
	ID          string
	Source      string
	SHA256      string
	ChunkCount  int
	EmbedModel  string
	Dimensions  int
	Metric      string
	Status      Status
	FailedStage string
	IndexedAt   time.Time
	UpdatedAt   time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	sha256       TEXT NOT NULL,
	chunk_count  INTEGER NOT NULL DEFAULT 0,
	embed_model  TEXT NOT NULL,
	dimensions   INTEGER NOT NULL,
	metric       TEXT NOT NULL,
	status       TEXT NOT NULL,
	failed_stage TEXT NOT NULL DEFAULT '',
	indexed_at   TIMESTAMP,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`

// Catalog is a SQLite-backed document ledger.
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the catalog database at path. An empty
// path defaults to ~/.rag/catalog.db.
func Open(path string) (*Catalog, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".rag", "catalog.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	// WAL keeps reads from blocking the ingest writer.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing catalog schema: %w", err)
	}
	return &Catalog{db: db, path: path}, nil
}

// Path returns the database file path.
func (c *Catalog) Path() string { return c.path }

// Close closes the database.
func (c *Catalog) Close() error { return c.db.Close() }

// Begin records that a document's ingestion has started, replacing any
// previous entry for the same id.
func (c *Catalog) Begin(ctx context.Context, e Entry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO documents (id, source, sha256, chunk_count, embed_model, dimensions, metric, status, failed_stage, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, '', ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			sha256 = excluded.sha256,
			chunk_count = 0,
			embed_model = excluded.embed_model,
			dimensions = excluded.dimensions,
			metric = excluded.metric,
			status = excluded.status,
			failed_stage = '',
			updated_at = excluded.updated_at`,
		e.ID, e.Source, e.SHA256, e.EmbedModel, e.Dimensions, e.Metric, StatusIndexing, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording ingest start for %s: %w", e.ID, err)
	}
	return nil
}

// Complete marks a document as fully indexed with its final chunk count.
func (c *Catalog) Complete(ctx context.Context, id string, chunkCount int) error {
	now := time.Now().UTC()
	res, err := c.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, chunk_count = ?, failed_stage = '', indexed_at = ?, updated_at = ?
		WHERE id = ?`,
		StatusIndexed, chunkCount, now, now, id)
	if err != nil {
		return fmt.Errorf("recording ingest completion for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Fail marks a document's ingestion as failed at the named stage.
func (c *Catalog) Fail(ctx context.Context, id, stage string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, failed_stage = ?, updated_at = ?
		WHERE id = ?`,
		StatusFailed, stage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("recording ingest failure for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Get returns the catalog entry for a document id.
func (c *Catalog) Get(ctx context.Context, id string) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, source, sha256, chunk_count, embed_model, dimensions, metric, status, failed_stage, indexed_at, updated_at
		FROM documents WHERE id = ?`, id)
	return scanEntry(row)
}

// List returns all entries ordered by most recently updated.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, source, sha256, chunk_count, embed_model, dimensions, metric, status, failed_stage, indexed_at, updated_at
		FROM documents ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Delete removes a document's catalog entry.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting catalog entry %s: %w", id, err)
	}
	return nil
}

// Models returns the distinct embedding models across indexed documents.
// More than one element means the collection holds mixed-model vectors.
func (c *Catalog) Models(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT embed_model FROM documents WHERE status = ? ORDER BY embed_model`,
		StatusIndexed)
	if err != nil {
		return nil, fmt.Errorf("listing embedding models: %w", err)
	}
	defer rows.Close()

	var models []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var indexedAt sql.NullTime
	err := row.Scan(&e.ID, &e.Source, &e.SHA256, &e.ChunkCount, &e.EmbedModel,
		&e.Dimensions, &e.Metric, &e.Status, &e.FailedStage, &indexedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning catalog entry: %w", err)
	}
	if indexedAt.Valid {
		e.IndexedAt = indexedAt.Time
	}
	return &e, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
