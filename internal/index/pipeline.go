// Package index implements the document ingestion pipeline: extract,
// clean, chunk, embed, upsert. A document either ends fully indexed or
// fully absent; partial writes are rolled back.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/catalog"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/chunker"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/embed"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/extract"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/graph"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/observability"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector"
)

// Stage names appear in failure reports and the catalog's failed_stage
// column.
const (
	StageExtract = "extract"
	StageClean   = "clean"
	StageChunk   = "chunk"
	StageEmbed   = "embed"
	StageUpsert  = "upsert"
	StageGraph   = "graph"
	StageCatalog = "catalog"
)

// pointNamespace fixes the UUID namespace for chunk point ids, so the
// same (document, chunk index) always maps to the same point.
var pointNamespace = uuid.NameSpaceOID

// PointID returns the deterministic vector store id for a chunk.
func PointID(documentID string, index int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s:%d", documentID, index))).String()
}

// Ledger is the catalog surface the pipeline needs.
type Ledger interface {
	Begin(ctx context.Context, e catalog.Entry) error
	Complete(ctx context.Context, id string, chunkCount int) error
	Fail(ctx context.Context, id, stage string) error
}

// Result reports one document's ingestion.
type Result struct {
	DocumentID  string
	Source      string
	ChunkCount  int
	Duration    time.Duration
	FailedStage string // empty on success
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	extractors []extract.Extractor
	cleaner    *extract.Cleaner
	splitter   *chunker.Splitter
	embedder   embed.Embedder
	store      vector.Store
	ledger     Ledger           // optional
	graph      graph.Repository // optional
	audit      *observability.AuditLogger
	metrics    *observability.RAGMetrics
	metric     vector.Metric
}

// Options configures a Pipeline. Embedder, Store and Splitter are
// required; everything else has a working default or is optional.
type Options struct {
	Extractors []extract.Extractor
	Cleaner    *extract.Cleaner
	Splitter   *chunker.Splitter
	Embedder   embed.Embedder
	Store      vector.Store
	Ledger     Ledger
	Graph      graph.Repository
	Audit      *observability.AuditLogger
	Metrics    *observability.RAGMetrics
	Metric     vector.Metric
}

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("index: embedder is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("index: vector store is required")
	}
	if opts.Splitter == nil {
		return nil, fmt.Errorf("index: splitter is required")
	}
	if opts.Extractors == nil {
		opts.Extractors = extract.DefaultExtractors()
	}
	if opts.Cleaner == nil {
		opts.Cleaner = extract.NewCleaner()
	}
	if opts.Audit == nil {
		opts.Audit, _ = observability.NewAuditLogger(nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Metrics()
	}
	if opts.Metric == "" {
		opts.Metric = vector.MetricCosine
	}
	return &Pipeline{
		extractors: opts.Extractors,
		cleaner:    opts.Cleaner,
		splitter:   opts.Splitter,
		embedder:   opts.Embedder,
		store:      opts.Store,
		ledger:     opts.Ledger,
		graph:      opts.Graph,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		metric:     opts.Metric,
	}, nil
}

// IngestFile extracts path and ingests the resulting document.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Result, error) {
	extractor, err := extract.ForPath(p.extractors, path)
	if err != nil {
		return &Result{Source: path, FailedStage: StageExtract}, err
	}
	doc, err := extractor.Extract(ctx, path)
	if err != nil {
		return &Result{Source: path, FailedStage: StageExtract}, fmt.Errorf("extract %s: %w", path, err)
	}
	return p.IngestDocument(ctx, doc)
}

// IngestDocument runs the clean, chunk, embed and upsert stages for an
// already extracted document. Re-ingesting a document id replaces its
// previous chunks.
func (p *Pipeline) IngestDocument(ctx context.Context, doc *extract.Document) (*Result, error) {
	start := time.Now()
	res := &Result{DocumentID: doc.ID, Source: doc.Source}

	p.metrics.ActiveIngestions.Inc()
	defer p.metrics.ActiveIngestions.Dec()

	ctx, span := observability.StartIngestSpan(ctx, doc.ID, doc.Source)
	defer span.End()

	p.audit.LogIngestStart(doc.ID, doc.Source)
	log.Info().Str("document", doc.ID).Str("source", doc.Source).Msg("ingesting document")

	err := p.ingest(ctx, doc, res)
	res.Duration = time.Since(start)

	if err != nil {
		observability.RecordError(span, err)
		p.audit.LogIngestError(doc.ID, res.FailedStage, err)
		p.metrics.RecordIngest(res.Duration, 0, err)
		p.recordFailure(doc.ID, res.FailedStage)
		log.Error().Err(err).Str("document", doc.ID).Str("stage", res.FailedStage).Msg("ingestion failed")
		return res, err
	}

	observability.RecordIngestResult(span, res.ChunkCount, res.Duration)
	p.audit.LogIngestComplete(doc.ID, res.ChunkCount, res.Duration)
	p.metrics.RecordIngest(res.Duration, res.ChunkCount, nil)
	log.Info().Str("document", doc.ID).Int("chunks", res.ChunkCount).
		Dur("duration", res.Duration).Msg("document indexed")
	return res, nil
}

func (p *Pipeline) ingest(ctx context.Context, doc *extract.Document, res *Result) error {
	res.FailedStage = StageClean
	text := p.cleaner.Clean(doc.Text)

	res.FailedStage = StageChunk
	chunks := p.splitter.Split(doc.ID, text)

	res.FailedStage = StageCatalog
	if p.ledger != nil {
		entry := catalog.Entry{
			ID:         doc.ID,
			Source:     doc.Source,
			SHA256:     contentHash(text),
			EmbedModel: p.embedder.ModelID(),
			Dimensions: p.embedder.Dimensions(),
			Metric:     string(p.metric),
		}
		if err := p.ledger.Begin(ctx, entry); err != nil {
			return err
		}
	}

	// An empty document still replaces its previous chunks.
	if len(chunks) == 0 {
		res.FailedStage = StageUpsert
		if err := p.store.DeleteByDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("clearing previous chunks of %s: %w", doc.ID, err)
		}
		return p.finish(ctx, doc.ID, res, nil)
	}

	res.FailedStage = StageEmbed
	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}

	res.FailedStage = StageUpsert
	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vector.Record{
			ID:         PointID(c.DocumentID, c.Index),
			DocumentID: c.DocumentID,
			ChunkIndex: c.Index,
			Content:    c.Text,
			Vector:     vectors[i],
			Metadata:   doc.Metadata,
		}
	}
	// Delete before write so a shrinking document leaves no orphans.
	if err := p.store.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("clearing previous chunks of %s: %w", doc.ID, err)
	}
	if err := p.store.Upsert(ctx, records); err != nil {
		p.rollback(doc.ID)
		return fmt.Errorf("upserting %d chunks of %s: %w", len(records), doc.ID, err)
	}

	return p.finish(ctx, doc.ID, res, chunks)
}

// finish stores the chunk chain and marks the catalog entry indexed.
func (p *Pipeline) finish(ctx context.Context, documentID string, res *Result, chunks []chunker.Chunk) error {
	res.ChunkCount = len(chunks)

	if p.graph != nil {
		res.FailedStage = StageGraph
		nodes := make([]graph.ChunkNode, len(chunks))
		for i, c := range chunks {
			nodes[i] = graph.ChunkNode{ID: PointID(c.DocumentID, c.Index), DocumentID: c.DocumentID, Index: c.Index}
		}
		if err := p.graph.StoreDocument(ctx, documentID, nodes); err != nil {
			p.rollback(documentID)
			return fmt.Errorf("storing chunk chain of %s: %w", documentID, err)
		}
	}

	res.FailedStage = StageCatalog
	if p.ledger != nil {
		if err := p.ledger.Complete(ctx, documentID, len(chunks)); err != nil {
			return err
		}
	}
	res.FailedStage = ""
	return nil
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	ctx, span := observability.StartEmbedSpan(ctx, p.embedder.ModelID(), len(texts))
	defer span.End()

	p.metrics.EmbedTokensTotal.Add(float64(len(texts)))
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	return vectors, nil
}

// rollback removes whatever the failed ingestion wrote, detached from
// the request context so cancellation still cleans up.
func (p *Pipeline) rollback(documentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.store.DeleteByDocument(ctx, documentID); err != nil {
		log.Warn().Err(err).Str("document", documentID).Msg("rollback failed; stale chunks may remain")
	}
}

func (p *Pipeline) recordFailure(documentID, stage string) {
	if p.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.ledger.Fail(ctx, documentID, stage); err != nil {
		log.Warn().Err(err).Str("document", documentID).Msg("recording ingest failure in catalog failed")
	}
}

// DeleteDocument removes a document's chunks, chain and catalog entry.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	if err := p.store.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("deleting chunks of %s: %w", documentID, err)
	}
	if p.graph != nil {
		if err := p.graph.DeleteDocument(ctx, documentID); err != nil {
			return fmt.Errorf("deleting chunk chain of %s: %w", documentID, err)
		}
	}
	if c, ok := p.ledger.(interface {
		Delete(ctx context.Context, id string) error
	}); ok && p.ledger != nil {
		if err := c.Delete(ctx, documentID); err != nil {
			return err
		}
	}
	return nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
