// Package retrieve implements the question answering pipeline: embed
// the question, search the vector store, assemble a bounded context and
// generate a grounded answer.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/embed"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/graph"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/observability"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector"
)

// ErrModelMismatch reports that the configured embedding model differs
// from the one that indexed the collection. Searching would compare
// vectors from incompatible spaces, so the query is refused.
var ErrModelMismatch = errors.New("embedding model does not match the model that indexed the collection")

// NoContextAnswer is returned without calling the generator when the
// search finds nothing to ground an answer on.
const NoContextAnswer = "I could not find any relevant context in the indexed documents for this question."

const promptTemplate = `You are an academic research assistant. Please answer the user's question based ONLY on the following [Context].
Be professional and accurate. If possible, cite specific details from the context.

[Context]:
%s

User Question: %s
Answer:`

// Source identifies one chunk that grounded an answer.
type Source struct {
	DocumentID string
	ChunkIndex int
	Score      float32
}

// Answer is the result of one question.
type Answer struct {
	Text      string
	Sources   []Source
	NoContext bool
	Model     string
	Duration  time.Duration
}

// ModelCatalog is the catalog surface used for the model guard.
type ModelCatalog interface {
	Models(ctx context.Context) ([]string, error)
}

// Options configures a Pipeline. Embedder and Store are required. A nil
// Generator makes Ask return the assembled context without an LLM
// answer. Graph enables neighbor expansion; Catalog enables the model
// guard.
type Options struct {
	Embedder        embed.Embedder
	Store           vector.Store
	Generator       llm.Provider
	GeneratorModel  string
	Catalog         ModelCatalog
	Graph           graph.Repository
	Metrics         *observability.RAGMetrics
	Audit           *observability.AuditLogger
	TopK            int
	MaxContextChars int
	ExpandNeighbors bool
	Temperature     float64
	MaxTokens       int
}

// Pipeline answers questions against the indexed corpus.
type Pipeline struct {
	opts    Options
	metrics *observability.RAGMetrics
	audit   *observability.AuditLogger
}

// New creates a retrieval pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("retrieve: embedder is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("retrieve: vector store is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = 8000
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Metrics()
	}
	if opts.Audit == nil {
		opts.Audit, _ = observability.NewAuditLogger(nil)
	}
	return &Pipeline{opts: opts, metrics: opts.Metrics, audit: opts.Audit}, nil
}

// Ask answers a question using the indexed corpus.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Answer, error) {
	start := time.Now()

	if err := p.checkModel(ctx); err != nil {
		return nil, err
	}

	searchStart := time.Now()
	results, err := p.search(ctx, question)
	searchDur := time.Since(searchStart)
	if err != nil {
		p.metrics.RecordQuery(searchDur, 0, 0, err)
		return nil, err
	}
	p.audit.LogSearch(question, p.opts.TopK, len(results), searchDur)

	if len(results) == 0 {
		p.metrics.RecordQuery(searchDur, 0, 0, nil)
		return &Answer{Text: NoContextAnswer, NoContext: true, Duration: time.Since(start)}, nil
	}

	chunks := p.expand(ctx, results)
	contextText, used := assembleContext(chunks, p.opts.MaxContextChars)

	answer := &Answer{Duration: time.Since(start)}
	for _, c := range used {
		answer.Sources = append(answer.Sources, Source{
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Score:      c.Score,
		})
	}

	if p.opts.Generator == nil {
		answer.Text = contextText
		p.metrics.RecordQuery(searchDur, 0, len(used), nil)
		return answer, nil
	}

	genStart := time.Now()
	text, model, err := p.generate(ctx, question, contextText)
	genDur := time.Since(genStart)
	p.metrics.RecordQuery(searchDur, genDur, len(used), err)
	if err != nil {
		p.audit.LogGenerateError(p.opts.GeneratorModel, err)
		return nil, err
	}

	answer.Text = text
	answer.Model = model
	answer.Duration = time.Since(start)
	return answer, nil
}

// checkModel refuses to search when the catalog says the collection was
// indexed with a different embedding model.
func (p *Pipeline) checkModel(ctx context.Context) error {
	if p.opts.Catalog == nil {
		return nil
	}
	models, err := p.opts.Catalog.Models(ctx)
	if err != nil {
		return fmt.Errorf("reading indexed models from catalog: %w", err)
	}
	for _, m := range models {
		if m != p.opts.Embedder.ModelID() {
			return fmt.Errorf("%w: collection indexed with %q, configured %q",
				ErrModelMismatch, m, p.opts.Embedder.ModelID())
		}
	}
	return nil
}

func (p *Pipeline) search(ctx context.Context, question string) ([]vector.SearchResult, error) {
	vectors, err := p.opts.Embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	ctx, span := observability.StartSearchSpan(ctx, "", p.opts.TopK)
	defer span.End()

	results, err := p.opts.Store.Search(ctx, vectors[0], p.opts.TopK, nil)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("searching: %w", err)
	}
	topScore := 0.0
	if len(results) > 0 {
		topScore = float64(results[0].Score)
	}
	observability.RecordSearchResult(span, len(results), topScore)
	return results, nil
}

// expand pulls each hit's neighboring chunks from the graph so the
// generator sees the surrounding prose, not just the matching window.
// Neighbors inherit their anchor's score minus an epsilon so truncation
// drops them before the hit itself.
func (p *Pipeline) expand(ctx context.Context, results []vector.SearchResult) []vector.SearchResult {
	if !p.opts.ExpandNeighbors || p.opts.Graph == nil {
		return results
	}

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.ID] = true
	}

	out := results
	for _, r := range results {
		ids, err := p.opts.Graph.Neighbors(ctx, r.ID, 1)
		if err != nil {
			log.Warn().Err(err).Str("chunk", r.ID).Msg("neighbor expansion failed; continuing without")
			continue
		}
		var fetch []string
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				fetch = append(fetch, id)
			}
		}
		if len(fetch) == 0 {
			continue
		}
		records, err := p.opts.Store.Fetch(ctx, fetch)
		if err != nil {
			log.Warn().Err(err).Msg("fetching neighbor chunks failed; continuing without")
			continue
		}
		for _, rec := range records {
			out = append(out, vector.SearchResult{
				ID:         rec.ID,
				Score:      r.Score - 1e-4,
				DocumentID: rec.DocumentID,
				ChunkIndex: rec.ChunkIndex,
				Content:    rec.Content,
				Metadata:   rec.Metadata,
			})
		}
	}
	return out
}

// assembleContext joins chunks in descending score order, dropping the
// lowest-scoring chunks first when the budget is exceeded. The kept
// chunks are then ordered by document position so the prompt reads
// naturally.
func assembleContext(results []vector.SearchResult, maxChars int) (string, []vector.SearchResult) {
	sorted := make([]vector.SearchResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var kept []vector.SearchResult
	total := 0
	for _, r := range sorted {
		n := len(r.Content)
		if total+n > maxChars && len(kept) > 0 {
			break
		}
		kept = append(kept, r)
		total += n
		if total >= maxChars {
			break
		}
	}

	ordered := make([]vector.SearchResult, len(kept))
	copy(ordered, kept)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].DocumentID != ordered[j].DocumentID {
			return ordered[i].DocumentID < ordered[j].DocumentID
		}
		return ordered[i].ChunkIndex < ordered[j].ChunkIndex
	})

	var b strings.Builder
	for i, r := range ordered {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Content)
	}
	return b.String(), kept
}

func (p *Pipeline) generate(ctx context.Context, question, contextText string) (string, string, error) {
	prompt := &llm.Prompt{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(promptTemplate, contextText, question)},
		},
	}

	providerName := p.opts.Generator.Name()
	ctx, span := observability.StartGenerateSpan(ctx, providerName, p.opts.GeneratorModel)
	defer span.End()

	opts := &llm.RequestOptions{}
	if p.opts.Temperature > 0 {
		t := p.opts.Temperature
		opts.Temperature = &t
	}
	if p.opts.MaxTokens > 0 {
		opts.MaxTokens = &p.opts.MaxTokens
	}

	start := time.Now()
	resp, err := p.opts.Generator.Complete(ctx, prompt, opts)
	if err != nil {
		observability.RecordError(span, err)
		return "", "", fmt.Errorf("generating answer: %w", err)
	}
	observability.RecordGenerateMetrics(span, resp.InputTokens, resp.OutputTokens, time.Since(start))
	p.audit.LogGenerate(resp.Model, time.Since(start), resp.InputTokens, resp.OutputTokens)

	return llm.StripThinkingTags(resp.Content), resp.Model, nil
}
