package main

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/catalog"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/chunker"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/config"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/embed"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/graph"
	graphneo4j "github.com/Haisen-Liao/haystack-qdrant-rag/internal/graph/neo4j"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/index"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm/anthropic"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm/ollama"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm/openai"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/logging"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/metrics"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/observability"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/retrieve"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/temporal"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector/memory"
	vectorqdrant "github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector/qdrant"
)

func main() {
	var (
		configPath string
		recreate   bool
		jsonReport bool
		async      bool
	)

	rootCmd := &cobra.Command{
		Use:   "rag",
		Short: "Local retrieval-augmented question answering over your documents",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/rag.yaml", "Config file path")

	indexCmd := &cobra.Command{
		Use:   "index [paths...]",
		Short: "Index documents into the vector store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(configPath, args, recreate, jsonReport, async)
		},
	}
	indexCmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and re-create the collection before indexing")
	indexCmd.Flags().BoolVar(&jsonReport, "json", false, "Output the indexing report as JSON")
	indexCmd.Flags().BoolVar(&async, "async", false, "Submit documents as durable workflows instead of indexing inline")

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(configPath, strings.Join(args, " "))
		},
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question answering session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(configPath)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [document-id]",
		Short: "Remove a document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(configPath, args[0])
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the indexed document catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(configPath)
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available model providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available model providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (generator only: return retrieved context verbatim)")
			fmt.Println()
			fmt.Println("Configure in rag.yaml or via environment:")
			fmt.Println("  RAG_EMBEDDING_MODEL=nomic-embed-text")
			fmt.Println("  RAG_GENERATOR_PROVIDER=ollama")
			fmt.Println("  RAG_GENERATOR_MODEL=phi3")
		},
	}

	rootCmd.AddCommand(indexCmd, askCmd, chatCmd, deleteCmd, statusCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired components shared by the commands.
type app struct {
	cfg       *config.Config
	embedder  embed.Embedder
	store     vector.Store
	catalog   *catalog.Catalog
	graph     graph.Repository
	generator llm.Provider
	audit     *observability.AuditLogger
}

func (a *app) close(ctx context.Context) {
	if a.store != nil {
		a.store.Close()
	}
	if a.catalog != nil {
		a.catalog.Close()
	}
	if a.graph != nil {
		a.graph.Close(ctx)
	}
	if a.audit != nil {
		a.audit.Close()
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg
}

// newFactory registers all linked provider backends.
func newFactory() *llm.ProviderFactory {
	factory := llm.NewFactory()
	factory.Register("ollama", func(c llm.ProviderConfig) (llm.Provider, error) {
		base := c.BaseURL
		if base == "" {
			base = llm.KnownProviders["ollama"]
		}
		return ollama.New(c.Model, c.EmbedModel, base), nil
	})
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"together", llm.KnownProviders["together"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}
	return factory
}

// providerConfig starts from the factory defaults so every created
// provider carries the timeout and retry-with-backoff wrapper; transient
// failures must be retried in the inline paths, not only under Temporal.
func providerConfig(provider, apiKey, model, embedModel, baseURL string) llm.ProviderConfig {
	c := llm.DefaultProviderConfig()
	c.Provider = provider
	c.APIKey = apiKey
	c.Model = model
	c.EmbedModel = embedModel
	c.BaseURL = baseURL
	return c
}

// buildApp wires the shared components. recreate drops the collection.
func buildApp(ctx context.Context, cfg *config.Config, recreate bool) (*app, error) {
	factory := newFactory()

	embedProvider, err := factory.Create(providerConfig(
		cfg.Embedding.Provider, cfg.Embedding.APIKey, cfg.Embedding.Model,
		cfg.Embedding.Model, cfg.Embedding.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	if embedProvider == nil {
		return nil, fmt.Errorf("embedding provider must not be %q", cfg.Embedding.Provider)
	}
	embedder := embed.NewProviderEmbedder(embedProvider, cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.BatchSize)

	generator, err := factory.Create(providerConfig(
		cfg.Generator.Provider, cfg.Generator.APIKey, cfg.Generator.Model,
		"", cfg.Generator.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("creating generator provider: %w", err)
	}
	if generator != nil {
		generator = llm.WithRateLimit(generator, llm.DefaultRateLimitConfig())
	}

	spec := vector.CollectionSpec{
		Name:       cfg.Vector.Collection,
		Dimensions: cfg.Embedding.Dimensions,
		Metric:     vector.Metric(cfg.Vector.Metric),
	}
	var store vector.Store
	if cfg.Vector.Store == "memory" {
		store = memory.New()
	} else {
		store, err = vectorqdrant.New(ctx, cfg.Vector.Host, cfg.Vector.Port, spec)
		if err != nil {
			return nil, err
		}
	}
	if err := store.EnsureCollection(ctx, spec, recreate); err != nil {
		store.Close()
		return nil, err
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		store.Close()
		return nil, err
	}

	var graphRepo graph.Repository
	if cfg.Graph.Enabled {
		graphRepo, err = graphneo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			store.Close()
			cat.Close()
			return nil, err
		}
	}

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Telemetry.AuditPath != "",
		OutputPath: cfg.Telemetry.AuditPath,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		embedder:  embedder,
		store:     store,
		catalog:   cat,
		graph:     graphRepo,
		generator: generator,
		audit:     audit,
	}, nil
}

func (a *app) indexPipeline() (*index.Pipeline, error) {
	splitter, err := chunker.NewSplitter(a.cfg.Chunking.Size, a.cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}
	return index.New(index.Options{
		Splitter: splitter,
		Embedder: a.embedder,
		Store:    a.store,
		Ledger:   a.catalog,
		Graph:    a.graph,
		Audit:    a.audit,
		Metric:   vector.Metric(a.cfg.Vector.Metric),
	})
}

func (a *app) retrievePipeline() (*retrieve.Pipeline, error) {
	return retrieve.New(retrieve.Options{
		Embedder:        a.embedder,
		Store:           a.store,
		Generator:       a.generator,
		GeneratorModel:  a.cfg.Generator.Model,
		Catalog:         a.catalog,
		Graph:           a.graph,
		Audit:           a.audit,
		TopK:            a.cfg.Retrieval.TopK,
		MaxContextChars: a.cfg.Retrieval.MaxContextChars,
		ExpandNeighbors: a.cfg.Retrieval.ExpandNeighbors,
		Temperature:     a.cfg.Generator.Temperature,
		MaxTokens:       a.cfg.Generator.MaxTokens,
	})
}

// validateIndexFlags rejects flag combinations that would silently lose
// semantics. Async submission never touches the collection, so recreate
// would be dropped on the floor.
func validateIndexFlags(recreate, async bool) error {
	if recreate && async {
		return fmt.Errorf("--recreate cannot be combined with --async: recreate inline first (rag index --recreate), then submit")
	}
	return nil
}

func runIndex(configPath string, paths []string, recreate, jsonReport, async bool) error {
	if err := validateIndexFlags(recreate, async); err != nil {
		return err
	}
	cfg := loadConfig(configPath)
	ctx := context.Background()

	files, err := collectFiles(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no ingestible files under %v (supported: .pdf, .txt, .md)", paths)
	}

	if async {
		return submitWorkflows(ctx, cfg, files)
	}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "rag",
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		SampleRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return err
	}
	defer tp.Shutdown(ctx)

	a, err := buildApp(ctx, cfg, recreate)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	pipeline, err := a.indexPipeline()
	if err != nil {
		return err
	}

	m := metrics.New(cfg.Embedding.Model, cfg.Vector.Collection)
	for _, path := range files {
		res, err := pipeline.IngestFile(ctx, path)
		if err != nil {
			m.AddDocument(res.DocumentID, path, 0, res.Duration, res.FailedStage)
			m.AddError(err)
			continue
		}
		m.AddDocument(res.DocumentID, path, res.ChunkCount, res.Duration, "")
	}
	m.Finish()

	if jsonReport {
		data, _ := m.JSON()
		fmt.Println(string(data))
	} else {
		m.PrintSummary(os.Stdout)
	}

	if m.Indexed() < len(files) {
		return fmt.Errorf("indexed %d/%d documents", m.Indexed(), len(files))
	}
	return nil
}

// submitWorkflows hands the files to the worker fleet. Workflow ids are
// derived from document ids, so concurrent submissions of the same
// document serialize instead of racing.
func submitWorkflows(ctx context.Context, cfg *config.Config, files []string) error {
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	for _, path := range files {
		docID := filepath.Base(path)
		run, err := c.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
			ID:        temporal.WorkflowID(docID),
			TaskQueue: cfg.Temporal.TaskQueue,
		}, temporal.IngestDocumentWorkflow, temporal.IngestInput{Path: path})
		if err != nil {
			return fmt.Errorf("submitting %s: %w", path, err)
		}
		fmt.Printf("Submitted %s (workflow %s, run %s)\n", path, run.GetID(), run.GetRunID())
	}
	return nil
}

func runAsk(configPath, question string) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	a, err := buildApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	pipeline, err := a.retrievePipeline()
	if err != nil {
		return err
	}

	answer, err := pipeline.Ask(ctx, question)
	if err != nil {
		return err
	}
	printAnswer(answer)
	return nil
}

func runChat(configPath string) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	a, err := buildApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	pipeline, err := a.retrievePipeline()
	if err != nil {
		return err
	}

	fmt.Println("Ask questions about your indexed documents. Type 'q' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "q" || question == "exit" || question == "quit" {
			break
		}

		answer, err := pipeline.Ask(ctx, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		printAnswer(answer)
	}
	return scanner.Err()
}

func printAnswer(answer *retrieve.Answer) {
	fmt.Println()
	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range answer.Sources {
			fmt.Printf("  %s (chunk %d, score %.3f)\n", s.DocumentID, s.ChunkIndex, s.Score)
		}
	}
}

func runDelete(configPath, documentID string) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	a, err := buildApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	pipeline, err := a.indexPipeline()
	if err != nil {
		return err
	}
	if err := pipeline.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", documentID)
	return nil
}

func runStatus(configPath string) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer cat.Close()

	entries, err := cat.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No documents indexed.")
		return nil
	}

	fmt.Printf("%-24s %-10s %8s  %-20s %s\n", "DOCUMENT", "STATUS", "CHUNKS", "MODEL", "UPDATED")
	for _, e := range entries {
		status := string(e.Status)
		if e.Status == catalog.StatusFailed && e.FailedStage != "" {
			status = "failed:" + e.FailedStage
		}
		fmt.Printf("%-24s %-10s %8d  %-20s %s\n",
			e.ID, status, e.ChunkCount, e.EmbedModel, e.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// collectFiles expands paths, walking directories for ingestible files.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(p)) {
			case ".pdf", ".txt", ".md":
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
