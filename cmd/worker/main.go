// Worker runs durable ingestion workflows. Documents submitted with
// `rag index --async` land on the task queue this process polls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/phuslu/log"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/catalog"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/chunker"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/config"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/embed"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/graph"
	graphneo4j "github.com/Haisen-Liao/haystack-qdrant-rag/internal/graph/neo4j"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/index"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm/ollama"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm/openai"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/logging"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/observability"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/server"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/temporal"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector"
	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector/memory"
	vectorqdrant "github.com/Haisen-Liao/haystack-qdrant-rag/internal/vector/qdrant"
)

func main() {
	configPath := flag.String("config", "configs/rag.yaml", "Config file path")
	healthAddr := flag.String("health-addr", ":8080", "Health and metrics listen address")
	flag.Parse()

	if err := run(*configPath, *healthAddr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// providerConfig starts from the factory defaults so the embedding
// provider carries the timeout and retry-with-backoff wrapper on top of
// Temporal's activity-level retries.
func providerConfig(provider, apiKey, model, embedModel, baseURL string) llm.ProviderConfig {
	c := llm.DefaultProviderConfig()
	c.Provider = provider
	c.APIKey = apiKey
	c.Model = model
	c.EmbedModel = embedModel
	c.BaseURL = baseURL
	return c
}

func newFactory() *llm.ProviderFactory {
	factory := llm.NewFactory()
	factory.Register("ollama", func(c llm.ProviderConfig) (llm.Provider, error) {
		base := c.BaseURL
		if base == "" {
			base = llm.KnownProviders["ollama"]
		}
		return ollama.New(c.Model, c.EmbedModel, base), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	return factory
}

func run(configPath, healthAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "rag-worker",
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		SampleRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return err
	}
	defer tp.Shutdown(ctx)

	factory := newFactory()

	embedProvider, err := factory.Create(providerConfig(
		cfg.Embedding.Provider, cfg.Embedding.APIKey, cfg.Embedding.Model,
		cfg.Embedding.Model, cfg.Embedding.BaseURL))
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	if embedProvider == nil {
		return fmt.Errorf("embedding provider must not be %q", cfg.Embedding.Provider)
	}
	embedProvider = llm.WithRateLimit(embedProvider, llm.DefaultRateLimitConfig())
	embedder := embed.NewProviderEmbedder(embedProvider, cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.BatchSize)

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
			return err
		}
	}
	defer store.Close()
	if err := store.EnsureCollection(ctx, spec, false); err != nil {
		return err
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer cat.Close()

	var graphRepo graph.Repository
	if cfg.Graph.Enabled {
		graphRepo, err = graphneo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			return err
		}
		defer graphRepo.Close(ctx)
	}

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Telemetry.AuditPath != "",
		OutputPath: cfg.Telemetry.AuditPath,
	})
	if err != nil {
		return err
	}
	defer audit.Close()

	splitter, err := chunker.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}
	pipeline, err := index.New(index.Options{
		Splitter: splitter,
		Embedder: embedder,
		Store:    store,
		Ledger:   cat,
		Graph:    graphRepo,
		Audit:    audit,
		Metric:   vector.Metric(cfg.Vector.Metric),
	})
	if err != nil {
		return err
	}
	temporal.SetDependencies(&temporal.Dependencies{Pipeline: pipeline})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	w, err := temporal.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		return err
	}

	g := server.NewGracefulServer(&server.HealthConfig{}, nil)
	g.Health.RegisterCheck("vector_store", server.VectorStoreHealthChecker(func(ctx context.Context) error {
		_, err := store.CountByDocument(ctx, "healthcheck")
		return err
	}))
	g.Health.RegisterCheck("catalog", server.CatalogHealthChecker(func(ctx context.Context) error {
		_, err := cat.Models(ctx)
		return err
	}))
	if graphRepo != nil {
		g.Health.RegisterCheck("graph", server.GraphHealthChecker(func(ctx context.Context) error {
			_, err := graphRepo.Neighbors(ctx, "healthcheck", 1)
			return err
		}))
	}
	g.Health.RegisterCheck("embedding", server.LLMHealthChecker(cfg.Embedding.Provider, nil))
	g.Health.Mount("/metrics", observability.Metrics().Registry.Handler())

	g.RegisterHook("temporal-worker", 10, func(ctx context.Context) error {
		w.Stop()
		return nil
	})
	g.Start(healthAddr)

	log.Info().
		Str("task_queue", cfg.Temporal.TaskQueue).
		Str("namespace", cfg.Temporal.Namespace).
		Str("health_addr", healthAddr).
		Msg("worker started")

	g.Wait()
	log.Info().Msg("worker stopped")
	return nil
}
