package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Embedding Embedding `mapstructure:"embedding"`
	Generator Generator `mapstructure:"generator"`
	Vector    Vector    `mapstructure:"vector"`
	Graph     Graph     `mapstructure:"graph"`
	Catalog   Catalog   `mapstructure:"catalog"`
	Chunking  Chunking  `mapstructure:"chunking"`
	Retrieval Retrieval `mapstructure:"retrieval"`
	Temporal  Temporal  `mapstructure:"temporal"`
	Telemetry Telemetry `mapstructure:"telemetry"`
	Log       Log       `mapstructure:"log"`
}

// Embedding configures the embedding model. Indexing and querying must use
// the same model; the catalog records the model id at ingest time and the
// retrieval pipeline refuses to search against a different one.
type Embedding struct {
	Provider   string `mapstructure:"provider"` // "ollama", "openai", "custom"
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// Generator configures the answer-generation model.
type Generator struct {
	Provider    string  `mapstructure:"provider"` // "ollama", "openai", "anthropic", "custom", "none"
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type Vector struct {
	Store      string `mapstructure:"store"` // "qdrant" or "memory"
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	Metric     string `mapstructure:"metric"` // "cosine" or "dot"
}

type Graph struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Catalog struct {
	Path string `mapstructure:"path"` // SQLite file; defaults under the user home
}

type Chunking struct {
	Size    int `mapstructure:"size"`    // max chunk length in runes
	Overlap int `mapstructure:"overlap"` // overlap window in runes
}

type Retrieval struct {
	TopK            int  `mapstructure:"top_k"`
	MaxContextChars int  `mapstructure:"max_context_chars"`
	ExpandNeighbors bool `mapstructure:"expand_neighbors"` // pull adjacent chunks from the graph
}

type Temporal struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type Telemetry struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	AuditPath    string  `mapstructure:"audit_path"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration matching a stock local setup:
// Ollama on 11434 for models, Qdrant gRPC on 6334 for vectors.
func Default() *Config {
	return &Config{
		Embedding: Embedding{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			BaseURL:    "http://localhost:11434",
			Dimensions: 768,
			BatchSize:  32,
		},
		Generator: Generator{
			Provider:    "ollama",
			Model:       "phi3",
			BaseURL:     "http://localhost:11434",
			Temperature: 0.2,
			MaxTokens:   1024,
		},
		Vector: Vector{
			Store:      "qdrant",
			Host:       "localhost",
			Port:       6334,
			Collection: "my_paper_db",
			Metric:     "cosine",
		},
		Chunking:  Chunking{Size: 1000, Overlap: 100},
		Retrieval: Retrieval{TopK: 3, MaxContextChars: 8000},
		Temporal:  Temporal{Host: "localhost:7233", Namespace: "default", TaskQueue: "rag-ingest"},
		Telemetry: Telemetry{SampleRate: 1.0},
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Chunking.Size > 0 && c.Chunking.Overlap >= c.Chunking.Size {
		warnings = append(warnings, fmt.Sprintf("chunking overlap %d must be smaller than size %d", c.Chunking.Overlap, c.Chunking.Size))
	}

	if c.Embedding.Dimensions <= 0 {
		warnings = append(warnings, "embedding dimensions is not set; the vector collection cannot be validated")
	}

	if c.Generator.Provider != "" && c.Generator.Provider != "none" && c.Generator.Provider != "ollama" && c.Generator.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("generator provider '%s' is configured but api_key is empty", c.Generator.Provider))
	}

	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("generator temperature %.2f is outside recommended range [0.0, 2.0]", c.Generator.Temperature))
	}

	if c.Retrieval.TopK < 0 {
		warnings = append(warnings, fmt.Sprintf("retrieval top_k %d is negative", c.Retrieval.TopK))
	}

	switch c.Vector.Metric {
	case "", "cosine", "dot":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown similarity metric '%s' (use cosine or dot)", c.Vector.Metric))
	}

	return warnings
}

// Load reads configuration from file and environment. Values from the file
// are merged over Default(); RAG_-prefixed environment variables override
// both (e.g. RAG_EMBEDDING_MODEL).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return cfg, nil
}
