package main

import (
	"testing"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm"
)

func TestProviderConfig_CarriesRetryDefaults(t *testing.T) {
	cfg := providerConfig("ollama", "", "nomic-embed-text", "nomic-embed-text", "")
	if cfg.MaxRetries <= 0 {
		t.Errorf("max retries = %d, want > 0", cfg.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("timeout = %v, want > 0", cfg.Timeout)
	}

	p, err := newFactory().Create(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*llm.RetryProvider); !ok {
		t.Errorf("expected retry wrapper, got %T", p)
	}
}
