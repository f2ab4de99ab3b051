package config

import (
	"strings"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	cfg := Default()
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("default config should have no warnings, got %v", warnings)
	}
}

func TestValidate_OverlapNotSmallerThanSize(t *testing.T) {
	cfg := Default()
	cfg.Chunking = Chunking{Size: 100, Overlap: 100}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "overlap") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about overlap >= size")
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Generator.Provider = "openai"
	cfg.Generator.APIKey = ""
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "api_key") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about missing api_key")
	}
}

func TestValidate_OllamaNeedsNoKey(t *testing.T) {
	cfg := Default()
	cfg.Generator.Provider = "ollama"
	cfg.Generator.APIKey = ""
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "api_key") {
			t.Errorf("ollama without api_key should not warn, got %q", w)
		}
	}
}

func TestValidate_Temperature(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want bool // true = should warn
	}{
		{"zero", 0, false},
		{"normal", 0.7, false},
		{"max", 2.0, false},
		{"negative", -1, true},
		{"too_high", 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Generator.Temperature = tt.temp
			hasWarn := false
			for _, w := range cfg.Validate() {
				if strings.Contains(w, "temperature") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("temperature=%.1f: hasWarn=%v, want=%v", tt.temp, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_UnknownMetric(t *testing.T) {
	cfg := Default()
	cfg.Vector.Metric = "euclid"
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "metric") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about unknown metric")
	}
}
