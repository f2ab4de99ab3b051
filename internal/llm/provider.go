// Package llm abstracts the model backends used by the assistant: one
// provider embeds chunk and query text, another generates answers. Both
// sides of the contract are the same interface so a single Ollama instance
// can serve both roles, as the stock local setup does.
package llm

import "context"

// Provider is the interface all model backends must implement.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns embedding vectors for the given texts, one per input
	// and in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "ollama", "openai").
	Name() string
}
