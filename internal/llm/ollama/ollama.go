// Package ollama implements llm.Provider against the native Ollama API
// (/api/chat and /api/embed). The OpenAI-compatible /v1 surface works too,
// but the native embed endpoint reports errors for missing models instead
// of returning empty batches, which matters for a local-first setup.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Haisen-Liao/haystack-qdrant-rag/internal/llm"
)

const defaultBaseURL = "http://localhost:11434"

// Client implements llm.Provider for a local Ollama instance.
type Client struct {
	model      string
	embedModel string
	baseURL    string
	http       *http.Client
}

// New creates an Ollama provider. model generates, embedModel embeds;
// either may be empty if the client is only used for one role.
func New(model, embedModel, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		model:      model,
		embedModel: embedModel,
		baseURL:    baseURL,
		// Local generation on CPU can be slow; mirror the generous
		// timeout the upstream components use.
		http: &http.Client{Timeout: 360 * time.Second},
	}
}

func (c *Client) Name() string { return "ollama" }

func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	var msgs []map[string]string
	if prompt.SystemPrompt != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": prompt.SystemPrompt})
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, map[string]string{"role": string(m.Role), "content": m.Content})
	}

	options := map[string]any{}
	if opts != nil {
		if opts.Temperature != nil {
			options["temperature"] = *opts.Temperature
		}
		if opts.TopP != nil {
			options["top_p"] = *opts.TopP
		}
		if opts.MaxTokens != nil {
			options["num_predict"] = *opts.MaxTokens
		}
		if len(opts.StopSeqs) > 0 {
			options["stop"] = opts.StopSeqs
		}
	}

	body := map[string]any{
		"model":    c.model,
		"messages": msgs,
		"stream":   false,
	}
	if len(options) > 0 {
		body["options"] = options
	}

	respBody, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Model   string `json:"model"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		DoneReason      string `json:"done_reason"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	return &llm.Response{
		Content:      result.Message.Content,
		Model:        result.Model,
		InputTokens:  result.PromptEvalCount,
		OutputTokens: result.EvalCount,
		StopReason:   result.DoneReason,
	}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body := map[string]any{
		"model": c.embedModel,
		"input": texts,
	}

	respBody, err := c.post(ctx, "/api/embed", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: %s: %s", resp.Status, respBody)
	}
	return respBody, nil
}

var _ llm.Provider = (*Client)(nil)
