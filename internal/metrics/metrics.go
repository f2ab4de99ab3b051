// Package metrics collects per-run statistics for an indexing batch and
// renders them as a terminal report or JSON.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// IndexRunMetrics collects statistics for one `rag index` invocation.
type IndexRunMetrics struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
	Duration   time.Duration     `json:"duration_ms,omitempty"`
	EmbedModel string            `json:"embed_model"`
	Collection string            `json:"collection"`
	Documents  []DocumentMetrics `json:"documents"`
	Errors     []string          `json:"errors,omitempty"`
}

// DocumentMetrics records one document's ingestion.
type DocumentMetrics struct {
	DocumentID  string        `json:"document_id"`
	Source      string        `json:"source"`
	ChunkCount  int           `json:"chunk_count"`
	Duration    time.Duration `json:"duration_ms"`
	FailedStage string        `json:"failed_stage,omitempty"`
}

// New starts tracking an indexing run.
func New(embedModel, collection string) *IndexRunMetrics {
	return &IndexRunMetrics{
		StartedAt:  time.Now(),
		EmbedModel: embedModel,
		Collection: collection,
	}
}

// AddDocument records one document's outcome.
func (m *IndexRunMetrics) AddDocument(id, source string, chunkCount int, d time.Duration, failedStage string) {
	m.Documents = append(m.Documents, DocumentMetrics{
		DocumentID:  id,
		Source:      source,
		ChunkCount:  chunkCount,
		Duration:    d,
		FailedStage: failedStage,
	})
}

// AddError records a run-level error.
func (m *IndexRunMetrics) AddError(err error) {
	m.Errors = append(m.Errors, err.Error())
}

// Finish marks the run complete.
func (m *IndexRunMetrics) Finish() {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
}

// Indexed returns the number of successfully indexed documents.
func (m *IndexRunMetrics) Indexed() int {
	n := 0
	for _, d := range m.Documents {
		if d.FailedStage == "" {
			n++
		}
	}
	return n
}

// TotalChunks returns the chunk count across successful documents.
func (m *IndexRunMetrics) TotalChunks() int {
	n := 0
	for _, d := range m.Documents {
		if d.FailedStage == "" {
			n += d.ChunkCount
		}
	}
	return n
}

// PrintSummary writes a human-readable report.
func (m *IndexRunMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║          INDEXING REPORT             ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s ║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Model:       %-23s ║\n", m.EmbedModel)
	fmt.Fprintf(w, "║ Collection:  %-23s ║\n", m.Collection)
	fmt.Fprintf(w, "║ Documents:   %-23s ║\n", fmt.Sprintf("%d/%d indexed", m.Indexed(), len(m.Documents)))
	fmt.Fprintf(w, "║ Chunks:      %-23d ║\n", m.TotalChunks())
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	for _, d := range m.Documents {
		status := fmt.Sprintf("%d chunks", d.ChunkCount)
		if d.FailedStage != "" {
			status = "FAILED at " + d.FailedStage
		}
		fmt.Fprintf(w, "║   %-20s %8s  %s\n", d.DocumentID, d.Duration.Round(time.Millisecond), status)
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *IndexRunMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
