// Package observability provides audit logging, OpenTelemetry tracing
// and in-process metrics for the indexing and retrieval pipelines.
package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventIngestStart    AuditEventType = "ingest.start"
	AuditEventIngestComplete AuditEventType = "ingest.complete"
	AuditEventIngestError    AuditEventType = "ingest.error"
	AuditEventEmbedBatch     AuditEventType = "embed.batch"
	AuditEventSearch         AuditEventType = "search"
	AuditEventGenerate       AuditEventType = "generate"
	AuditEventGenerateError  AuditEventType = "generate.error"
	AuditEventCollectionInit AuditEventType = "collection.init"
)

// AuditEvent is a single JSONL audit entry.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	DocumentID  string         `json:"document_id,omitempty"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // file path or "stdout"/"stderr"
	SessionID  string
}

// NewAuditLogger creates an audit logger. A nil config disables it.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil || !config.Enabled {
		return &AuditLogger{enabled: false}, nil
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{writer: writer, sessionID: sessionID, enabled: true}, nil
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogIngestStart logs the beginning of a document ingestion.
func (l *AuditLogger) LogIngestStart(documentID, source string) {
	l.Log(&AuditEvent{
		EventType:  AuditEventIngestStart,
		DocumentID: documentID,
		Success:    true,
		Message:    fmt.Sprintf("Ingesting %s", source),
		Details:    map[string]any{"source": source},
	})
}

// LogIngestComplete logs a completed ingestion.
func (l *AuditLogger) LogIngestComplete(documentID string, chunkCount int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType:  AuditEventIngestComplete,
		DocumentID: documentID,
		Success:    true,
		Duration:   duration,
		Message:    fmt.Sprintf("Indexed %d chunks", chunkCount),
		Details:    map[string]any{"chunk_count": chunkCount},
	})
}

// LogIngestError logs a failed ingestion with the stage it failed at.
func (l *AuditLogger) LogIngestError(documentID, stage string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventIngestError,
		DocumentID:  documentID,
		Success:     false,
		Message:     fmt.Sprintf("Ingestion failed at %s", stage),
		ErrorDetail: err.Error(),
		Details:     map[string]any{"stage": stage},
	})
}

// LogSearch logs a similarity search.
func (l *AuditLogger) LogSearch(query string, topK, resultCount int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventSearch,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Search returned %d/%d results", resultCount, topK),
		Details: map[string]any{
			"query_length": len(query),
			"top_k":        topK,
			"result_count": resultCount,
		},
	})
}

// LogGenerate logs an answer generation.
func (l *AuditLogger) LogGenerate(model string, duration time.Duration, inputTokens, outputTokens int) {
	l.Log(&AuditEvent{
		EventType: AuditEventGenerate,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Generated answer with %s", model),
		Details: map[string]any{
			"model":         model,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		},
	})
}

// LogGenerateError logs a failed generation.
func (l *AuditLogger) LogGenerateError(model string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventGenerateError,
		Success:     false,
		Message:     fmt.Sprintf("Generation failed with %s", model),
		ErrorDetail: err.Error(),
		Details:     map[string]any{"model": model},
	})
}

// Close closes the underlying file, if any.
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
