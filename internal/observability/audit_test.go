package observability

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAuditLogger_New_File(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")

	l, err := NewAuditLogger(&AuditConfig{Enabled: true, OutputPath: logPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	l.LogIngestStart("paper.pdf", "/data/paper.pdf")
	l.LogIngestComplete("paper.pdf", 11, 2*time.Second)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}

	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if ev.EventType != AuditEventIngestComplete {
		t.Errorf("event type = %s, want %s", ev.EventType, AuditEventIngestComplete)
	}
	if ev.DocumentID != "paper.pdf" || !ev.Success {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.SessionID == "" {
		t.Error("session id not filled in")
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	l, err := NewAuditLogger(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Must be safe to call with no writer configured.
	l.LogIngestError("doc", "embed", errors.New("boom"))
	l.LogSearch("query", 3, 0, time.Millisecond)
	if err := l.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestAuditLogger_ErrorEventCarriesStage(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewAuditLogger(&AuditConfig{Enabled: true, OutputPath: logPath})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.LogIngestError("doc", "upsert", errors.New("connection refused"))

	data, _ := os.ReadFile(logPath)
	var ev AuditEvent
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Success {
		t.Error("error event marked success")
	}
	if ev.Details["stage"] != "upsert" {
		t.Errorf("stage = %v, want upsert", ev.Details["stage"])
	}
	if ev.ErrorDetail != "connection refused" {
		t.Errorf("error detail = %q", ev.ErrorDetail)
	}
}
