package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth_AllHealthy(t *testing.T) {
	s := NewHealthServer(&HealthConfig{Version: "0.1.0"})
	s.RegisterCheck("vector-store", VectorStoreHealthChecker(func(ctx context.Context) error { return nil }))
	s.RegisterCheck("catalog", CatalogHealthChecker(func(ctx context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != HealthStatusHealthy || len(resp.Checks) != 2 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Version != "0.1.0" {
		t.Errorf("version = %q", resp.Version)
	}
}

func TestHealth_UnhealthyComponent(t *testing.T) {
	s := NewHealthServer(nil)
	s.RegisterCheck("vector-store", VectorStoreHealthChecker(func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHealth_DegradedGraphStaysUp(t *testing.T) {
	s := NewHealthServer(nil)
	s.RegisterCheck("graph", GraphHealthChecker(func(ctx context.Context) error {
		return errors.New("neo4j down")
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("degraded must not 503, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != HealthStatusDegraded {
		t.Errorf("status = %s, want degraded", resp.Status)
	}
}

func TestReadiness(t *testing.T) {
	s := NewHealthServer(nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not-ready status = %d, want 503", rec.Code)
	}

	s.SetReady(true)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}
}

func TestMount(t *testing.T) {
	s := NewHealthServer(nil)
	s.Mount("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("rag_queries_total 1\n"))
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() == "" {
		t.Errorf("mounted handler not served: %d", rec.Code)
	}
}
