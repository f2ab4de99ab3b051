package observability

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	value float64
	mu    sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name  string
	help  string
	value float64
	mu    sync.Mutex
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram with latency buckets.
func (r *MetricsRegistry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{name: name, help: help, buckets: buckets, counts: make([]uint64, len(buckets))}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns latency buckets in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records the elapsed time since start.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler serves the registry in Prometheus text format.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes all metrics in Prometheus text format with
// stable name ordering.
func (r *MetricsRegistry) WritePrometheus(w http.ResponseWriter) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeMetric(w, c.name, "counter", c.help, c.value)
		c.mu.Unlock()
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeMetric(w, g.name, "gauge", g.help, g.value)
		g.mu.Unlock()
	}
	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeMetric(w http.ResponseWriter, name, metricType, help string, value float64) {
	w.Write([]byte("# HELP " + name + " " + help + "\n"))
	w.Write([]byte("# TYPE " + name + " " + metricType + "\n"))
	w.Write([]byte(name + " " + formatFloat(value) + "\n"))
}

func writeHistogram(w http.ResponseWriter, h *Histogram) {
	w.Write([]byte("# HELP " + h.name + " " + h.help + "\n"))
	w.Write([]byte("# TYPE " + h.name + " histogram\n"))

	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		w.Write([]byte(h.name + `_bucket{le="` + formatFloat(bound) + `"} ` + strconv.FormatUint(cumulative, 10) + "\n"))
	}
	w.Write([]byte(h.name + `_bucket{le="+Inf"} ` + strconv.FormatUint(h.count, 10) + "\n"))
	w.Write([]byte(h.name + "_sum " + formatFloat(h.sum) + "\n"))
	w.Write([]byte(h.name + "_count " + strconv.FormatUint(h.count, 10) + "\n"))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// RAGMetrics bundles the pipeline metrics.
type RAGMetrics struct {
	Registry *MetricsRegistry

	DocumentsIndexedTotal *Counter
	DocumentsFailedTotal  *Counter
	ChunksIndexedTotal    *Counter
	IngestDuration        *Histogram

	QueriesTotal      *Counter
	QueryErrorsTotal  *Counter
	SearchDuration    *Histogram
	GenerateDuration  *Histogram
	EmbedTokensTotal  *Counter
	ContextChunkGauge *Gauge

	ActiveIngestions *Gauge
}

// NewRAGMetrics creates the pipeline metric set on a fresh registry.
func NewRAGMetrics() *RAGMetrics {
	r := NewMetricsRegistry()
	return &RAGMetrics{
		Registry: r,

		DocumentsIndexedTotal: r.NewCounter("rag_documents_indexed_total", "Documents fully indexed"),
		DocumentsFailedTotal:  r.NewCounter("rag_documents_failed_total", "Documents whose ingestion failed"),
		ChunksIndexedTotal:    r.NewCounter("rag_chunks_indexed_total", "Chunks upserted into the vector store"),
		IngestDuration:        r.NewHistogram("rag_ingest_duration_seconds", "Per-document ingestion duration", nil),

		QueriesTotal:      r.NewCounter("rag_queries_total", "Questions answered"),
		QueryErrorsTotal:  r.NewCounter("rag_query_errors_total", "Questions that failed"),
		SearchDuration:    r.NewHistogram("rag_search_duration_seconds", "Vector search duration", nil),
		GenerateDuration:  r.NewHistogram("rag_generate_duration_seconds", "Answer generation duration", nil),
		EmbedTokensTotal:  r.NewCounter("rag_embed_texts_total", "Texts sent to the embedding model"),
		ContextChunkGauge: r.NewGauge("rag_context_chunks", "Chunks in the last assembled context"),

		ActiveIngestions: r.NewGauge("rag_active_ingestions", "Ingestions currently running"),
	}
}

// Handler returns the metrics HTTP handler.
func (m *RAGMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordIngest records one finished ingestion attempt.
func (m *RAGMetrics) RecordIngest(duration time.Duration, chunkCount int, err error) {
	m.IngestDuration.Observe(duration.Seconds())
	if err != nil {
		m.DocumentsFailedTotal.Inc()
		return
	}
	m.DocumentsIndexedTotal.Inc()
	m.ChunksIndexedTotal.Add(float64(chunkCount))
}

// RecordQuery records one finished question.
func (m *RAGMetrics) RecordQuery(searchDur, generateDur time.Duration, contextChunks int, err error) {
	m.QueriesTotal.Inc()
	m.SearchDuration.Observe(searchDur.Seconds())
	m.GenerateDuration.Observe(generateDur.Seconds())
	m.ContextChunkGauge.Set(float64(contextChunks))
	if err != nil {
		m.QueryErrorsTotal.Inc()
	}
}

var (
	globalMetrics *RAGMetrics
	metricsOnce   sync.Once
)

// Metrics returns the process-wide metric set.
func Metrics() *RAGMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewRAGMetrics()
	})
	return globalMetrics
}
