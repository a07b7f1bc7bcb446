package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"time"
)

// Metrics holds all Prometheus metrics for the vector database. Each
// instance owns a private registry rather than registering into
// prometheus.DefaultRegisterer, so multiple Metrics instances (one per
// Streamer/Searcher in tests, or per namespace in a multi-tenant embedding)
// can coexist in the same process without a duplicate-registration panic.
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestErrors    *prometheus.CounterVec

	// Vector operation metrics
	VectorsInserted  prometheus.Counter
	VectorsDeleted   prometheus.Counter
	VectorsSearched  prometheus.Counter

	// Index metrics
	IndexSize     *prometheus.GaugeVec
	IndexMaxLayer *prometheus.GaugeVec

	// Search metrics
	SearchLatency    prometheus.Histogram
	SearchRecall     prometheus.Histogram
	SearchResultSize prometheus.Histogram

	// Batch operation metrics
	BatchInsertTotal    prometheus.Counter
	BatchInsertDuration prometheus.Histogram
	BatchDeleteTotal    prometheus.Counter
	BatchDeleteDuration prometheus.Histogram

	// RaBitQ / HNSW core metrics (K1-K6)
	QuantizerErrBound      prometheus.Histogram
	GraphEntryPointLevel   *prometheus.GaugeVec
	BeamSearchVisitedNodes prometheus.Histogram
	DocsSoftLimitWarnings  *prometheus.CounterVec
	QuotaRejections        *prometheus.CounterVec
}

// NewMetrics creates a fresh registry and registers all Prometheus metrics
// into it.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,

		// Request metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vectordb_requests_total",
				Help: "Total number of requests by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vectordb_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		RequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vectordb_request_errors_total",
				Help: "Total number of request errors by method and error type",
			},
			[]string{"method", "error_type"},
		),

		// Vector operation metrics
		VectorsInserted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vectordb_vectors_inserted_total",
				Help: "Total number of vectors inserted",
			},
		),
		VectorsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vectordb_vectors_deleted_total",
				Help: "Total number of vectors deleted",
			},
		),
		VectorsSearched: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vectordb_vectors_searched_total",
				Help: "Total number of search operations",
			},
		),

		// Index metrics
		IndexSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vectordb_index_size",
				Help: "Number of vectors in index by namespace",
			},
			[]string{"namespace"},
		),
		IndexMaxLayer: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vectordb_index_max_layer",
				Help: "Maximum layer in HNSW graph by namespace",
			},
			[]string{"namespace"},
		),

		// Search metrics
		SearchLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectordb_search_latency_seconds",
				Help:    "Search latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		SearchRecall: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectordb_search_recall",
				Help:    "Search recall percentage (0-1)",
				Buckets: []float64{.8, .85, .9, .92, .94, .95, .96, .97, .98, .99, 1.0},
			},
		),
		SearchResultSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectordb_search_result_size",
				Help:    "Number of results returned by search",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
			},
		),

		// Batch operation metrics
		BatchInsertTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vectordb_batch_insert_total",
				Help: "Total number of batch insert operations",
			},
		),
		BatchInsertDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectordb_batch_insert_duration_seconds",
				Help:    "Batch insert duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		BatchDeleteTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vectordb_batch_delete_total",
				Help: "Total number of batch delete operations",
			},
		),
		BatchDeleteDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectordb_batch_delete_duration_seconds",
				Help:    "Batch delete duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		// RaBitQ / HNSW core metrics (K1-K6)
		QuantizerErrBound: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zvec_quantizer_err_bound_bucket",
				Help:    "Calibrated RaBitQ err_bound of encoded vectors",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		GraphEntryPointLevel: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zvec_graph_entry_point_level",
				Help: "Current HNSW graph entry point level by namespace",
			},
			[]string{"namespace"},
		),
		BeamSearchVisitedNodes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zvec_beam_search_visited_nodes",
				Help:    "Number of distinct nodes visited per beam search",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
		),
		DocsSoftLimitWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zvec_docs_soft_limit_warnings_total",
				Help: "Total inserts that crossed docs_soft_limit by namespace",
			},
			[]string{"namespace"},
		),
		QuotaRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zvec_quota_rejections_total",
				Help: "Total inserts rejected by memory_quota or docs_hard_limit by namespace and reason",
			},
			[]string{"namespace", "reason"},
		),
	}

	return m
}

// Registry returns the private prometheus registry this Metrics instance
// registered into, for wiring a /metrics scrape endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records a request with duration and status
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(method, errorType string) {
	m.RequestErrors.WithLabelValues(method, errorType).Inc()
}

// RecordInsert records a vector insertion
func (m *Metrics) RecordInsert(namespace string, count int) {
	m.VectorsInserted.Add(float64(count))
	// Update index size (this should be called after successful insert)
}

// RecordDelete records a vector deletion
func (m *Metrics) RecordDelete(namespace string, count int) {
	m.VectorsDeleted.Add(float64(count))
}

// RecordSearch records a search operation
func (m *Metrics) RecordSearch(duration time.Duration, resultSize int) {
	m.VectorsSearched.Inc()
	m.SearchLatency.Observe(duration.Seconds())
	m.SearchResultSize.Observe(float64(resultSize))
}

// UpdateIndexSize updates the index size metric
func (m *Metrics) UpdateIndexSize(namespace string, size int) {
	m.IndexSize.WithLabelValues(namespace).Set(float64(size))
}

// UpdateIndexMaxLayer updates the max layer metric
func (m *Metrics) UpdateIndexMaxLayer(namespace string, maxLayer int) {
	m.IndexMaxLayer.WithLabelValues(namespace).Set(float64(maxLayer))
}

// RecordBatchInsert records a batch insert operation
func (m *Metrics) RecordBatchInsert(duration time.Duration, count int) {
	m.BatchInsertTotal.Inc()
	m.BatchInsertDuration.Observe(duration.Seconds())
	m.VectorsInserted.Add(float64(count))
}

// RecordBatchDelete records a batch delete operation
func (m *Metrics) RecordBatchDelete(duration time.Duration, count int) {
	m.BatchDeleteTotal.Inc()
	m.BatchDeleteDuration.Observe(duration.Seconds())
	m.VectorsDeleted.Add(float64(count))
}

// RecordErrBound observes a just-encoded vector's calibrated error bound.
func (m *Metrics) RecordErrBound(bound float32) {
	m.QuantizerErrBound.Observe(float64(bound))
}

// UpdateEntryPointLevel records the graph's current entry point level.
func (m *Metrics) UpdateEntryPointLevel(namespace string, level int) {
	m.GraphEntryPointLevel.WithLabelValues(namespace).Set(float64(level))
}

// RecordBeamSearchVisited observes how many distinct nodes one beam search
// visited (ctx.Visited()).
func (m *Metrics) RecordBeamSearchVisited(visited int) {
	m.BeamSearchVisitedNodes.Observe(float64(visited))
}

// RecordDocsSoftLimitWarning records an insert that crossed docs_soft_limit
// but still succeeded (§6 streamer semantics).
func (m *Metrics) RecordDocsSoftLimitWarning(namespace string) {
	m.DocsSoftLimitWarnings.WithLabelValues(namespace).Inc()
}

// RecordQuotaRejection records an insert rejected by memory_quota or
// docs_hard_limit.
func (m *Metrics) RecordQuotaRejection(namespace, reason string) {
	m.QuotaRejections.WithLabelValues(namespace, reason).Inc()
}
