package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for docforge
type Metrics struct {
	// Generation counters
	DocumentsGeneratedTotal *prometheus.CounterVec
	DocumentsFailedTotal    *prometheus.CounterVec

	// Batch metrics
	BatchesTotal         *prometheus.CounterVec
	BatchDurationSeconds prometheus.Histogram
	BatchRows            prometheus.Histogram

	// Email counters
	EmailsSentTotal   prometheus.Counter
	EmailsFailedTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Store gauges
	DocumentsStored prometheus.Gauge
	TemplatesActive prometheus.Gauge

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		DocumentsGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docforge_documents_generated_total",
				Help: "Total number of documents rendered and stored",
			},
			[]string{"format", "category"},
		),
		DocumentsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docforge_documents_failed_total",
				Help: "Total number of rows that did not produce a document",
			},
			[]string{"stage"},
		),

		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docforge_batches_total",
				Help: "Total number of bulk generation requests",
			},
			[]string{"outcome"},
		),
		BatchDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docforge_batch_duration_seconds",
				Help:    "Bulk generation duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		BatchRows: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docforge_batch_rows",
				Help:    "Number of rows per bulk generation request",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		EmailsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docforge_emails_sent_total",
				Help: "Total number of documents mailed",
			},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docforge_emails_failed_total",
				Help: "Total number of failed document mails",
			},
			[]string{"error_type"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docforge_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docforge_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docforge_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		DocumentsStored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docforge_documents_stored",
				Help: "Number of document records currently stored",
			},
		),
		TemplatesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docforge_templates_active",
				Help: "Number of active templates",
			},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docforge_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docforge_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docforge_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.DocumentsGeneratedTotal,
		m.DocumentsFailedTotal,
		m.BatchesTotal,
		m.BatchDurationSeconds,
		m.BatchRows,
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.DocumentsStored,
		m.TemplatesActive,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncDocumentsGenerated increments the generated document counter
func IncDocumentsGenerated(format, category string) {
	if category == "" {
		category = "default"
	}
	m := Global()
	if m != nil {
		m.DocumentsGeneratedTotal.WithLabelValues(format, category).Inc()
	}
}

// IncDocumentsFailed increments the failed row counter
func IncDocumentsFailed(stage string) {
	m := Global()
	if m != nil {
		m.DocumentsFailedTotal.WithLabelValues(stage).Inc()
	}
}

// IncBatches increments the batch counter
func IncBatches(outcome string) {
	m := Global()
	if m != nil {
		m.BatchesTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveBatch records the duration and size of a completed batch
func ObserveBatch(duration time.Duration, rows int) {
	m := Global()
	if m != nil {
		m.BatchDurationSeconds.Observe(duration.Seconds())
		m.BatchRows.Observe(float64(rows))
	}
}

// IncEmailsSent increments the mailed document counter
func IncEmailsSent() {
	m := Global()
	if m != nil {
		m.EmailsSentTotal.Inc()
	}
}

// IncEmailsFailed increments the failed mail counter
func IncEmailsFailed(errorType string) {
	m := Global()
	if m != nil {
		m.EmailsFailedTotal.WithLabelValues(errorType).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
