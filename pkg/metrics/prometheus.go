// Package metrics provides Prometheus metrics for the tournament ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every pipeline collector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Catalog runner
	sourceFetches   *prometheus.CounterVec
	sourceDuration  *prometheus.HistogramVec
	rawRecords      *prometheus.CounterVec
	parseErrors     *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	lastRunUnixTime *prometheus.GaugeVec

	// Normalize stage
	normalizeResults *prometheus.CounterVec
	duplicates       prometheus.Counter
	queueDepth       prometheus.Gauge

	// Address resolver
	geocodeLookups *prometheus.CounterVec
	geocodeLatency prometheus.Histogram

	// Upsert engine
	upserts        *prometheus.CounterVec
	storeConflicts prometheus.Counter
	storeErrors    prometheus.Counter

	// Metrics listener
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package-level helpers

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tourney",
		subsystem:        "ingest",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.sourceFetches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "source_fetches_total",
		Help:        "Source runs by outcome (ok, failed, skipped)",
		ConstLabels: m.constLabels,
	}, []string{"source", "status"})

	m.sourceDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "source_duration_milliseconds",
		Help:        "Fetch and parse duration per source",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"source"})

	m.rawRecords = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "raw_records_total",
		Help:        "Raw records appended to the run log",
		ConstLabels: m.constLabels,
	}, []string{"source"})

	m.parseErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "parse_errors_total",
		Help:        "Records skipped because they could not be parsed",
		ConstLabels: m.constLabels,
	}, []string{"stage"})

	m.runDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "run_duration_milliseconds",
		Help:        "Duration of a pipeline stage",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"stage"})

	m.lastRunUnixTime = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_run_timestamp_seconds",
		Help:        "Unix time a pipeline stage last completed",
		ConstLabels: m.constLabels,
	}, []string{"stage"})

	m.normalizeResults = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "normalize_results_total",
		Help:        "Normalizer outcomes; rejected records carry a reason",
		ConstLabels: m.constLabels,
	}, []string{"result", "reason"})

	m.duplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "duplicate_records_total",
		Help:        "Raw records skipped because their source hash was already processed in this pass",
		ConstLabels: m.constLabels,
	})

	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_depth",
		Help:        "Raw records waiting for a normalize worker",
		ConstLabels: m.constLabels,
	})

	m.geocodeLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "geocode_lookups_total",
		Help:        "Address resolutions by result (hit, resolved, not_found, unavailable)",
		ConstLabels: m.constLabels,
	}, []string{"result"})

	m.geocodeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "geocode_request_milliseconds",
		Help:        "Remote geocoder latency, limiter wait included",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.upserts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "upserts_total",
		Help:        "Store writes by entity and outcome",
		ConstLabels: m.constLabels,
	}, []string{"entity", "outcome"})

	m.storeConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_conflicts_total",
		Help:        "Natural-key conflicts that triggered a transaction retry",
		ConstLabels: m.constLabels,
	})

	m.storeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_errors_total",
		Help:        "Upserts abandoned after an unrecoverable store error",
		ConstLabels: m.constLabels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Requests served by the metrics listener",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "Metrics listener request duration",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordSourceFetch counts one source run with its outcome and duration.
func RecordSourceFetch(source, status string, durationMs float64) {
	globalManager.sourceFetches.WithLabelValues(source, status).Inc()
	globalManager.sourceDuration.WithLabelValues(source).Observe(durationMs)
}

// RecordRawRecords adds n records appended to the raw log for source.
func RecordRawRecords(source string, n int) {
	globalManager.rawRecords.WithLabelValues(source).Add(float64(n))
}

// RecordParseError counts a record skipped at stage ("connector", "rawlog").
func RecordParseError(stage string) {
	globalManager.parseErrors.WithLabelValues(stage).Inc()
}

// RecordRunDuration records a completed stage ("ingest", "normalize").
func RecordRunDuration(stage string, durationMs float64, finishedUnix int64) {
	globalManager.runDuration.WithLabelValues(stage).Observe(durationMs)
	globalManager.lastRunUnixTime.WithLabelValues(stage).Set(float64(finishedUnix))
}

// RecordNormalized counts an accepted canonical record.
func RecordNormalized() {
	globalManager.normalizeResults.WithLabelValues("accepted", "").Inc()
}

// RecordRejected counts a record dropped by validation.
func RecordRejected(reason string) {
	globalManager.normalizeResults.WithLabelValues("rejected", reason).Inc()
}

// RecordDuplicate counts a raw record skipped on its source hash.
func RecordDuplicate() {
	globalManager.duplicates.Inc()
}

// UpdateQueueDepth sets the number of raw records waiting for a worker.
func UpdateQueueDepth(n int) {
	globalManager.queueDepth.Set(float64(n))
}

// RecordGeocodeLookup counts an address resolution by result.
func RecordGeocodeLookup(result string) {
	globalManager.geocodeLookups.WithLabelValues(result).Inc()
}

// RecordGeocodeLatency records a remote geocoder round trip.
func RecordGeocodeLatency(latencyMs float64) {
	globalManager.geocodeLatency.Observe(latencyMs)
}

// RecordUpsert counts a venue or event write ("created", "updated", "unchanged").
func RecordUpsert(entity, outcome string) {
	globalManager.upserts.WithLabelValues(entity, outcome).Inc()
}

// RecordStoreConflict counts a retried natural-key conflict.
func RecordStoreConflict() {
	globalManager.storeConflicts.Inc()
}

// RecordStoreError counts an upsert that could not be committed.
func RecordStoreError() {
	globalManager.storeErrors.Inc()
}

// RecordHTTPRequest records a request served by the metrics listener.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
