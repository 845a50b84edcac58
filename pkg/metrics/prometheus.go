// Package metrics provides Prometheus metrics for the GM scanner device.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the scanner.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	batchBuckets   []float64
	registry       prometheus.Registerer

	// Scan pipeline
	scans        *prometheus.CounterVec
	teamCount    prometheus.Gauge
	storageError *prometheus.CounterVec

	// Delivery
	deliveries     *prometheus.CounterVec
	ackLatency     prometheus.Histogram
	ackTimeouts    prometheus.Counter
	connectionUp   prometheus.Gauge
	backlogSize    prometheus.Gauge
	backlogCap     prometheus.Gauge
	flushes        *prometheus.CounterVec
	replayed       *prometheus.CounterVec
	orphansMerged  prometheus.Counter
	bulkUploads    *prometheus.CounterVec
	bulkBatchSizes prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "gmscan",
		subsystem:      "device",
		latencyBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		batchBuckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.scans = m.counterVec("scans_total", "Scans by pipeline outcome", "outcome")
	m.teamCount = m.gauge("teams", "Number of teams with at least one transaction")
	m.storageError = m.counterVec("storage_errors_total", "Local persistence failures by component", "component")

	m.deliveries = m.counterVec("deliveries_total", "Transaction delivery attempts by result", "path", "result")
	m.ackLatency = m.histogram("ack_latency_milliseconds", "Time between submit and correlated result", m.latencyBuckets)
	m.ackTimeouts = m.counter("ack_timeouts_total", "Submissions whose result did not arrive in time")
	m.connectionUp = m.gauge("connection_up", "1 when the live channel is connected")
	m.backlogSize = m.gauge("backlog_size", "Transactions waiting for delivery")
	m.backlogCap = m.gauge("backlog_capacity", "Maximum number of backlog entries")
	m.flushes = m.counterVec("flushes_total", "Backlog flush runs by result", "result")
	m.replayed = m.counterVec("replayed_total", "Backlog entries replayed by result", "result")
	m.orphansMerged = m.counter("orphans_merged_total", "Orphaned transactions merged into the backlog")
	m.bulkUploads = m.counterVec("bulk_uploads_total", "Bulk batch uploads by result", "result")
	m.bulkBatchSizes = m.histogram("bulk_batch_size", "Transactions per bulk batch", m.batchBuckets)

	m.httpRequests = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.latencyBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordScan counts a scan by outcome (accepted, duplicate_token, duplicate_transaction, storage_error).
func RecordScan(outcome string) {
	globalManager.scans.WithLabelValues(outcome).Inc()
}

// UpdateTeamCount sets the number of known teams.
func UpdateTeamCount(count int) {
	globalManager.teamCount.Set(float64(count))
}

// RecordStorageError counts a persistence failure.
func RecordStorageError(component string) {
	globalManager.storageError.WithLabelValues(component).Inc()
}

// RecordDelivery counts a delivery attempt. path is live, replay or bulk.
func RecordDelivery(path, result string) {
	globalManager.deliveries.WithLabelValues(path, result).Inc()
}

// RecordAckLatency records the time until a correlated result arrived.
func RecordAckLatency(latencyMs float64) {
	globalManager.ackLatency.Observe(latencyMs)
}

// RecordAckTimeout counts a submission that timed out.
func RecordAckTimeout() {
	globalManager.ackTimeouts.Inc()
}

// SetConnectionUp records the live channel state.
func SetConnectionUp(up bool) {
	if up {
		globalManager.connectionUp.Set(1)
		return
	}
	globalManager.connectionUp.Set(0)
}

// UpdateBacklogSize sets the current backlog length.
func UpdateBacklogSize(size int) {
	globalManager.backlogSize.Set(float64(size))
}

// UpdateBacklogCapacity sets the configured backlog bound.
func UpdateBacklogCapacity(capacity int) {
	globalManager.backlogCap.Set(float64(capacity))
}

// RecordFlush counts a flush run (completed, skipped, aborted).
func RecordFlush(result string) {
	globalManager.flushes.WithLabelValues(result).Inc()
}

// RecordReplay counts one replayed backlog entry (confirmed, failed).
func RecordReplay(result string) {
	globalManager.replayed.WithLabelValues(result).Inc()
}

// RecordOrphansMerged counts transactions moved from the orphan slot.
func RecordOrphansMerged(n int) {
	globalManager.orphansMerged.Add(float64(n))
}

// RecordBulkUpload counts a bulk upload and its batch size.
func RecordBulkUpload(result string, size int) {
	globalManager.bulkUploads.WithLabelValues(result).Inc()
	globalManager.bulkBatchSizes.Observe(float64(size))
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records errors by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage updates system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
