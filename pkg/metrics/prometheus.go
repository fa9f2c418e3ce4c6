// Package metrics provides Prometheus metrics for the botspot pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the botspot service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion
	eventsIngested  *prometheus.CounterVec
	parseErrors     *prometheus.CounterVec
	eventsDuplicate prometheus.Counter

	// Session windowing
	sessionsClosed    *prometheus.CounterVec
	lateEventsDropped *prometheus.CounterVec
	openSessions      prometheus.Gauge

	// Join reconciliation
	droppedNoScore      prometheus.Counter
	droppedTooManyScore prometheus.Counter
	droppedNoAction     prometheus.Counter
	latencyRecords      prometheus.Counter

	// Quantile aggregation and filtering
	snapshotsPublished  prometheus.Counter
	snapshotVersion     prometheus.Gauge
	snapshotLatencies   prometheus.Gauge
	unknownClassified   prometheus.Counter
	anomaliesDetected   prometheus.Counter
	badUsersEmitted     prometheus.Counter
	emissionsSuppressed prometheus.Counter
	sinkErrors          prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	saltedBatches           *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "botspot",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsIngested = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_ingested_total",
			Help:      "Total number of events accepted from the transport, by stream",
		},
		[]string{"stream"},
	)

	m.parseErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "parse_errors_total",
			Help:      "Total number of events dropped because they failed to parse, by stream",
		},
		[]string{"stream"},
	)

	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_duplicate_total",
		Help:      "Total number of redelivered events dropped by transport-id dedup",
	})

	m.sessionsClosed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "sessions_closed_total",
			Help:      "Total number of session windows materialized, by stream",
		},
		[]string{"stream"},
	)

	m.lateEventsDropped = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "late_events_dropped_total",
			Help:      "Total number of events dropped for arriving behind the watermark, by stream",
		},
		[]string{"stream"},
	)

	m.openSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "open_sessions",
		Help:      "Current number of open session windows across both streams",
	})

	m.droppedNoScore = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dropped_sessions_no_score_total",
		Help:      "Joined sessions dropped because no score event was present",
	})

	m.droppedTooManyScore = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dropped_sessions_too_many_score_total",
		Help:      "Joined sessions dropped because more than one score event made the match ambiguous",
	})

	m.droppedNoAction = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dropped_sessions_no_action_total",
		Help:      "Joined sessions dropped because no play action was present",
	})

	m.latencyRecords = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "latency_records_total",
		Help:      "Total number of latency records emitted by the join stage",
	})

	m.snapshotsPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "quantile_snapshots_total",
		Help:      "Total number of quantile snapshot firings",
	})

	m.snapshotVersion = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "quantile_snapshot_version",
		Help:      "Version of the currently published quantile snapshot",
	})

	m.snapshotLatencies = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "quantile_snapshot_latency_count",
		Help:      "Number of latencies accumulated into the current snapshot",
	})

	m.unknownClassified = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "classifications_unknown_total",
		Help:      "Latency records passed through unclassified before the first snapshot",
	})

	m.anomaliesDetected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "anomalies_detected_total",
		Help:      "Latency records classified as anomalous (pre-dedup)",
	})

	m.badUsersEmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bad_users_emitted_total",
		Help:      "Bad user records written to the sink",
	})

	m.emissionsSuppressed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "emissions_suppressed_total",
		Help:      "Repeat anomaly observations suppressed within the current epoch",
	})

	m.sinkErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sink_errors_total",
		Help:      "Failed sink appends",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current size of the batch queue (backlog indicator)",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_utilization_ratio",
		Help:      "Queue utilization ratio (current size / capacity)",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Total number of items enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Total number of items dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Total number of enqueue errors",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_active_count",
		Help:      "Number of active batch workers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "Batch worker processing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of batch worker errors",
	})

	m.saltedBatches = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "salted_batches_total",
			Help:      "Batches dispatched to expensive work, by salt key",
		},
		[]string{"salt"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordEventIngested increments the ingested counter for a stream.
func RecordEventIngested(stream string) {
	globalManager.eventsIngested.WithLabelValues(stream).Inc()
}

// RecordParseError increments the parse error counter for a stream.
func RecordParseError(stream string) {
	globalManager.parseErrors.WithLabelValues(stream).Inc()
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordSessionClosed increments the closed sessions counter for a stream.
func RecordSessionClosed(stream string) {
	globalManager.sessionsClosed.WithLabelValues(stream).Inc()
}

// RecordLateEventDropped increments the late-drop counter for a stream.
func RecordLateEventDropped(stream string) {
	globalManager.lateEventsDropped.WithLabelValues(stream).Inc()
}

// UpdateOpenSessions sets the open-session gauge.
func UpdateOpenSessions(count int) {
	globalManager.openSessions.Set(float64(count))
}

// RecordDroppedNoScore increments the no-score reconciliation counter.
func RecordDroppedNoScore() {
	globalManager.droppedNoScore.Inc()
}

// RecordDroppedTooManyScore increments the ambiguous-match counter.
func RecordDroppedTooManyScore() {
	globalManager.droppedTooManyScore.Inc()
}

// RecordDroppedNoAction increments the no-action reconciliation counter.
func RecordDroppedNoAction() {
	globalManager.droppedNoAction.Inc()
}

// RecordLatencyRecord increments the emitted latency record counter.
func RecordLatencyRecord() {
	globalManager.latencyRecords.Inc()
}

// RecordSnapshotPublished records one snapshot firing.
func RecordSnapshotPublished(version, count uint64) {
	globalManager.snapshotsPublished.Inc()
	globalManager.snapshotVersion.Set(float64(version))
	globalManager.snapshotLatencies.Set(float64(count))
}

// RecordUnknownClassification counts a record seen before any snapshot fired.
func RecordUnknownClassification() {
	globalManager.unknownClassified.Inc()
}

// RecordAnomalyDetected counts a positive classification.
func RecordAnomalyDetected() {
	globalManager.anomaliesDetected.Inc()
}

// RecordBadUserEmitted counts a sink write.
func RecordBadUserEmitted() {
	globalManager.badUsersEmitted.Inc()
}

// RecordEmissionSuppressed counts a suppressed repeat within the epoch.
func RecordEmissionSuppressed() {
	globalManager.emissionsSuppressed.Inc()
}

// RecordSinkError counts a failed sink append.
func RecordSinkError() {
	globalManager.sinkErrors.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records batch processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordSaltedBatch counts a dispatched batch for a salt key.
func RecordSaltedBatch(salt string) {
	globalManager.saltedBatches.WithLabelValues(salt).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
