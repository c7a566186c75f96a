// Package metrics provides Prometheus metrics for the affinity pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the affinity service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Ledger metrics
	eventsAppended prometheus.Counter
	eventsRejected prometheus.Counter

	// Batch run metrics
	batchRuns        prometheus.Counter
	batchRunFailures prometheus.Counter
	eventsClaimed    prometheus.Counter
	eventsProcessed  prometheus.Counter
	eventsSkipped    prometheus.Counter
	eventsFailed     prometheus.Counter
	batchRunDuration prometheus.Histogram

	// Projection metrics
	mutationsInserted  prometheus.Counter
	mutationsDuplicate prometheus.Counter
	profileUpdates     prometheus.Counter
	profileSkips       prometheus.Counter

	// Aggregation metrics
	strengthRecomputes   prometheus.Counter
	leaderboardRefreshes prometheus.Counter
	aggregationDuration  prometheus.Histogram

	// Backlog gauges
	unprocessedEvents prometheus.Gauge
	permanentFailures prometheus.Gauge
	trackedProfiles   prometheus.Gauge
	workerCount       prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorsByComponent *prometheus.CounterVec
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
		namespace:        "affinity",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsAppended = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_appended_total",
		Help:      "Total number of events accepted into the ledger",
	})

	m.eventsRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_rejected_total",
		Help:      "Total number of events rejected at append time",
	})

	m.batchRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_runs_total",
		Help:      "Total number of batch runs executed",
	})

	m.batchRunFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_run_failures_total",
		Help:      "Total number of batch runs that aborted before completion",
	})

	m.eventsClaimed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_claimed_total",
		Help:      "Total number of events claimed by batch runs",
	})

	m.eventsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_processed_total",
		Help:      "Total number of events marked processed",
	})

	m.eventsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_skipped_total",
		Help:      "Total number of events skipped by a projector (missing references)",
	})

	m.eventsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_failed_total",
		Help:      "Total number of events that failed in both projectors",
	})

	m.batchRunDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_run_duration_milliseconds",
		Help:      "Histogram of full batch run duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.mutationsInserted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mutations_inserted_total",
		Help:      "Total number of mutation rows inserted into the ledger",
	})

	m.mutationsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mutations_duplicate_total",
		Help:      "Total number of mutation inserts ignored by the uniqueness guard",
	})

	m.profileUpdates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "profile_updates_total",
		Help:      "Total number of embedding profile generations written",
	})

	m.profileSkips = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "profile_skips_total",
		Help:      "Total number of embedding projections skipped for missing entity profiles",
	})

	m.strengthRecomputes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "strength_recomputes_total",
		Help:      "Total number of per-entity strength recomputations",
	})

	m.leaderboardRefreshes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "leaderboard_refreshes_total",
		Help:      "Total number of leaderboard view rebuilds",
	})

	m.aggregationDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregation_duration_milliseconds",
		Help:      "Histogram of aggregation phase duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.unprocessedEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "unprocessed_events",
		Help:      "Current number of unprocessed events in the ledger",
	})

	m.permanentFailures = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "permanently_failed_events",
		Help:      "Current number of events flagged permanently failed",
	})

	m.trackedProfiles = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracked_profiles",
		Help:      "Current number of user embedding profiles",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Configured number of projection workers",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors by component and type",
		},
		[]string{"component", "error_type"},
	)
}

// Package-level helpers operating on the global manager.

func RecordEventAppended()  { globalManager.eventsAppended.Inc() }
func RecordEventRejected()  { globalManager.eventsRejected.Inc() }
func RecordBatchRun()       { globalManager.batchRuns.Inc() }
func RecordBatchRunFailed() { globalManager.batchRunFailures.Inc() }

func RecordEventsClaimed(n int)   { globalManager.eventsClaimed.Add(float64(n)) }
func RecordEventsProcessed(n int) { globalManager.eventsProcessed.Add(float64(n)) }
func RecordEventSkipped()         { globalManager.eventsSkipped.Inc() }
func RecordEventFailed()          { globalManager.eventsFailed.Inc() }

func RecordBatchRunDuration(ms float64) { globalManager.batchRunDuration.Observe(ms) }

func RecordMutationsInserted(n int)  { globalManager.mutationsInserted.Add(float64(n)) }
func RecordMutationsDuplicate(n int) { globalManager.mutationsDuplicate.Add(float64(n)) }
func RecordProfileUpdate()           { globalManager.profileUpdates.Inc() }
func RecordProfileSkip()             { globalManager.profileSkips.Inc() }

func RecordStrengthRecompute()  { globalManager.strengthRecomputes.Inc() }
func RecordLeaderboardRefresh() { globalManager.leaderboardRefreshes.Inc() }

func RecordAggregationDuration(ms float64) { globalManager.aggregationDuration.Observe(ms) }

func UpdateUnprocessedEvents(n int) { globalManager.unprocessedEvents.Set(float64(n)) }
func UpdatePermanentFailures(n int) { globalManager.permanentFailures.Set(float64(n)) }
func UpdateTrackedProfiles(n int)   { globalManager.trackedProfiles.Set(float64(n)) }
func UpdateWorkerCount(n int)       { globalManager.workerCount.Set(float64(n)) }

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry for serving /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
