// Package metrics provides Prometheus metrics for the Sphere valuation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	scoreBuckets   []float64
	constLabels    prometheus.Labels
	registry       prometheus.Registerer

	// Feature pipeline
	featuresBuilt *prometheus.CounterVec
	missingData   *prometheus.CounterVec

	// Inference & attribution
	inferences          *prometheus.CounterVec
	inferenceLatency    *prometheus.HistogramVec
	scoreValues         *prometheus.HistogramVec
	schemaMismatches    *prometheus.CounterVec
	attributionDegraded *prometheus.CounterVec

	// Artifact registry
	registryReloads    *prometheus.CounterVec
	registryGeneration *prometheus.GaugeVec
	registryTrainedAt  *prometheus.GaugeVec

	// Alerting
	alertCycles        *prometheus.CounterVec
	alertCycleDuration prometheus.Histogram
	alertRulesSeen     prometheus.Gauge
	alertEventsFired   prometheus.Counter
	alertRuleErrors    *prometheus.CounterVec
	alertConflicts     prometheus.Counter
	notifications      *prometheus.CounterVec

	// Queue / workers
	queueSize       *prometheus.GaugeVec
	queueCapacity   *prometheus.GaugeVec
	queueEnqueued   *prometheus.CounterVec
	workerActive    prometheus.Gauge
	workerJobs      *prometheus.CounterVec
	workerJobMillis prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "sphere",
		subsystem:      "core",
		latencyBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		scoreBuckets:   prometheus.LinearBuckets(0, 10, 11),
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.featuresBuilt = m.counterVec("features_built_total", "Feature vectors built by schema and outcome", "schema", "outcome")
	m.missingData = m.counterVec("features_missing_data_total", "Builds failed on a required slot", "schema", "slot")

	m.inferences = m.counterVec("inference_total", "Inference calls by model kind and outcome", "kind", "outcome")
	m.inferenceLatency = m.histogramVec("inference_latency_milliseconds", "Inference plus attribution latency", m.latencyBuckets, "kind")
	m.scoreValues = m.histogramVec("score_value", "Distribution of normalized scores", m.scoreBuckets, "kind")
	m.schemaMismatches = m.counterVec("schema_mismatch_total", "Feature vectors rejected for schema mismatch", "kind")
	m.attributionDegraded = m.counterVec("attribution_degraded_total", "Attributions outside the reconciliation tolerance", "kind")

	m.registryReloads = m.counterVec("registry_reloads_total", "Artifact loads and reloads by outcome", "kind", "outcome")
	m.registryGeneration = m.gaugeVec("registry_generation", "Generation of the active artifact per kind", "kind")
	m.registryTrainedAt = m.gaugeVec("registry_trained_at_seconds", "Training timestamp of the active artifact", "kind")

	m.alertCycles = m.counterVec("alert_cycles_total", "Alert evaluation cycles by outcome", "outcome")
	m.alertCycleDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "alert_cycle_duration_milliseconds",
		Help: "Duration of one alert evaluation cycle", Buckets: m.latencyBuckets, ConstLabels: m.constLabels,
	})
	m.alertRulesSeen = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "alert_rules_evaluated",
		Help: "Rules evaluated in the last cycle", ConstLabels: m.constLabels,
	})
	m.alertEventsFired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "alert_events_fired_total",
		Help: "Alert events emitted", ConstLabels: m.constLabels,
	})
	m.alertRuleErrors = m.counterVec("alert_rule_errors_total", "Rules marked invalid during evaluation", "reason")
	m.alertConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "alert_rule_conflicts_total",
		Help: "Transitions dropped because a user edit landed mid-cycle", ConstLabels: m.constLabels,
	})
	m.notifications = m.counterVec("notifications_total", "Alert notifications by outcome", "outcome")

	m.queueSize = m.gaugeVec("queue_size", "Current queue length", "queue")
	m.queueCapacity = m.gaugeVec("queue_capacity", "Queue capacity", "queue")
	m.queueEnqueued = m.counterVec("queue_enqueue_total", "Enqueue attempts by outcome", "queue", "outcome")
	m.workerActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "worker_active",
		Help: "Running rescore workers", ConstLabels: m.constLabels,
	})
	m.workerJobs = m.counterVec("worker_jobs_total", "Rescore jobs by outcome", "outcome")
	m.workerJobMillis = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "worker_job_latency_milliseconds",
		Help: "Rescore job latency", Buckets: m.latencyBuckets, ConstLabels: m.constLabels,
	})

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", m.latencyBuckets, "endpoint", "method", "status_code")

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "system_memory_usage_bytes",
		Help: "Heap bytes allocated", ConstLabels: m.constLabels,
	})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "system_goroutine_count",
		Help: "Number of goroutines", ConstLabels: m.constLabels,
	})
}

// RecordFeatureBuild counts one feature build attempt.
func RecordFeatureBuild(schema, outcome string) {
	globalManager.featuresBuilt.WithLabelValues(schema, outcome).Inc()
}

// RecordMissingData counts a build that failed on slot.
func RecordMissingData(schema, slot string) {
	globalManager.missingData.WithLabelValues(schema, slot).Inc()
}

// RecordInference counts an inference call and its latency.
func RecordInference(kind, outcome string, latencyMs float64) {
	globalManager.inferences.WithLabelValues(kind, outcome).Inc()
	globalManager.inferenceLatency.WithLabelValues(kind).Observe(latencyMs)
}

// ObserveScore records a normalized score.
func ObserveScore(kind string, score float64) {
	globalManager.scoreValues.WithLabelValues(kind).Observe(score)
}

// RecordSchemaMismatch counts a rejected feature vector.
func RecordSchemaMismatch(kind string) {
	globalManager.schemaMismatches.WithLabelValues(kind).Inc()
}

// RecordAttributionDegraded counts an attribution outside tolerance.
func RecordAttributionDegraded(kind string) {
	globalManager.attributionDegraded.WithLabelValues(kind).Inc()
}

// RecordRegistryReload counts an artifact install attempt.
func RecordRegistryReload(kind, outcome string) {
	globalManager.registryReloads.WithLabelValues(kind, outcome).Inc()
}

// UpdateRegistryActive publishes the active artifact generation and training time.
func UpdateRegistryActive(kind string, generation uint64, trainedAtUnix int64) {
	globalManager.registryGeneration.WithLabelValues(kind).Set(float64(generation))
	globalManager.registryTrainedAt.WithLabelValues(kind).Set(float64(trainedAtUnix))
}

// RecordAlertCycle counts a cycle and its duration.
func RecordAlertCycle(outcome string, rules int, durationMs float64) {
	globalManager.alertCycles.WithLabelValues(outcome).Inc()
	globalManager.alertCycleDuration.Observe(durationMs)
	globalManager.alertRulesSeen.Set(float64(rules))
}

// RecordAlertFired counts emitted alert events.
func RecordAlertFired(n int) {
	globalManager.alertEventsFired.Add(float64(n))
}

// RecordAlertRuleError counts a rule marked invalid.
func RecordAlertRuleError(reason string) {
	globalManager.alertRuleErrors.WithLabelValues(reason).Inc()
}

// RecordAlertConflict counts a transition dropped in favour of a user edit.
func RecordAlertConflict() {
	globalManager.alertConflicts.Inc()
}

// RecordNotification counts a notification publish outcome.
func RecordNotification(outcome string) {
	globalManager.notifications.WithLabelValues(outcome).Inc()
}

// UpdateQueue publishes queue length and capacity.
func UpdateQueue(queue string, size, capacity int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
	globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// RecordEnqueue counts an enqueue attempt.
func RecordEnqueue(queue, outcome string) {
	globalManager.queueEnqueued.WithLabelValues(queue, outcome).Inc()
}

// UpdateWorkerActive sets the number of running workers.
func UpdateWorkerActive(n int) {
	globalManager.workerActive.Set(float64(n))
}

// RecordWorkerJob counts a rescore job and its latency.
func RecordWorkerJob(outcome string, latencyMs float64) {
	globalManager.workerJobs.WithLabelValues(outcome).Inc()
	globalManager.workerJobMillis.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
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
