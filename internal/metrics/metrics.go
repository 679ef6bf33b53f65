// Package metrics provides Prometheus instrumentation for every
// background component: the compiler, fleet registry, sync dispatcher,
// alert processor, and notification worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Compiler metrics (C2)
	CompileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compiler_compile_duration_seconds",
			Help:    "Duration of an index compilation, by scope.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scope"},
	)
	CompileRecordCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compiler_artifact_record_count",
			Help: "Record count of the most recently sealed artifact, by scope.",
		},
		[]string{"scope"},
	)
	CompileErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compiler_errors_total",
			Help: "Compile failures, by scope and error kind.",
		},
		[]string{"scope", "kind"},
	)

	// Fleet registry metrics (C4)
	DeviceRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_device_registrations_total",
			Help: "Device registration attempts, by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	DevicesByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_devices_by_status",
			Help: "Number of devices currently in each lifecycle status.",
		},
		[]string{"status"},
	)
	RemoteCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_remote_command_duration_seconds",
			Help:    "Duration of a remote command proxied to a device agent.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// Circuit breaker metrics, grounded on the teacher's sync package
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
		},
		[]string{"name"},
	)
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions.",
		},
		[]string{"name", "from", "to"},
	)
	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Circuit breaker guarded requests, by outcome.",
		},
		[]string{"name", "outcome"},
	)

	// Sync dispatcher metrics (C7)
	SyncPushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_sync_push_duration_seconds",
			Help:    "Duration of a playlist/layout push to a device.",
			Buckets: prometheus.DefBuckets,
		},
	)
	SyncPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_sync_pending",
			Help: "Number of device/playlist pairs awaiting sync.",
		},
	)

	// Alert processor metrics (C8)
	AlertsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_ingested_total",
			Help: "Alerts ingested, by type.",
		},
		[]string{"type"},
	)
	AlertsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alerts_by_status",
			Help: "Alerts currently in each review status.",
		},
		[]string{"status"},
	)

	// Notification worker metrics (C9)
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notification deliveries, by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)
	NotificationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_retries_total",
			Help: "Notification delivery retries, by channel.",
		},
		[]string{"channel"},
	)
	NotificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifications_queue_depth",
			Help: "Number of notification log entries awaiting delivery or retry.",
		},
	)

	// HTTP API metrics, recorded by internal/middleware.Prometheus
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP API requests, by method, path, and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP API requests, by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)
)
