package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpRequestsTotal       *prometheus.CounterVec
	httpLatencySeconds      *prometheus.HistogramVec
	httpErrorsTotal         *prometheus.CounterVec
	logTransitionsTotal     *prometheus.CounterVec
	transitionConflicts     prometheus.Counter
	xpAwardedTotal          *prometheus.CounterVec
	badgesAwardedTotal      *prometheus.CounterVec
	levelUpsTotal           prometheus.Counter
	invariantViolations     *prometheus.CounterVec
	notificationsPublished  *prometheus.CounterVec
	sseClientsActive        prometheus.Gauge
	progressCacheLookups    *prometheus.CounterVec
	attachmentUploadedBytes *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "internlog_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "internlog_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "internlog_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		logTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "internlog_log_transitions_total",
			Help: "Daily log status transitions by edge and outcome.",
		}, []string{"from", "to", "outcome"})

		transitionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "internlog_log_transition_conflicts_total",
			Help: "Transitions that lost an optimistic concurrency check.",
		})

		xpAwardedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "internlog_xp_points_total",
			Help: "XP points granted or deducted, by award reason.",
		}, []string{"reason", "direction"})

		badgesAwardedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "internlog_badges_awarded_total",
			Help: "Badges earned by students.",
		}, []string{"badge"})

		levelUpsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "internlog_level_ups_total",
			Help: "Number of times a student reached a new level.",
		})

		invariantViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "internlog_invariant_violations_total",
			Help: "Non-fatal invariant violations detected and corrected.",
		}, []string{"kind"})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "internlog_notifications_published_total",
			Help: "Notifications delivered to users.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "internlog_stream_clients_active",
			Help: "Currently connected SSE and websocket notification clients.",
		})

		progressCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "internlog_progress_cache_lookups_total",
			Help: "Progress cache lookups by result.",
		}, []string{"result"})

		attachmentUploadedBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "internlog_attachment_upload_bytes",
			Help:    "Size of uploaded log attachments.",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
		}, []string{"kind"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			logTransitionsTotal,
			transitionConflicts,
			xpAwardedTotal,
			badgesAwardedTotal,
			levelUpsTotal,
			invariantViolations,
			notificationsPublished,
			sseClientsActive,
			progressCacheLookups,
			attachmentUploadedBytes,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// LogTransitions counts lifecycle transitions.
func LogTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return logTransitionsTotal
}

// TransitionConflicts counts optimistic lock failures.
func TransitionConflicts() prometheus.Counter {
	RegisterMetrics()
	return transitionConflicts
}

// XPAwarded tracks XP points by reason.
func XPAwarded() *prometheus.CounterVec {
	RegisterMetrics()
	return xpAwardedTotal
}

// BadgesAwarded tracks earned badges.
func BadgesAwarded() *prometheus.CounterVec {
	RegisterMetrics()
	return badgesAwardedTotal
}

// LevelUps tracks level changes.
func LevelUps() prometheus.Counter {
	RegisterMetrics()
	return levelUpsTotal
}

// InvariantViolations tracks corrected anomalies such as the XP floor clamp.
func InvariantViolations() *prometheus.CounterVec {
	RegisterMetrics()
	return invariantViolations
}

// NotificationsPublishedTotal tracks delivered notifications.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}

// SSEClientsActive tracks connected stream clients.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// ProgressCacheLookups tracks cache hits and misses.
func ProgressCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return progressCacheLookups
}

// AttachmentUploadBytes tracks upload sizes.
func AttachmentUploadBytes() *prometheus.HistogramVec {
	RegisterMetrics()
	return attachmentUploadedBytes
}
