// Package metrics exposes the application's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "plug_backend",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plug_backend",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plug_backend",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	applications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plug_backend",
			Subsystem: "opportunities",
			Name:      "applications_total",
			Help:      "Application attempts by outcome.",
		},
		[]string{"outcome"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plug_backend",
			Subsystem: "opportunities",
			Name:      "status_transitions_total",
			Help:      "Opportunity status transitions.",
		},
		[]string{"from", "to"},
	)

	notificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plug_backend",
			Subsystem: "notifications",
			Name:      "dispatched_total",
			Help:      "Notifications dispatched, by event kind.",
		},
		[]string{"event"},
	)

	notificationsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plug_backend",
			Subsystem: "notifications",
			Name:      "suppressed_total",
			Help:      "Notifications dropped by the suppression window.",
		},
		[]string{"event"},
	)

	scheduledScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plug_backend",
			Subsystem: "jobs",
			Name:      "scans_total",
			Help:      "Scheduled scan executions, by job and result.",
		},
		[]string{"job", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		applications,
		transitions,
		notificationsDispatched,
		notificationsSuppressed,
		scheduledScans,
	)
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ApplicationOutcome records one application attempt.
func ApplicationOutcome(outcome string) {
	applications.WithLabelValues(outcome).Inc()
}

// StatusTransition records one lifecycle transition.
func StatusTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

// NotificationsDispatched records a completed fan-out.
func NotificationsDispatched(event string, recipients int) {
	notificationsDispatched.WithLabelValues(event).Add(float64(recipients))
}

// NotificationsSuppressed records one suppressed delivery.
func NotificationsSuppressed(event string) {
	notificationsSuppressed.WithLabelValues(event).Inc()
}

// ScheduledScan records one scheduler-invoked scan.
func ScheduledScan(job, result string) {
	scheduledScans.WithLabelValues(job, result).Inc()
}

// ObserveHTTP records one handled HTTP request.
func ObserveHTTP(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// HTTPInFlight tracks request concurrency.
func HTTPInFlight(delta float64) {
	httpInFlight.Add(delta)
}
