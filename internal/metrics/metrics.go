// Package metrics exports Prometheus collectors for lifecycle transitions,
// notifications and query traffic.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notification kinds.
const (
	KindReady    = "ready"
	KindInjected = "injected"
)

var (
	registerOnce sync.Once

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seer",
			Name:      "state_transitions_total",
			Help:      "Lifecycle transitions by source state, target state and event.",
		},
		[]string{"from", "to", "event"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "seer",
			Name:      "current_state",
			Help:      "1 for the current lifecycle state, 0 otherwise.",
		},
		[]string{"state"},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seer",
			Name:      "notifications_total",
			Help:      "Notifications sent to the service-manager socket.",
		},
		[]string{"kind", "result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Query requests by path and status.",
		},
		[]string{"path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "seer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Query request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "status"},
	)
)

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(transitions, currentState, notifications, httpRequests, httpDuration)
	})
}

// RecordTransition counts a transition and moves the current-state gauge.
// states lists every state name so the gauge for the others is zeroed.
func RecordTransition(from, to, event string, states []string) {
	Register()
	transitions.WithLabelValues(from, to, event).Inc()
	SetState(to, states)
}

// SetState sets the gauge for current to 1 and every other name to 0.
func SetState(current string, states []string) {
	Register()
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		currentState.WithLabelValues(s).Set(v)
	}
}

// RecordNotification counts one notification attempt.
func RecordNotification(kind string, ok bool) {
	Register()
	result := "ok"
	if !ok {
		result = "failed"
	}
	notifications.WithLabelValues(kind, result).Inc()
}

// RecordHTTPRequest counts one query request and observes its duration.
func RecordHTTPRequest(path string, status int, duration time.Duration) {
	Register()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(path, statusLabel).Inc()
	httpDuration.WithLabelValues(path, statusLabel).Observe(duration.Seconds())
}

// Handler returns the /metrics handler for the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
