// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FamilyEvents counts family lifecycle events by kind
	// (created, renamed, deleted, member_removed, member_left, role_changed).
	FamilyEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evacalendar",
		Subsystem: "family",
		Name:      "events_total",
		Help:      "Family and membership mutations by kind.",
	}, []string{"event"})

	// InvitationEvents counts invitation transitions by kind
	// (created, accepted, expired, cancelled, purged).
	InvitationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evacalendar",
		Subsystem: "invitation",
		Name:      "events_total",
		Help:      "Invitation lifecycle transitions by kind.",
	}, []string{"event"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evacalendar",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evacalendar",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// Family records one family lifecycle event.
func Family(event string) {
	FamilyEvents.WithLabelValues(event).Inc()
}

// Invitation records n invitation transitions of one kind.
func Invitation(event string, n int) {
	if n <= 0 {
		return
	}
	InvitationEvents.WithLabelValues(event).Add(float64(n))
}
