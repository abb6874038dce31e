// Package telemetry exposes Prometheus metrics for the service.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveSessions tracks the number of live party sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "partyline",
		Name:      "active_sessions",
		Help:      "Number of live party sessions.",
	})

	// ActiveSubscribers tracks delta stream subscribers across all sessions.
	ActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "partyline",
		Name:      "active_subscribers",
		Help:      "Number of attached delta stream subscribers.",
	})

	// DeltasPublished counts deltas published across all sessions.
	DeltasPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partyline",
		Name:      "deltas_published_total",
		Help:      "Deltas published, by kind.",
	}, []string{"kind"})

	// SubscribersDropped counts subscribers dropped for falling behind.
	SubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "partyline",
		Name:      "subscribers_dropped_total",
		Help:      "Subscribers dropped because their delta buffer overflowed.",
	})

	// RequestsRejected counts enqueue requests rejected by the filter chain.
	RequestsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partyline",
		Name:      "requests_rejected_total",
		Help:      "Enqueue requests rejected by the filter chain, by code.",
	}, []string{"code"})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
