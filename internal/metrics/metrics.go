// Package metrics exposes Prometheus counters for the marketplace. It
// listens on the same event feed other consumers use, so the core stays
// unaware of instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics and implements the event bus so it
// can be fanned into the publish path.
type Metrics struct {
	eventsPublished *prometheus.CounterVec
	auctionsClosed  *prometheus.CounterVec
	executionsDone  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmarket_events_total",
				Help: "Total number of marketplace events published",
			},
			[]string{"type"},
		),
		auctionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmarket_auctions_closed_total",
				Help: "Total number of auctions closed",
			},
			[]string{"outcome"},
		),
		executionsDone: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmarket_executions_finished_total",
				Help: "Total number of executions finished",
			},
			[]string{"outcome"},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.eventsPublished,
		m.auctionsClosed,
		m.executionsDone,
	)
	return m
}

func (m *Metrics) Publish(eventType string, payload interface{}) {
	m.eventsPublished.WithLabelValues(eventType).Inc()
	switch eventType {
	case "auction.completed":
		m.auctionsClosed.WithLabelValues("assigned").Inc()
	case "auction.no_offers":
		m.auctionsClosed.WithLabelValues("no_offers").Inc()
	case "auction.cancelled":
		m.auctionsClosed.WithLabelValues("cancelled").Inc()
	case "execution.completed":
		m.executionsDone.WithLabelValues("success").Inc()
	case "execution.failed":
		m.executionsDone.WithLabelValues("failure").Inc()
	}
}

// Handler returns the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
