// Package metrics exposes Prometheus instrumentation for the fetch pipeline
// and the playback loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector registered by Raido. All collectors live in
// a private registry so tests can create instances freely.
type Metrics struct {
	registry *prometheus.Registry

	fetchRequests  *prometheus.CounterVec
	fetchDuration  prometheus.Summary
	recordsFetched prometheus.Counter
	recordsDropped prometheus.Counter
	tokenRefreshes prometheus.Counter
	redrawSignals  prometheus.Counter
	activeRecords  prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.fetchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raido",
		Name:      "fetch_requests_total",
		Help:      "Per-source fetch outcomes.",
	}, []string{"source", "status"})
	m.fetchDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "raido",
		Name:      "fetch_duration_seconds",
		Help:      "Time spent on one whole fetch operation.",
	})
	m.recordsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "raido",
		Name:      "records_fetched_total",
		Help:      "Raw records received from the provider.",
	})
	m.recordsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "raido",
		Name:      "records_dropped_total",
		Help:      "Records excluded by normalization for invalid coordinates.",
	})
	m.tokenRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "raido",
		Name:      "token_refreshes_total",
		Help:      "Bearer tokens fetched from the provider (cache misses).",
	})
	m.redrawSignals = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "raido",
		Name:      "redraw_signals_total",
		Help:      "Redraw signals emitted by the playback controller.",
	})
	m.activeRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "raido",
		Name:      "active_records",
		Help:      "Size of the active working set.",
	})

	m.registry.MustRegister(
		m.fetchRequests, m.fetchDuration,
		m.recordsFetched, m.recordsDropped,
		m.tokenRefreshes, m.redrawSignals, m.activeRecords,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records the outcome of one whole fetch operation.
// failed holds the sources that produced warnings.
func (m *Metrics) ObserveFetch(sources []string, failed map[string]bool, rawCount, dropped, active int, elapsed time.Duration) {
	if m == nil {
		return
	}
	for _, s := range sources {
		status := "ok"
		if failed[s] {
			status = "error"
		}
		m.fetchRequests.WithLabelValues(s, status).Inc()
	}
	m.fetchDuration.Observe(elapsed.Seconds())
	m.recordsFetched.Add(float64(rawCount))
	m.recordsDropped.Add(float64(dropped))
	m.activeRecords.Set(float64(active))
}

// TokenRefreshed counts one provider token fetch.
func (m *Metrics) TokenRefreshed() {
	if m == nil {
		return
	}
	m.tokenRefreshes.Inc()
}

// RedrawSignaled counts one redraw signal.
func (m *Metrics) RedrawSignaled() {
	if m == nil {
		return
	}
	m.redrawSignals.Inc()
}
