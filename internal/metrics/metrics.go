// Package metrics exposes Prometheus counters for comparisons, diffs and copies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CageChen/imagediff/internal/compare"
)

const namespace = "imagediff"

// Metrics holds the collectors of one process. Each instance owns its own
// registry so tests can create as many as they like.
type Metrics struct {
	registry    *prometheus.Registry
	comparisons prometheus.Counter
	entries     *prometheus.GaugeVec
	diffs       *prometheus.CounterVec
	copies      *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		comparisons: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      "Number of completed folder comparisons.",
		}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries",
			Help:      "Entries in the current comparison by status.",
		}, []string{"status"}),
		diffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diffs_total",
			Help:      "Difference images computed, by outcome.",
		}, []string{"outcome"}),
		copies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "copies_total",
			Help:      "Copy actions, by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.comparisons, m.entries, m.diffs, m.copies)
	return m
}

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveComparison records a new snapshot.
func (m *Metrics) ObserveComparison(c compare.Counts) {
	if m == nil {
		return
	}
	m.comparisons.Inc()
	m.entries.WithLabelValues(compare.New.String()).Set(float64(c.New))
	m.entries.WithLabelValues(compare.Common.String()).Set(float64(c.Common))
	m.entries.WithLabelValues(compare.Deleted.String()).Set(float64(c.Deleted))
}

// ObserveDiff records a diff outcome: "rendered", "mismatch", "skipped" or "failed".
func (m *Metrics) ObserveDiff(outcome string) {
	if m == nil {
		return
	}
	m.diffs.WithLabelValues(outcome).Inc()
}

// ObserveCopy records a copy outcome: "ok" or "failed".
func (m *Metrics) ObserveCopy(outcome string) {
	if m == nil {
		return
	}
	m.copies.WithLabelValues(outcome).Inc()
}
