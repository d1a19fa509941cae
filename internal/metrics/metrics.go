// Package metrics exports Prometheus metrics for the index, search and verification paths.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "facesearch"

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	indexRows       prometheus.Gauge
	indexAdds       prometheus.Counter
	rebuilds        *prometheus.CounterVec
	rebuildDuration prometheus.Histogram
	skippedRecords  prometheus.Counter

	searches      *prometheus.CounterVec
	searchLatency prometheus.Histogram

	verifications *prometheus.CounterVec

	extractions       *prometheus.CounterVec
	extractionLatency prometheus.Histogram
}

// New creates the collectors on a fresh registry, together with Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		indexRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rows",
			Help:      "Number of vectors in the current index snapshot",
		}),
		indexAdds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "adds_total",
			Help:      "Total number of vectors inserted incrementally",
		}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Total number of index rebuilds",
		}, []string{"status"}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_duration_seconds",
			Help:      "Index rebuild duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		skippedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "skipped_records_total",
			Help:      "Store records skipped at rebuild because of a wrong dimension or invalid values",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of similarity searches",
		}, []string{"status"}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Index search latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "decisions_total",
			Help:      "Total number of verification decisions",
		}, []string{"status"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "requests_total",
			Help:      "Total number of extractor calls",
		}, []string{"status"}),
		extractionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "latency_seconds",
			Help:      "Extractor call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.indexRows, m.indexAdds, m.rebuilds, m.rebuildDuration, m.skippedRecords,
		m.searches, m.searchLatency,
		m.verifications,
		m.extractions, m.extractionLatency,
	)
	return m
}

// Handler returns the HTTP handler serving the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetIndexRows records the size of the published snapshot.
func (m *Metrics) SetIndexRows(n int) {
	if m == nil {
		return
	}
	m.indexRows.Set(float64(n))
}

// IndexAdded counts an incremental insert.
func (m *Metrics) IndexAdded() {
	if m == nil {
		return
	}
	m.indexAdds.Inc()
}

// RebuildFinished records a rebuild outcome and its duration.
func (m *Metrics) RebuildFinished(d time.Duration, skipped int, err error) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(status(err)).Inc()
	m.rebuildDuration.Observe(d.Seconds())
	m.skippedRecords.Add(float64(skipped))
}

// SearchFinished records a search outcome and its latency.
func (m *Metrics) SearchFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(status(err)).Inc()
	m.searchLatency.Observe(d.Seconds())
}

// Verified counts a verification decision by its status label (MATCH, NOT_MATCH).
func (m *Metrics) Verified(decision string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(decision).Inc()
}

// ExtractionFinished records an extractor call outcome and its latency.
func (m *Metrics) ExtractionFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(status(err)).Inc()
	m.extractionLatency.Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
