// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of one engine. All methods are safe
// on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Reconciliation
	ReconcilePasses   *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec
	RecordsChanged    *prometheus.CounterVec

	// Icon cache
	CacheLookups     *prometheus.CounterVec
	CacheResolutions *prometheus.CounterVec

	// Launches
	Launches *prometheus.CounterVec

	// Registry
	RegistryRecords  prometheus.Gauge
	ChangesPublished prometheus.Counter
}

// New creates the collectors on a fresh registry so that several engines can
// live in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ReconcilePasses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appregistry_reconcile_passes_total",
				Help: "Total number of reconciliation passes",
			},
			[]string{"kind", "result"},
		),
		ReconcileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appregistry_reconcile_duration_seconds",
				Help:    "Reconciliation pass duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"kind"},
		),
		RecordsChanged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appregistry_records_changed_total",
				Help: "Registry records added, updated or removed",
			},
			[]string{"change"},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appregistry_icon_cache_lookups_total",
				Help: "Icon cache lookups by result",
			},
			[]string{"result"},
		),
		CacheResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appregistry_icon_cache_resolutions_total",
				Help: "Icon cache misses resolved through the provider",
			},
			[]string{"result"},
		),

		Launches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appregistry_launches_total",
				Help: "Launch notifications by outcome",
			},
			[]string{"outcome"},
		),

		RegistryRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appregistry_records",
				Help: "Number of records seen by the last full listing",
			},
		),
		ChangesPublished: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appregistry_changes_published_total",
				Help: "Change records handed to subscribers",
			},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePass records one reconciliation pass.
func (m *Metrics) ObservePass(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ReconcilePasses.WithLabelValues(kind, result).Inc()
	m.ReconcileDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveChanges counts the records touched by one committed change.
func (m *Metrics) ObserveChanges(added, updated, removed int) {
	if m == nil {
		return
	}
	m.RecordsChanged.WithLabelValues("added").Add(float64(added))
	m.RecordsChanged.WithLabelValues("updated").Add(float64(updated))
	m.RecordsChanged.WithLabelValues("removed").Add(float64(removed))
}

// CacheHit counts an icon cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss counts an icon cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// CacheResolved counts a miss resolution; fallback marks a failed one.
func (m *Metrics) CacheResolved(fallback bool) {
	if m == nil {
		return
	}
	result := "ok"
	if fallback {
		result = "fallback"
	}
	m.CacheResolutions.WithLabelValues(result).Inc()
}

// Launch counts a launch notification by outcome ("counted" or "ignored").
func (m *Metrics) Launch(outcome string) {
	if m == nil {
		return
	}
	m.Launches.WithLabelValues(outcome).Inc()
}

// SetRecords records the size of the registry.
func (m *Metrics) SetRecords(n int) {
	if m == nil {
		return
	}
	m.RegistryRecords.Set(float64(n))
}

// Published counts a change record handed to the notifier.
func (m *Metrics) Published() {
	if m == nil {
		return
	}
	m.ChangesPublished.Inc()
}
