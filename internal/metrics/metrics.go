// Package metrics holds the Prometheus collectors of the debt engine.
//
// All methods are safe on a nil *Metrics, so components can treat metrics as
// optional without guarding every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cantina"

// Metrics groups every collector the engine updates.
type Metrics struct {
	fetchRequests     *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	fetchRecords      *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	runs              *prometheus.CounterVec
	runDuration       prometheus.Histogram
	guardiansBilled   prometheus.Gauge
	totalOwed         prometheus.Gauge
	integrityWarnings *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg creates
// working but unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Remote collection reads by collection and outcome.",
		}, []string{"collection", "outcome"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Latency of remote collection reads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection"}),
		fetchRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "records_total",
			Help:      "Records returned by remote collection reads.",
		}, []string{"collection"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by key and result (hit or miss).",
		}, []string{"key", "result"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Aggregation runs by outcome.",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full aggregation run.",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		guardiansBilled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "guardians_billed",
			Help:      "Guardians with debt in the last successful run.",
		}),
		totalOwed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "total_owed",
			Help:      "Total owed across guardians in the last successful run.",
		}),
		integrityWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "integrity_warnings_total",
			Help:      "Data-integrity warnings by kind.",
		}, []string{"kind"}),
	}
}

// ObserveFetch records one remote read.
func (m *Metrics) ObserveFetch(collection, outcome string, d time.Duration, records int) {
	if m == nil {
		return
	}
	m.fetchRequests.WithLabelValues(collection, outcome).Inc()
	m.fetchDuration.WithLabelValues(collection).Observe(d.Seconds())
	if records > 0 {
		m.fetchRecords.WithLabelValues(collection).Add(float64(records))
	}
}

// CacheHit records a cache hit for key.
func (m *Metrics) CacheHit(key string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(key, "hit").Inc()
}

// CacheMiss records a cache miss for key.
func (m *Metrics) CacheMiss(key string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(key, "miss").Inc()
}

// ObserveRun records the outcome of an aggregation run. guardians and owed
// are only published for successful runs.
func (m *Metrics) ObserveRun(outcome string, d time.Duration, guardians int, owed float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
	if outcome == "ok" {
		m.guardiansBilled.Set(float64(guardians))
		m.totalOwed.Set(owed)
	}
}

// IntegrityWarning records one data-integrity warning of the given kind.
func (m *Metrics) IntegrityWarning(kind string) {
	if m == nil {
		return
	}
	m.integrityWarnings.WithLabelValues(kind).Inc()
}
