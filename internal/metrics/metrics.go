// Package metrics exposes sink cache activity as Prometheus metrics.
//
// A nil *Metrics is valid and records nothing, so callers that do not care
// about instrumentation can skip it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for InfoLookups.
const (
	LookupHit     = "hit"
	LookupMiss    = "miss"
	LookupSession = "session"
)

// Label values for Acquisitions.
const (
	AcquireReused    = "reused"
	AcquireCreated   = "created"
	AcquireUnhealthy = "unhealthy"
)

// Label values for Deletions.
const (
	DeleteRelease   = "release"
	DeleteTimeout   = "timeout"
	DeleteFrame     = "frame"
	DeleteClose     = "close"
	DeleteUnhealthy = "unhealthy"
)

// Metrics holds the sink cache collectors.
type Metrics struct {
	InfoLookups    *prometheus.CounterVec
	Acquisitions   *prometheus.CounterVec
	Deletions      *prometheus.CounterVec
	Entries        prometheus.Gauge
	CreateDuration prometheus.Histogram
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		InfoLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sinkpool_info_lookups_total",
				Help: "Device info lookups by outcome",
			},
			[]string{"result"},
		),
		Acquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sinkpool_sink_acquisitions_total",
				Help: "Sinks handed out for playback by origin",
			},
			[]string{"result"},
		),
		Deletions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sinkpool_sink_deletions_total",
				Help: "Sinks removed from the cache and stopped, by reason",
			},
			[]string{"reason"},
		),
		Entries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sinkpool_cache_entries",
				Help: "Sinks currently held by the cache",
			},
		),
		CreateDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sinkpool_sink_create_duration_seconds",
				Help:    "Time spent opening a sink",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
	}
}

// ObserveLookup counts an info lookup.
func (m *Metrics) ObserveLookup(result string) {
	if m == nil {
		return
	}
	m.InfoLookups.WithLabelValues(result).Inc()
}

// ObserveAcquire counts a sink acquisition.
func (m *Metrics) ObserveAcquire(result string) {
	if m == nil {
		return
	}
	m.Acquisitions.WithLabelValues(result).Inc()
}

// ObserveDelete counts n deletions for reason.
func (m *Metrics) ObserveDelete(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Deletions.WithLabelValues(reason).Add(float64(n))
}

// ObserveCreate records how long opening a sink took.
func (m *Metrics) ObserveCreate(d time.Duration) {
	if m == nil {
		return
	}
	m.CreateDuration.Observe(d.Seconds())
}

// SetEntries records the cache size.
func (m *Metrics) SetEntries(n int) {
	if m == nil {
		return
	}
	m.Entries.Set(float64(n))
}
