package tags

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks tag cache effectiveness.
type Metrics struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Loads         prometheus.Counter
	LoadFailures  prometheus.Counter
	Invalidations prometheus.Counter
	Size          prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Hits: f.NewCounter(prometheus.CounterOpts{
			Name: "overflow_tag_cache_hits_total",
			Help: "Tag validations answered from a fresh snapshot",
		}),
		Misses: f.NewCounter(prometheus.CounterOpts{
			Name: "overflow_tag_cache_misses_total",
			Help: "Tag validations that found the snapshot missing or expired",
		}),
		Loads: f.NewCounter(prometheus.CounterOpts{
			Name: "overflow_tag_cache_loads_total",
			Help: "Successful tag set loads",
		}),
		LoadFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "overflow_tag_cache_load_failures_total",
			Help: "Failed tag set loads",
		}),
		Invalidations: f.NewCounter(prometheus.CounterOpts{
			Name: "overflow_tag_cache_invalidations_total",
			Help: "Explicit tag cache invalidations",
		}),
		Size: f.NewGauge(prometheus.GaugeOpts{
			Name: "overflow_tag_cache_size",
			Help: "Number of slugs in the current snapshot",
		}),
	}
}

func (m *Metrics) incHits() {
	if m != nil {
		m.Hits.Inc()
	}
}

func (m *Metrics) incMisses() {
	if m != nil {
		m.Misses.Inc()
	}
}

func (m *Metrics) incLoads() {
	if m != nil {
		m.Loads.Inc()
	}
}

func (m *Metrics) incLoadFailures() {
	if m != nil {
		m.LoadFailures.Inc()
	}
}

func (m *Metrics) incInvalidations() {
	if m != nil {
		m.Invalidations.Inc()
	}
}

func (m *Metrics) setSize(n int) {
	if m != nil {
		m.Size.Set(float64(n))
	}
}
