package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox relay.
type Metrics struct {
	Published      *prometheus.CounterVec
	PublishErrors  prometheus.Counter
	BreakerSkipped prometheus.Counter
	BreakerState   prometheus.Gauge
	DrainDuration  prometheus.Histogram
}

// NewMetrics registers the relay metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overflow_outbox_published_total",
			Help: "Outbox entries published to the broker, by event kind",
		}, []string{"kind"}),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "overflow_outbox_publish_errors_total",
			Help: "Failed attempts to publish an outbox entry",
		}),
		BreakerSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "overflow_outbox_breaker_skipped_total",
			Help: "Drain cycles skipped because the circuit breaker was open",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "overflow_outbox_breaker_state",
			Help: "Relay circuit breaker state (0=closed, 1=open)",
		}),
		DrainDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "overflow_outbox_drain_duration_seconds",
			Help:    "Duration of one outbox drain cycle",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) incPublished(kind string) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(kind).Inc()
}

func (m *Metrics) incPublishErrors() {
	if m == nil {
		return
	}
	m.PublishErrors.Inc()
}

func (m *Metrics) incBreakerSkipped() {
	if m == nil {
		return
	}
	m.BreakerSkipped.Inc()
}

func (m *Metrics) setBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}

func (m *Metrics) observeDrain(seconds float64) {
	if m == nil {
		return
	}
	m.DrainDuration.Observe(seconds)
}
