package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the projection consumer and the search endpoint.
type Metrics struct {
	EventsHandled    *prometheus.CounterVec
	HandleDuration   *prometheus.HistogramVec
	HandlerRetries   prometheus.Counter
	DeadLettered     *prometheus.CounterVec
	Searches         *prometheus.CounterVec
	SearchDuration   prometheus.Histogram
	IndexedDocuments prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsHandled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overflow_search_events_handled_total",
			Help: "Events settled by the projection consumer by kind and outcome",
		}, []string{"kind", "outcome"}),
		HandleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "overflow_search_event_handle_duration_seconds",
			Help:    "Time to apply one event including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		HandlerRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "overflow_search_handler_retries_total",
			Help: "Handler attempts that failed and were retried",
		}),
		DeadLettered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overflow_search_dead_lettered_total",
			Help: "Messages routed to the dead-letter queue by reason",
		}, []string{"reason"}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "overflow_search_queries_total",
			Help: "Search requests by outcome",
		}, []string{"outcome"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "overflow_search_query_duration_seconds",
			Help:    "Search latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		IndexedDocuments: f.NewGauge(prometheus.GaugeOpts{
			Name: "overflow_search_indexed_documents",
			Help: "Documents in the search index after the last rebuild",
		}),
	}
}

func (m *Metrics) ObserveEvent(kind, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.EventsHandled.WithLabelValues(kind, outcome).Inc()
	m.HandleDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.HandlerRetries.Inc()
}

func (m *Metrics) IncDeadLettered(reason string) {
	if m == nil {
		return
	}
	m.DeadLettered.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSearch(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Searches.WithLabelValues(outcome).Inc()
	m.SearchDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetIndexedDocuments(n int) {
	if m == nil {
		return
	}
	m.IndexedDocuments.Set(float64(n))
}
