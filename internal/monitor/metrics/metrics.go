// Package metrics exposes Prometheus instrumentation for the monitoring
// engine. All receivers are nil-safe so wiring metrics stays optional in
// tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	FetchFailures       *prometheus.CounterVec
	PublicationsNew     prometheus.Counter
	PublicationsSeen    prometheus.Counter
	LeaseContention     prometheus.Counter
	EventsDelivered     prometheus.Counter
	DeliveryFailures    prometheus.Counter
	IdentitiesAttention prometheus.Counter
}

// New creates and registers all engine metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "diario_runs_total",
			Help: "Monitoring runs by terminal status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "diario_run_duration_seconds",
			Help:    "Wall time of one monitoring run",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		FetchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "diario_fetch_failures_total",
			Help: "Classified registry fetch failures",
		}, []string{"category"}),
		PublicationsNew: promauto.NewCounter(prometheus.CounterOpts{
			Name: "diario_publications_new_total",
			Help: "Publications committed as new",
		}),
		PublicationsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "diario_publications_seen_total",
			Help: "Candidates skipped as already seen",
		}),
		LeaseContention: promauto.NewCounter(prometheus.CounterOpts{
			Name: "diario_lease_contention_total",
			Help: "Runs skipped because another worker held the lease",
		}),
		EventsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "diario_events_delivered_total",
			Help: "Publication events acknowledged by the deliverer",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "diario_delivery_failures_total",
			Help: "Publication event delivery attempts that failed",
		}),
		IdentitiesAttention: promauto.NewCounter(prometheus.CounterOpts{
			Name: "diario_identities_needs_attention_total",
			Help: "Identities flagged after terminal fetch failures",
		}),
	}
}

func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordFetchFailure(category string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordDiff(newCount, seenCount int) {
	if m == nil {
		return
	}
	m.PublicationsNew.Add(float64(newCount))
	m.PublicationsSeen.Add(float64(seenCount))
}

func (m *Metrics) RecordLeaseContention() {
	if m == nil {
		return
	}
	m.LeaseContention.Inc()
}

func (m *Metrics) RecordDelivery(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.EventsDelivered.Inc()
	} else {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) RecordAttention() {
	if m == nil {
		return
	}
	m.IdentitiesAttention.Inc()
}
