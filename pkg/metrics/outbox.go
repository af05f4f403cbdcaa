package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Settlement labels for outbox rows.
const (
	SettledPublished    = "published"
	SettledRetry        = "retry"
	SettledDeadLettered = "dead_lettered"
	SettledDeferred     = "deferred"
)

// OutboxMetrics tracks the publisher relay.
type OutboxMetrics struct {
	settled *prometheus.CounterVec
	publish prometheus.Histogram
	batches *prometheus.CounterVec
}

// NewOutboxMetrics registers the publisher collectors on reg. A nil
// registerer yields a no-op instance.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_events_settled_total",
			Help: "Outbox rows settled by the publisher, by outcome.",
		}, []string{"outcome"}),
		publish: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbox_publish_duration_seconds",
			Help:    "Time from publish to broker acknowledgement.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15},
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_batches_total",
			Help: "Publisher batch transactions by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.settled, m.publish, m.batches)
	return m
}

func (m *OutboxMetrics) AddSettled(outcome string, n int) {
	if m == nil || m.settled == nil || n <= 0 {
		return
	}
	m.settled.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}

func (m *OutboxMetrics) ObservePublish(took time.Duration) {
	if m == nil || m.publish == nil {
		return
	}
	m.publish.Observe(took.Seconds())
}

// ObserveBatch counts a batch transaction; empty polls are not recorded.
func (m *OutboxMetrics) ObserveBatch(processed bool, err error) {
	if m == nil || m.batches == nil {
		return
	}
	switch {
	case err != nil:
		m.batches.WithLabelValues(ResultFailure).Inc()
	case processed:
		m.batches.WithLabelValues(ResultSuccess).Inc()
	}
}
