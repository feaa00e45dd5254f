package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks the notification relay from outbox_events to Pub/Sub.
type OutboxMetrics struct {
	publishes   *prometheus.CounterVec
	deadLetters prometheus.Gauge
}

// NewOutboxMetrics registers the relay metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	publishes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Outbox rows handled by the publisher, by event type and delivery outcome.",
	}, []string{"event_type", "outcome"})
	deadLetters := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_dead_letters",
		Help: "Outbox rows that exhausted their publish attempts.",
	})
	reg.MustRegister(publishes, deadLetters)
	return &OutboxMetrics{publishes: publishes, deadLetters: deadLetters}
}

func (m *OutboxMetrics) ObservePublish(eventType, outcome string) {
	if m == nil || m.publishes == nil {
		return
	}
	m.publishes.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) SetDeadLetters(count int64) {
	if m == nil || m.deadLetters == nil {
		return
	}
	m.deadLetters.Set(float64(count))
}
