package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BacklogMetrics exposes the number of buyer cancellation requests waiting on an admin.
type BacklogMetrics struct {
	open    prometheus.Gauge
	overdue prometheus.Gauge
}

// NewBacklogMetrics registers the backlog gauges on the provided registerer.
func NewBacklogMetrics(reg prometheus.Registerer) *BacklogMetrics {
	if reg == nil {
		return &BacklogMetrics{}
	}
	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "order_cancellation_requests_open",
		Help: "Open buyer cancellation requests.",
	})
	overdue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "order_cancellation_requests_overdue",
		Help: "Open buyer cancellation requests older than the resolution SLA.",
	})
	reg.MustRegister(open, overdue)
	return &BacklogMetrics{open: open, overdue: overdue}
}

// Set publishes the latest backlog counts.
func (m *BacklogMetrics) Set(open, overdue int64) {
	if m == nil || m.open == nil {
		return
	}
	m.open.Set(float64(open))
	m.overdue.Set(float64(overdue))
}
