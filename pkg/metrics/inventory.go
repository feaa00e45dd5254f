package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics tracks ledger pressure and audit results.
type InventoryMetrics struct {
	rejections *prometheus.CounterVec
	mismatched prometheus.Gauge
	audited    prometheus.Gauge
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservation_rejections_total",
		Help: "Stock changes rejected because they would drive quantity below zero.",
	}, []string{"change_type"})
	mismatched := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_audit_mismatched_products",
		Help: "Products whose ledger replay disagreed with quantity_available on the last audit.",
	})
	audited := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inventory_audit_products",
		Help: "Products replayed on the last audit.",
	})
	reg.MustRegister(rejections, mismatched, audited)
	return &InventoryMetrics{rejections: rejections, mismatched: mismatched, audited: audited}
}

// IncRejection counts an oversell attempt.
func (m *InventoryMetrics) IncRejection(changeType string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(changeType)).Inc()
}

// SetAuditResult publishes the outcome of a full ledger audit.
func (m *InventoryMetrics) SetAuditResult(audited, mismatched int) {
	if m == nil || m.mismatched == nil {
		return
	}
	m.audited.Set(float64(audited))
	m.mismatched.Set(float64(mismatched))
}
