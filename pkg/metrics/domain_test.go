package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWebhookMetricsCountsByTypeAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.Observe("payment_failed", "applied")
	m.Observe("payment_failed", "applied")
	m.Observe("payment_failed", "duplicate")
	m.Observe("", "")

	if got := testutil.ToFloat64(m.events.WithLabelValues("payment_failed", "applied")); got != 2 {
		t.Fatalf("expected 2 applied events, got %f", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("unknown", "unknown")); got != 1 {
		t.Fatalf("empty labels should normalize to unknown, got %f", got)
	}
}

func TestInventoryMetricsAuditGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInventoryMetrics(reg)
	m.SetAuditResult(12, 1)
	m.IncRejection("sale")

	if got := testutil.ToFloat64(m.audited); got != 12 {
		t.Fatalf("expected 12 audited, got %f", got)
	}
	if got := testutil.ToFloat64(m.mismatched); got != 1 {
		t.Fatalf("expected 1 mismatched, got %f", got)
	}
	if got := testutil.ToFloat64(m.rejections.WithLabelValues("sale")); got != 1 {
		t.Fatalf("expected 1 rejection, got %f", got)
	}
}

func TestOutboxMetricsTrackOutcomesAndDeadLetters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.ObservePublish("order_status_changed", "published")
	m.ObservePublish("order_status_changed", "held_back")
	m.SetDeadLetters(3)

	if got := testutil.ToFloat64(m.publishes.WithLabelValues("order_status_changed", "published")); got != 1 {
		t.Fatalf("expected 1 published, got %f", got)
	}
	if got := testutil.ToFloat64(m.deadLetters); got != 3 {
		t.Fatalf("expected 3 dead letters, got %f", got)
	}
}

func TestNilRegistererMetricsAreNoops(t *testing.T) {
	NewWebhookMetrics(nil).Observe("x", "y")
	NewOutboxMetrics(nil).SetDeadLetters(1)
	var nilOutbox *OutboxMetrics
	nilOutbox.ObservePublish("x", "y")
	NewInventoryMetrics(nil).SetAuditResult(1, 1)
	NewBacklogMetrics(nil).Set(1, 1)
	var nilMetrics *CronJobMetrics
	nilMetrics.ObserveRun("job", time.Second, nil)
	nilMetrics.IncLockSkipped()
}
