package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/metrics"
)

const (
	CancellationBacklogJobName = "cancellation-backlog"
	defaultCancellationSLA     = 48 * time.Hour
)

type cancellationRequestReader interface {
	ListOpenCancellationRequests(ctx context.Context) ([]models.Order, error)
}

type CancellationBacklogJobParams struct {
	Logger  *logger.Logger
	Orders  cancellationRequestReader
	Metrics *metrics.BacklogMetrics
	SLA     time.Duration
}

func NewCancellationBacklogJob(params CancellationBacklogJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	sla := params.SLA
	if sla <= 0 {
		sla = defaultCancellationSLA
	}
	return &cancellationBacklogJob{
		logg:    params.Logger,
		orders:  params.Orders,
		metrics: params.Metrics,
		sla:     sla,
		now:     time.Now,
	}, nil
}

// cancellationBacklogJob surfaces buyer cancellation requests waiting on an
// admin. Requests are only reported, never resolved.
type cancellationBacklogJob struct {
	logg    *logger.Logger
	orders  cancellationRequestReader
	metrics *metrics.BacklogMetrics
	sla     time.Duration
	now     func() time.Time
}

func (j *cancellationBacklogJob) Name() string { return CancellationBacklogJobName }

func (j *cancellationBacklogJob) Run(ctx context.Context) error {
	open, err := j.orders.ListOpenCancellationRequests(ctx)
	if err != nil {
		return fmt.Errorf("list cancellation requests: %w", err)
	}
	now := j.now().UTC()
	cutoff := now.Add(-j.sla)
	var overdue int64
	for _, order := range open {
		if order.CancellationRequestedAt == nil || order.CancellationRequestedAt.After(cutoff) {
			continue
		}
		overdue++
		fields := map[string]any{
			"order_id":      order.ID.String(),
			"order_status":  order.Status,
			"requested_at":  order.CancellationRequestedAt.UTC(),
			"waiting_hours": int64(now.Sub(*order.CancellationRequestedAt).Hours()),
		}
		if order.CancellationRequestReason != nil {
			fields["reason"] = *order.CancellationRequestReason
		}
		j.logg.Warn(j.logg.WithFields(ctx, fields), "cancellation request past SLA")
	}

	j.metrics.Set(int64(len(open)), overdue)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"open_requests":    len(open),
		"overdue_requests": overdue,
		"sla_hours":        j.sla.Hours(),
	}), "cancellation backlog checked")
	return nil
}
