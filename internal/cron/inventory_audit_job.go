package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/farmlane-backend/internal/inventory"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/metrics"
)

const (
	InventoryAuditJobName  = "inventory-audit"
	defaultAuditBatchSize  = 200
	maxLoggedDiscrepancies = 5
)

type ledgerAuditor interface {
	ProductIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	Verify(ctx context.Context, productID uuid.UUID) (*inventory.VerifyReport, error)
}

type InventoryAuditJobParams struct {
	Logger    *logger.Logger
	Inventory ledgerAuditor
	Metrics   *metrics.InventoryMetrics
	BatchSize int
}

func NewInventoryAuditJob(params InventoryAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAuditBatchSize
	}
	return &inventoryAuditJob{
		logg:      params.Logger,
		inventory: params.Inventory,
		metrics:   params.Metrics,
		batch:     batch,
	}, nil
}

// inventoryAuditJob replays every product's ledger and reports products whose
// history no longer reproduces quantity_available. It never repairs anything.
type inventoryAuditJob struct {
	logg      *logger.Logger
	inventory ledgerAuditor
	metrics   *metrics.InventoryMetrics
	batch     int
}

func (j *inventoryAuditJob) Name() string { return InventoryAuditJobName }

func (j *inventoryAuditJob) Run(ctx context.Context) error {
	var (
		errs       error
		audited    int
		mismatched int
		after      uuid.UUID
	)
	for {
		ids, err := j.inventory.ProductIDs(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list products: %w", err))
		}
		for _, id := range ids {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			report, err := j.inventory.Verify(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("verify product %s: %w", id, err))
				continue
			}
			audited++
			if !report.Consistent {
				mismatched++
				j.reportMismatch(ctx, report)
			}
		}
		if len(ids) < j.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	j.metrics.SetAuditResult(audited, mismatched)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"products_audited":    audited,
		"products_mismatched": mismatched,
		"verify_errors":       len(multierr.Errors(errs)),
	}), "inventory audit complete")
	return errs
}

func (j *inventoryAuditJob) reportMismatch(ctx context.Context, report *inventory.VerifyReport) {
	reasons := make([]string, 0, maxLoggedDiscrepancies)
	for i, d := range report.Discrepancies {
		if i == maxLoggedDiscrepancies {
			break
		}
		reasons = append(reasons, d.Reason)
	}
	j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
		"product_id":         report.ProductID.String(),
		"replayed_quantity":  report.ReplayedQuantity,
		"quantity_available": report.QuantityAvailable,
		"discrepancies":      reasons,
	}), "inventory ledger mismatch")
}
