package cron

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/farmlane-backend/internal/inventory"
	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/db/dbtest"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/metrics"
)

func TestInventoryAuditJobReportsMismatches(t *testing.T) {
	client := dbtest.Open(t)
	ledger, err := inventory.NewService(client, inventory.NewRepository(client.DB()), nil, nil)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	ctx := context.Background()

	var products []uuid.UUID
	for i := 0; i < 3; i++ {
		product := &models.Product{FarmerID: uuid.New(), Name: "Rainbow chard", PriceCents: 350}
		if err := client.DB().Create(product).Error; err != nil {
			t.Fatalf("seed product: %v", err)
		}
		err := client.InTx(ctx, func(tx *db.Tx) error {
			_, err := ledger.AdjustStock(ctx, tx, inventory.StockChange{
				ProductID:  product.ID,
				Delta:      12,
				ChangeType: enums.InventoryChangeTypeRestock,
			})
			return err
		})
		if err != nil {
			t.Fatalf("restock: %v", err)
		}
		products = append(products, product.ID)
	}
	// A write that bypassed the ledger.
	if err := client.DB().Model(&models.Product{}).Where("id = ?", products[1]).
		Update("quantity_available", 40).Error; err != nil {
		t.Fatalf("corrupt product: %v", err)
	}

	registry := prometheus.NewRegistry()
	var buf bytes.Buffer
	job, err := NewInventoryAuditJob(InventoryAuditJobParams{
		Logger:    testLogger(&buf),
		Inventory: ledger,
		Metrics:   metrics.NewInventoryMetrics(registry),
		BatchSize: 2,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	expected := `
# HELP inventory_audit_mismatched_products Products whose ledger replay disagreed with quantity_available on the last audit.
# TYPE inventory_audit_mismatched_products gauge
inventory_audit_mismatched_products 1
# HELP inventory_audit_products Products replayed on the last audit.
# TYPE inventory_audit_products gauge
inventory_audit_products 3
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"inventory_audit_mismatched_products", "inventory_audit_products"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if !strings.Contains(buf.String(), products[1].String()) {
		t.Fatalf("expected mismatch log for %s", products[1])
	}
}

type failingAuditor struct {
	ids []uuid.UUID
}

func (f failingAuditor) ProductIDs(_ context.Context, after uuid.UUID, _ int) ([]uuid.UUID, error) {
	if after != uuid.Nil {
		return nil, nil
	}
	return f.ids, nil
}

func (f failingAuditor) Verify(context.Context, uuid.UUID) (*inventory.VerifyReport, error) {
	return nil, context.DeadlineExceeded
}

func TestInventoryAuditJobCombinesVerifyErrors(t *testing.T) {
	job, err := NewInventoryAuditJob(InventoryAuditJobParams{
		Logger:    testLogger(&bytes.Buffer{}),
		Inventory: failingAuditor{ids: []uuid.UUID{uuid.New(), uuid.New()}},
		BatchSize: 2,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	err = job.Run(context.Background())
	if err == nil || strings.Count(err.Error(), "verify product") != 2 {
		t.Fatalf("expected both verify failures, got %v", err)
	}
}
