package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
)

// Discrepancy is one place where the ledger disagrees with itself or with the product row.
// Sequence is zero for the final balance check.
type Discrepancy struct {
	Sequence int64  `json:"sequence"`
	Reason   string `json:"reason"`
}

// VerifyReport is the result of replaying a product's ledger.
type VerifyReport struct {
	ProductID         uuid.UUID     `json:"product_id"`
	OpeningQuantity   int64         `json:"opening_quantity"`
	ReplayedQuantity  int64         `json:"replayed_quantity"`
	QuantityAvailable int64         `json:"quantity_available"`
	Entries           int           `json:"entries"`
	Consistent        bool          `json:"consistent"`
	Discrepancies     []Discrepancy `json:"discrepancies,omitempty"`
}

// Verify replays the ledger under the product lock so no writer can interleave.
func (s *service) Verify(ctx context.Context, productID uuid.UUID) (*VerifyReport, error) {
	var report *VerifyReport
	err := s.tx.InTx(ctx, func(tx *db.Tx) error {
		repo := s.repo.WithTx(tx.DB())
		product, err := repo.LockProduct(ctx, productID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock product")
		}
		rows, err := repo.ListHistory(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory history")
		}
		report = Replay(product, rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Replay checks that rows, in sequence order, chain from the opening balance to
// the product's current quantity. The opening balance is the first row's
// previous quantity, or the current quantity when there is no history.
func Replay(product *models.Product, rows []models.InventoryHistory) *VerifyReport {
	report := &VerifyReport{
		ProductID:         product.ID,
		QuantityAvailable: product.QuantityAvailable,
		Entries:           len(rows),
	}

	running := product.QuantityAvailable
	if len(rows) > 0 {
		running = rows[0].PreviousQuantity
	}
	report.OpeningQuantity = running

	for i, row := range rows {
		if want := int64(i + 1); row.Sequence != want {
			report.add(row.Sequence, fmt.Sprintf("expected sequence %d", want))
		}
		if row.PreviousQuantity != running {
			report.add(row.Sequence, fmt.Sprintf("previous_quantity %d does not match running balance %d", row.PreviousQuantity, running))
		}
		if row.NewQuantity != row.PreviousQuantity+row.QuantityChange {
			report.add(row.Sequence, fmt.Sprintf("new_quantity %d != %d %+d", row.NewQuantity, row.PreviousQuantity, row.QuantityChange))
		}
		if row.NewQuantity < 0 {
			report.add(row.Sequence, "negative balance")
		}
		running += row.QuantityChange
	}

	report.ReplayedQuantity = running
	if running != product.QuantityAvailable {
		report.add(0, fmt.Sprintf("replayed quantity %d != quantity_available %d", running, product.QuantityAvailable))
	}
	report.Consistent = len(report.Discrepancies) == 0
	return report
}

func (r *VerifyReport) add(seq int64, reason string) {
	r.Discrepancies = append(r.Discrepancies, Discrepancy{Sequence: seq, Reason: reason})
}
