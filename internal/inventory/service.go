package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/metrics"
)

// StockChange describes one signed mutation of a product's available quantity.
type StockChange struct {
	ProductID   uuid.UUID
	Delta       int64
	ChangeType  enums.InventoryChangeType
	Reason      string
	ActorID     *uuid.UUID
	ReferenceID *uuid.UUID
}

// Service is the inventory ledger. Every quantity write is paired with exactly
// one history row inside the caller's transaction.
type Service interface {
	UpdateStock(ctx context.Context, tx *db.Tx, change StockChange) (*models.InventoryHistory, error)
	Reserve(ctx context.Context, tx *db.Tx, productID uuid.UUID, qty int64, orderID uuid.UUID, actorID *uuid.UUID) (*models.InventoryHistory, error)
	Release(ctx context.Context, tx *db.Tx, productID uuid.UUID, qty int64, orderID uuid.UUID, reason string, actorID *uuid.UUID) (*models.InventoryHistory, error)
	AdjustStock(ctx context.Context, tx *db.Tx, change StockChange) (*models.InventoryHistory, error)
	ProcessOrderInventory(ctx context.Context, tx *db.Tx, order *models.Order) error
	ProcessOrderInventoryStandalone(ctx context.Context, orderID uuid.UUID) error
	ReleaseOrderInventory(ctx context.Context, tx *db.Tx, orderID uuid.UUID, reason string, actorID *uuid.UUID) ([]models.InventoryHistory, error)
	Product(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	Products(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]models.Product, error)
	ProductIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	History(ctx context.Context, productID uuid.UUID) ([]models.InventoryHistory, error)
	Verify(ctx context.Context, productID uuid.UUID) (*VerifyReport, error)
}

type service struct {
	tx      db.TxRunner
	repo    Repository
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
}

// NewService builds the inventory ledger.
func NewService(tx db.TxRunner, repo Repository, m *metrics.InventoryMetrics, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{tx: tx, repo: repo, metrics: m, logg: logg}, nil
}

func (s *service) UpdateStock(ctx context.Context, tx *db.Tx, change StockChange) (*models.InventoryHistory, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory update requires a transaction")
	}
	if change.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if change.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity change must be non-zero")
	}
	if !change.ChangeType.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid change type %q", change.ChangeType)
	}

	repo := s.repo.WithTx(tx.DB())
	product, err := repo.LockProduct(ctx, change.ProductID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": change.ProductID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock product")
	}

	current := product.QuantityAvailable
	next := current + change.Delta
	if next < 0 {
		s.metrics.IncRejection(string(change.ChangeType))
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientInventory, "insufficient stock").
			WithDetails(map[string]any{
				"product_id": change.ProductID,
				"requested":  -change.Delta,
				"available":  current,
			})
	}

	status := nextProductStatus(product.Status, next)
	swapped, err := repo.SwapQuantity(ctx, product.ID, current, next, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update product quantity")
	}
	if !swapped {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product quantity changed concurrently; retry").
			WithDetails(map[string]any{"product_id": product.ID})
	}

	seq, err := repo.NextSequence(ctx, product.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "next inventory sequence")
	}

	row := &models.InventoryHistory{
		ProductID:        product.ID,
		Sequence:         seq,
		QuantityChange:   change.Delta,
		PreviousQuantity: current,
		NewQuantity:      next,
		ChangeType:       change.ChangeType,
		Reason:           change.Reason,
		ReferenceID:      change.ReferenceID,
		ActorID:          change.ActorID,
	}
	if err := repo.AppendHistory(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append inventory history")
	}
	return row, nil
}

// nextProductStatus flips active and out_of_stock at the zero boundary. Inactive
// listings stay inactive whatever their stock.
func nextProductStatus(current enums.ProductStatus, quantity int64) enums.ProductStatus {
	switch {
	case current == enums.ProductStatusInactive:
		return current
	case quantity == 0:
		return enums.ProductStatusOutOfStock
	case current == enums.ProductStatusOutOfStock:
		return enums.ProductStatusActive
	default:
		return current
	}
}

func (s *service) Reserve(ctx context.Context, tx *db.Tx, productID uuid.UUID, qty int64, orderID uuid.UUID, actorID *uuid.UUID) (*models.InventoryHistory, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}
	ref := orderID
	return s.UpdateStock(ctx, tx, StockChange{
		ProductID:   productID,
		Delta:       -qty,
		ChangeType:  enums.InventoryChangeTypeSale,
		Reason:      "order reservation",
		ActorID:     actorID,
		ReferenceID: &ref,
	})
}

func (s *service) Release(ctx context.Context, tx *db.Tx, productID uuid.UUID, qty int64, orderID uuid.UUID, reason string, actorID *uuid.UUID) (*models.InventoryHistory, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "release quantity must be positive")
	}
	if reason == "" {
		reason = "order reservation released"
	}
	ref := orderID
	return s.UpdateStock(ctx, tx, StockChange{
		ProductID:   productID,
		Delta:       qty,
		ChangeType:  enums.InventoryChangeTypeAdjustment,
		Reason:      reason,
		ActorID:     actorID,
		ReferenceID: &ref,
	})
}

// AdjustStock records a manual stock change. Sales go through Reserve; expired
// and damaged stock can only be written off.
func (s *service) AdjustStock(ctx context.Context, tx *db.Tx, change StockChange) (*models.InventoryHistory, error) {
	switch change.ChangeType {
	case enums.InventoryChangeTypeRestock:
		if change.Delta <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be positive")
		}
	case enums.InventoryChangeTypeExpired, enums.InventoryChangeTypeDamaged:
		if change.Delta >= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "write-offs must reduce stock")
		}
	case enums.InventoryChangeTypeAdjustment:
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "change type %q cannot be recorded manually", change.ChangeType)
	}
	return s.UpdateStock(ctx, tx, change)
}

type reservedLine struct {
	productID uuid.UUID
	qty       int64
}

// ProcessOrderInventory reserves stock for every line of the order. Locks are
// taken in product id order. When any line fails, the reservations made by this
// call are released again before the error is returned.
func (s *service) ProcessOrderInventory(ctx context.Context, tx *db.Tx, order *models.Order) error {
	if order == nil || len(order.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no items to reserve")
	}

	lines := mergeLines(order.Items)
	buyer := order.BuyerID
	done := make([]reservedLine, 0, len(lines))
	for _, line := range lines {
		if _, err := s.Reserve(ctx, tx, line.productID, line.qty, order.ID, &buyer); err != nil {
			if cerr := s.compensate(ctx, tx, order.ID, done); cerr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, cerr, "compensate partial reservation")
			}
			return err
		}
		done = append(done, line)
	}
	return nil
}

func (s *service) compensate(ctx context.Context, tx *db.Tx, orderID uuid.UUID, done []reservedLine) error {
	for i := len(done) - 1; i >= 0; i-- {
		line := done[i]
		if _, err := s.Release(ctx, tx, line.productID, line.qty, orderID, "compensating release: order reservation failed", nil); err != nil {
			return err
		}
	}
	return nil
}

func mergeLines(items []models.OrderItem) []reservedLine {
	totals := make(map[uuid.UUID]int64, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}
	lines := make([]reservedLine, 0, len(totals))
	for id, qty := range totals {
		lines = append(lines, reservedLine{productID: id, qty: qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].productID.String() < lines[j].productID.String()
	})
	return lines
}

// ProcessOrderInventoryStandalone reserves an existing order's stock in its own
// transaction. A failed reservation still commits its compensating releases so
// the attempt stays visible in the ledger.
func (s *service) ProcessOrderInventoryStandalone(ctx context.Context, orderID uuid.UUID) error {
	var reservationErr error
	err := s.tx.InTx(ctx, func(tx *db.Tx) error {
		order, err := s.repo.WithTx(tx.DB()).FindOrderWithItems(ctx, orderID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
		}
		if err := s.ProcessOrderInventory(ctx, tx, order); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory) {
				reservationErr = err
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if reservationErr != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "order reservation failed; compensation committed")
	}
	return reservationErr
}

// ReleaseOrderInventory returns whatever the order still holds, computed from
// the ledger rows that reference it. Calling it twice releases nothing the
// second time.
func (s *service) ReleaseOrderInventory(ctx context.Context, tx *db.Tx, orderID uuid.UUID, reason string, actorID *uuid.UUID) ([]models.InventoryHistory, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory release requires a transaction")
	}
	net, err := s.repo.WithTx(tx.DB()).NetByReference(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order reservations")
	}

	outstanding := make([]reservedLine, 0, len(net))
	for productID, change := range net {
		if change < 0 {
			outstanding = append(outstanding, reservedLine{productID: productID, qty: -change})
		}
	}
	sort.Slice(outstanding, func(i, j int) bool {
		return outstanding[i].productID.String() < outstanding[j].productID.String()
	})

	rows := make([]models.InventoryHistory, 0, len(outstanding))
	for _, line := range outstanding {
		row, err := s.Release(ctx, tx, line.productID, line.qty, orderID, reason, actorID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

func (s *service) Product(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return product, nil
}

// Products loads the given products in one query, keyed by id. Missing ids
// are simply absent from the map.
func (s *service) Products(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if len(productIDs) == 0 {
		return map[uuid.UUID]models.Product{}, nil
	}
	rows, err := s.repo.FindProducts(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	out := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// ProductIDs pages through every product id in ascending order.
func (s *service) ProductIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.ListProductIDs(ctx, after, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list product ids")
	}
	return ids, nil
}

func (s *service) History(ctx context.Context, productID uuid.UUID) ([]models.InventoryHistory, error) {
	if _, err := s.Product(ctx, productID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListHistory(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory history")
	}
	return rows, nil
}
