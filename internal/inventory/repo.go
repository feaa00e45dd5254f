package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
)

// Repository persists products' stock counters and the inventory ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	SwapQuantity(ctx context.Context, id uuid.UUID, current, next int64, status enums.ProductStatus) (bool, error)
	NextSequence(ctx context.Context, productID uuid.UUID) (int64, error)
	AppendHistory(ctx context.Context, row *models.InventoryHistory) error
	ListHistory(ctx context.Context, productID uuid.UUID) ([]models.InventoryHistory, error)
	NetByReference(ctx context.Context, referenceID uuid.UUID) (map[uuid.UUID]int64, error)
	FindOrderWithItems(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListProductIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// SwapQuantity writes next only if the stored quantity still equals current.
// It reports false when another writer got there first.
func (r *repository) SwapQuantity(ctx context.Context, id uuid.UUID, current, next int64, status enums.ProductStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND quantity_available = ?", id, current).
		Updates(map[string]any{
			"quantity_available": next,
			"status":             status,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) NextSequence(ctx context.Context, productID uuid.UUID) (int64, error) {
	var current int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryHistory{}).
		Where("product_id = ?", productID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&current).Error
	if err != nil {
		return 0, err
	}
	return current + 1, nil
}

func (r *repository) AppendHistory(ctx context.Context, row *models.InventoryHistory) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) ListHistory(ctx context.Context, productID uuid.UUID) ([]models.InventoryHistory, error) {
	var rows []models.InventoryHistory
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// NetByReference sums the signed ledger changes per product for one reference id.
func (r *repository) NetByReference(ctx context.Context, referenceID uuid.UUID) (map[uuid.UUID]int64, error) {
	type netRow struct {
		ProductID uuid.UUID
		Net       int64
	}
	var rows []netRow
	err := r.db.WithContext(ctx).
		Model(&models.InventoryHistory{}).
		Select("product_id, CAST(SUM(quantity_change) AS BIGINT) AS net").
		Where("reference_id = ?", referenceID).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		out[row.ProductID] = row.Net
	}
	return out, nil
}

func (r *repository) FindOrderWithItems(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

// ListProductIDs pages through product ids in ascending order, starting after the given id.
func (r *repository) ListProductIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{}).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	var ids []uuid.UUID
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
