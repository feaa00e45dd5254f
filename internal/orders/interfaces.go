package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/pagination"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

// Repository defines persistence operations for orders, items and status history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderWithItems(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateShippingAddress(ctx context.Context, id uuid.UUID, address types.Address, at time.Time) error
	UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error
	NextHistorySequence(ctx context.Context, orderID uuid.UUID) (int64, error)
	AppendHistory(ctx context.Context, row *models.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListOpenCancellationRequests(ctx context.Context) ([]models.Order, error)
}

// InventoryReleaser returns an order's outstanding reservation to stock.
type InventoryReleaser interface {
	ReleaseOrderInventory(ctx context.Context, tx *db.Tx, orderID uuid.UUID, reason string, actorID *uuid.UUID) ([]models.InventoryHistory, error)
}
