package farmer

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/api/controllers/dto"
	"github.com/angelmondragon/farmlane-backend/api/middleware"
	"github.com/angelmondragon/farmlane-backend/api/responses"
	"github.com/angelmondragon/farmlane-backend/api/validators"
	"github.com/angelmondragon/farmlane-backend/internal/lifecycle"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

type Service interface {
	UpdateItemFulfillment(ctx context.Context, actor types.Actor, itemID uuid.UUID, status enums.FulfillmentStatus, trackingNumber string) (*models.Order, error)
	AdjustStock(ctx context.Context, actor types.Actor, input lifecycle.AdjustStockInput) (*models.InventoryHistory, error)
	ProductHistory(ctx context.Context, actor types.Actor, productID uuid.UUID) ([]models.InventoryHistory, error)
}

type fulfillmentRequest struct {
	Status         enums.FulfillmentStatus `json:"status" validate:"required,oneof=pending processing shipped delivered"`
	TrackingNumber string                  `json:"tracking_number" validate:"max=100"`
}

type adjustmentRequest struct {
	Delta      int64                     `json:"delta" validate:"required"`
	ChangeType enums.InventoryChangeType `json:"change_type" validate:"required"`
	Reason     string                    `json:"reason" validate:"max=500"`
}

// UpdateFulfillment records shipping progress on one of the farmer's items.
// The order follows once every item has caught up.
func UpdateFulfillment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, itemID, ok := resourceRequest(w, r, svc, logg, "itemId")
		if !ok {
			return
		}
		var req fulfillmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.UpdateItemFulfillment(r.Context(), actor, itemID, req.Status, validators.SanitizeString(req.TrackingNumber, 100))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

func AdjustStock(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, productID, ok := resourceRequest(w, r, svc, logg, "productId")
		if !ok {
			return
		}
		var req adjustmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.AdjustStock(r.Context(), actor, lifecycle.AdjustStockInput{
			ProductID:  productID,
			Delta:      req.Delta,
			ChangeType: req.ChangeType,
			Reason:     req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewInventoryEntry(entry))
	}
}

func InventoryHistory(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, productID, ok := resourceRequest(w, r, svc, logg, "productId")
		if !ok {
			return
		}
		rows, err := svc.ProductHistory(r.Context(), actor, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewInventoryHistory(rows))
	}
}

func resourceRequest(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger, param string) (types.Actor, uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "farmer service unavailable"))
		return types.Actor{}, uuid.Nil, false
	}
	actor, err := middleware.RequireActor(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return types.Actor{}, uuid.Nil, false
	}
	id, err := validators.ParseUUIDParam(r, param)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return types.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}
