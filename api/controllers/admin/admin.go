package admin

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/api/controllers/dto"
	"github.com/angelmondragon/farmlane-backend/api/middleware"
	"github.com/angelmondragon/farmlane-backend/api/responses"
	"github.com/angelmondragon/farmlane-backend/api/validators"
	"github.com/angelmondragon/farmlane-backend/internal/inventory"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

type Service interface {
	TransitionOrder(ctx context.Context, actor types.Actor, orderID uuid.UUID, status enums.OrderStatus, notes string) (*models.Order, error)
	ResolveCancellation(ctx context.Context, actor types.Actor, orderID uuid.UUID, approve bool, notes string) (*models.Order, error)
	Refund(ctx context.Context, actor types.Actor, orderID uuid.UUID, amountCents int64, reason string) (*models.Order, error)
	VerifyInventory(ctx context.Context, actor types.Actor, productID uuid.UUID) (*inventory.VerifyReport, error)
	PaymentEvents(ctx context.Context, actor types.Actor, orderID uuid.UUID) ([]models.PaymentEvent, error)
}

type transitionRequest struct {
	Status enums.OrderStatus `json:"status" validate:"required"`
	Notes  string            `json:"notes" validate:"max=1000"`
}

type resolveRequest struct {
	Approve *bool  `json:"approve" validate:"required"`
	Notes   string `json:"notes" validate:"max=1000"`
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,max=500"`
}

func TransitionOrder(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := resourceRequest(w, r, svc, logg, "orderId")
		if !ok {
			return
		}
		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !req.Status.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
				WithDetails(map[string]any{"status": req.Status}))
			return
		}
		order, err := svc.TransitionOrder(r.Context(), actor, orderID, req.Status, validators.SanitizeString(req.Notes, 1000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

// ResolveCancellation approves (cancelling the order) or rejects an open buyer request.
func ResolveCancellation(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := resourceRequest(w, r, svc, logg, "orderId")
		if !ok {
			return
		}
		var req resolveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.ResolveCancellation(r.Context(), actor, orderID, *req.Approve, validators.SanitizeString(req.Notes, 1000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

func Refund(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := resourceRequest(w, r, svc, logg, "orderId")
		if !ok {
			return
		}
		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Refund(r.Context(), actor, orderID, req.AmountCents, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

func VerifyInventory(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, productID, ok := resourceRequest(w, r, svc, logg, "productId")
		if !ok {
			return
		}
		report, err := svc.VerifyInventory(r.Context(), actor, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func PaymentEvents(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := resourceRequest(w, r, svc, logg, "orderId")
		if !ok {
			return
		}
		rows, err := svc.PaymentEvents(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewPaymentEvents(rows))
	}
}

func resourceRequest(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger, param string) (types.Actor, uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
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
