package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/api/controllers/dto"
	"github.com/angelmondragon/farmlane-backend/api/middleware"
	"github.com/angelmondragon/farmlane-backend/api/responses"
	"github.com/angelmondragon/farmlane-backend/api/validators"
	"github.com/angelmondragon/farmlane-backend/internal/lifecycle"
	internalorders "github.com/angelmondragon/farmlane-backend/internal/orders"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/pagination"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

// Service is the slice of the lifecycle façade the order routes call.
type Service interface {
	CreateOrder(ctx context.Context, actor types.Actor, input lifecycle.CreateOrderInput) (*models.Order, error)
	StartCheckout(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*lifecycle.CheckoutResult, error)
	GetOrder(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.Order, error)
	OrderHistory(ctx context.Context, actor types.Actor, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	ListOrders(ctx context.Context, actor types.Actor, buyerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
	RequestCancellation(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*models.Order, error)
	UpdateShippingAddress(ctx context.Context, actor types.Actor, orderID uuid.UUID, address types.Address) (*models.Order, error)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Create places a PENDING order and reserves its stock.
func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireService(w, r, svc, logg)
		if !ok {
			return
		}

		var input lifecycle.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateOrder(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewOrder(order))
	}
}

// List pages through the caller's orders. Admins pass buyer_id to inspect any buyer.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireService(w, r, svc, logg)
		if !ok {
			return
		}

		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, filtered, err := validators.ParseQueryUUID(r, "buyer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyerID := actor.UserID
		if filtered {
			if actor.Role != enums.ActorRoleAdmin {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "buyer_id filter requires admin"))
				return
			}
			buyerID = filter
		}

		list, err := svc.ListOrders(r.Context(), actor, buyerID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrderList(list))
	}
}

func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := orderRequest(w, r, svc, logg)
		if !ok {
			return
		}
		order, err := svc.GetOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

func History(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := orderRequest(w, r, svc, logg)
		if !ok {
			return
		}
		history, err := svc.OrderHistory(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewStatusHistory(history))
	}
}

// Checkout opens (or returns the existing) hosted payment session.
func Checkout(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := orderRequest(w, r, svc, logg)
		if !ok {
			return
		}
		result, err := svc.StartCheckout(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := orderRequest(w, r, svc, logg)
		if !ok {
			return
		}
		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.RequestCancellation(r.Context(), actor, orderID, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

func UpdateShippingAddress(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := orderRequest(w, r, svc, logg)
		if !ok {
			return
		}
		var address types.Address
		if err := validators.DecodeJSONBody(r, &address); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.UpdateShippingAddress(r.Context(), actor, orderID, address)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(order))
	}
}

func requireService(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (types.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
		return types.Actor{}, false
	}
	actor, err := middleware.RequireActor(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return types.Actor{}, false
	}
	return actor, true
}

func orderRequest(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (types.Actor, uuid.UUID, bool) {
	actor, ok := requireService(w, r, svc, logg)
	if !ok {
		return types.Actor{}, uuid.Nil, false
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return types.Actor{}, uuid.Nil, false
	}
	return actor, orderID, true
}
