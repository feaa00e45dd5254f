package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/api/middleware"
	"github.com/angelmondragon/farmlane-backend/internal/lifecycle"
	internalorders "github.com/angelmondragon/farmlane-backend/internal/orders"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	"github.com/angelmondragon/farmlane-backend/pkg/pagination"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

type stubOrderService struct {
	create  func(ctx context.Context, actor types.Actor, input lifecycle.CreateOrderInput) (*models.Order, error)
	get     func(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.Order, error)
	list    func(ctx context.Context, actor types.Actor, buyerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
	cancel  func(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*models.Order, error)
	address func(ctx context.Context, actor types.Actor, orderID uuid.UUID, address types.Address) (*models.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, actor types.Actor, input lifecycle.CreateOrderInput) (*models.Order, error) {
	return s.create(ctx, actor, input)
}

func (s *stubOrderService) StartCheckout(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*lifecycle.CheckoutResult, error) {
	return &lifecycle.CheckoutResult{OrderID: orderID, SessionID: "cs_test", CheckoutURL: "https://checkout.example/cs_test"}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.Order, error) {
	return s.get(ctx, actor, orderID)
}

func (s *stubOrderService) OrderHistory(ctx context.Context, actor types.Actor, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	return nil, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, actor types.Actor, buyerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	return s.list(ctx, actor, buyerID, params)
}

func (s *stubOrderService) RequestCancellation(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	return s.cancel(ctx, actor, orderID, reason)
}

func (s *stubOrderService) UpdateShippingAddress(ctx context.Context, actor types.Actor, orderID uuid.UUID, address types.Address) (*models.Order, error) {
	return s.address(ctx, actor, orderID, address)
}

func withActor(req *http.Request, role enums.ActorRole) (*http.Request, types.Actor) {
	actor := types.Actor{UserID: uuid.New(), Role: role}
	return req.WithContext(middleware.WithActor(req.Context(), actor)), actor
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateOrderReturnsCreated(t *testing.T) {
	productID := uuid.New()
	svc := &stubOrderService{
		create: func(ctx context.Context, actor types.Actor, input lifecycle.CreateOrderInput) (*models.Order, error) {
			if len(input.Items) != 1 || input.Items[0].ProductID != productID || input.Items[0].Quantity != 2 {
				t.Fatalf("unexpected input %+v", input)
			}
			return &models.Order{ID: uuid.New(), BuyerID: actor.UserID, Status: enums.OrderStatusPending}, nil
		},
	}

	body := `{"items":[{"product_id":"` + productID.String() + `","quantity":2}],` +
		`"shipping_address":{"recipient_name":"Ada","line1":"1 Farm Rd","city":"Ames","state":"IA","postal_code":"50010"}}`
	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), enums.ActorRoleBuyer)
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestCreateOrderRejectsInvalidBody(t *testing.T) {
	svc := &stubOrderService{
		create: func(ctx context.Context, actor types.Actor, input lifecycle.CreateOrderInput) (*models.Order, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"items":[]}`)), enums.ActorRoleBuyer)
	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListDefaultsToCallerAndGuardsBuyerFilter(t *testing.T) {
	var seenBuyer uuid.UUID
	svc := &stubOrderService{
		list: func(ctx context.Context, actor types.Actor, buyerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
			seenBuyer = buyerID
			if params.Limit != 10 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			return &internalorders.OrderList{}, nil
		},
	}

	req, actor := withActor(httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=10", nil), enums.ActorRoleBuyer)
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if seenBuyer != actor.UserID {
		t.Fatalf("expected caller's orders, got buyer %s", seenBuyer)
	}

	req, _ = withActor(httptest.NewRequest(http.MethodGet, "/api/v1/orders?buyer_id="+uuid.NewString(), nil), enums.ActorRoleBuyer)
	resp = httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestDetailMapsServiceErrors(t *testing.T) {
	svc := &stubOrderService{
		get: func(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		},
	}

	req, _ := withActor(httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil), enums.ActorRoleBuyer)
	req = withOrderParam(req, uuid.NewString())
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}

	req, _ = withActor(httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil), enums.ActorRoleBuyer)
	req = withOrderParam(req, "not-a-uuid")
	resp = httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCancelPassesReason(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrderService{
		cancel: func(ctx context.Context, actor types.Actor, id uuid.UUID, reason string) (*models.Order, error) {
			if id != orderID || reason != "changed my mind" {
				t.Fatalf("unexpected cancel call %s %q", id, reason)
			}
			return &models.Order{ID: id, Status: enums.OrderStatusPending}, nil
		},
	}

	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/cancel", strings.NewReader(`{"reason":"  changed my mind "}`)), enums.ActorRoleBuyer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestCheckoutReturnsSession(t *testing.T) {
	orderID := uuid.New()
	req, _ := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/checkout", nil), enums.ActorRoleBuyer)
	req = withOrderParam(req, orderID.String())
	resp := httptest.NewRecorder()
	Checkout(&stubOrderService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body struct {
		Data lifecycle.CheckoutResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.OrderID != orderID || body.Data.SessionID != "cs_test" {
		t.Fatalf("unexpected checkout result %+v", body.Data)
	}
}

func TestHandlersRequireActor(t *testing.T) {
	req := withOrderParam(httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil), uuid.NewString())
	resp := httptest.NewRecorder()
	Detail(&stubOrderService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
