package routes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/farmlane-backend/api/controllers"
	"github.com/angelmondragon/farmlane-backend/internal/inventory"
	"github.com/angelmondragon/farmlane-backend/internal/lifecycle"
	internalorders "github.com/angelmondragon/farmlane-backend/internal/orders"
	"github.com/angelmondragon/farmlane-backend/internal/payments"
	pkgAuth "github.com/angelmondragon/farmlane-backend/pkg/auth"
	"github.com/angelmondragon/farmlane-backend/pkg/config"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/pagination"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryIdempotencyStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{data: map[string]string{}}
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryIdempotencyStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

// stubLifecycle answers every route with a canned order.
type stubLifecycle struct {
	mu      sync.Mutex
	creates int
}

func (s *stubLifecycle) order(id uuid.UUID) *models.Order {
	return &models.Order{ID: id, Status: enums.OrderStatusPending, PaymentStatus: enums.PaymentStatusUnpaid}
}

func (s *stubLifecycle) CreateOrder(ctx context.Context, actor types.Actor, input lifecycle.CreateOrderInput) (*models.Order, error) {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	return s.order(uuid.New()), nil
}

func (s *stubLifecycle) StartCheckout(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*lifecycle.CheckoutResult, error) {
	return &lifecycle.CheckoutResult{OrderID: orderID}, nil
}

func (s *stubLifecycle) GetOrder(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.Order, error) {
	return s.order(orderID), nil
}

func (s *stubLifecycle) OrderHistory(ctx context.Context, actor types.Actor, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	return nil, nil
}

func (s *stubLifecycle) ListOrders(ctx context.Context, actor types.Actor, buyerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	return &internalorders.OrderList{}, nil
}

func (s *stubLifecycle) RequestCancellation(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	return s.order(orderID), nil
}

func (s *stubLifecycle) UpdateShippingAddress(ctx context.Context, actor types.Actor, orderID uuid.UUID, address types.Address) (*models.Order, error) {
	return s.order(orderID), nil
}

func (s *stubLifecycle) UpdateItemFulfillment(ctx context.Context, actor types.Actor, itemID uuid.UUID, status enums.FulfillmentStatus, trackingNumber string) (*models.Order, error) {
	return s.order(uuid.New()), nil
}

func (s *stubLifecycle) AdjustStock(ctx context.Context, actor types.Actor, input lifecycle.AdjustStockInput) (*models.InventoryHistory, error) {
	return &models.InventoryHistory{ProductID: input.ProductID}, nil
}

func (s *stubLifecycle) ProductHistory(ctx context.Context, actor types.Actor, productID uuid.UUID) ([]models.InventoryHistory, error) {
	return nil, nil
}

func (s *stubLifecycle) TransitionOrder(ctx context.Context, actor types.Actor, orderID uuid.UUID, status enums.OrderStatus, notes string) (*models.Order, error) {
	return s.order(orderID), nil
}

func (s *stubLifecycle) ResolveCancellation(ctx context.Context, actor types.Actor, orderID uuid.UUID, approve bool, notes string) (*models.Order, error) {
	return s.order(orderID), nil
}

func (s *stubLifecycle) Refund(ctx context.Context, actor types.Actor, orderID uuid.UUID, amountCents int64, reason string) (*models.Order, error) {
	return s.order(orderID), nil
}

func (s *stubLifecycle) VerifyInventory(ctx context.Context, actor types.Actor, productID uuid.UUID) (*inventory.VerifyReport, error) {
	return &inventory.VerifyReport{ProductID: productID, Consistent: true}, nil
}

func (s *stubLifecycle) PaymentEvents(ctx context.Context, actor types.Actor, orderID uuid.UUID) ([]models.PaymentEvent, error) {
	return nil, nil
}

type stubReconciler struct{}

func (stubReconciler) HandleWebhook(ctx context.Context, payload []byte, header string) (*payments.Result, error) {
	return &payments.Result{EventID: "evt_test", Outcome: payments.OutcomeRecorded}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "farmlane-test", ExpirationMinutes: 60},
	}
}

func newTestRouter(cfg *config.Config, svc *stubLifecycle) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total", Help: "test"}))
	return NewRouter(RouterParams{
		Config:      cfg,
		Logger:      logg,
		Readiness:   map[string]controllers.Pinger{"db": stubPinger{}},
		Idempotency: newMemoryIdempotencyStore(),
		Orders:      svc,
		Farmer:      svc,
		Admin:       svc,
		Reconciler:  stubReconciler{},
		Gatherer:    registry,
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, method, path, token string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestPublicRoutes(t *testing.T) {
	router := newTestRouter(testConfig(), &stubLifecycle{})

	if resp := serve(router, http.MethodGet, "/health/live", "", nil, nil); resp.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", resp.Code)
	}
	if resp := serve(router, http.MethodGet, "/health/ready", "", nil, nil); resp.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d", resp.Code)
	}
	resp := serve(router, http.MethodGet, "/metrics", "", nil, nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "router_test_total") {
		t.Fatalf("expected metrics exposition, got %d %s", resp.Code, resp.Body.String())
	}
	resp = serve(router, http.MethodPost, "/api/v1/webhooks/stripe", "", []byte(`{}`), map[string]string{"Stripe-Signature": "t=1,v1=x"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected webhook 200 without JWT got %d", resp.Code)
	}
}

func TestPrivateRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), &stubLifecycle{})
	resp := serve(router, http.MethodGet, "/api/v1/orders", "", nil, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestRoleGates(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubLifecycle{})
	orderID := uuid.NewString()
	productID := uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		role   enums.ActorRole
		body   string
		status int
	}{
		{"buyer reads order", http.MethodGet, "/api/v1/orders/" + orderID, enums.ActorRoleBuyer, "", http.StatusOK},
		{"farmer cannot list orders", http.MethodGet, "/api/v1/orders", enums.ActorRoleFarmer, "", http.StatusForbidden},
		{"farmer cannot checkout", http.MethodPost, "/api/v1/orders/" + orderID + "/checkout", enums.ActorRoleFarmer, "", http.StatusForbidden},
		{"buyer cannot verify inventory", http.MethodGet, "/api/admin/v1/inventory/" + productID + "/verify", enums.ActorRoleBuyer, "", http.StatusForbidden},
		{"admin verifies inventory", http.MethodGet, "/api/admin/v1/inventory/" + productID + "/verify", enums.ActorRoleAdmin, "", http.StatusOK},
		{"buyer cannot read ledger", http.MethodGet, "/api/v1/inventory/" + productID + "/history", enums.ActorRoleBuyer, "", http.StatusForbidden},
		{"farmer reads ledger", http.MethodGet, "/api/v1/inventory/" + productID + "/history", enums.ActorRoleFarmer, "", http.StatusOK},
		{"farmer updates fulfillment", http.MethodPost, "/api/v1/order-items/" + uuid.NewString() + "/fulfillment", enums.ActorRoleFarmer, `{"status":"shipped"}`, http.StatusOK},
	}
	for _, tt := range tests {
		resp := serve(router, tt.method, tt.path, buildToken(t, cfg, tt.role), []byte(tt.body), nil)
		if resp.Code != tt.status {
			t.Fatalf("%s: expected %d got %d (%s)", tt.name, tt.status, resp.Code, resp.Body.String())
		}
	}
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	cfg := testConfig()
	svc := &stubLifecycle{}
	router := newTestRouter(cfg, svc)
	token := buildToken(t, cfg, enums.ActorRoleBuyer)

	body := []byte(`{"items":[{"product_id":"` + uuid.NewString() + `","quantity":1}],` +
		`"shipping_address":{"recipient_name":"Ada","line1":"1 Farm Rd","city":"Ames","state":"IA","postal_code":"50010"}}`)

	missing := serve(router, http.MethodPost, "/api/v1/orders", token, body, nil)
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key got %d", missing.Code)
	}

	headers := map[string]string{"Idempotency-Key": "order-1"}
	first := serve(router, http.MethodPost, "/api/v1/orders", token, body, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", first.Code, first.Body.String())
	}
	replay := serve(router, http.MethodPost, "/api/v1/orders", token, body, headers)
	if replay.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", replay.Code)
	}
	if replay.Body.String() != first.Body.String() {
		t.Fatalf("expected identical replay body")
	}
	if svc.creates != 1 {
		t.Fatalf("expected one order created, got %d", svc.creates)
	}
}
