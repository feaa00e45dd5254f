package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/farmlane-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/farmlane-backend/api/controllers/admin"
	farmercontrollers "github.com/angelmondragon/farmlane-backend/api/controllers/farmer"
	ordercontrollers "github.com/angelmondragon/farmlane-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/farmlane-backend/api/controllers/webhooks"
	"github.com/angelmondragon/farmlane-backend/api/middleware"
	"github.com/angelmondragon/farmlane-backend/pkg/config"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface calls into. The lifecycle
// service satisfies Orders, Farmer and Admin.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Readiness   map[string]controllers.Pinger
	Idempotency redis.IdempotencyStore
	Orders      ordercontrollers.Service
	Farmer      farmercontrollers.Service
	Admin       admincontrollers.Service
	Reconciler  webhookcontrollers.PaymentReconciler
	Gatherer    prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Readiness))
	})

	if params.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.Reconciler, logg))
	})

	// Retry-safe mutations. A nil store passes requests straight through.
	oncePerDay := middleware.Idempotent(params.Idempotency, logg, middleware.IdempotencyDay)
	oncePerWeek := middleware.Idempotent(params.Idempotency, logg, middleware.IdempotencyWeek)

	buyerOrAdmin := middleware.RequireRole(logg, enums.ActorRoleBuyer, enums.ActorRoleAdmin)
	farmerOrAdmin := middleware.RequireRole(logg, enums.ActorRoleFarmer, enums.ActorRoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/v1/orders", func(r chi.Router) {
			r.With(buyerOrAdmin, oncePerWeek).Post("/", ordercontrollers.Create(params.Orders, logg))
			r.With(buyerOrAdmin).Get("/", ordercontrollers.List(params.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(params.Orders, logg))
			r.Get("/{orderId}/history", ordercontrollers.History(params.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer), oncePerDay).Post("/{orderId}/checkout", ordercontrollers.Checkout(params.Orders, logg))
			r.With(buyerOrAdmin, oncePerWeek).Post("/{orderId}/cancel", ordercontrollers.Cancel(params.Orders, logg))
			r.With(buyerOrAdmin).Put("/{orderId}/shipping-address", ordercontrollers.UpdateShippingAddress(params.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(farmerOrAdmin)
			r.Post("/v1/order-items/{itemId}/fulfillment", farmercontrollers.UpdateFulfillment(params.Farmer, logg))
			r.With(oncePerDay).Post("/v1/inventory/{productId}/adjustments", farmercontrollers.AdjustStock(params.Farmer, logg))
			r.Get("/v1/inventory/{productId}/history", farmercontrollers.InventoryHistory(params.Farmer, logg))
		})

		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.Post("/orders/{orderId}/transition", admincontrollers.TransitionOrder(params.Admin, logg))
			r.Post("/orders/{orderId}/cancellation", admincontrollers.ResolveCancellation(params.Admin, logg))
			r.With(oncePerWeek).Post("/orders/{orderId}/refund", admincontrollers.Refund(params.Admin, logg))
			r.Get("/orders/{orderId}/payment-events", admincontrollers.PaymentEvents(params.Admin, logg))
			r.Get("/inventory/{productId}/verify", admincontrollers.VerifyInventory(params.Admin, logg))
		})
	})

	return r
}
