package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/farmlane-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/farmlane-backend/api/controllers/webhooks"
	"github.com/angelmondragon/farmlane-backend/api/routes"
	"github.com/angelmondragon/farmlane-backend/internal/inventory"
	"github.com/angelmondragon/farmlane-backend/internal/lifecycle"
	"github.com/angelmondragon/farmlane-backend/internal/notifications"
	"github.com/angelmondragon/farmlane-backend/internal/orders"
	"github.com/angelmondragon/farmlane-backend/internal/payments"
	"github.com/angelmondragon/farmlane-backend/pkg/config"
	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/idempotency"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/metrics"
	"github.com/angelmondragon/farmlane-backend/pkg/migrate"
	"github.com/angelmondragon/farmlane-backend/pkg/outbox"
	"github.com/angelmondragon/farmlane-backend/pkg/redis"
	"github.com/angelmondragon/farmlane-backend/pkg/stripe"
)

const (
	serviceKind     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	boot := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(boot, "no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(boot, logg, "load config", err)
	}

	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(boot, cfg.DB, logg)
	if err != nil {
		fatal(boot, logg, "bootstrap database", err)
	}
	defer closeWith(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(boot, cfg, logg, dbClient); err != nil {
		fatal(boot, logg, "run dev migrations", err)
	}

	redisClient, err := redis.New(boot, cfg.Redis, logg)
	if err != nil {
		fatal(boot, logg, "bootstrap redis", err)
	}
	defer closeWith(logg, "redis", redisClient.Close)

	dispatcher, closeSink, err := newNotificationDispatcher(cfg, dbClient, logg)
	if err != nil {
		fatal(boot, logg, "build notification sink", err)
	}
	// Drain pending notifications before the sink goes away.
	defer closeSink()
	defer dispatcher.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	inventoryService, err := inventory.NewService(dbClient, inventory.NewRepository(dbClient.DB()), metrics.NewInventoryMetrics(registry), logg)
	if err != nil {
		fatal(boot, logg, "create inventory service", err)
	}
	ordersService, err := orders.NewService(orders.NewRepository(dbClient.DB()), inventoryService, dispatcher, logg)
	if err != nil {
		fatal(boot, logg, "create orders service", err)
	}

	lifecycleParams := lifecycle.ServiceParams{
		TransactionRunner: dbClient,
		Orders:            ordersService,
		Inventory:         inventoryService,
		Pricing:           cfg.Pricing,
		Logger:            logg,
	}

	var reconciler webhookcontrollers.PaymentReconciler
	stripeClient, err := stripe.NewClient(boot, cfg.Stripe, logg)
	if err != nil {
		if cfg.App.IsProd() {
			fatal(boot, logg, "bootstrap stripe", err)
		}
		logg.Warn(boot, "stripe disabled: "+err.Error())
	} else {
		lifecycleParams.Checkout = stripeClient
		lifecycleParams.Refunds = stripeClient

		paymentReconciler, err := newReconciler(cfg, dbClient, redisClient, ordersService, stripeClient, registry, logg)
		if err != nil {
			fatal(boot, logg, "create payment reconciler", err)
		}
		lifecycleParams.Payments = paymentReconciler
		reconciler = paymentReconciler
	}

	lifecycleService, err := lifecycle.NewService(lifecycleParams)
	if err != nil {
		fatal(boot, logg, "create lifecycle service", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(boot, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			Readiness:   map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
			Idempotency: redisClient,
			Orders:      lifecycleService,
			Farmer:      lifecycleService,
			Admin:       lifecycleService,
			Reconciler:  reconciler,
			Gatherer:    registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func newReconciler(
	cfg *config.Config,
	dbClient *db.Client,
	redisClient *redis.Client,
	ordersService orders.Service,
	stripeClient *stripe.Client,
	registry prometheus.Registerer,
	logg *logger.Logger,
) (*payments.Reconciler, error) {
	verifier, err := payments.NewSignatureVerifier(stripeClient.SigningSecret())
	if err != nil {
		return nil, err
	}
	leases, err := idempotency.NewManager(redisClient, cfg.Webhooks.InFlightTTL)
	if err != nil {
		return nil, err
	}
	return payments.NewReconciler(payments.ReconcilerParams{
		TransactionRunner: dbClient,
		Repo:              payments.NewRepository(dbClient.DB()),
		Orders:            ordersService,
		Verifier:          verifier,
		Leases:            leases,
		Metrics:           metrics.NewWebhookMetrics(registry),
		Logger:            logg,
	})
}

// newNotificationDispatcher picks the configured sink. The returned close func
// releases the sink's own resources after the dispatcher drained.
func newNotificationDispatcher(cfg *config.Config, dbClient *db.Client, logg *logger.Logger) (*notifications.Dispatcher, func(), error) {
	var (
		sink      notifications.Sink
		closeSink = func() {}
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Notifications.Sink)) {
	case config.NotificationSinkOutbox:
		outboxSink, err := notifications.NewOutboxSink(dbClient.DB(), outbox.NewService(outbox.NewRepository(dbClient.DB()), logg))
		if err != nil {
			return nil, nil, err
		}
		sink = outboxSink
	case config.NotificationSinkKafka:
		client, err := notifications.NewKafkaClient(cfg.Kafka)
		if err != nil {
			return nil, nil, err
		}
		kafkaSink, err := notifications.NewKafkaSink(client, cfg.Kafka.NotificationTopic)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		sink = kafkaSink
		closeSink = client.Close
	default:
		sink = notifications.NewLogSink(logg)
	}

	dispatcher, err := notifications.NewDispatcher(sink, cfg.Notifications.SendTimeout, logg)
	if err != nil {
		closeSink()
		return nil, nil, err
	}
	return dispatcher, closeSink, nil
}

func fatal(ctx context.Context, logg *logger.Logger, step string, err error) {
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}

func closeWith(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "close "+name, err)
	}
}
