package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/farmlane-backend/internal/cron"
	"github.com/angelmondragon/farmlane-backend/internal/inventory"
	"github.com/angelmondragon/farmlane-backend/internal/notifications"
	"github.com/angelmondragon/farmlane-backend/internal/orders"
	"github.com/angelmondragon/farmlane-backend/pkg/config"
	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/metrics"
	"github.com/angelmondragon/farmlane-backend/pkg/migrate"
	"github.com/angelmondragon/farmlane-backend/pkg/outbox"
	"github.com/angelmondragon/farmlane-backend/pkg/redis"
)

const serviceKind = "cron-worker"

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
		fatal(boot, logg, "connect database", err)
	}
	defer closeWith(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(boot, cfg, logg, dbClient); err != nil {
		fatal(boot, logg, "dev migrations", err)
	}

	redisClient, err := redis.New(boot, cfg.Redis, logg)
	if err != nil {
		fatal(boot, logg, "connect redis", err)
	}
	defer closeWith(logg, "redis", redisClient.Close)

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		fatal(boot, logg, "create cron lock", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())

	jobs, err := buildJobs(cfg, logg, dbClient, promRegistry)
	if err != nil {
		fatal(boot, logg, "build cron jobs", err)
	}
	registry := cron.NewRegistry()
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			fatal(boot, logg, "register cron job", err)
		}
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(promRegistry),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		fatal(boot, logg, "create cron service", err)
	}

	ctx, stop := signal.NotifyContext(boot, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"interval":    cfg.Cron.Interval.String(),
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()

	logg.Info(ctx, "cron worker running")
	runErr := service.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", runErr)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker stopped")
}

// buildJobs wires inventory-audit, cancellation-backlog and
// outbox-retention in that run order.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) ([]cron.Job, error) {
	inventoryMetrics := metrics.NewInventoryMetrics(reg)
	inventoryService, err := inventory.NewService(dbClient, inventory.NewRepository(dbClient.DB()), inventoryMetrics, logg)
	if err != nil {
		return nil, err
	}
	// Backlog reporting only reads, so nothing is ever notified from here.
	ordersService, err := orders.NewService(orders.NewRepository(dbClient.DB()), inventoryService, notifications.Discard{}, logg)
	if err != nil {
		return nil, err
	}

	audit, err := cron.NewInventoryAuditJob(cron.InventoryAuditJobParams{
		Logger:    logg,
		Inventory: inventoryService,
		Metrics:   inventoryMetrics,
		BatchSize: cfg.Cron.InventoryAuditBatchSize,
	})
	if err != nil {
		return nil, err
	}
	backlog, err := cron.NewCancellationBacklogJob(cron.CancellationBacklogJobParams{
		Logger:  logg,
		Orders:  ordersService,
		Metrics: metrics.NewBacklogMetrics(reg),
		SLA:     cfg.Cron.CancellationRequestSLA,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}
	return []cron.Job{audit, backlog, retention}, nil
}

// lockName gives each environment its own lock on a shared Redis.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceKind + ":" + env
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
