package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/koipond/koipond-backend/internal/cron"
	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/internal/orders"
	"github.com/koipond/koipond-backend/internal/products"
	"github.com/koipond/koipond-backend/internal/shipping"
	"github.com/koipond/koipond-backend/internal/shops"
	"github.com/koipond/koipond-backend/internal/wallets"
	"github.com/koipond/koipond-backend/pkg/config"
	"github.com/koipond/koipond-backend/pkg/db"
	"github.com/koipond/koipond-backend/pkg/ghn"
	"github.com/koipond/koipond-backend/pkg/logger"
	"github.com/koipond/koipond-backend/pkg/metrics"
	"github.com/koipond/koipond-backend/pkg/migrate"
	"github.com/koipond/koipond-backend/pkg/outbox"
	"github.com/koipond/koipond-backend/pkg/redis"
)

const lockName = "housekeeping"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	systemActor, err := cfg.Housekeeping.SystemActor()
	if err != nil {
		logg.Error(context.Background(), "invalid system actor", err)
		os.Exit(1)
	}

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	carrier, err := ghn.NewClient(
		cfg.Shipping.Token,
		ghn.WithBaseURL(cfg.Shipping.BaseURL),
		ghn.WithHTTPClient(&http.Client{Timeout: cfg.Shipping.QuoteTimeout}),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping carrier client", err)
		os.Exit(1)
	}
	estimator, err := shipping.NewCarrierEstimator(carrier, cfg.Shipping, settlementMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping estimator", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	events := outbox.NewService(outboxRepo, logg)
	ledgerRepo := ledger.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)

	walletService, err := wallets.NewService(wallets.NewRepository(conn), ledgerRepo, dbClient, events, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}
	ledgerService, err := ledger.NewService(ledgerRepo, dbClient, walletService, events, settlementMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	ordersService, err := orders.NewService(ordersRepo, dbClient, events, ledgerService, products.NewRepository(conn), shops.NewRepository(conn), estimator, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Housekeeping.OutboxRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewPendingOrderExpiryJob(cron.PendingOrderExpiryJobParams{
		Logger:    logg,
		Orders:    ordersRepo,
		Canceller: ordersService,
		SystemID:  systemActor,
		TTL:       cfg.Housekeeping.PendingOrderTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pending order expiry job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), 2*cfg.Housekeeping.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create housekeeping lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, retentionJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Housekeeping.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create housekeeping service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Housekeeping.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	go func() {
		if err := metrics.Serve(ctx, cfg.App.WorkerMetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
