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
	"go.uber.org/multierr"

	"github.com/koipond/koipond-backend/api/routes"
	"github.com/koipond/koipond-backend/internal/checkout"
	"github.com/koipond/koipond-backend/internal/ledger"
	"github.com/koipond/koipond-backend/internal/orders"
	"github.com/koipond/koipond-backend/internal/products"
	"github.com/koipond/koipond-backend/internal/reports"
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

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	settlementMetrics := metrics.NewSettlementMetrics(registry)

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
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	ledgerRepo := ledger.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	stockRepo := products.NewRepository(conn)
	shopRepo := shops.NewRepository(conn)

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
	revenueService, err := ledger.NewRevenueService(conn, cfg.Revenue.FeeRate())
	if err != nil {
		logg.Error(context.Background(), "failed to create revenue service", err)
		os.Exit(1)
	}
	checkoutService, err := checkout.NewService(dbClient, ordersRepo, stockRepo, shopRepo, estimator, ledgerService, events, settlementMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}
	ordersService, err := orders.NewService(ordersRepo, dbClient, events, ledgerService, stockRepo, shopRepo, estimator, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	reportsService, err := reports.NewService(reports.NewRepository(conn), ordersRepo, ledgerService, dbClient, events, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(cfg, logg, routes.Deps{
		DB:          dbClient,
		Redis:       redisClient,
		Idempotency: redisClient,
		Gatherer:    registry,
		Checkout:    checkoutService,
		Orders:      ordersService,
		Reports:     reportsService,
		Wallets:     walletService,
		Ledger:      ledgerService,
		Revenue:     revenueService,
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(context.Background(), "addr", server.Addr), "api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(context.Background(), "api server failed", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := multierr.Combine(
		server.Shutdown(shutdownCtx),
		redisClient.Close(),
		dbClient.Close(),
	); err != nil {
		logg.Error(context.Background(), "error during shutdown", err)
		exitCode = 1
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
