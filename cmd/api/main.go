package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avelarsoto/tianguis-backend/api/routes"
	"github.com/avelarsoto/tianguis-backend/internal/gateway"
	"github.com/avelarsoto/tianguis-backend/internal/orders"
	"github.com/avelarsoto/tianguis-backend/internal/payouts"
	"github.com/avelarsoto/tianguis-backend/internal/stock"
	stripewebhook "github.com/avelarsoto/tianguis-backend/internal/webhooks/stripe"
	"github.com/avelarsoto/tianguis-backend/internal/withdrawals"
	"github.com/avelarsoto/tianguis-backend/pkg/config"
	"github.com/avelarsoto/tianguis-backend/pkg/db"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
	"github.com/avelarsoto/tianguis-backend/pkg/metrics"
	"github.com/avelarsoto/tianguis-backend/pkg/migrate"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox"
	"github.com/avelarsoto/tianguis-backend/pkg/redis"
	"github.com/avelarsoto/tianguis-backend/pkg/stripe"
)

const stripeWebhookGuardTTL = 24 * time.Hour

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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	paymentGateway, err := gateway.NewStripeGateway(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	stockService, err := stock.NewService(stock.NewRepository(dbClient.DB()), dbClient, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stock service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, stockService, paymentGateway, orders.Config{
		EscrowWindow:      cfg.Escrow.Window(),
		CommissionRateBps: cfg.Commission.DefaultRateBps,
	}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	sweepMetrics := metrics.NewSweepMetrics(prometheus.DefaultRegisterer)
	payoutsRepo := payouts.NewRepository(dbClient.DB())
	payoutsService, err := payouts.NewService(payoutsRepo, ordersRepo, ordersService, dbClient, paymentGateway, outboxService, sweepMetrics, payouts.Config{
		Workers:         cfg.Escrow.SweepWorkers,
		BatchSize:       cfg.Escrow.SweepBatchSize,
		TransferTimeout: cfg.Escrow.TransferTimeout,
	}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	withdrawalsService, err := withdrawals.NewService(withdrawals.NewRepository(dbClient.DB()), payoutsRepo, dbClient, paymentGateway, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create withdrawals service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders: ordersService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, stripeWebhookGuardTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:             cfg,
			Logger:             logg,
			DB:                 dbClient,
			Redis:              redisClient,
			Gatherer:           prometheus.DefaultGatherer,
			Orders:             ordersService,
			Stock:              stockService,
			Payouts:            payoutsService,
			Withdrawals:        withdrawalsService,
			StripeClient:       stripeClient,
			StripeWebhook:      webhookService,
			StripeWebhookGuard: webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
