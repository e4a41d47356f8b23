package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avelarsoto/tianguis-backend/internal/cron"
	"github.com/avelarsoto/tianguis-backend/internal/gateway"
	"github.com/avelarsoto/tianguis-backend/internal/orders"
	"github.com/avelarsoto/tianguis-backend/internal/payouts"
	"github.com/avelarsoto/tianguis-backend/internal/stock"
	"github.com/avelarsoto/tianguis-backend/pkg/config"
	"github.com/avelarsoto/tianguis-backend/pkg/db"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
	"github.com/avelarsoto/tianguis-backend/pkg/metrics"
	"github.com/avelarsoto/tianguis-backend/pkg/migrate"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox"
	"github.com/avelarsoto/tianguis-backend/pkg/redis"
	"github.com/avelarsoto/tianguis-backend/pkg/stripe"
)

const lockKeyFormat = "tg:cron-worker:lock:%s"

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

	cfg.Service.Kind = "cron-worker"

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

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

	stockRepo := stock.NewRepository(dbClient.DB())
	stockService, err := stock.NewService(stockRepo, dbClient, outboxService, logg)
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
	payoutsService, err := payouts.NewService(payouts.NewRepository(dbClient.DB()), ordersRepo, ordersService, dbClient, paymentGateway, outboxService, sweepMetrics, payouts.Config{
		Workers:         cfg.Escrow.SweepWorkers,
		BatchSize:       cfg.Escrow.SweepBatchSize,
		TransferTimeout: cfg.Escrow.TransferTimeout,
	}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewEscrowSweepJob(cron.EscrowSweepJobParams{
		Logger:  logg,
		Sweeper: payoutsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow sweep job", err)
		os.Exit(1)
	}

	stockAuditJob, err := cron.NewStockAuditJob(cron.StockAuditJobParams{
		Logger:  logg,
		Levels:  stockRepo,
		Rebuild: stockService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stock audit job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Escrow.SweepInterval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(sweepJob, stockAuditJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Escrow.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
