package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/avelarsoto/tianguis-backend/pkg/config"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox/idempotency"
	"github.com/avelarsoto/tianguis-backend/pkg/pubsub"
	"github.com/avelarsoto/tianguis-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-consumer"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-consumer"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-consumer",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	guard, err := idempotency.NewManager(redisClient, defaultProcessedTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create processed guard", err)
		os.Exit(1)
	}

	sub := pubsubClient.OrdersSubscription()
	if sub == nil {
		logg.Error(context.Background(), "orders subscription is not configured", errors.New("missing subscription"))
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		Subscriber: sub,
		Guard:      guard,
		Decoders:   newDecoderRegistry(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "outbox-consumer",
	})
	logg.Info(ctx, "starting outbox consumer")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox consumer stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox consumer shutting down gracefully")
}
