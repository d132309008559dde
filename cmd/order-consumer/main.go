package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	ordersconsumer "github.com/angelmondragon/packfinderz-rewards/internal/consumers/orders"
	"github.com/angelmondragon/packfinderz-rewards/internal/engine"
	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/migrate"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox/idempotency"
	"github.com/angelmondragon/packfinderz-rewards/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-rewards/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "order-consumer"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "order-consumer"

	logg = logger.New(logger.Options{
		ServiceName: "order-consumer",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()
	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.OrdersSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "orders subscription", errors.New("subscription not configured"))
	}

	eng, err := engine.New(engine.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Locks:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	requireResource(ctx, logg, "rewards engine", err)

	manager, err := idempotency.NewManager(redisClient, cfg.Cron.ConsumerDedupeTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	consumer, err := ordersconsumer.NewConsumer(eng.Settlement, manager, logg)
	requireResource(ctx, logg, "orders consumer", err)

	subscriber, err := ordersconsumer.NewSubscriber(subscription, consumer, logg)
	requireResource(ctx, logg, "orders subscriber", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.OrdersSubscription,
	})
	logg.Info(runCtx, "order consumer ready")

	if err := subscriber.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "order consumer failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "order consumer shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
