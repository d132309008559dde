// Command cron-worker runs the periodic maintenance jobs: credit expiry and
// outbox retention. Replicas coordinate through a Redis lock so each cycle
// runs on one instance only.
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

	"github.com/angelmondragon/packfinderz-rewards/internal/cron"
	"github.com/angelmondragon/packfinderz-rewards/internal/engine"
	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/metrics"
	"github.com/angelmondragon/packfinderz-rewards/pkg/migrate"
	"github.com/angelmondragon/packfinderz-rewards/pkg/redis"
	"github.com/angelmondragon/packfinderz-rewards/pkg/redislock"
)

const serviceKind = "cron-worker"

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer redisClient.Close()

	eng, err := engine.New(engine.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Locks:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return fmt.Errorf("build rewards engine: %w", err)
	}

	jobs, err := buildJobs(cfg, logg, eng)
	if err != nil {
		return err
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := redislock.New(redisClient, redisClient.LockKey(serviceKind, env), 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func buildJobs(cfg *config.Config, logg *logger.Logger, eng *engine.Engine) ([]cron.Job, error) {
	expiry, err := cron.NewExpirySweepJob(cron.ExpirySweepJobParams{Logger: logg, Sweeper: eng.Sweeper})
	if err != nil {
		return nil, fmt.Errorf("expiry sweep job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: eng.Outbox,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return []cron.Job{expiry, retention}, nil
}
