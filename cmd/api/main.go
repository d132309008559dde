// Command api serves the rewards HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-rewards/api/routes"
	"github.com/angelmondragon/packfinderz-rewards/internal/engine"
	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/migrate"
	"github.com/angelmondragon/packfinderz-rewards/pkg/redis"
)

const (
	serviceKind     = "api"
	shutdownTimeout = 15 * time.Second
)

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

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down")
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

	// PORT and DYNO are set by the hosting platform.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": ":" + port, "instance": instance})

	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:        dbClient,
			Redis:     redisClient,
			Ledger:    eng.Ledger,
			Referrals: eng.Referrals,
			Affiliate: eng.Affiliate,
			Clicks:    eng.Affiliate,
			Rewards:   eng.Redemption,
			Program:   eng.Program,
			Inbound:   eng.Settlement,
			Eraser:    eng.Erasure,
			Stats:     eng.Reporting,
			Sweeper:   eng.Sweeper,
			DLQ:       eng.DeadLetters,
			Gatherer:  prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(gctx, "starting api server")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		watchReload(gctx, logg, eng)
		return nil
	})
	return g.Wait()
}

// watchReload re-reads the rewards program on SIGHUP. A bad file keeps the
// current program in place.
func watchReload(ctx context.Context, logg *logger.Logger, eng *engine.Engine) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := eng.Program.Reload(); err != nil {
				logg.Error(ctx, "program.reload_failed", err)
				continue
			}
			logg.Info(ctx, "program.reloaded")
		}
	}
}
