package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

// MaybeRunDev brings a dev database up to date at boot when
// PACKFINDERZ_FEATURE_AUTO_MIGRATE is on. Postgres gets the goose migrations;
// sqlite has no SQL migrations and is built from the models. Outside dev it
// does nothing.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "postgres": client.IsPostgres()})

	if !client.IsPostgres() {
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite auto-migrate: %w", err)
		}
		logg.Info(ctx, "dev schema synced from models")
		return nil
	}

	conn, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	if err := Run(ctx, conn, DefaultDir, "up"); err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "dir", DefaultDir), "dev migrations applied")
	return nil
}
