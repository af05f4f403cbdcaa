package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-inventory/pkg/config"
	"github.com/angelmondragon/marketplace-inventory/pkg/db"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
)

// MaybeRunDev applies pending migrations at startup when the service runs in
// dev with the auto-migrate flag on. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	switch {
	case !cfg.App.IsDev(), !cfg.FeatureFlags.AutoMigrate:
		return nil
	case cfg.DB.IsSQLite():
		logg.Warn(ctx, "auto-migrate skipped: migrations target postgres")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	started := time.Now()
	if err := Run(ctx, sqlDB, DefaultDir, CommandUp, logg); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(logg.WithField(ctx, "elapsed_ms", time.Since(started).Milliseconds()), "auto-migrate finished")
	return nil
}
