package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/laundrytrack-backend/pkg/config"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations on startup when running in dev with
// LAUNDRYTRACK_AUTO_MIGRATE set. Non-postgres drivers are skipped because the
// schema is postgres-only.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"dir": DefaultDir, "driver": cfg.DB.Driver})
	if !strings.EqualFold(cfg.DB.Driver, dialect) {
		logg.Warn(ctx, "auto-migrate skipped: schema requires postgres")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	before, err := Version(sqlDB)
	if err != nil {
		return err
	}
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	after, err := Version(sqlDB)
	if err != nil {
		return err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"from_version": before,
		"to_version":   after,
	}), "dev migrations applied")
	return nil
}
