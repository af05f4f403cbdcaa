package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
)

const DefaultDir = "pkg/migrate/migrations"

// Commands accepted by Run.
const (
	CommandUp     = "up"
	CommandDown   = "down"
	CommandStatus = "status"
)

var (
	errNoDB  = errors.New("sql db is required")
	errNoDir = errors.New("migrations dir is required")
)

// newProvider reads migrations from dir. They use Postgres types (uuid,
// jsonb, enums), so sqlite schemas are created by tests directly.
func newProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errNoDB
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errNoDir
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("load migrations from %s: %w", dir, err)
	}
	return provider, nil
}

// Run applies one goose command to db and logs each migration it touched.
// The provider is not closed because db belongs to the caller.
func Run(ctx context.Context, db *sql.DB, dir, command string, logg *logger.Logger) error {
	switch command {
	case CommandUp, CommandDown, CommandStatus:
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	provider, err := newProvider(db, dir)
	if err != nil {
		return err
	}

	switch command {
	case CommandUp:
		results, err := provider.Up(ctx)
		logResults(ctx, logg, results...)
		if err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
	case CommandDown:
		result, err := provider.Down(ctx)
		if result != nil {
			logResults(ctx, logg, result)
		}
		if err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
	case CommandStatus:
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("goose status: %w", err)
		}
		logStatuses(ctx, logg, statuses)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until target is the applied
// version. target uses the YYYYMMDDHHMMSS form of the migration filenames.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, target string, logg *logger.Logger) error {
	version, err := parseVersion(target)
	if err != nil {
		return err
	}
	provider, err := newProvider(db, dir)
	if err != nil {
		return err
	}

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"current": current, "target": version}), "migrating to version")
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil
	case current < version:
		results, err = provider.UpTo(ctx, version)
	default:
		results, err = provider.DownTo(ctx, version)
	}
	logResults(ctx, logg, results...)
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, version, err)
	}
	return nil
}

func parseVersion(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("target version is required")
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return 0, fmt.Errorf("invalid version %q, expected YYYYMMDDHHMMSS", raw)
	}
	return version, nil
}

func logResults(ctx context.Context, logg *logger.Logger, results ...*goose.MigrationResult) {
	if logg == nil {
		return
	}
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fields := map[string]any{
			"version":    r.Source.Version,
			"file":       filepath.Base(r.Source.Path),
			"direction":  r.Direction,
			"elapsed_ms": r.Duration.Milliseconds(),
		}
		if r.Error != nil {
			logg.Error(logg.WithFields(ctx, fields), "migration failed", r.Error)
			continue
		}
		logg.Info(logg.WithFields(ctx, fields), "migration applied")
	}
}

func logStatuses(ctx context.Context, logg *logger.Logger, statuses []*goose.MigrationStatus) {
	if logg == nil {
		return
	}
	for _, s := range statuses {
		if s == nil || s.Source == nil {
			continue
		}
		fields := map[string]any{
			"version": s.Source.Version,
			"file":    filepath.Base(s.Source.Path),
			"state":   string(s.State),
		}
		if !s.AppliedAt.IsZero() {
			fields["applied_at"] = s.AppliedAt
		}
		logg.Info(logg.WithFields(ctx, fields), "migration status")
	}
}
