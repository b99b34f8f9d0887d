package pg

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// logger defines the interface required for migration logging integration.
// Compatible with slog.
type logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// Migrate applies the migrations in fsys using a goose provider.
// Providers carry no global state, so pools of different tenants can be
// migrated concurrently.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, log logger) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	results, err := provider.Up(ctx)
	for _, res := range results {
		if res.Error != nil {
			log.ErrorContext(ctx, "migration failed", "version", res.Source.Version, "error", res.Error)
			continue
		}
		log.InfoContext(ctx, "migration applied", "version", res.Source.Version, "duration", res.Duration)
	}
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}
