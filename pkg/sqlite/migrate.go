package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// Migrate applies the migrations in fsys with a goose provider.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, log *slog.Logger) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	for _, res := range results {
		if res.Error == nil {
			log.DebugContext(ctx, "migration applied", "version", res.Source.Version, "duration", res.Duration)
		}
	}
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
