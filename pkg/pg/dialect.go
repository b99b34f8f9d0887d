package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Dialect is the PostgreSQL SQL dialect.
type Dialect struct {
	setting string
}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// BindTenant sets a transaction-local setting that row-level security
// policies read with current_setting('app.current_tenant').
func (d Dialect) BindTenant(ctx context.Context, tx *sql.Tx, tenantID string) error {
	setting := d.setting
	if setting == "" {
		setting = "app.current_tenant"
	}
	if _, err := tx.ExecContext(ctx, "SELECT set_config($1, $2, true)", setting, tenantID); err != nil {
		return fmt.Errorf("bind tenant: %w", err)
	}
	return nil
}
