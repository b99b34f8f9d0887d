package pool

import (
	"context"
	"database/sql"
)

// Dialect captures the SQL differences between backing stores.
type Dialect interface {
	// Name returns the driver name, e.g. "postgres" or "sqlite3".
	Name() string

	// Placeholder returns the bind parameter for the n-th (1-based) argument.
	Placeholder(n int) string

	// BindTenant marks the transaction with the current tenant so that
	// store-side row filtering can use it. Called once per transaction in
	// shared isolation mode.
	BindTenant(ctx context.Context, tx *sql.Tx, tenantID string) error
}

// Backend is an opened database handle produced by an Opener.
type Backend struct {
	DB *sql.DB

	// Release frees resources owned alongside DB (e.g. a native driver pool).
	// Optional; called after DB is closed.
	Release func()
}

// Opener builds a database handle for a DSN. Open must verify connectivity
// (e.g. by pinging) so that failures surface as retryable errors.
type Opener interface {
	Open(ctx context.Context, dsn string, maxConns int32) (*Backend, error)
	Dialect() Dialect
}
