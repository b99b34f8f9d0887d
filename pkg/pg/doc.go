// Package pg plugs PostgreSQL into the tenant pool registry using the pgx/v5
// driver.
//
// Opener builds one pgxpool per pool key (a tenant in strict mode, the shared
// database otherwise), verifies it with a ping and bridges it to database/sql
// through pgx's stdlib adapter. Retrying is left to pool.Registry so that the
// retry bound is configured in one place.
//
// Dialect binds the current tenant to each transaction with
//
//	SELECT set_config('app.current_tenant', $1, true)
//
// so row-level security policies of the shared database can filter on
// current_setting('app.current_tenant'). The policies themselves are managed
// outside this module.
//
// Migrate applies embedded goose migrations with a provider instance.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	registry := pool.NewRegistry(tenants, pg.NewOpener(cfg),
//		pool.WithInitializer(func(ctx context.Context, p *pool.Pool) error {
//			return pg.Migrate(ctx, p.DB(), audit.PostgresMigrations(), slog.Default())
//		}),
//	)
//
// # Error Handling
//
// IsDuplicateKeyError, IsForeignKeyViolationError, IsInsufficientPrivilegeError
// and IsTooManyConnectionsError unwrap *pgconn.PgError so callers classify
// failures without string matching.
package pg
