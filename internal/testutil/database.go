// Package testutil provides SQLite-backed tenant databases for tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrymomot/tenantcore/pkg/audit"
	"github.com/dmitrymomot/tenantcore/pkg/pool"
	"github.com/dmitrymomot/tenantcore/pkg/session"
	"github.com/dmitrymomot/tenantcore/pkg/sqlite"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// DomainSchema creates the business tables used across tests.
var DomainSchema = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		name        TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'Draft',
		responsible TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id        TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name      TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS plants (
		id        TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name      TEXT NOT NULL,
		capacity  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id        TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name      TEXT NOT NULL,
		email     TEXT NOT NULL DEFAULT ''
	)`,
}

// DB is a set of SQLite tenant databases behind a pool registry.
type DB struct {
	Tenants  *tenant.Registry
	Pools    *pool.Registry
	Sessions *session.Manager
}

// NewDB creates SQLite databases for the given tenants in a temp directory.
// Every pool gets the audit_log migrations and DomainSchema applied.
func NewDB(t *testing.T, mode tenant.IsolationMode, ids ...string) *DB {
	t.Helper()

	catalog, err := tenant.NewStaticCatalog(ids, nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	dir := t.TempDir()
	tenants := tenant.NewRegistry(catalog,
		tenant.WithMode(mode),
		tenant.WithDSNTemplate(filepath.Join(dir, "{tenant}.db")),
		tenant.WithSharedDSN(filepath.Join(dir, "shared.db")),
	)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pools := pool.NewRegistry(tenants, sqlite.NewOpener(),
		pool.WithRetry(1, 0),
		pool.WithAcquireTimeout(5*time.Second),
		pool.WithLogger(log),
		pool.WithInitializer(func(ctx context.Context, p *pool.Pool) error {
			if err := sqlite.Migrate(ctx, p.DB(), audit.SQLiteMigrations(), log); err != nil {
				return err
			}
			for _, ddl := range DomainSchema {
				if _, err := p.DB().ExecContext(ctx, ddl); err != nil {
					return err
				}
			}
			return nil
		}),
	)
	t.Cleanup(func() { _ = pools.Shutdown(context.Background()) })

	if err := pools.Init(context.Background()); err != nil {
		t.Fatalf("init pools: %v", err)
	}

	return &DB{
		Tenants:  tenants,
		Pools:    pools,
		Sessions: session.NewManager(pools, session.WithLogger(log)),
	}
}

// Exec runs fn in a committed unit of work and fails the test on error.
func (d *DB) Exec(t *testing.T, id tenant.ID, fn func(ctx context.Context, s *session.Scope) error) {
	t.Helper()
	if err := d.Sessions.Run(context.Background(), id, fn); err != nil {
		t.Fatalf("unit of work for %s: %v", id, err)
	}
}

// Entries returns every audit entry of the tenant, oldest first.
func (d *DB) Entries(t *testing.T, id tenant.ID) []audit.Entry {
	t.Helper()
	entries, err := session.Do(context.Background(), d.Sessions, id, func(ctx context.Context, s *session.Scope) ([]audit.Entry, error) {
		return audit.NewSQLStore().Find(ctx, s, session.Query{OrderBy: []string{audit.ColumnSeq}})
	})
	if err != nil {
		t.Fatalf("read audit log of %s: %v", id, err)
	}
	return entries
}
