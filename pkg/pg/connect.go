package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrymomot/tenantcore/pkg/pool"
)

// Opener builds pgx-backed pools for the pool registry.
// Retries are the registry's job; Open makes a single attempt.
type Opener struct {
	cfg     Config
	dialect Dialect
}

// NewOpener creates an Opener with the given pool settings.
func NewOpener(cfg Config) *Opener {
	if cfg.TenantSetting == "" {
		cfg.TenantSetting = "app.current_tenant"
	}
	return &Opener{cfg: cfg, dialect: Dialect{setting: cfg.TenantSetting}}
}

// Dialect implements pool.Opener.
func (o *Opener) Dialect() pool.Dialect { return o.dialect }

// Open implements pool.Opener. The pgx pool is bridged to database/sql so the
// session layer and goose share one connection budget.
func (o *Opener) Open(ctx context.Context, dsn string, maxConns int32) (*pool.Backend, error) {
	if dsn == "" {
		return nil, ErrEmptyConnectionString
	}

	connConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	if maxConns > 0 {
		connConfig.MaxConns = maxConns
	}
	if o.cfg.MinConns > 0 && o.cfg.MinConns <= connConfig.MaxConns {
		connConfig.MinConns = o.cfg.MinConns
	}
	if o.cfg.HealthCheckPeriod > 0 {
		connConfig.HealthCheckPeriod = o.cfg.HealthCheckPeriod
	}
	if o.cfg.MaxConnIdleTime > 0 {
		connConfig.MaxConnIdleTime = o.cfg.MaxConnIdleTime
	}
	if o.cfg.MaxConnLifetime > 0 {
		connConfig.MaxConnLifetime = o.cfg.MaxConnLifetime
	}

	if o.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ConnectTimeout)
		defer cancel()
	}

	native, err := pgxpool.NewWithConfig(ctx, connConfig)
	if err != nil {
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}

	// Verify with an actual round trip to catch authentication and permission issues.
	if err := native.Ping(ctx); err != nil {
		native.Close()
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}

	db := stdlib.OpenDBFromPool(native)
	db.SetMaxOpenConns(int(connConfig.MaxConns))
	db.SetMaxIdleConns(int(connConfig.MaxConns))

	return &pool.Backend{DB: db, Release: native.Close}, nil
}
