package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/tenantcore/pkg/audit"
	"github.com/dmitrymomot/tenantcore/pkg/clientip"
	"github.com/dmitrymomot/tenantcore/pkg/compliance"
	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/metrics"
	"github.com/dmitrymomot/tenantcore/pkg/pg"
	"github.com/dmitrymomot/tenantcore/pkg/pool"
	"github.com/dmitrymomot/tenantcore/pkg/redis"
	"github.com/dmitrymomot/tenantcore/pkg/session"
	"github.com/dmitrymomot/tenantcore/pkg/sqlite"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// app is the composition root shared by all commands.
type app struct {
	cfg     Config
	log     *slog.Logger
	promReg *prometheus.Registry
	metrics *metrics.Metrics

	tenants     *tenant.Registry
	pools       *pool.Registry
	sessions    *session.Manager
	recorder    *audit.Recorder
	interceptor *audit.Interceptor
	reporter    *compliance.Reporter
	redis       *goredis.Client
}

func newApp(ctx context.Context, cfg Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, promReg: prometheus.NewRegistry()}
	a.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.promReg)

	catalog, err := tenant.NewStaticCatalog(cfg.Tenants, cfg.TenantDSNOverrides)
	if err != nil {
		return nil, errors.Join(errInvalidConfig, err)
	}
	a.tenants = tenant.NewRegistry(catalog,
		tenant.WithMode(cfg.mode()),
		tenant.WithDSNTemplate(cfg.TenantDSNTemplate),
		tenant.WithSharedDSN(cfg.SharedDSN),
		tenant.WithPoolLimits(cfg.TenantPoolMaxConns, cfg.SharedPoolMaxConns),
		tenant.WithDefaultTenant(tenant.ID(cfg.DefaultTenant)),
	)

	opener, migrate := a.driver()
	a.pools = pool.NewRegistry(a.tenants, opener,
		pool.WithRetry(cfg.RetryAttempts, cfg.RetryInterval),
		pool.WithAcquireTimeout(cfg.AcquireTimeout),
		pool.WithInitializer(migrate),
		pool.WithLogger(log.With(logger.Component("pool"))),
		pool.WithMetrics(a.metrics),
	)
	if err := a.pools.Init(ctx); err != nil {
		return nil, err
	}

	a.sessions = session.NewManager(a.pools,
		session.WithLogger(log.With(logger.Component("session"))),
		session.WithMetrics(a.metrics),
	)

	if err := a.buildAudit(); err != nil {
		a.close(context.WithoutCancel(ctx))
		return nil, err
	}
	if err := a.buildReporter(ctx); err != nil {
		a.close(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

// driver returns the opener and the pool initializer applying the audit_log
// migrations of the configured backend.
func (a *app) driver() (pool.Opener, pool.Initializer) {
	log := a.log.With(logger.Component("migrate"))
	if a.cfg.DBDriver == driverSQLite {
		return sqlite.NewOpener(), func(ctx context.Context, p *pool.Pool) error {
			return sqlite.Migrate(ctx, p.DB(), audit.SQLiteMigrations(), log.With(logger.PoolKey(p.Key())))
		}
	}
	return pg.NewOpener(a.cfg.Postgres), func(ctx context.Context, p *pool.Pool) error {
		return pg.Migrate(ctx, p.DB(), audit.PostgresMigrations(), log.With(logger.PoolKey(p.Key())))
	}
}

func (a *app) buildAudit() error {
	signer, err := audit.NewSigner([]byte(a.cfg.AuditSigningKey))
	if err != nil {
		return errors.Join(errInvalidConfig, err)
	}
	if a.cfg.AuditSigningKey == "" {
		a.log.Warn("AUDIT_SIGNING_KEY is empty, audit entries are hashed without a key")
	}
	policy, err := audit.ParsePolicy(a.cfg.AuditFailurePolicy)
	if err != nil {
		return errors.Join(errInvalidConfig, err)
	}

	log := a.log.With(logger.Component("audit"))
	a.recorder = audit.NewRecorder(audit.NewSQLStore(), a.sessions,
		audit.WithSigner(signer),
		audit.WithIPExtractor(clientip.IPExtractor),
		audit.WithUserAgentExtractor(clientip.UserAgentExtractor),
		audit.WithLogger(log),
		audit.WithMetrics(a.metrics),
	)
	// Snapshotters depend on the business schema and are registered by the
	// code embedding the app.
	a.interceptor = audit.NewInterceptor(a.recorder,
		audit.WithPolicy(policy),
		audit.WithInterceptorLogger(log),
	)
	return nil
}

// buildReporter reads through a Manager of its own: on Postgres the report
// queries share one repeatable-read snapshot.
func (a *app) buildReporter(ctx context.Context) error {
	opts := []session.Option{session.WithLogger(a.log.With(logger.Component("report")))}
	if a.cfg.DBDriver == driverPostgres {
		opts = append(opts, session.WithTxOptions(&sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}))
	}
	sessions := session.NewManager(a.pools, opts...)

	var cache compliance.ReportCache = compliance.NewMemoryCache(a.cfg.ReportCacheSize, a.cfg.ReportCacheTTL)
	if a.cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, a.cfg.Redis)
		if err != nil {
			return fmt.Errorf("report cache: %w", err)
		}
		a.redis = client
		cache = compliance.NewRedisCache(client, a.cfg.Redis.Key("reports"), a.cfg.ReportCacheTTL)
	}

	ropts := []compliance.Option{
		compliance.WithReportCache(cache),
		compliance.WithLogger(a.log.With(logger.Component("report"))),
	}
	if a.cfg.ActorTable != "" {
		ropts = append(ropts, compliance.WithActorDirectory(compliance.TableDirectory{
			Table:  a.cfg.ActorTable,
			Column: a.cfg.ActorNameColumn,
		}))
	}
	a.reporter = compliance.NewReporter(sessions, ropts...)
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WarnContext(ctx, "close redis", logger.Error(err))
		}
	}
	if err := a.pools.Shutdown(ctx); err != nil {
		a.log.WarnContext(ctx, "close pools", logger.Error(err))
	}
}
