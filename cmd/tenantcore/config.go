package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/tenantcore/pkg/audit"
	"github.com/dmitrymomot/tenantcore/pkg/config"
	"github.com/dmitrymomot/tenantcore/pkg/httpserver"
	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/pg"
	"github.com/dmitrymomot/tenantcore/pkg/redis"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"
)

// Config is the process configuration read from the environment.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`

	TenancyMode        string            `env:"TENANCY_MODE" envDefault:"shared"`
	DBDriver           string            `env:"DB_DRIVER" envDefault:"postgres"`
	SharedDSN          string            `env:"SHARED_DSN"`
	TenantDSNTemplate  string            `env:"TENANT_DSN_TEMPLATE"`
	Tenants            []string          `env:"TENANTS" envSeparator:","`
	TenantDSNOverrides map[string]string `env:"TENANT_DSN_OVERRIDES" envSeparator:";" envKeyValSeparator:"="`
	DefaultTenant      string            `env:"DEFAULT_TENANT"`
	TenantPoolMaxConns int32             `env:"TENANT_POOL_MAX_CONNS" envDefault:"5"`
	SharedPoolMaxConns int32             `env:"SHARED_POOL_MAX_CONNS" envDefault:"20"`
	RetryAttempts      int               `env:"DB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval      time.Duration     `env:"DB_RETRY_INTERVAL" envDefault:"2s"`
	AcquireTimeout     time.Duration     `env:"POOL_ACQUIRE_TIMEOUT" envDefault:"5s"`

	AuditSigningKey    string `env:"AUDIT_SIGNING_KEY"`
	AuditFailurePolicy string `env:"AUDIT_FAILURE_POLICY" envDefault:"compensate"`

	// ReportSchedule is a cron spec; "off" disables scheduled reports.
	ReportSchedule  string        `env:"REPORT_SCHEDULE" envDefault:"@daily"`
	ReportCacheSize int           `env:"REPORT_CACHE_SIZE" envDefault:"256"`
	ReportCacheTTL  time.Duration `env:"REPORT_CACHE_TTL" envDefault:"24h"`

	// ActorTable names the tenant table resolving actor display names in
	// reports; empty reports raw actor ids.
	ActorTable      string `env:"ACTOR_DIRECTORY_TABLE"`
	ActorNameColumn string `env:"ACTOR_DIRECTORY_COLUMN" envDefault:"name"`

	Postgres pg.Config
	Redis    redis.Config
	HTTP     httpserver.Config
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c Config) mode() tenant.IsolationMode {
	m, _ := tenant.ParseIsolationMode(c.TenancyMode)
	return m
}

func (c Config) validate() error {
	mode, err := tenant.ParseIsolationMode(c.TenancyMode)
	if err != nil {
		return errors.Join(errInvalidConfig, err)
	}
	if c.DBDriver != driverPostgres && c.DBDriver != driverSQLite {
		return fmt.Errorf("%w: DB_DRIVER must be %q or %q, got %q", errInvalidConfig, driverPostgres, driverSQLite, c.DBDriver)
	}
	switch mode {
	case tenant.ModeShared:
		if c.SharedDSN == "" {
			return fmt.Errorf("%w: SHARED_DSN is required in shared mode", errInvalidConfig)
		}
	case tenant.ModeStrict:
		if c.TenantDSNTemplate == "" && len(c.TenantDSNOverrides) == 0 {
			return fmt.Errorf("%w: TENANT_DSN_TEMPLATE or TENANT_DSN_OVERRIDES is required in strict mode", errInvalidConfig)
		}
	}
	if _, err := audit.ParsePolicy(c.AuditFailurePolicy); err != nil {
		return errors.Join(errInvalidConfig, err)
	}
	if c.LogLevel != "" {
		if _, err := logger.ParseLevel(c.LogLevel); err != nil {
			return errors.Join(errInvalidConfig, err)
		}
	}
	if len(c.AuditSigningKey) > 64 {
		return fmt.Errorf("%w: AUDIT_SIGNING_KEY must be at most 64 bytes", errInvalidConfig)
	}
	return nil
}
