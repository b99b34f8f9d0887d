package pg

import "time"

// Config tunes every pgx pool built for a tenant. Pool sizes come from the
// tenant profile; these settings apply uniformly to all pools.
type Config struct {
	MinConns          int32         `env:"PG_MIN_CONNS" envDefault:"0"`            // MinConns is the number of connections kept open per pool.
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`  // HealthCheckPeriod is the period between health checks.
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"` // MaxConnIdleTime is the maximum amount of time a connection may be idle to be reused.
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`  // MaxConnLifetime is the maximum amount of time a connection may be reused.
	ConnectTimeout    time.Duration `env:"PG_CONNECT_TIMEOUT" envDefault:"10s"`    // ConnectTimeout bounds a single connection attempt including the ping.
	TenantSetting     string        `env:"PG_TENANT_SETTING" envDefault:"app.current_tenant"`
}
