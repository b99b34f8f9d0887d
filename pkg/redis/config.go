package redis

import (
	"strings"
	"time"
)

// Config describes a Redis connection. An empty URL means Redis is not used.
type Config struct {
	// ConnectionURL has the form "redis://:password@localhost:6379/0".
	ConnectionURL  string        `env:"REDIS_URL"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`

	// KeyPrefix namespaces every key written by this process.
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"tenantcore"`
}

// Enabled reports whether a connection URL is configured.
func (c Config) Enabled() bool { return c.ConnectionURL != "" }

// Key joins parts under KeyPrefix with ":" separators.
func (c Config) Key(parts ...string) string {
	if c.KeyPrefix == "" {
		return strings.Join(parts, ":")
	}
	return c.KeyPrefix + ":" + strings.Join(parts, ":")
}
