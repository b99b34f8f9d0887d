// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv for .env files and
// github.com/caarlos0/env/v11 for struct-tag parsing. Each configuration type
// is parsed once per process and cached by value, so components can call
// Load for the same struct independently.
//
//	type Config struct {
//		TenancyMode string   `env:"TENANCY_MODE" envDefault:"shared"`
//		Tenants     []string `env:"TENANTS" envSeparator:","`
//		SharedDSN   string   `env:"SHARED_DSN"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// LoadEnv loads explicit .env files before parsing; later files override
// earlier ones while real environment variables always win. A failed Load is
// not cached. ResetCache and ForceReloadConfig exist for tests that change
// the environment.
//
// Errors: ErrParsingConfig (joined with the parser error), ErrEnvFile,
// ErrNilPointer and ErrConfigNotLoaded.
package config
