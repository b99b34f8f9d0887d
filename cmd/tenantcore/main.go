// Command tenantcore operates the tenant-isolated audit store: it applies
// migrations, searches the audit trail, builds compliance reports and serves
// the audit API with health and metrics endpoints.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantcore/pkg/config"
	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/requestid"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

var version = "dev"

func main() {
	os.Exit(execute())
}

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "tenantcore",
		Short:         "Tenant-isolated data access with a tamper-evident audit trail",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "load environment from .env files (later files win)")

	root.AddCommand(
		newMigrateCmd(&envFiles),
		newSearchCmd(&envFiles),
		newReportCmd(&envFiles),
		newServeCmd(&envFiles),
	)
	return root
}

// setup loads configuration and the logger for a command.
func setup(envFiles []string) (Config, *slog.Logger, error) {
	if len(envFiles) > 0 {
		if err := config.LoadEnv(envFiles...); err != nil {
			return Config{}, nil, err
		}
	}
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.AppEnv, "tenantcore"),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithOutput(os.Stderr),
		logger.WithContextExtractors(tenant.LoggerExtractor(), requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)
	return cfg, log, nil
}
