package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

const migrateConcurrency = 4

func newMigrateCmd(envFiles *[]string) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the audit_log migrations",
		Long: `Apply the audit_log migrations to the shared database (shared mode) or to
every tenant database (strict mode).

Examples:
  # Migrate all tenants from TENANTS
  tenantcore migrate

  # Migrate selected tenants only
  tenantcore migrate --tenant acme --tenant globex`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(*envFiles)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			ids := make([]tenant.ID, 0, len(only))
			for _, id := range only {
				ids = append(ids, tenant.ID(id))
			}
			return runMigrate(ctx, a, ids, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&only, "tenant", nil, "tenant to migrate (repeatable; default all)")
	return cmd
}

// runMigrate relies on the pool initializer: building a pool applies pending
// migrations, so acquiring each tenant's pool migrates it.
func runMigrate(ctx context.Context, a *app, ids []tenant.ID, out io.Writer) error {
	if a.tenants.Mode() == tenant.ModeShared {
		// The shared pool was built and migrated by newApp.
		_, err := fmt.Fprintln(out, "shared\tok")
		return err
	}

	if len(ids) == 0 {
		ids = a.tenants.Tenants()
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(migrateConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := a.pools.Acquire(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
				fmt.Fprintf(out, "%s\tfailed\n", id)
				return nil
			}
			fmt.Fprintf(out, "%s\tok\n", id)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
