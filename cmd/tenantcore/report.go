package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

func newReportCmd(envFiles *[]string) *cobra.Command {
	var tenantID, start, end, entityType string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build a compliance report for a tenant",
		Long: `Aggregate a tenant's audit trail over [start, end) and print the report as JSON.
Without --start and --end the previous UTC day is reported.

Examples:
  tenantcore report --tenant acme
  tenantcore report --tenant acme --start 2026-03-01T00:00:00Z --end 2026-04-01T00:00:00Z --entity-type workflow`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := parseTimeFlag("start", start)
			if err != nil {
				return err
			}
			to, err := parseTimeFlag("end", end)
			if err != nil {
				return err
			}
			if from.IsZero() && to.IsZero() {
				from, to = previousDay(time.Now())
			}

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

			return runReport(ctx, a, tenant.ID(tenantID), from, to, entityType, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&start, "start", "", "window start, RFC 3339 (inclusive)")
	cmd.Flags().StringVar(&end, "end", "", "window end, RFC 3339 (exclusive)")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "limit the report to one entity type")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func runReport(ctx context.Context, a *app, id tenant.ID, start, end time.Time, entityType string, out io.Writer) error {
	rep, err := a.reporter.Report(ctx, id, start, end, entityType)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// previousDay returns the UTC day before now as [start, end).
func previousDay(now time.Time) (time.Time, time.Time) {
	end := now.UTC().Truncate(24 * time.Hour)
	return end.Add(-24 * time.Hour), end
}
