package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantcore/internal/api"
	"github.com/dmitrymomot/tenantcore/pkg/compliance"
	"github.com/dmitrymomot/tenantcore/pkg/httpserver"
	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/redis"
)

const readinessTimeout = 2 * time.Second

func newServeCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit API, health probes and metrics",
		Long: `Serve until SIGINT or SIGTERM:

  GET /healthz            liveness
  GET /readyz             readiness of database pools and Redis
  GET /metrics            Prometheus metrics
  GET /api/audit/entries  audit search for the tenant in X-Tenant-ID
  GET /api/audit/report   compliance report for the tenant in X-Tenant-ID

Daily compliance reports are built on REPORT_SCHEDULE unless it is "off".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(*envFiles)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			var sched *compliance.Scheduler
			if cfg.ReportSchedule != "off" {
				sched = compliance.NewScheduler(a.reporter, a.tenants,
					compliance.WithSchedule(cfg.ReportSchedule),
					compliance.WithSink(compliance.LogSink{Logger: log}),
					compliance.WithSchedulerLogger(log.With(logger.Component("scheduler"))),
				)
				if err := sched.Start(ctx); err != nil {
					return err
				}
			}

			srv := httpserver.NewFromConfig(cfg.HTTP,
				httpserver.WithLogger(log.With(logger.Component("http"))),
				httpserver.WithStopHook(func(ctx context.Context) {
					if sched == nil {
						return
					}
					if err := sched.Stop(ctx); err != nil {
						log.WarnContext(ctx, "scheduler stop", logger.Error(err))
					}
				}),
			)
			return srv.Run(ctx, a.router())
		},
	}
}

func (a *app) router() http.Handler {
	checks := map[string]httpserver.Check{
		"database": a.pools.Ping,
	}
	if a.redis != nil {
		checks["redis"] = redis.Healthcheck(a.redis)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(a.log, readinessTimeout, checks))
	r.Handle("/metrics", promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{Registry: a.promReg}))
	r.Mount("/api/audit", api.AuditRouter(api.Options{
		Tenants:  a.tenants,
		Reporter: a.reporter,
		Logger:   a.log.With(logger.Component("api")),
	}))
	return r
}
