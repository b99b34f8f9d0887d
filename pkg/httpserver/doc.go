// Package httpserver runs the operational HTTP endpoints of a tenantcore
// process (health probes, metrics) with graceful shutdown.
//
// Run binds the listener synchronously, so address conflicts surface as
// ErrStart before any start hook runs, then serves until the context is
// cancelled or Shutdown is called. Shutdown drains in-flight requests within
// the configured timeout and runs stop hooks; repeated calls are no-ops.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.LivenessHandler())
//	r.Get("/readyz", httpserver.ReadinessHandler(log, 2*time.Second, map[string]httpserver.Check{
//		"redis": redis.Healthcheck(client),
//	}))
//	err := srv.Run(ctx, r)
//
// Signal handling is left to the caller, typically via signal.NotifyContext.
package httpserver
