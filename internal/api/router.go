// Package api exposes the audit trail of the resolved tenant over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/tenantcore/pkg/clientip"
	"github.com/dmitrymomot/tenantcore/pkg/compliance"
	"github.com/dmitrymomot/tenantcore/pkg/dataerr"
	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/requestid"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// Options configures the audit router.
type Options struct {
	Tenants  *tenant.Registry
	Reporter *compliance.Reporter
	Logger   *slog.Logger
}

// AuditRouter serves the tenant's audit entries and compliance reports:
//
//	GET /entries  search, see parseFilters for query parameters
//	GET /report   ?start=&end=&entity_type=
//
// The tenant comes from the request context or the X-Tenant-ID header.
func AuditRouter(opts Options) chi.Router {
	if opts.Tenants == nil || opts.Reporter == nil {
		panic("api: tenants and reporter are required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	h := &auditHandler{reporter: opts.Reporter, logger: log}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware)
	r.Use(tenant.Middleware(opts.Tenants,
		tenant.WithErrorHandler(dataerr.WriteError),
		tenant.WithLogger(log),
	))

	r.Get("/entries", h.search)
	r.Get("/report", h.report)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		dataerr.WriteError(w, r, dataerr.NotFound)
	})
	return r
}
