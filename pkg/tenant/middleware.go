package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/tenantcore/pkg/logger"
)

// DefaultOverrideHeader is the header read for explicit tenant overrides.
const DefaultOverrideHeader = "X-Tenant-ID"

// ErrorHandler handles errors that occur during tenant resolution.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type middlewareConfig struct {
	header       string
	skipPaths    []string
	errorHandler ErrorHandler
	logger       *slog.Logger
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithOverrideHeader changes the header used for tenant overrides.
func WithOverrideHeader(name string) MiddlewareOption {
	return func(c *middlewareConfig) {
		if name != "" {
			c.header = name
		}
	}
}

// WithSkipPaths sets path prefixes that bypass tenant resolution.
func WithSkipPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.skipPaths = append(c.skipPaths, paths...)
	}
}

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(h ErrorHandler) MiddlewareOption {
	return func(c *middlewareConfig) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

// WithLogger sets the logger used to report rejected requests.
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Middleware resolves the tenant of every request through the registry and
// attaches it to the request context. The override header is only consulted
// when neither credentials nor upstream middleware supplied a tenant.
func Middleware(reg *Registry, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		header:       DefaultOverrideHeader,
		errorHandler: defaultErrorHandler,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := r.Context()
			if v := strings.TrimSpace(r.Header.Get(cfg.header)); v != "" {
				ctx = WithOverride(ctx, ID(v))
			}

			id, err := reg.Resolve(ctx)
			if err != nil {
				cfg.logger.WarnContext(ctx, "tenant resolution failed",
					slog.String("path", r.URL.Path),
					logger.Error(err),
				)
				cfg.errorHandler(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(ctx, id)))
		})
	}
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidIdentifier):
		http.Error(w, "Invalid tenant identifier", http.StatusBadRequest)
	case errors.Is(err, ErrTenantNotFound):
		http.Error(w, "Tenant not found", http.StatusNotFound)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
