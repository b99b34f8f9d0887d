package tenant

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/tenantcore/pkg/logger"
)

type (
	tenantKey   struct{}
	overrideKey struct{}
	actorKey    struct{}
)

// Actor is an authenticated principal. TenantID is set when the credentials
// themselves are bound to a tenant.
type Actor struct {
	ID       string
	TenantID ID
}

// WithActor stores the authenticated actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// WithTenant attaches a resolved tenant to the context.
func WithTenant(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, tenantKey{}, id)
}

// FromContext returns the tenant attached by WithTenant.
func FromContext(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(tenantKey{}).(ID)
	return id, ok && id != ""
}

// WithOverride records a transport level tenant override (e.g. a header value).
func WithOverride(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, overrideKey{}, id)
}

// OverrideFromContext returns the override recorded by WithOverride.
func OverrideFromContext(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(overrideKey{}).(ID)
	return id, ok && id != ""
}

// LoggerExtractor returns a logger context extractor adding tenant_id to log records.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := FromContext(ctx); ok {
			return logger.TenantID(id.String()), true
		}
		return slog.Attr{}, false
	}
}

// IDExtractor adapts FromContext to the (string, bool) extractor shape used by
// the audit recorder.
func IDExtractor(ctx context.Context) (string, bool) {
	id, ok := FromContext(ctx)
	return id.String(), ok
}

// ActorIDExtractor returns the authenticated actor id, if any.
func ActorIDExtractor(ctx context.Context) (string, bool) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return "", false
	}
	return actor.ID, true
}
