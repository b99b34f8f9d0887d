package tenant

import (
	"context"
	"fmt"
	"sync"
)

// Default pool bounds. Strict-mode pools are deliberately smaller than the
// shared pool so that total connections stay bounded with many tenants.
const (
	DefaultTenantMaxConns int32 = 5
	DefaultSharedMaxConns int32 = 20
)

// Registry resolves tenants from request context and hands out their profiles.
type Registry struct {
	catalog        Catalog
	mode           IsolationMode
	defaultTenant  ID
	dsnTemplate    string
	sharedDSN      string
	tenantMaxConns int32
	sharedMaxConns int32

	mu       sync.Mutex
	profiles map[ID]*Profile
}

// Option configures a Registry.
type Option func(*Registry)

// WithMode sets the isolation mode. Defaults to ModeShared.
func WithMode(mode IsolationMode) Option {
	return func(r *Registry) {
		r.mode = mode
	}
}

// WithDefaultTenant sets the tenant used when nothing else resolves.
func WithDefaultTenant(id ID) Option {
	return func(r *Registry) {
		r.defaultTenant = id
	}
}

// WithDSNTemplate sets the strict-mode DSN template, e.g.
// "postgres://app@db/tenant_{tenant}".
func WithDSNTemplate(template string) Option {
	return func(r *Registry) {
		r.dsnTemplate = template
	}
}

// WithSharedDSN sets the DSN of the shared database.
func WithSharedDSN(dsn string) Option {
	return func(r *Registry) {
		r.sharedDSN = dsn
	}
}

// WithPoolLimits sets the per-tenant and shared pool size bounds.
// Non-positive values keep the defaults.
func WithPoolLimits(tenantMax, sharedMax int32) Option {
	return func(r *Registry) {
		if tenantMax > 0 {
			r.tenantMaxConns = tenantMax
		}
		if sharedMax > 0 {
			r.sharedMaxConns = sharedMax
		}
	}
}

// NewRegistry creates a registry backed by the given catalog.
func NewRegistry(catalog Catalog, opts ...Option) *Registry {
	if catalog == nil {
		panic("tenant: catalog cannot be nil")
	}

	r := &Registry{
		catalog:        catalog,
		mode:           ModeShared,
		tenantMaxConns: DefaultTenantMaxConns,
		sharedMaxConns: DefaultSharedMaxConns,
		profiles:       make(map[ID]*Profile),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the configured isolation mode.
func (r *Registry) Mode() IsolationMode { return r.mode }

// Tenants returns all catalog tenants.
func (r *Registry) Tenants() []ID { return r.catalog.IDs() }

// SharedProfile returns the profile of the shared database, used to warm the
// shared pool at startup before any tenant is referenced.
func (r *Registry) SharedProfile() (*Profile, error) {
	if r.sharedDSN == "" {
		return nil, fmt.Errorf("%w: shared database", ErrMissingDSN)
	}
	return &Profile{Mode: ModeShared, DSN: r.sharedDSN, MaxConns: r.sharedMaxConns}, nil
}

// Resolve determines the tenant of the current operation. Sources are checked
// in order and the first one present wins:
//
//  1. the tenant bound to the authenticated actor's credentials
//  2. the tenant attached to the context by upstream middleware
//  3. a transport level override (e.g. X-Tenant-ID header)
//  4. the configured default tenant
//
// The winning id must exist in the catalog, otherwise ErrTenantNotFound is
// returned. Resolve performs no I/O.
func (r *Registry) Resolve(ctx context.Context) (ID, error) {
	id, source := r.candidate(ctx)
	if id == "" {
		return "", fmt.Errorf("%w: no tenant in request context", ErrTenantNotFound)
	}
	if err := id.Validate(); err != nil {
		return "", err
	}
	if _, ok := r.catalog.Lookup(id); !ok {
		return "", fmt.Errorf("%w: %q (from %s)", ErrTenantNotFound, id, source)
	}
	return id, nil
}

func (r *Registry) candidate(ctx context.Context) (ID, string) {
	if actor, ok := ActorFromContext(ctx); ok && actor.TenantID != "" {
		return actor.TenantID, "credentials"
	}
	if id, ok := FromContext(ctx); ok {
		return id, "context"
	}
	if id, ok := OverrideFromContext(ctx); ok {
		return id, "override"
	}
	return r.defaultTenant, "default"
}

// Profile returns the immutable profile of a catalog tenant, building it on
// first reference.
func (r *Registry) Profile(id ID) (*Profile, error) {
	dsn, ok := r.catalog.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTenantNotFound, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.profiles[id]; ok {
		return p, nil
	}

	p := &Profile{ID: id, Mode: r.mode}
	switch r.mode {
	case ModeStrict:
		p.MaxConns = r.tenantMaxConns
		p.DSN = dsn
		if p.DSN == "" && r.dsnTemplate != "" {
			p.DSN = RenderDSN(r.dsnTemplate, id)
		}
	default:
		p.MaxConns = r.sharedMaxConns
		p.DSN = r.sharedDSN
	}
	if p.DSN == "" {
		return nil, fmt.Errorf("%w: %q", ErrMissingDSN, id)
	}

	r.profiles[id] = p
	return p, nil
}
