// Package tenant resolves which tenant an operation belongs to and describes
// how that tenant's data is reached.
//
// A Registry combines a Catalog of known tenants with the process-wide
// isolation settings. Resolve inspects the request context in a fixed order
// (actor credentials, upstream middleware, override header, configured
// default) and validates the winner against the catalog without doing I/O.
// Profile returns the immutable connection profile used by the pool package
// to build the tenant's connection pool.
//
// # Isolation modes
//
//   - ModeStrict: one database per tenant. The DSN comes from a per-tenant
//     override or from a template such as "postgres://app@db/t_{tenant}".
//   - ModeShared: one database for everyone; every profile points at the
//     shared DSN and rows are separated by tenant_id.
//
// # Usage
//
//	catalog, err := tenant.NewStaticCatalog([]string{"acme", "globex"}, nil)
//	if err != nil {
//		return err
//	}
//	reg := tenant.NewRegistry(catalog,
//		tenant.WithMode(tenant.ModeStrict),
//		tenant.WithDSNTemplate("postgres://app@db/t_{tenant}"),
//		tenant.WithDefaultTenant("acme"),
//	)
//
//	router.Use(tenant.Middleware(reg))
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		id, _ := tenant.FromContext(r.Context())
//		// ...
//	}
//
// # Errors
//
//   - ErrTenantNotFound: nothing resolvable, or id not in the catalog
//   - ErrInvalidIdentifier: malformed tenant id
//   - ErrMissingDSN: no DSN could be built for the tenant
package tenant
