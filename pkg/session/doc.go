// Package session provides tenant-scoped transactional units of work.
//
// A Manager turns a tenant id into a Scope: it acquires the tenant's pool,
// takes a connection, begins a transaction and, in shared isolation mode,
// binds the tenant to the transaction. The Scope is handed to a callback and
// torn down when the callback returns.
//
// # Usage
//
//	mgr := session.NewManager(pools, session.WithLogger(log))
//
//	err := mgr.Run(ctx, tenantID, func(ctx context.Context, s *session.Scope) error {
//		if _, err := s.Get(ctx, "plants", 42); err != nil {
//			return err
//		}
//		return s.Update(ctx, "plants", 42, session.Row{"status": "active"})
//	})
//
// Values are produced with Do:
//
//	n, err := session.Do(ctx, mgr, tenantID, func(ctx context.Context, s *session.Scope) (int64, error) {
//		return s.Count(ctx, "documents", session.Eq("status", "draft"))
//	})
//
// # Tenant enforcement
//
// Every helper adds "tenant_id = <current tenant>" to its statement. Reading,
// updating or deleting a row id that exists for another tenant, passing a
// foreign tenant_id in values or filters, or receiving a row of another tenant
// fails with ErrPermissionDenied instead of being filtered silently. Absent
// rows fail with ErrNotFound.
//
// Collaborators that run inside a unit of work can join it with FromContext.
package session
