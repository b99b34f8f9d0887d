// Package audit records a tamper-evident, append-only trail of entity changes
// inside tenant-scoped units of work.
//
// # Recording
//
// A Recorder turns a Change into an Entry: it redacts sensitive snapshot
// values with a MetadataFilter, computes the changed fields from the redacted
// snapshots (keys present in both whose values differ), classifies the entry
// as critical (workflow, document and user entities; delete and
// responsible_change kinds), fills actor, IP and user agent from context
// extractors, signs the entry and appends it through a Store.
//
//	signer, _ := audit.NewSigner([]byte(cfg.AuditSigningKey))
//	rec := audit.NewRecorder(audit.NewSQLStore(), sessions,
//		audit.WithSigner(signer),
//		audit.WithIPExtractor(clientip.IPExtractor),
//		audit.WithUserAgentExtractor(clientip.UserAgentExtractor),
//	)
//
//	err := sessions.Run(ctx, tenantID, func(ctx context.Context, s *session.Scope) error {
//		if err := s.Update(ctx, "workflows", "42", session.Row{"status": "active"}); err != nil {
//			return err
//		}
//		_, err := rec.Record(ctx, s, audit.Change{
//			EntityType: "workflow",
//			EntityID:   "42",
//			Kind:       audit.KindStatusChange,
//			Old:        map[string]any{"status": "draft"},
//			New:        map[string]any{"status": "active"},
//		})
//		return err
//	})
//
// Record writes in the caller's transaction, so the entry and the business
// mutation commit or roll back together. RecordDetached opens a unit of work
// of its own.
//
// # Intercepting operations
//
// Wrap composes auditing around a business operation. Entity kinds form a
// closed set; each kind captured by an action needs a registered Snapshotter.
//
//	ic := audit.NewInterceptor(rec,
//		audit.WithSnapshotter(audit.EntityWorkflow, audit.TableSnapshotter{Table: "workflows"}),
//	)
//	activate := audit.MustWrap(ic, audit.Action{
//		Entity:     audit.EntityWorkflow,
//		Kind:       audit.KindStatusChange,
//		CaptureOld: true,
//		CaptureNew: true,
//	}, func(ctx context.Context, s *session.Scope, t audit.Target) (struct{}, error) {
//		return struct{}{}, s.Update(ctx, "workflows", t.EntityID, session.Row{"status": "active"})
//	})
//
// A failed delete is still audited: one entry carrying the old snapshot and a
// context of {"failed": true, "error": "..."} is written in a separate unit of
// work after the caller's transaction has ended. Other failures leave no
// entry. The original error is always returned.
//
// When the entry of a successful operation cannot be written, the Policy
// decides: PolicyCompensate (default) fails the operation with
// ErrAuditPersist so the business mutation rolls back; PolicyBestEffort logs
// and keeps the business result.
//
// # Tamper evidence
//
// Each entry carries a keyed BLAKE2b-256 signature over a canonical encoding
// of its fields. Verify recomputes it; the audit_log table additionally
// rejects UPDATE and DELETE with triggers.
//
// # Storage
//
// PostgresMigrations and SQLiteMigrations return goose migrations creating
// the audit_log table, to be applied to every tenant database in strict mode
// or to the shared database.
package audit
