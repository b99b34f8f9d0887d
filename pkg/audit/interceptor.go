package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/session"
)

// EntityKind is the closed set of entity types business operations can be audited for.
type EntityKind string

const (
	EntityPlant    EntityKind = "plant"
	EntityWorkflow EntityKind = "workflow"
	EntityDocument EntityKind = "document"
	EntityTask     EntityKind = "task"
	EntityUser     EntityKind = "user"
)

var entityKinds = []EntityKind{EntityPlant, EntityWorkflow, EntityDocument, EntityTask, EntityUser}

// EntityKinds returns every entity kind.
func EntityKinds() []EntityKind { return slices.Clone(entityKinds) }

// Valid reports whether k belongs to the closed set.
func (k EntityKind) Valid() bool { return slices.Contains(entityKinds, k) }

// Snapshotter reads the current field values of an entity.
type Snapshotter interface {
	Snapshot(ctx context.Context, s *session.Scope, id string) (map[string]any, error)
}

// SnapshotFunc adapts a function to Snapshotter.
type SnapshotFunc func(ctx context.Context, s *session.Scope, id string) (map[string]any, error)

func (f SnapshotFunc) Snapshot(ctx context.Context, s *session.Scope, id string) (map[string]any, error) {
	return f(ctx, s, id)
}

// TableSnapshotter snapshots a row of a tenant-scoped table by id.
type TableSnapshotter struct {
	Table string

	// Omit lists columns left out of snapshots, e.g. bookkeeping timestamps.
	Omit []string
}

// Snapshot implements Snapshotter. The tenant column is never part of a snapshot.
func (t TableSnapshotter) Snapshot(ctx context.Context, s *session.Scope, id string) (map[string]any, error) {
	row, err := s.Get(ctx, t.Table, id)
	if err != nil {
		return nil, err
	}
	snap := map[string]any(maps.Clone(row))
	delete(snap, session.TenantColumn)
	for _, c := range t.Omit {
		delete(snap, c)
	}
	return snap, nil
}

// Policy decides what happens when the audit entry of a successful
// operation cannot be written.
type Policy string

const (
	// PolicyCompensate fails the operation with ErrAuditPersist so the
	// enclosing unit of work rolls the business mutation back.
	PolicyCompensate Policy = "compensate"

	// PolicyBestEffort logs the failure and keeps the business result.
	PolicyBestEffort Policy = "best_effort"
)

// ParsePolicy parses a policy name; empty means PolicyCompensate.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyCompensate:
		return PolicyCompensate, nil
	case PolicyBestEffort:
		return PolicyBestEffort, nil
	}
	return "", fmt.Errorf("audit: unknown failure policy %q", s)
}

// Interceptor wraps business operations with snapshotting and audit recording.
type Interceptor struct {
	recorder     *Recorder
	snapshotters map[EntityKind]Snapshotter
	policy       Policy
	logger       *slog.Logger
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithPolicy sets the audit failure policy.
func WithPolicy(p Policy) InterceptorOption {
	return func(ic *Interceptor) {
		ic.policy = p
	}
}

// WithSnapshotter registers a snapshotter. It panics on an unknown entity kind.
func WithSnapshotter(kind EntityKind, sn Snapshotter) InterceptorOption {
	return func(ic *Interceptor) {
		if err := ic.Register(kind, sn); err != nil {
			panic(err)
		}
	}
}

// WithInterceptorLogger sets the logger.
func WithInterceptorLogger(l *slog.Logger) InterceptorOption {
	return func(ic *Interceptor) {
		if l != nil {
			ic.logger = l
		}
	}
}

// NewInterceptor creates an interceptor recording through rec.
func NewInterceptor(rec *Recorder, opts ...InterceptorOption) *Interceptor {
	if rec == nil {
		panic("audit: recorder cannot be nil")
	}

	ic := &Interceptor{
		recorder:     rec,
		snapshotters: make(map[EntityKind]Snapshotter),
		policy:       PolicyCompensate,
		logger:       rec.logger,
	}
	for _, opt := range opts {
		opt(ic)
	}
	return ic
}

// Register binds a snapshotter to an entity kind. Registration must finish
// before the interceptor is used concurrently.
func (ic *Interceptor) Register(kind EntityKind, sn Snapshotter) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, kind)
	}
	if sn == nil {
		return fmt.Errorf("%w: nil snapshotter for %q", ErrUnknownEntity, kind)
	}
	ic.snapshotters[kind] = sn
	return nil
}

// Action declares how an operation is audited.
type Action struct {
	Entity     EntityKind
	Kind       ChangeKind
	CaptureOld bool
	CaptureNew bool
	Automatic  bool
}

// Target identifies what a single call operates on. EntityID may be empty
// for creates; the id is then taken from a result implementing Identifiable.
type Target struct {
	EntityID string
	ActorID  string
	Note     string
}

// Identifiable is implemented by operation results that know the id of the
// entity they created or changed.
type Identifiable interface {
	AuditEntityID() string
}

// Op is an auditable business operation running in a unit of work.
type Op[T any] func(ctx context.Context, s *session.Scope, t Target) (T, error)

// Wrap returns op wrapped with auditing according to a. Unknown entity kinds,
// unknown change kinds and missing snapshotters are reported here rather than
// at call time.
//
// Outcomes of the wrapped call:
//   - success: one entry with the captured snapshots; the result is returned unchanged
//   - failed delete, including a before state that cannot be read: one failure
//     entry written in its own unit of work once the caller's unit of work has
//     ended; the original error is returned
//   - any other failure: no entry; the original error is returned
func Wrap[T any](ic *Interceptor, a Action, op Op[T]) (Op[T], error) {
	if !a.Entity.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, a.Entity)
	}
	if !a.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidChange, a.Kind)
	}
	sn, ok := ic.snapshotters[a.Entity]
	if !ok && (a.CaptureOld || a.CaptureNew) {
		return nil, fmt.Errorf("%w: no snapshotter for %q", ErrUnknownEntity, a.Entity)
	}

	return func(ctx context.Context, s *session.Scope, t Target) (T, error) {
		var old map[string]any
		if a.CaptureOld && t.EntityID != "" {
			snap, err := sn.Snapshot(ctx, s, t.EntityID)
			switch {
			case errors.Is(err, session.ErrNotFound):
				// Nothing to capture; the operation decides how to handle it.
			case err != nil:
				if a.Kind == KindDelete {
					ic.recordFailure(ctx, s, a, t, nil, err)
				}
				var zero T
				return zero, err
			default:
				old = snap
			}
		}

		result, opErr := op(ctx, s, t)
		if opErr != nil {
			if a.Kind == KindDelete {
				ic.recordFailure(ctx, s, a, t, old, opErr)
			}
			return result, opErr
		}

		id := t.EntityID
		if id == "" {
			if v, ok := any(result).(Identifiable); ok {
				id = v.AuditEntityID()
			}
		}

		var fresh map[string]any
		if a.CaptureNew && id != "" {
			snap, err := sn.Snapshot(ctx, s, id)
			switch {
			case errors.Is(err, session.ErrNotFound):
				// Deleted rows have no after state.
			case err != nil:
				return auditFailed(ctx, ic, a, id, result, errors.Join(ErrAuditPersist, err))
			default:
				fresh = snap
			}
		}

		_, err := ic.recorder.Record(ctx, s, Change{
			EntityType: string(a.Entity),
			EntityID:   id,
			Kind:       a.Kind,
			ActorID:    t.ActorID,
			Old:        old,
			New:        fresh,
			Note:       t.Note,
			Automatic:  a.Automatic,
		})
		if err != nil {
			if !errors.Is(err, ErrAuditPersist) {
				err = errors.Join(ErrAuditPersist, err)
			}
			return auditFailed(ctx, ic, a, id, result, err)
		}
		return result, nil
	}, nil
}

// MustWrap is Wrap that panics on misconfiguration.
func MustWrap[T any](ic *Interceptor, a Action, op Op[T]) Op[T] {
	w, err := Wrap(ic, a, op)
	if err != nil {
		panic(err)
	}
	return w
}

// auditFailed applies the failure policy to a successful operation whose
// entry could not be written.
func auditFailed[T any](ctx context.Context, ic *Interceptor, a Action, id string, result T, err error) (T, error) {
	if ic.policy == PolicyBestEffort {
		ic.logger.WarnContext(ctx, "audit entry lost, keeping business result",
			logger.Entity(string(a.Entity), id),
			slog.String("kind", string(a.Kind)),
			logger.Error(err),
		)
		return result, nil
	}
	var zero T
	return zero, err
}

// recordFailure writes the failure entry of a delete once the caller's unit
// of work has ended, so the business rollback cannot discard it.
func (ic *Interceptor) recordFailure(ctx context.Context, s *session.Scope, a Action, t Target, old map[string]any, opErr error) {
	rec := ic.recorder
	tenantID := s.Tenant()
	change := Change{
		EntityType: string(a.Entity),
		EntityID:   t.EntityID,
		Kind:       a.Kind,
		ActorID:    extract(ctx, t.ActorID, rec.actorExtractor),
		IP:         extract(ctx, "", rec.ipExtractor),
		UserAgent:  extract(ctx, "", rec.userAgentExtractor),
		Old:        old,
		Note:       t.Note,
		Automatic:  a.Automatic,
		Context: map[string]any{
			ContextFailed: true,
			ContextError:  opErr.Error(),
		},
	}

	s.AfterCompletion(func(ctx context.Context, _ bool) {
		if _, err := rec.RecordDetached(ctx, tenantID, change); err != nil {
			rec.metrics.AuditFailed("failure_entry")
			ic.logger.ErrorContext(ctx, "failed delete not audited",
				logger.Entity(change.EntityType, change.EntityID),
				logger.Error(err),
			)
		}
	})
}
