package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/metrics"
	"github.com/dmitrymomot/tenantcore/pkg/session"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// contextExtractor extracts string values from context.
// It returns (value, found) where found indicates if extraction succeeded.
type contextExtractor func(context.Context) (string, bool)

// Runner opens a unit of work. *session.Manager implements it.
type Runner interface {
	Run(ctx context.Context, id tenant.ID, fn func(ctx context.Context, s *session.Scope) error) error
}

// Recorder builds, signs and persists audit entries.
type Recorder struct {
	store    Store
	sessions Runner
	signer   *Signer
	filter   *MetadataFilter
	clock    *clock

	actorExtractor     contextExtractor
	ipExtractor        contextExtractor
	userAgentExtractor contextExtractor

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures Recorder behavior during initialization
type Option func(*Recorder)

// WithSigner sets the signer. Without one entries are signed with an unkeyed hash.
func WithSigner(s *Signer) Option {
	return func(r *Recorder) {
		if s != nil {
			r.signer = s
		}
	}
}

// WithMetadataFilter sets the snapshot redaction filter.
// Pass nil to store snapshots unfiltered.
func WithMetadataFilter(f *MetadataFilter) Option {
	return func(r *Recorder) {
		r.filter = f
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.clock = newClock(now)
	}
}

// Context extractors fill entry fields the caller left empty. If extraction
// fails, the field stays empty.

func WithActorExtractor(fn func(context.Context) (string, bool)) Option {
	return func(r *Recorder) {
		r.actorExtractor = fn
	}
}

func WithIPExtractor(fn func(context.Context) (string, bool)) Option {
	return func(r *Recorder) {
		r.ipExtractor = fn
	}
}

func WithUserAgentExtractor(fn func(context.Context) (string, bool)) Option {
	return func(r *Recorder) {
		r.userAgentExtractor = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// NewRecorder creates a recorder. sessions is used by RecordDetached and may
// be nil when detached recording is not needed.
func NewRecorder(store Store, sessions Runner, opts ...Option) *Recorder {
	if store == nil {
		panic("audit: store cannot be nil")
	}

	signer, _ := NewSigner(nil)
	r := &Recorder{
		store:          store,
		sessions:       sessions,
		signer:         signer,
		filter:         NewMetadataFilter(),
		clock:          newClock(nil),
		actorExtractor: tenant.ActorIDExtractor,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record persists an entry for c inside the caller's unit of work, so it
// commits or rolls back together with the business mutation. A storage
// failure is returned wrapped in ErrAuditPersist.
func (r *Recorder) Record(ctx context.Context, s *session.Scope, c Change) (*Entry, error) {
	e, err := r.build(ctx, s.Tenant(), c)
	if err != nil {
		r.metrics.AuditFailed("validate")
		return nil, err
	}

	if err := r.store.Append(ctx, s, e); err != nil {
		r.metrics.AuditFailed("persist")
		r.logger.ErrorContext(ctx, "audit entry not persisted",
			logger.Entity(e.EntityType, e.EntityID),
			slog.String("kind", string(e.Kind)),
			logger.Error(err),
		)
		return nil, errors.Join(ErrAuditPersist, err)
	}

	r.metrics.AuditRecorded(string(e.Kind), e.Critical)
	return e, nil
}

// RecordDetached persists an entry in a unit of work of its own, independent
// of any transaction the caller may have open.
func (r *Recorder) RecordDetached(ctx context.Context, id tenant.ID, c Change) (*Entry, error) {
	if r.sessions == nil {
		return nil, ErrNoSessions
	}

	var entry *Entry
	err := r.sessions.Run(ctx, id, func(ctx context.Context, s *session.Scope) error {
		e, err := r.Record(ctx, s, c)
		entry = e
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrAuditPersist) && !errors.Is(err, ErrInvalidChange) {
			err = errors.Join(ErrAuditPersist, err)
		}
		return nil, err
	}
	return entry, nil
}

// Verify reports whether the entry's signature matches its content.
func (r *Recorder) Verify(e *Entry) bool {
	return r.signer.Verify(e)
}

func (r *Recorder) build(ctx context.Context, scopeTenant tenant.ID, c Change) (*Entry, error) {
	if c.EntityType == "" || c.EntityID == "" {
		return nil, fmt.Errorf("%w: entity type and id are required", ErrInvalidChange)
	}
	if !c.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidChange, c.Kind)
	}

	tenantID := c.TenantID
	if tenantID == "" {
		tenantID = scopeTenant.String()
	}
	if tenantID != scopeTenant.String() {
		return nil, fmt.Errorf("%w: audit entry for tenant %q in scope of %q", session.ErrPermissionDenied, tenantID, scopeTenant)
	}

	oldValues, newValues := r.filter.Filter(c.Old), r.filter.Filter(c.New)
	e := &Entry{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		EntityType:    c.EntityType,
		EntityID:      c.EntityID,
		Kind:          c.Kind,
		ActorID:       extract(ctx, c.ActorID, r.actorExtractor),
		OldValues:     oldValues,
		NewValues:     newValues,
		ChangedFields: ChangedFields(oldValues, newValues),
		IP:            extract(ctx, c.IP, r.ipExtractor),
		UserAgent:     extract(ctx, c.UserAgent, r.userAgentExtractor),
		Note:          c.Note,
		Automatic:     c.Automatic,
		Critical:      IsCritical(c.EntityType, c.Kind),
		Context:       maps.Clone(c.Context),
		CreatedAt:     r.clock.Now(),
	}
	e.Signature = r.signer.Sign(e)
	return e, nil
}

func extract(ctx context.Context, explicit string, fn contextExtractor) string {
	if explicit != "" || fn == nil {
		return explicit
	}
	v, _ := fn(ctx)
	return v
}
