package compliance

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/audit"
	"github.com/dmitrymomot/tenantcore/pkg/session"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// TopActorsLimit is the number of actors listed in a report.
const TopActorsLimit = 10

// Report aggregates a tenant's audit log over the window [Start, End).
type Report struct {
	TenantID   string    `json:"tenant_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	EntityType string    `json:"entity_type,omitempty"`

	TotalChanges    int64                      `json:"total_changes"`
	ChangesByKind   map[audit.ChangeKind]int64 `json:"changes_by_kind"`
	ChangesByEntity map[string]int64           `json:"changes_by_entity"`
	TopActors       []ActorActivity            `json:"top_actors"`
	CriticalChanges int64                      `json:"critical_changes"`

	GeneratedAt time.Time `json:"generated_at"`
}

// ActorActivity is one row of the top actors list. DisplayName falls back to
// the actor id when the directory does not know the actor.
type ActorActivity struct {
	ActorID     string `json:"actor_id"`
	DisplayName string `json:"display_name"`
	Changes     int64  `json:"changes"`
}

// Reporter answers compliance queries over the audit log.
type Reporter struct {
	sessions  *session.Manager
	store     *audit.SQLStore
	directory ActorDirectory
	cache     ReportCache
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithActorDirectory sets the directory used to name top actors.
func WithActorDirectory(d ActorDirectory) Option {
	return func(r *Reporter) {
		r.directory = d
	}
}

// WithReportCache caches reports of windows that have already closed.
func WithReportCache(c ReportCache) Option {
	return func(r *Reporter) {
		r.cache = c
	}
}

// WithClock overrides the time source deciding whether a window has closed.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReporter creates a reporter reading through sessions. For Postgres the
// manager should run repeatable-read transactions so that the counts of one
// report come from a single snapshot.
func NewReporter(sessions *session.Manager, opts ...Option) *Reporter {
	if sessions == nil {
		panic("compliance: session manager cannot be nil")
	}
	r := &Reporter{
		sessions:  sessions,
		store:     audit.NewSQLStore(),
		directory: StaticDirectory(nil),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report aggregates the tenant's changes in [start, end), optionally limited
// to one entity type. Every change kind is present in ChangesByKind; only
// observed entity types appear in ChangesByEntity.
func (r *Reporter) Report(ctx context.Context, id tenant.ID, start, end time.Time, entityType string) (*Report, error) {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: %s is not before %s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	closed := r.cache != nil && !end.After(r.now())
	key := cacheKey(id, start, end, entityType)
	if closed {
		rep, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.WarnContext(ctx, "report cache read failed", slog.String("key", key), logger.Error(err))
		}
		if ok {
			return rep, nil
		}
	}

	rep, err := session.Do(ctx, r.sessions, id, func(ctx context.Context, s *session.Scope) (*Report, error) {
		return r.build(ctx, s, start, end, entityType)
	})
	if err != nil {
		return nil, err
	}

	if closed {
		if err := r.cache.Set(ctx, key, rep); err != nil {
			r.logger.WarnContext(ctx, "report cache write failed", slog.String("key", key), logger.Error(err))
		}
	}
	return rep, nil
}

func (r *Reporter) build(ctx context.Context, s *session.Scope, start, end time.Time, entityType string) (*Report, error) {
	conds := []session.Cond{
		session.Gte(audit.ColumnCreatedAt, start),
		session.Lt(audit.ColumnCreatedAt, end),
	}
	if entityType != "" {
		conds = append(conds, session.Eq(audit.ColumnEntityType, entityType))
	}

	total, err := s.Count(ctx, audit.Table, conds...)
	if err != nil {
		return nil, err
	}
	byKind, err := s.GroupCount(ctx, audit.Table, audit.ColumnKind, conds...)
	if err != nil {
		return nil, err
	}
	byEntity, err := s.GroupCount(ctx, audit.Table, audit.ColumnEntityType, conds...)
	if err != nil {
		return nil, err
	}
	byActor, err := s.GroupCount(ctx, audit.Table, audit.ColumnActorID, conds...)
	if err != nil {
		return nil, err
	}
	critical, err := s.Count(ctx, audit.Table, append(conds, session.Eq(audit.ColumnCritical, true))...)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		TenantID:        s.Tenant().String(),
		Start:           start,
		End:             end,
		EntityType:      entityType,
		TotalChanges:    total,
		ChangesByKind:   make(map[audit.ChangeKind]int64, len(audit.Kinds())),
		ChangesByEntity: byEntity,
		CriticalChanges: critical,
		GeneratedAt:     r.now().UTC(),
	}
	for _, k := range audit.Kinds() {
		rep.ChangesByKind[k] = byKind[string(k)]
	}
	rep.TopActors = r.topActors(ctx, s, byActor)
	return rep, nil
}

// topActors ranks actors by change count, ties broken by id. Changes without
// an actor (automatic ones) are not ranked.
func (r *Reporter) topActors(ctx context.Context, s *session.Scope, counts map[string]int64) []ActorActivity {
	actors := make([]ActorActivity, 0, len(counts))
	for id, n := range counts {
		if id != "" {
			actors = append(actors, ActorActivity{ActorID: id, Changes: n})
		}
	}
	slices.SortFunc(actors, func(a, b ActorActivity) int {
		if c := cmp.Compare(b.Changes, a.Changes); c != 0 {
			return c
		}
		return cmp.Compare(a.ActorID, b.ActorID)
	})
	if len(actors) > TopActorsLimit {
		actors = actors[:TopActorsLimit]
	}

	for i := range actors {
		name, err := r.directory.DisplayName(ctx, s, actors[i].ActorID)
		if err != nil {
			r.logger.WarnContext(ctx, "actor name lookup failed",
				logger.ActorID(actors[i].ActorID),
				logger.Error(err),
			)
		}
		if name == "" {
			name = actors[i].ActorID
		}
		actors[i].DisplayName = name
	}
	return actors
}

func cacheKey(id tenant.ID, start, end time.Time, entityType string) string {
	return fmt.Sprintf("report:%s:%d:%d:%s", id, start.UnixMicro(), end.UnixMicro(), entityType)
}
