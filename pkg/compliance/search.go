package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrymomot/tenantcore/pkg/audit"
	"github.com/dmitrymomot/tenantcore/pkg/session"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// Search paging bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Filters narrows an audit search. Zero values do not filter.
type Filters struct {
	EntityType string
	EntityID   string
	ActorID    string
	Kind       audit.ChangeKind
	IP         string

	// From and To bound created_at, both inclusive.
	From time.Time
	To   time.Time

	// ChangedField matches entries whose changed fields include this name.
	ChangedField string

	// Limit defaults to DefaultLimit and is capped at MaxLimit.
	Limit  int
	Offset int
}

func (f Filters) query() (session.Query, error) {
	var conds []session.Cond
	eq := func(col, v string) {
		if v != "" {
			conds = append(conds, session.Eq(col, v))
		}
	}
	eq(audit.ColumnEntityType, f.EntityType)
	eq(audit.ColumnEntityID, f.EntityID)
	eq(audit.ColumnActorID, f.ActorID)
	eq(audit.ColumnIP, f.IP)

	if f.Kind != "" {
		if !f.Kind.Valid() {
			return session.Query{}, fmt.Errorf("%w: kind %q", ErrInvalidFilter, f.Kind)
		}
		conds = append(conds, session.Eq(audit.ColumnKind, string(f.Kind)))
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return session.Query{}, fmt.Errorf("%w: range ends before it starts", ErrInvalidFilter)
	}
	if !f.From.IsZero() {
		conds = append(conds, session.Gte(audit.ColumnCreatedAt, f.From.UTC()))
	}
	if !f.To.IsZero() {
		conds = append(conds, session.Lte(audit.ColumnCreatedAt, f.To.UTC()))
	}
	if f.ChangedField != "" {
		// changed_fields holds a JSON array of names; match one quoted element.
		name, err := json.Marshal(f.ChangedField)
		if err != nil {
			return session.Query{}, fmt.Errorf("%w: changed field: %w", ErrInvalidFilter, err)
		}
		conds = append(conds, session.Contains(audit.ColumnChangedFields, string(name)))
	}

	if f.Offset < 0 || f.Limit < 0 {
		return session.Query{}, fmt.Errorf("%w: negative limit or offset", ErrInvalidFilter)
	}
	limit := f.Limit
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	return session.Query{
		Where:   conds,
		OrderBy: []string{audit.ColumnCreatedAt + " DESC", audit.ColumnSeq + " DESC"},
		Limit:   limit,
		Offset:  f.Offset,
	}, nil
}

// Search returns the tenant's audit entries matching f, newest first.
func (r *Reporter) Search(ctx context.Context, id tenant.ID, f Filters) ([]audit.Entry, error) {
	q, err := f.query()
	if err != nil {
		return nil, err
	}
	return session.Do(ctx, r.sessions, id, func(ctx context.Context, s *session.Scope) ([]audit.Entry, error) {
		return r.store.Find(ctx, s, q)
	})
}
