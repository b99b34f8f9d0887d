package compliance

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/tenantcore/pkg/session"
)

// ActorDirectory resolves actor ids to display names. An unknown actor
// yields an empty name and no error.
type ActorDirectory interface {
	DisplayName(ctx context.Context, s *session.Scope, actorID string) (string, error)
}

// StaticDirectory is an in-memory ActorDirectory.
type StaticDirectory map[string]string

// DisplayName implements ActorDirectory.
func (d StaticDirectory) DisplayName(_ context.Context, _ *session.Scope, actorID string) (string, error) {
	return d[actorID], nil
}

// TableDirectory reads display names from a tenant-scoped table, typically users.
type TableDirectory struct {
	Table  string
	Column string
}

// DisplayName implements ActorDirectory.
func (d TableDirectory) DisplayName(ctx context.Context, s *session.Scope, actorID string) (string, error) {
	row, err := s.Get(ctx, d.Table, actorID)
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrPermissionDenied):
		return "", nil
	case err != nil:
		return "", err
	}
	switch v := row[d.Column].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}
