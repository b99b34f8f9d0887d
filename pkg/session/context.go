package session

import "context"

type scopeContextKey struct{}

// WithScope attaches an open scope to the context.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// FromContext returns the scope of the enclosing unit of work, if any.
// Collaborators use it to join the caller's transaction instead of opening a new one.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeContextKey{}).(*Scope)
	if !ok || s.closed.Load() {
		return nil, false
	}
	return s, true
}
