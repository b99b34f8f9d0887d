package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/metrics"
	"github.com/dmitrymomot/tenantcore/pkg/pool"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// PoolSource hands out the pool serving a tenant. *pool.Registry implements it.
type PoolSource interface {
	Acquire(ctx context.Context, id tenant.ID) (*pool.Pool, error)
}

// Manager opens tenant-scoped units of work.
type Manager struct {
	pools     PoolSource
	txOptions *sql.TxOptions
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithTxOptions sets the isolation level and read-only flag of every transaction.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(m *Manager) {
		m.txOptions = opts
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a session manager over the given pools.
func NewManager(pools PoolSource, opts ...Option) *Manager {
	if pools == nil {
		panic("session: pool source is required")
	}

	m := &Manager{
		pools:  pools,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes fn in a new transaction bound to the tenant.
//
// The transaction commits when fn returns nil and rolls back when fn returns
// an error, panics or the context is cancelled; a panic is re-raised after the
// rollback. The connection goes back to its pool on every path.
func (m *Manager) Run(ctx context.Context, id tenant.ID, fn func(ctx context.Context, s *Scope) error) (err error) {
	var (
		s         *Scope
		committed bool
	)
	defer func() {
		if s != nil {
			m.complete(ctx, s, committed)
		}
	}()

	p, err := m.pools.Acquire(ctx, id)
	if err != nil {
		return err
	}

	conn, err := p.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, sql.ErrConnDone) {
			m.logger.WarnContext(ctx, "release connection", logger.Error(cerr))
		}
	}()

	tx, err := conn.BeginTx(ctx, m.txOptions)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	s = &Scope{
		tenant:  id,
		mode:    p.Mode(),
		tx:      tx,
		dialect: p.Dialect(),
	}
	defer s.closed.Store(true)

	defer func() {
		if committed {
			return
		}
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			m.logger.WarnContext(ctx, "rollback failed", logger.Error(rerr))
		}
		m.metrics.SessionFinished(false)
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if p.Mode() == tenant.ModeShared {
		if err := p.Dialect().BindTenant(ctx, tx, id.String()); err != nil {
			return fmt.Errorf("bind tenant: %w", err)
		}
	}

	if err := fn(WithScope(ctx, s), s); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.closed.Store(true)
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	m.metrics.SessionFinished(true)
	return nil
}

func (m *Manager) complete(ctx context.Context, s *Scope, committed bool) {
	if len(s.hooks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, hook := range s.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.ErrorContext(ctx, "completion hook panicked", slog.Any("panic", r))
				}
			}()
			hook(ctx, committed)
		}()
	}
}

// Do is Run for functions that produce a value.
func Do[T any](ctx context.Context, m *Manager, id tenant.ID, fn func(ctx context.Context, s *Scope) (T, error)) (T, error) {
	var out T
	err := m.Run(ctx, id, func(ctx context.Context, s *Scope) error {
		v, err := fn(ctx, s)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
