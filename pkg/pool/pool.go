package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/tenantcore/pkg/metrics"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// Pool is a bounded set of connections to one logical database.
// In strict mode it belongs to exactly one tenant; in shared mode it serves all.
type Pool struct {
	key            string
	mode           tenant.IsolationMode
	db             *sql.DB
	release        func()
	dialect        Dialect
	acquireTimeout time.Duration
	metrics        *metrics.Metrics

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newPool(key string, mode tenant.IsolationMode, b *Backend, d Dialect, acquireTimeout time.Duration, m *metrics.Metrics) *Pool {
	return &Pool{
		key:            key,
		mode:           mode,
		db:             b.DB,
		release:        b.Release,
		dialect:        d,
		acquireTimeout: acquireTimeout,
		metrics:        m,
	}
}

// Key returns the pool key: the tenant id in strict mode, tenant.SharedPoolKey otherwise.
func (p *Pool) Key() string { return p.key }

// Mode returns the isolation mode the pool was built for.
func (p *Pool) Mode() tenant.IsolationMode { return p.mode }

// Dialect returns the SQL dialect of the backing store.
func (p *Pool) Dialect() Dialect { return p.dialect }

// DB exposes the underlying handle for schema management. Business code must
// go through session scopes instead.
func (p *Pool) DB() *sql.DB { return p.db }

// Stats returns connection statistics.
func (p *Pool) Stats() sql.DBStats { return p.db.Stats() }

// Conn takes a connection out of the pool, waiting at most the configured
// acquire timeout. Saturation is reported as ErrConnectionExhausted; caller
// cancellation is reported as the context error.
func (p *Pool) Conn(ctx context.Context) (*sql.Conn, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	actx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := p.db.Conn(actx)
	p.metrics.ObserveAcquire(string(p.mode), time.Since(start))
	if err == nil {
		return conn, nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		p.metrics.AcquireTimeout(p.key)
		return nil, fmt.Errorf("%w: pool %q saturated after %s", ErrConnectionExhausted, p.key, p.acquireTimeout)
	case p.closed.Load():
		return nil, errors.Join(ErrPoolClosed, err)
	default:
		return nil, err
	}
}

// Close drains and closes the pool. It is safe to call more than once.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.closeErr = p.db.Close()
		if p.release != nil {
			p.release()
		}
	})
	return p.closeErr
}
