package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/metrics"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// ProfileSource supplies tenant connection profiles. *tenant.Registry implements it.
type ProfileSource interface {
	Mode() tenant.IsolationMode
	Profile(id tenant.ID) (*tenant.Profile, error)
	SharedProfile() (*tenant.Profile, error)
}

// Initializer runs once on every newly built pool before it is published,
// typically to apply schema migrations.
type Initializer func(ctx context.Context, p *Pool) error

// Registry owns one pool per tenant (strict mode) or a single shared pool.
// It is created by the composition root, warmed with Init and torn down with
// Shutdown. The only process-wide mutable state is the key→pool map.
type Registry struct {
	profiles ProfileSource
	opener   Opener

	retryAttempts  int
	retryInterval  time.Duration
	acquireTimeout time.Duration
	initializer    Initializer
	logger         *slog.Logger
	metrics        *metrics.Metrics

	group  singleflight.Group
	mu     sync.RWMutex
	pools  map[string]*Pool
	closed bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetry sets the number of connection attempts and the fixed delay between them.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(r *Registry) {
		if attempts > 0 {
			r.retryAttempts = attempts
		}
		if interval >= 0 {
			r.retryInterval = interval
		}
	}
}

// WithAcquireTimeout bounds how long a caller waits for a connection of a saturated pool.
func WithAcquireTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.acquireTimeout = d
	}
}

// WithInitializer sets a hook run on every new pool before it is published.
func WithInitializer(fn Initializer) Option {
	return func(r *Registry) {
		r.initializer = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty pool registry.
func NewRegistry(profiles ProfileSource, opener Opener, opts ...Option) *Registry {
	if profiles == nil || opener == nil {
		panic("pool: profile source and opener are required")
	}

	r := &Registry{
		profiles:       profiles,
		opener:         opener,
		retryAttempts:  3,
		retryInterval:  2 * time.Second,
		acquireTimeout: 5 * time.Second,
		logger:         slog.Default(),
		pools:          make(map[string]*Pool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init warms the registry. In shared mode the shared pool is built now and a
// failure must be treated as fatal by the caller. Strict-mode tenant pools
// are always built lazily.
func (r *Registry) Init(ctx context.Context) error {
	if r.profiles.Mode() != tenant.ModeShared {
		return nil
	}
	profile, err := r.profiles.SharedProfile()
	if err != nil {
		return err
	}
	_, err = r.get(ctx, profile)
	return err
}

// Acquire returns the pool serving the tenant, building it on first reference.
// Concurrent first references construct exactly one pool; all callers get the
// same instance. A construction failure is returned to the waiting callers and
// nothing is cached, so the next call retries.
func (r *Registry) Acquire(ctx context.Context, id tenant.ID) (*Pool, error) {
	profile, err := r.profiles.Profile(id)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, profile)
}

func (r *Registry) get(ctx context.Context, profile *tenant.Profile) (*Pool, error) {
	key := profile.PoolKey()

	if p, err := r.lookup(key); p != nil || err != nil {
		return p, err
	}

	ch := r.group.DoChan(key, func() (any, error) {
		if p, err := r.lookup(key); p != nil || err != nil {
			return p, err
		}

		p, err := r.build(ctx, key, profile)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			_ = p.Close()
			return nil, ErrRegistryClosed
		}
		r.pools[key] = p
		r.mu.Unlock()

		r.metrics.PoolOpened()
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Pool), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) lookup(key string) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	return r.pools[key], nil
}

// build opens the backing store with a fixed number of attempts separated by
// a fixed delay. No registry lock is held here.
func (r *Registry) build(ctx context.Context, key string, profile *tenant.Profile) (*Pool, error) {
	mode := string(profile.Mode)
	log := r.logger.With(logger.PoolKey(key), slog.String("mode", mode))

	var lastErr error
	for attempt := 1; attempt <= r.retryAttempts; attempt++ {
		backend, err := r.opener.Open(ctx, profile.DSN, profile.MaxConns)
		r.metrics.ConnectAttempt(err == nil)
		if err == nil {
			p := newPool(key, profile.Mode, backend, r.opener.Dialect(), r.acquireTimeout, r.metrics)
			if r.initializer != nil {
				if err := r.initializer(ctx, p); err != nil {
					_ = p.Close()
					r.metrics.PoolConstruction(mode, "init_failed")
					return nil, errors.Join(ErrPoolInit, err)
				}
			}
			r.metrics.PoolConstruction(mode, "success")
			log.InfoContext(ctx, "connection pool ready",
				logger.Attempt(attempt),
				slog.Int("max_conns", int(profile.MaxConns)),
			)
			return p, nil
		}

		lastErr = err
		log.WarnContext(ctx, "connection attempt failed",
			logger.Attempt(attempt),
			slog.Int("max_attempts", r.retryAttempts),
			logger.Error(err),
		)

		if attempt == r.retryAttempts {
			break
		}

		timer := time.NewTimer(r.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.metrics.PoolConstruction(mode, "cancelled")
			return nil, errors.Join(ErrConnectionFailed, ctx.Err())
		case <-timer.C:
		}
	}

	r.metrics.PoolConstruction(mode, "failure")
	return nil, errors.Join(
		fmt.Errorf("%w: pool %q after %d attempts", ErrConnectionFailed, key, r.retryAttempts),
		lastErr,
	)
}

// Keys returns the keys of all cached pools.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.pools))
}

// Shutdown closes every cached pool and clears the cache. Further Acquire
// calls fail with ErrRegistryClosed.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pools := r.pools
	r.pools = make(map[string]*Pool)
	r.mu.Unlock()

	var errs []error
	for key, p := range pools {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pool %q: %w", key, err))
		}
	}
	r.metrics.PoolsClosed(len(pools))
	r.logger.InfoContext(ctx, "connection pools closed", slog.Int("count", len(pools)))

	return errors.Join(errs...)
}

// Ping checks every cached pool. Lazily built strict-mode pools that were
// never referenced are not opened by it.
func (r *Registry) Ping(ctx context.Context) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrRegistryClosed
	}
	pools := slices.Collect(maps.Values(r.pools))
	r.mu.RUnlock()

	var errs []error
	for _, p := range pools {
		if err := p.DB().PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ping pool %q: %w", p.Key(), err))
		}
	}
	return errors.Join(errs...)
}
