// Package pool owns the database connection pools behind tenant units of work.
//
// A Registry maps tenant profiles to pools: one pool per tenant in strict
// isolation mode, a single shared pool in shared mode. Pools are built on
// first reference through an Opener (see packages pg and sqlite), with a
// bounded number of attempts separated by a fixed delay. Concurrent first
// references share one construction; a failed construction is not cached.
//
//	pools := pool.NewRegistry(tenants, pg.NewOpener(cfg.Postgres),
//		pool.WithRetry(3, 2*time.Second),
//		pool.WithAcquireTimeout(5*time.Second),
//		pool.WithInitializer(migrate),
//	)
//	if err := pools.Init(ctx); err != nil { // builds the shared pool eagerly
//		return err
//	}
//	defer pools.Shutdown(context.Background())
//
// Pool.Conn waits at most the acquire timeout for a free connection and then
// fails with ErrConnectionExhausted. Construction failures surface as
// ErrConnectionFailed (joined with the last driver error) or ErrPoolInit.
package pool
