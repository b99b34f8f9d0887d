package pool

import "errors"

var (
	// ErrConnectionFailed is returned when a pool could not be built within the retry bound.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrConnectionExhausted is returned when no pooled connection became available in time.
	ErrConnectionExhausted = errors.New("connection pool exhausted")

	// ErrRegistryClosed is returned by Acquire after Shutdown.
	ErrRegistryClosed = errors.New("pool registry is shut down")

	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrPoolInit is returned when the pool initializer (e.g. migrations) fails.
	ErrPoolInit = errors.New("pool initialization failed")
)
