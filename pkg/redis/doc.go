// Package redis connects to Redis with retries and exposes a health check
// for the ops endpoint.
//
// The compliance report cache is the main consumer: closed report windows
// are immutable, so once built they can be shared across processes.
//
//	cfg := redis.Config{
//		ConnectionURL:  "redis://localhost:6379/0",
//		RetryAttempts:  3,
//		RetryInterval:  2 * time.Second,
//		ConnectTimeout: 10 * time.Second,
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	check := redis.Healthcheck(client)
//	if err := check(ctx); err != nil {
//		// not healthy
//	}
//
// Config is populated from environment variables by pkg/config. An empty
// REDIS_URL disables Redis; Connect then returns ErrNoURL.
//
// Errors are sentinel values joined with the go-redis cause via errors.Join.
package redis
