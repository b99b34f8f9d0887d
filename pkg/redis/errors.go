package redis

import "errors"

var (
	ErrNoURL      = errors.New("redis: no connection URL configured")
	ErrInvalidURL = errors.New("redis: invalid connection URL")
	ErrNotReady   = errors.New("redis: server did not answer before the connect timeout")
	ErrUnhealthy  = errors.New("redis: ping failed")
)
