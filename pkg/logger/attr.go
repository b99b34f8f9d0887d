package logger

import (
	"log/slog"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error records err under "error". A nil error yields an empty Attr, which
// handlers drop.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func TenantID(id string) slog.Attr { return slog.String("tenant_id", id) }

func ActorID(id string) slog.Attr { return slog.String("actor_id", id) }

// Entity records an audited entity as {"entity": {"type": ..., "id": ...}}.
func Entity(entityType, entityID string) slog.Attr {
	return Group("entity", slog.String("type", entityType), slog.String("id", entityID))
}

// PoolKey records a connection pool key: a tenant id in strict mode,
// "shared" otherwise.
func PoolKey(key string) slog.Attr { return slog.String("pool", key) }

// RequestID records the request identifier. A nil id yields an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// Attempt records the 1-based attempt number of a retried operation.
func Attempt(n int) slog.Attr { return slog.Int("attempt", n) }

func Duration(d time.Duration) slog.Attr { return slog.Duration("duration", d) }

func Component(name string) slog.Attr { return slog.String("component", name) }
