package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantcore/pkg/logger"
)

func TestGroup(t *testing.T) {
	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestError(t *testing.T) {
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestDomainAttrs(t *testing.T) {
	assert.Equal(t, slog.String("tenant_id", "acme"), logger.TenantID("acme"))
	assert.Equal(t, slog.String("actor_id", "u-1"), logger.ActorID("u-1"))
	assert.Equal(t, slog.String("pool", "shared"), logger.PoolKey("shared"))
	assert.Equal(t, slog.Duration("duration", time.Second), logger.Duration(time.Second))
	assert.Equal(t, slog.Int("attempt", 2), logger.Attempt(2))
	assert.Equal(t, slog.String("component", "pool"), logger.Component("pool"))
	assert.True(t, logger.RequestID(nil).Equal(slog.Attr{}))

	entity := logger.Entity("workflow", "42")
	require.Equal(t, "entity", entity.Key)
	g := entity.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "workflow", g[0].Value.String())
	assert.Equal(t, "42", g[1].Value.String())
}
