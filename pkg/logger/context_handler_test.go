package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantcore/pkg/logger"
)

func tenantFromContext(ctx context.Context) (slog.Attr, bool) {
	return logger.TenantID("acme"), true
}

func TestContextHandler_ExplicitAttrWins(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(buf, nil), tenantFromContext))

	log.InfoContext(context.Background(), "switch", logger.TenantID("globex"))

	assert.Equal(t, 1, strings.Count(buf.String(), `"tenant_id"`))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "globex", entry["tenant_id"])
}

func TestContextHandler_SkipsEmptyAndNil(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	empty := func(context.Context) (slog.Attr, bool) { return slog.Attr{}, true }
	missing := func(context.Context) (slog.Attr, bool) { return slog.String("x", "y"), false }
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(buf, nil), nil, empty, missing))

	log.InfoContext(context.Background(), "msg")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "x")
	assert.NotContains(t, entry, "")
}

func TestContextHandler_MergesWhenWrapped(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	inner := logger.NewContextHandler(slog.NewJSONHandler(buf, nil), tenantFromContext)
	outer := logger.NewContextHandler(inner, func(context.Context) (slog.Attr, bool) {
		return logger.ActorID("u-1"), true
	})

	slog.New(outer).InfoContext(context.Background(), "msg")

	assert.Equal(t, 1, strings.Count(buf.String(), `"tenant_id"`))
	assert.Contains(t, buf.String(), `"actor_id":"u-1"`)
}
