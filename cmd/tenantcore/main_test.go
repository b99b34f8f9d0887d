package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantcore/pkg/audit"
	"github.com/dmitrymomot/tenantcore/pkg/compliance"
	"github.com/dmitrymomot/tenantcore/pkg/config"
	"github.com/dmitrymomot/tenantcore/pkg/session"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// sqliteEnv configures a strict-mode SQLite deployment in a temp directory.
func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_DRIVER", driverSQLite)
	t.Setenv("TENANCY_MODE", "strict")
	t.Setenv("TENANT_DSN_TEMPLATE", filepath.Join(t.TempDir(), "{tenant}.db"))
	t.Setenv("TENANTS", "acme,globex")
	t.Setenv("DB_RETRY_ATTEMPTS", "1")
	t.Setenv("AUDIT_SIGNING_KEY", "test-signing-key")
	t.Setenv("REPORT_SCHEDULE", "off")
	config.ResetCache()
	t.Cleanup(config.ResetCache)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg, log, err := setup(nil)
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })
	return a
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		TenancyMode:        "shared",
		DBDriver:           driverPostgres,
		SharedDSN:          "postgres://localhost/app",
		AuditFailurePolicy: "compensate",
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid shared", func(*Config) {}, true},
		{"valid strict", func(c *Config) {
			c.TenancyMode, c.SharedDSN, c.TenantDSNTemplate = "strict", "", "postgres://localhost/tenant_{tenant}"
		}, true},
		{"strict with overrides only", func(c *Config) {
			c.TenancyMode, c.TenantDSNOverrides = "strict", map[string]string{"acme": "postgres://a"}
		}, true},
		{"unknown mode", func(c *Config) { c.TenancyMode = "hybrid" }, false},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, false},
		{"shared without dsn", func(c *Config) { c.SharedDSN = "" }, false},
		{"strict without dsn", func(c *Config) { c.TenancyMode = "strict" }, false},
		{"unknown policy", func(c *Config) { c.AuditFailurePolicy = "ignore" }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"long signing key", func(c *Config) { c.AuditSigningKey = strings.Repeat("k", 65) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errInvalidConfig)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("TENANT_DSN_OVERRIDES", "acme=/data/acme.db;initech=/data/initech.db")
	config.ResetCache()

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, tenant.ModeStrict, cfg.mode())
	assert.Equal(t, []string{"acme", "globex"}, cfg.Tenants)
	assert.Equal(t, map[string]string{"acme": "/data/acme.db", "initech": "/data/initech.db"}, cfg.TenantDSNOverrides)
	assert.Equal(t, int32(5), cfg.TenantPoolMaxConns)
	assert.Equal(t, int32(20), cfg.SharedPoolMaxConns)
	assert.Equal(t, 5*time.Second, cfg.AcquireTimeout)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.Redis.Enabled())
}

func TestCommands(t *testing.T) {
	sqliteEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "acme\tok")
	assert.Contains(t, out, "globex\tok")

	a := newTestApp(t)
	_, err = a.recorder.RecordDetached(context.Background(), "acme", audit.Change{
		EntityType: "workflow",
		EntityID:   "42",
		Kind:       audit.KindStatusChange,
		ActorID:    "u-1",
		Old:        map[string]any{"status": "Draft"},
		New:        map[string]any{"status": "Active"},
	})
	require.NoError(t, err)

	t.Run("search", func(t *testing.T) {
		out, err := run(t, "search", "--tenant", "acme", "--entity-type", "workflow", "--verify")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 1)
		var e audit.Entry
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
		assert.Equal(t, "42", e.EntityID)
		assert.Equal(t, []string{"status"}, e.ChangedFields)
		assert.True(t, e.Critical)

		out, err = run(t, "search", "--tenant", "globex")
		require.NoError(t, err)
		assert.Empty(t, strings.TrimSpace(out))
	})

	t.Run("search rejects bad input", func(t *testing.T) {
		_, err := run(t, "search", "--tenant", "acme", "--from", "yesterday")
		assert.ErrorIs(t, err, compliance.ErrInvalidFilter)

		_, err = run(t, "search")
		assert.Error(t, err)

		_, err = run(t, "search", "--tenant", "initech")
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})

	t.Run("report", func(t *testing.T) {
		now := time.Now().UTC()
		out, err := run(t, "report", "--tenant", "acme",
			"--start", now.Add(-time.Hour).Format(time.RFC3339),
			"--end", now.Add(time.Hour).Format(time.RFC3339),
		)
		require.NoError(t, err)

		var rep compliance.Report
		require.NoError(t, json.Unmarshal([]byte(out), &rep))
		assert.Equal(t, "acme", rep.TenantID)
		assert.EqualValues(t, 1, rep.TotalChanges)
		assert.EqualValues(t, 1, rep.ChangesByKind[audit.KindStatusChange])
		require.Len(t, rep.TopActors, 1)
		assert.Equal(t, "u-1", rep.TopActors[0].DisplayName)
	})
}

func TestSearch_DetectsForeignSignatures(t *testing.T) {
	sqliteEnv(t)
	a := newTestApp(t)
	_, err := a.recorder.RecordDetached(context.Background(), "acme", audit.Change{
		EntityType: "plant", EntityID: "p-1", Kind: audit.KindCreate,
	})
	require.NoError(t, err)

	// A different key makes every stored signature invalid.
	t.Setenv("AUDIT_SIGNING_KEY", "another-key")
	config.ResetCache()

	_, err = run(t, "search", "--tenant", "acme", "--verify")
	assert.ErrorIs(t, err, errTampered)
}

func TestRouter(t *testing.T) {
	sqliteEnv(t)
	a := newTestApp(t)
	h := a.router()

	get := func(path string, header ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if len(header) == 2 {
			req.Header.Set(header[0], header[1])
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Equal(t, http.StatusOK, get("/readyz").Code)

	// Building a tenant pool feeds the pool metrics.
	rec := get("/api/audit/entries", tenant.DefaultOverrideHeader, "acme")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":[],"limit":50,"offset":0}`, rec.Body.String())

	metrics := get("/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "tenantcore_pool_constructions_total")
	assert.Contains(t, metrics.Body.String(), "go_goroutines")

	assert.Equal(t, http.StatusNotFound, get("/api/audit/entries", tenant.DefaultOverrideHeader, "initech").Code)
}

func TestPreviousDay(t *testing.T) {
	t.Parallel()
	start, end := previousDay(time.Date(2026, 3, 2, 15, 4, 5, 0, time.FixedZone("CET", 3600)))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), end)
}

func TestApp_Interceptor(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("AUDIT_FAILURE_POLICY", "best_effort")
	config.ResetCache()
	a := newTestApp(t)

	ctx := context.Background()
	p, err := a.pools.Acquire(ctx, "acme")
	require.NoError(t, err)
	_, err = p.DB().ExecContext(ctx, `CREATE TABLE users (id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, name TEXT NOT NULL)`)
	require.NoError(t, err)
	require.NoError(t, a.interceptor.Register(audit.EntityUser, audit.TableSnapshotter{Table: "users"}))

	create := audit.MustWrap(a.interceptor, audit.Action{
		Entity:     audit.EntityUser,
		Kind:       audit.KindCreate,
		CaptureNew: true,
	}, func(ctx context.Context, s *session.Scope, t audit.Target) (struct{}, error) {
		return struct{}{}, s.Insert(ctx, "users", session.Row{"id": t.EntityID, "name": "Ada"})
	})

	err = a.sessions.Run(ctx, "acme", func(ctx context.Context, s *session.Scope) error {
		_, err := create(ctx, s, audit.Target{EntityID: "u-9", ActorID: "admin"})
		return err
	})
	require.NoError(t, err)

	entries, err := a.reporter.Search(ctx, "acme", compliance.Filters{EntityType: "user"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u-9", entries[0].EntityID)
	assert.Equal(t, "Ada", entries[0].NewValues["name"])
	assert.True(t, a.recorder.Verify(&entries[0]))
}
