package session_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantcore/pkg/pool"
	"github.com/dmitrymomot/tenantcore/pkg/session"
	"github.com/dmitrymomot/tenantcore/pkg/sqlite"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

const plantsDDL = `CREATE TABLE IF NOT EXISTS plants (
	id        INTEGER PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name      TEXT NOT NULL,
	status    TEXT NOT NULL DEFAULT 'draft'
)`

type fixture struct {
	pools *pool.Registry
	mgr   *session.Manager
}

func setup(t *testing.T, mode tenant.IsolationMode) *fixture {
	t.Helper()

	catalog, err := tenant.NewStaticCatalog([]string{"acme", "globex"}, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	profiles := tenant.NewRegistry(catalog,
		tenant.WithMode(mode),
		tenant.WithDSNTemplate(filepath.Join(dir, "{tenant}.db")),
		tenant.WithSharedDSN(filepath.Join(dir, "shared.db")),
	)

	pools := pool.NewRegistry(profiles, sqlite.NewOpener(),
		pool.WithRetry(1, 0),
		pool.WithAcquireTimeout(time.Second),
		pool.WithInitializer(func(ctx context.Context, p *pool.Pool) error {
			_, err := p.DB().ExecContext(ctx, plantsDDL)
			return err
		}),
	)
	t.Cleanup(func() { _ = pools.Shutdown(context.Background()) })

	return &fixture{pools: pools, mgr: session.NewManager(pools)}
}

func (f *fixture) seed(t *testing.T, id tenant.ID, rows ...session.Row) {
	t.Helper()
	err := f.mgr.Run(context.Background(), id, func(ctx context.Context, s *session.Scope) error {
		for _, r := range rows {
			if err := s.Insert(ctx, "plants", r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func (f *fixture) inUse(t *testing.T, id tenant.ID) int {
	t.Helper()
	p, err := f.pools.Acquire(context.Background(), id)
	require.NoError(t, err)
	return p.Stats().InUse
}

func TestScope_TenantIsolation(t *testing.T) {
	t.Parallel()

	for _, mode := range []tenant.IsolationMode{tenant.ModeStrict, tenant.ModeShared} {
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()
			f := setup(t, mode)
			f.seed(t, "acme",
				session.Row{"id": 1, "name": "Solar North", "status": "active"},
				session.Row{"id": 3, "name": "Wind East"},
			)
			f.seed(t, "globex", session.Row{"id": 2, "name": "Hydro West"})

			// Strict tenants never see each other's database; shared tenants see
			// the row exist and are refused.
			foreign := session.ErrPermissionDenied
			if mode == tenant.ModeStrict {
				foreign = session.ErrNotFound
			}

			err := f.mgr.Run(context.Background(), "acme", func(ctx context.Context, s *session.Scope) error {
				rows, err := s.Find(ctx, "plants", session.Query{OrderBy: []string{"id"}})
				require.NoError(t, err)
				require.Len(t, rows, 2)
				for _, r := range rows {
					assert.Equal(t, "acme", r["tenant_id"])
				}

				n, err := s.Count(ctx, "plants")
				require.NoError(t, err)
				assert.Equal(t, int64(2), n)

				_, err = s.Get(ctx, "plants", 2)
				assert.ErrorIs(t, err, foreign)
				assert.ErrorIs(t, s.Update(ctx, "plants", 2, session.Row{"name": "mine"}), foreign)
				assert.ErrorIs(t, s.Delete(ctx, "plants", 2), foreign)

				_, err = s.Get(ctx, "plants", 99)
				assert.ErrorIs(t, err, session.ErrNotFound)

				err = s.Insert(ctx, "plants", session.Row{"id": 4, "tenant_id": "globex", "name": "x"})
				assert.ErrorIs(t, err, session.ErrPermissionDenied)

				_, err = s.Find(ctx, "plants", session.Query{Where: []session.Cond{session.Eq("tenant_id", "globex")}})
				assert.ErrorIs(t, err, session.ErrPermissionDenied)

				_, err = s.Count(ctx, "plants", session.Neq("tenant_id", "acme"))
				assert.ErrorIs(t, err, session.ErrPermissionDenied)

				own, err := s.Find(ctx, "plants", session.Query{Where: []session.Cond{session.Eq("tenant_id", "acme")}})
				require.NoError(t, err)
				assert.Len(t, own, 2)
				return nil
			})
			require.NoError(t, err)

			row, err := session.Do(context.Background(), f.mgr, "globex", func(ctx context.Context, s *session.Scope) (session.Row, error) {
				return s.Get(ctx, "plants", 2)
			})
			require.NoError(t, err)
			assert.Equal(t, "Hydro West", row["name"])
		})
	}
}

func TestScope_Helpers(t *testing.T) {
	t.Parallel()

	f := setup(t, tenant.ModeShared)
	f.seed(t, "acme",
		session.Row{"id": 1, "name": "Alpha", "status": "active"},
		session.Row{"id": 2, "name": "Beta", "status": "draft"},
		session.Row{"id": 3, "name": "Gamma", "status": "active"},
	)
	f.seed(t, "globex", session.Row{"id": 4, "name": "Delta", "status": "active"})

	err := f.mgr.Run(context.Background(), "acme", func(ctx context.Context, s *session.Scope) error {
		assert.Equal(t, tenant.ID("acme"), s.Tenant())
		assert.Equal(t, tenant.ModeShared, s.Mode())
		assert.Equal(t, "sqlite3", s.Dialect().Name())

		t.Run("find with filters, order and paging", func(t *testing.T) {
			rows, err := s.Find(ctx, "plants", session.Query{
				Where:   []session.Cond{session.Eq("status", "active")},
				OrderBy: []string{"name desc"},
				Limit:   1,
				Offset:  1,
			})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "Alpha", rows[0]["name"])

			rows, err = s.Find(ctx, "plants", session.Query{OrderBy: []string{"id"}, Offset: 2})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, int64(3), rows[0]["id"])

			rows, err = s.Find(ctx, "plants", session.Query{Where: []session.Cond{session.Like("name", "%amm%")}})
			require.NoError(t, err)
			assert.Len(t, rows, 1)

			rows, err = s.Find(ctx, "plants", session.Query{Where: []session.Cond{session.Contains("name", "amm")}})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "Gamma", rows[0]["name"])

			rows, err = s.Find(ctx, "plants", session.Query{Where: []session.Cond{session.Contains("name", "AMM")}})
			require.NoError(t, err)
			assert.Empty(t, rows)

			rows, err = s.Find(ctx, "plants", session.Query{Where: []session.Cond{session.Contains("name", "%a%")}})
			require.NoError(t, err)
			assert.Empty(t, rows)
		})

		t.Run("group count", func(t *testing.T) {
			counts, err := s.GroupCount(ctx, "plants", "status")
			require.NoError(t, err)
			assert.Equal(t, map[string]int64{"active": 2, "draft": 1}, counts)
		})

		t.Run("update and delete own rows", func(t *testing.T) {
			require.NoError(t, s.Update(ctx, "plants", 2, session.Row{"status": "active", "tenant_id": "acme"}))
			row, err := s.Get(ctx, "plants", 2)
			require.NoError(t, err)
			assert.Equal(t, "active", row["status"])

			require.NoError(t, s.Delete(ctx, "plants", 3))
			_, err = s.Get(ctx, "plants", 3)
			assert.ErrorIs(t, err, session.ErrNotFound)
		})

		t.Run("invalid input", func(t *testing.T) {
			_, err := s.Get(ctx, "plants; DROP TABLE plants", 1)
			assert.ErrorIs(t, err, session.ErrInvalidQuery)

			_, err = s.Find(ctx, "plants", session.Query{OrderBy: []string{"name sideways"}})
			assert.ErrorIs(t, err, session.ErrInvalidQuery)

			_, err = s.Find(ctx, "plants", session.Query{Where: []session.Cond{{Column: "name", Op: "IN", Value: "x"}}})
			assert.ErrorIs(t, err, session.ErrInvalidQuery)

			err = s.Update(ctx, "plants", 1, session.Row{"tenant_id": "acme"})
			assert.ErrorIs(t, err, session.ErrInvalidQuery)
		})
		return nil
	})
	require.NoError(t, err)
}

func TestManager_Run(t *testing.T) {
	t.Parallel()

	count := func(t *testing.T, f *fixture) int64 {
		t.Helper()
		n, err := session.Do(context.Background(), f.mgr, "acme", func(ctx context.Context, s *session.Scope) (int64, error) {
			return s.Count(ctx, "plants")
		})
		require.NoError(t, err)
		return n
	}

	t.Run("commits on success", func(t *testing.T) {
		t.Parallel()
		f := setup(t, tenant.ModeStrict)
		f.seed(t, "acme", session.Row{"id": 1, "name": "Alpha"})
		assert.Equal(t, int64(1), count(t, f))
		assert.Zero(t, f.inUse(t, "acme"))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		t.Parallel()
		f := setup(t, tenant.ModeStrict)
		boom := errors.New("business rule violated")

		err := f.mgr.Run(context.Background(), "acme", func(ctx context.Context, s *session.Scope) error {
			require.NoError(t, s.Insert(ctx, "plants", session.Row{"id": 1, "name": "Alpha"}))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, count(t, f))
		assert.Zero(t, f.inUse(t, "acme"))
	})

	t.Run("rolls back and re-panics", func(t *testing.T) {
		t.Parallel()
		f := setup(t, tenant.ModeShared)

		assert.PanicsWithValue(t, "boom", func() {
			_ = f.mgr.Run(context.Background(), "acme", func(ctx context.Context, s *session.Scope) error {
				require.NoError(t, s.Insert(ctx, "plants", session.Row{"id": 1, "name": "Alpha"}))
				panic("boom")
			})
		})
		assert.Zero(t, count(t, f))
		assert.Zero(t, f.inUse(t, "acme"))
	})

	t.Run("rolls back on cancellation", func(t *testing.T) {
		t.Parallel()
		f := setup(t, tenant.ModeStrict)
		ctx, cancel := context.WithCancel(context.Background())

		err := f.mgr.Run(ctx, "acme", func(ctx context.Context, s *session.Scope) error {
			require.NoError(t, s.Insert(ctx, "plants", session.Row{"id": 1, "name": "Alpha"}))
			cancel()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, count(t, f))
		assert.Zero(t, f.inUse(t, "acme"))
	})

	t.Run("scope is unusable after the unit of work", func(t *testing.T) {
		t.Parallel()
		f := setup(t, tenant.ModeStrict)

		var leaked *session.Scope
		err := f.mgr.Run(context.Background(), "acme", func(ctx context.Context, s *session.Scope) error {
			leaked = s
			got, ok := session.FromContext(ctx)
			assert.True(t, ok)
			assert.Same(t, s, got)
			return nil
		})
		require.NoError(t, err)

		_, err = leaked.Get(context.Background(), "plants", 1)
		assert.ErrorIs(t, err, session.ErrScopeClosed)

		_, ok := session.FromContext(session.WithScope(context.Background(), leaked))
		assert.False(t, ok)
	})

	t.Run("completion hooks run after release", func(t *testing.T) {
		t.Parallel()
		f := setup(t, tenant.ModeStrict)
		boom := errors.New("delete refused")

		var outcomes []bool
		err := f.mgr.Run(context.Background(), "acme", func(ctx context.Context, s *session.Scope) error {
			require.NoError(t, s.Insert(ctx, "plants", session.Row{"id": 1, "name": "Alpha"}))
			s.AfterCompletion(func(ctx context.Context, committed bool) {
				outcomes = append(outcomes, committed)
				assert.Zero(t, f.inUse(t, "acme"))
				// A separate unit of work survives the rollback above.
				assert.NoError(t, f.mgr.Run(ctx, "acme", func(ctx context.Context, s *session.Scope) error {
					return s.Insert(ctx, "plants", session.Row{"id": 2, "name": "Recorded"})
				}))
			})
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []bool{false}, outcomes)
		assert.Equal(t, int64(1), count(t, f))

		err = f.mgr.Run(context.Background(), "acme", func(ctx context.Context, s *session.Scope) error {
			s.AfterCompletion(func(_ context.Context, committed bool) {
				outcomes = append(outcomes, committed)
			})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []bool{false, true}, outcomes)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()
		f := setup(t, tenant.ModeStrict)
		err := f.mgr.Run(context.Background(), "umbrella", func(context.Context, *session.Scope) error {
			t.Fatal("must not run")
			return nil
		})
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})
}
