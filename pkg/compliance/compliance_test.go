package compliance_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantcore/internal/testutil"
	"github.com/dmitrymomot/tenantcore/pkg/audit"
	"github.com/dmitrymomot/tenantcore/pkg/clientip"
	"github.com/dmitrymomot/tenantcore/pkg/compliance"
	"github.com/dmitrymomot/tenantcore/pkg/session"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	db  *testutil.DB
	rec *audit.Recorder
	at  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: testutil.NewDB(t, tenant.ModeShared, "acme", "globex")}
	f.rec = audit.NewRecorder(audit.NewSQLStore(), f.db.Sessions,
		audit.WithClock(func() time.Time { return f.at }),
		audit.WithIPExtractor(clientip.IPExtractor),
	)
	return f
}

func (f *fixture) record(t *testing.T, id tenant.ID, at time.Time, ip string, c audit.Change) {
	t.Helper()
	f.at = at
	ctx := clientip.SetIPToContext(context.Background(), ip)
	_, err := f.rec.RecordDetached(ctx, id, c)
	require.NoError(t, err)
}

// seed writes four changes on day one and one on day two for acme, plus one
// change for globex.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	f.record(t, "acme", day.Add(1*time.Hour), "10.0.0.1", audit.Change{
		EntityType: "workflow", EntityID: "42", Kind: audit.KindStatusChange, ActorID: "u-1",
		Old: map[string]any{"status": "Draft"}, New: map[string]any{"status": "Active"},
	})
	f.record(t, "acme", day.Add(2*time.Hour), "10.0.0.2", audit.Change{
		EntityType: "plant", EntityID: "p-1", Kind: audit.KindUpdate, ActorID: "u-2",
		Old: map[string]any{"capacity": 5}, New: map[string]any{"capacity": 8},
	})
	f.record(t, "acme", day.Add(3*time.Hour), "10.0.0.2", audit.Change{
		EntityType: "document", EntityID: "7", Kind: audit.KindDelete, ActorID: "u-1",
		Old: map[string]any{"name": "x.pdf"},
	})
	f.record(t, "acme", day.Add(4*time.Hour), "", audit.Change{
		EntityType: "task", EntityID: "t-1", Kind: audit.KindCreate, Automatic: true,
		New: map[string]any{"title": "inspect"},
	})
	f.record(t, "acme", day.Add(25*time.Hour), "10.0.0.3", audit.Change{
		EntityType: "workflow", EntityID: "42", Kind: audit.KindResponsibleChange, ActorID: "u-3",
		Old: map[string]any{"responsible": "u-1"}, New: map[string]any{"responsible": "u-3"},
	})
	f.record(t, "globex", day.Add(26*time.Hour), "10.9.9.9", audit.Change{
		EntityType: "workflow", EntityID: "1", Kind: audit.KindCreate, ActorID: "g-1",
	})
}

func ids(entries []audit.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.EntityType + "/" + e.EntityID + "/" + string(e.Kind)
	}
	return out
}

func TestReporter_Search(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t)
	r := compliance.NewReporter(f.db.Sessions)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters compliance.Filters
		want    []string
	}{
		{
			name: "newest first",
			want: []string{
				"workflow/42/responsible_change",
				"task/t-1/create",
				"document/7/delete",
				"plant/p-1/update",
				"workflow/42/status_change",
			},
		},
		{
			name:    "entity type",
			filters: compliance.Filters{EntityType: "workflow"},
			want:    []string{"workflow/42/responsible_change", "workflow/42/status_change"},
		},
		{
			name:    "entity id and kind",
			filters: compliance.Filters{EntityID: "42", Kind: audit.KindStatusChange},
			want:    []string{"workflow/42/status_change"},
		},
		{
			name:    "actor",
			filters: compliance.Filters{ActorID: "u-1"},
			want:    []string{"document/7/delete", "workflow/42/status_change"},
		},
		{
			name:    "ip address",
			filters: compliance.Filters{IP: "10.0.0.2"},
			want:    []string{"document/7/delete", "plant/p-1/update"},
		},
		{
			name:    "changed field",
			filters: compliance.Filters{ChangedField: "capacity"},
			want:    []string{"plant/p-1/update"},
		},
		{
			name:    "changed field is case-sensitive",
			filters: compliance.Filters{ChangedField: "Capacity"},
			want:    []string{},
		},
		{
			name:    "changed field matches whole names",
			filters: compliance.Filters{ChangedField: "capa"},
			want:    []string{},
		},
		{
			name:    "changed field has no wildcards",
			filters: compliance.Filters{ChangedField: "_apacity"},
			want:    []string{},
		},
		{
			name:    "changed field percent is literal",
			filters: compliance.Filters{ChangedField: "%"},
			want:    []string{},
		},
		{
			name:    "date range is inclusive",
			filters: compliance.Filters{From: day.Add(2 * time.Hour), To: day.Add(4 * time.Hour)},
			want:    []string{"task/t-1/create", "document/7/delete", "plant/p-1/update"},
		},
		{
			name:    "range in another zone",
			filters: compliance.Filters{From: day.Add(24 * time.Hour).In(time.FixedZone("EST", -5*3600))},
			want:    []string{"workflow/42/responsible_change"},
		},
		{
			name:    "paging",
			filters: compliance.Filters{Limit: 2, Offset: 1},
			want:    []string{"task/t-1/create", "document/7/delete"},
		},
		{
			name:    "nothing matches",
			filters: compliance.Filters{ActorID: "nobody"},
			want:    []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Search(ctx, "acme", tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	t.Run("tenant isolation", func(t *testing.T) {
		got, err := r.Search(ctx, "globex", compliance.Filters{})
		require.NoError(t, err)
		assert.Equal(t, []string{"workflow/1/create"}, ids(got))
		assert.Equal(t, "globex", got[0].TenantID)
	})

	t.Run("entries verify", func(t *testing.T) {
		got, err := r.Search(ctx, "acme", compliance.Filters{})
		require.NoError(t, err)
		for i := range got {
			assert.True(t, f.rec.Verify(&got[i]), got[i].ID)
		}
	})

	t.Run("invalid filters", func(t *testing.T) {
		for _, fl := range []compliance.Filters{
			{Kind: "archive"},
			{From: day.Add(time.Hour), To: day},
			{Offset: -1},
			{Limit: -5},
		} {
			_, err := r.Search(ctx, "acme", fl)
			assert.ErrorIs(t, err, compliance.ErrInvalidFilter)
		}
	})

	t.Run("unknown tenant", func(t *testing.T) {
		_, err := r.Search(ctx, "initech", compliance.Filters{})
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})
}

func TestReporter_SearchLimits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.db.Exec(t, "acme", func(ctx context.Context, s *session.Scope) error {
		for i := range compliance.MaxLimit + 10 {
			f.at = day.Add(time.Duration(i) * time.Second)
			if _, err := f.rec.Record(ctx, s, audit.Change{EntityType: "task", EntityID: fmt.Sprint(i), Kind: audit.KindCreate}); err != nil {
				return err
			}
		}
		return nil
	})
	r := compliance.NewReporter(f.db.Sessions)

	got, err := r.Search(context.Background(), "acme", compliance.Filters{})
	require.NoError(t, err)
	assert.Len(t, got, compliance.DefaultLimit)

	got, err = r.Search(context.Background(), "acme", compliance.Filters{Limit: 10000})
	require.NoError(t, err)
	assert.Len(t, got, compliance.MaxLimit)

	got, err = r.Search(context.Background(), "acme", compliance.Filters{Offset: compliance.MaxLimit})
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestReporter_Report(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t)
	r := compliance.NewReporter(f.db.Sessions,
		compliance.WithActorDirectory(compliance.StaticDirectory{"u-1": "Alice"}),
	)
	ctx := context.Background()

	t.Run("first day", func(t *testing.T) {
		rep, err := r.Report(ctx, "acme", day, day.Add(24*time.Hour), "")
		require.NoError(t, err)

		assert.Equal(t, "acme", rep.TenantID)
		assert.EqualValues(t, 4, rep.TotalChanges)
		assert.Equal(t, map[audit.ChangeKind]int64{
			audit.KindCreate:            1,
			audit.KindUpdate:            1,
			audit.KindStatusChange:      1,
			audit.KindResponsibleChange: 0,
			audit.KindDelete:            1,
		}, rep.ChangesByKind)
		assert.Equal(t, map[string]int64{"workflow": 1, "plant": 1, "document": 1, "task": 1}, rep.ChangesByEntity)
		assert.Equal(t, []compliance.ActorActivity{
			{ActorID: "u-1", DisplayName: "Alice", Changes: 2},
			{ActorID: "u-2", DisplayName: "u-2", Changes: 1},
		}, rep.TopActors)
		assert.EqualValues(t, 2, rep.CriticalChanges)
		assertConsistent(t, rep)
	})

	t.Run("entity type", func(t *testing.T) {
		rep, err := r.Report(ctx, "acme", day, day.Add(48*time.Hour), "workflow")
		require.NoError(t, err)
		assert.EqualValues(t, 2, rep.TotalChanges)
		assert.Equal(t, map[string]int64{"workflow": 2}, rep.ChangesByEntity)
		assert.EqualValues(t, 2, rep.CriticalChanges)
		assertConsistent(t, rep)
	})

	t.Run("end is exclusive", func(t *testing.T) {
		rep, err := r.Report(ctx, "acme", day, day.Add(time.Hour), "")
		require.NoError(t, err)
		assert.Zero(t, rep.TotalChanges)
	})

	t.Run("empty window", func(t *testing.T) {
		rep, err := r.Report(ctx, "acme", day.Add(-48*time.Hour), day, "")
		require.NoError(t, err)
		assert.Zero(t, rep.TotalChanges)
		assert.Len(t, rep.ChangesByKind, len(audit.Kinds()))
		assert.Empty(t, rep.ChangesByEntity)
		assert.Empty(t, rep.TopActors)
		assertConsistent(t, rep)
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := r.Report(ctx, "acme", day, day, "")
		assert.ErrorIs(t, err, compliance.ErrInvalidWindow)
	})
}

func assertConsistent(t *testing.T, rep *compliance.Report) {
	t.Helper()
	var byKind, byEntity int64
	for _, n := range rep.ChangesByKind {
		byKind += n
	}
	for _, n := range rep.ChangesByEntity {
		byEntity += n
	}
	assert.Equal(t, rep.TotalChanges, byKind)
	assert.Equal(t, rep.TotalChanges, byEntity)
}

func TestReporter_TopActors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.db.Exec(t, "acme", func(ctx context.Context, s *session.Scope) error {
		if err := s.Insert(ctx, "users", session.Row{"id": "a-00", "name": "Zed"}); err != nil {
			return err
		}
		f.at = day
		for i := range 12 {
			for range i + 1 {
				f.at = f.at.Add(time.Second)
				_, err := f.rec.Record(ctx, s, audit.Change{
					EntityType: "task", EntityID: "t", Kind: audit.KindUpdate, ActorID: fmt.Sprintf("a-%02d", i),
				})
				if err != nil {
					return err
				}
			}
		}
		return nil
	})

	r := compliance.NewReporter(f.db.Sessions,
		compliance.WithActorDirectory(compliance.TableDirectory{Table: "users", Column: "name"}),
	)
	rep, err := r.Report(context.Background(), "acme", day, day.Add(time.Hour), "")
	require.NoError(t, err)

	require.Len(t, rep.TopActors, compliance.TopActorsLimit)
	assert.Equal(t, "a-11", rep.TopActors[0].ActorID)
	assert.EqualValues(t, 12, rep.TopActors[0].Changes)
	assert.Equal(t, "a-02", rep.TopActors[9].ActorID)
	for _, a := range rep.TopActors {
		assert.NotEqual(t, "a-00", a.ActorID)
	}
	assert.Equal(t, "a-11", rep.TopActors[0].DisplayName)
}

func TestTableDirectory(t *testing.T) {
	t.Parallel()

	db := testutil.NewDB(t, tenant.ModeShared, "acme", "globex")
	db.Exec(t, "globex", func(ctx context.Context, s *session.Scope) error {
		return s.Insert(ctx, "users", session.Row{"id": "g-1", "name": "Gina"})
	})
	db.Exec(t, "acme", func(ctx context.Context, s *session.Scope) error {
		return s.Insert(ctx, "users", session.Row{"id": "u-1", "name": "Alice"})
	})

	dir := compliance.TableDirectory{Table: "users", Column: "name"}
	db.Exec(t, "acme", func(ctx context.Context, s *session.Scope) error {
		name, err := dir.DisplayName(ctx, s, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "Alice", name)

		name, err = dir.DisplayName(ctx, s, "g-1")
		require.NoError(t, err)
		assert.Empty(t, name, "other tenant's user is not visible")

		name, err = dir.DisplayName(ctx, s, "missing")
		require.NoError(t, err)
		assert.Empty(t, name)
		return nil
	})
}

func TestReporter_Cache(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t)

	now := day.Add(72 * time.Hour)
	r := compliance.NewReporter(f.db.Sessions,
		compliance.WithReportCache(compliance.NewMemoryCache(16, time.Hour)),
		compliance.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	first, err := r.Report(ctx, "acme", day, day.Add(24*time.Hour), "")
	require.NoError(t, err)
	assert.EqualValues(t, 4, first.TotalChanges)

	// A late write into the closed window is not seen by the cached report.
	late := audit.NewRecorder(audit.NewSQLStore(), f.db.Sessions,
		audit.WithClock(func() time.Time { return day.Add(5 * time.Hour) }))
	_, err = late.RecordDetached(ctx, "acme", audit.Change{EntityType: "task", EntityID: "t-2", Kind: audit.KindCreate})
	require.NoError(t, err)

	second, err := r.Report(ctx, "acme", day, day.Add(24*time.Hour), "")
	require.NoError(t, err)
	assert.Same(t, first, second)

	t.Run("open windows are not cached", func(t *testing.T) {
		a, err := r.Report(ctx, "acme", day, now.Add(time.Hour), "")
		require.NoError(t, err)
		b, err := r.Report(ctx, "acme", day, now.Add(time.Hour), "")
		require.NoError(t, err)
		assert.NotSame(t, a, b)
		assert.EqualValues(t, 6, a.TotalChanges)
	})
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (*compliance.Report, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenCache) Set(context.Context, string, *compliance.Report) error {
	return errors.New("cache down")
}

func TestReporter_CacheFailuresAreIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t)
	r := compliance.NewReporter(f.db.Sessions, compliance.WithReportCache(brokenCache{}))

	rep, err := r.Report(context.Background(), "acme", day, day.Add(24*time.Hour), "")
	require.NoError(t, err)
	assert.EqualValues(t, 4, rep.TotalChanges)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	c := compliance.NewRedisCache(client, fmt.Sprintf("tenantcore-test-%d", time.Now().UnixNano()), time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	want := &compliance.Report{
		TenantID:        "acme",
		Start:           day,
		End:             day.Add(24 * time.Hour),
		TotalChanges:    3,
		ChangesByKind:   map[audit.ChangeKind]int64{audit.KindCreate: 3},
		ChangesByEntity: map[string]int64{"task": 3},
		TopActors:       []compliance.ActorActivity{{ActorID: "u-1", DisplayName: "Alice", Changes: 3}},
		GeneratedAt:     day.Add(25 * time.Hour),
	}
	require.NoError(t, c.Set(ctx, "k", want))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t)
	r := compliance.NewReporter(f.db.Sessions)

	var (
		mu      sync.Mutex
		reports = map[string]*compliance.Report{}
	)
	sink := compliance.SinkFunc(func(_ context.Context, rep *compliance.Report) error {
		mu.Lock()
		defer mu.Unlock()
		reports[rep.TenantID] = rep
		return nil
	})

	s := compliance.NewScheduler(r, f.db.Tenants,
		compliance.WithSink(sink),
		compliance.WithSchedulerClock(func() time.Time { return day.Add(30 * time.Hour) }),
	)
	require.NoError(t, s.RunOnce(context.Background()))

	require.Len(t, reports, 2)
	acme := reports["acme"]
	assert.Equal(t, day.Add(24*time.Hour), acme.Start)
	assert.Equal(t, day.Add(48*time.Hour), acme.End)
	assert.EqualValues(t, 1, acme.TotalChanges)
	assert.EqualValues(t, 1, reports["globex"].TotalChanges)

	t.Run("sink failures are joined", func(t *testing.T) {
		failing := compliance.NewScheduler(r, f.db.Tenants,
			compliance.WithSink(compliance.SinkFunc(func(context.Context, *compliance.Report) error {
				return errors.New("mailbox full")
			})),
		)
		err := failing.RunOnce(context.Background())
		assert.ErrorContains(t, err, "deliver report for acme")
		assert.ErrorContains(t, err, "deliver report for globex")
	})
}

func TestScheduler_Lifecycle(t *testing.T) {
	t.Parallel()

	db := testutil.NewDB(t, tenant.ModeShared, "acme")
	r := compliance.NewReporter(db.Sessions)
	ctx := context.Background()

	bad := compliance.NewScheduler(r, db.Tenants, compliance.WithSchedule("every now and then"))
	assert.Error(t, bad.Start(ctx))

	s := compliance.NewScheduler(r, db.Tenants, compliance.WithSchedule("0 3 * * *"))
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx))

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(stopCtx))
	assert.NoError(t, s.Stop(stopCtx))

	assert.NoError(t, compliance.LogSink{}.Deliver(ctx, &compliance.Report{TenantID: "acme"}))
}
