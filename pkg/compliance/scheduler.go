package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// DefaultSchedule builds reports once a day, shortly after midnight UTC.
const DefaultSchedule = "@daily"

// Sink receives scheduled reports.
type Sink interface {
	Deliver(ctx context.Context, r *Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r *Report) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, r *Report) error { return f(ctx, r) }

// LogSink writes a summary of each report to a logger.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements Sink.
func (s LogSink) Deliver(ctx context.Context, r *Report) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "compliance report",
		logger.TenantID(r.TenantID),
		slog.Time("start", r.Start),
		slog.Time("end", r.End),
		slog.Int64("total_changes", r.TotalChanges),
		slog.Int64("critical_changes", r.CriticalChanges),
		slog.Int("actors", len(r.TopActors)),
	)
	return nil
}

// TenantLister lists the tenants to report on. *tenant.Registry implements it.
type TenantLister interface {
	Tenants() []tenant.ID
}

// Scheduler builds the previous day's report for every tenant on a cron
// schedule and hands each one to a Sink.
type Scheduler struct {
	reporter    *Reporter
	tenants     TenantLister
	sink        Sink
	spec        string
	concurrency int
	now         func() time.Time
	logger      *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedule sets the cron spec (standard five fields or descriptors such as "@daily").
func WithSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// WithSink sets where reports go. Defaults to LogSink.
func WithSink(sink Sink) SchedulerOption {
	return func(s *Scheduler) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithConcurrency bounds how many tenants are reported on at once.
func WithConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithSchedulerClock overrides the time source deciding which day is reported.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a scheduler. It does nothing until Start.
func NewScheduler(r *Reporter, tenants TenantLister, opts ...SchedulerOption) *Scheduler {
	if r == nil || tenants == nil {
		panic("compliance: reporter and tenant lister are required")
	}
	s := &Scheduler{
		reporter:    r,
		tenants:     tenants,
		spec:        DefaultSchedule,
		concurrency: 4,
		now:         time.Now,
		logger:      r.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = LogSink{Logger: s.logger}
	}
	return s
}

// Start registers the cron job and starts the scheduler. ctx is the parent
// of every run; cancel it or call Stop to end scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("compliance: scheduler already started")
	}

	log := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	if _, err := c.AddFunc(s.spec, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "scheduled compliance reports failed", logger.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("compliance: invalid schedule %q: %w", s.spec, err)
	}

	c.Start()
	s.cron = c
	s.logger.InfoContext(ctx, "compliance scheduler started", slog.String("schedule", s.spec))
	return nil
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.logger.InfoContext(ctx, "compliance scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce reports on the previous UTC day for every tenant. A failing
// tenant does not stop the others; all failures are returned joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	end := s.now().UTC().Truncate(24 * time.Hour)
	start := end.Add(-24 * time.Hour)

	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, id := range s.tenants.Tenants() {
		g.Go(func() error {
			rep, err := s.reporter.Report(ctx, id, start, end, "")
			if err != nil {
				fail(fmt.Errorf("report for %s: %w", id, err))
				return nil
			}
			if err := s.sink.Deliver(ctx, rep); err != nil {
				fail(fmt.Errorf("deliver report for %s: %w", id, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
