// Package compliance answers questions about a tenant's audit trail.
//
// Search filters entries by entity, actor, change kind, IP address, date
// range and changed field, newest first, with limit/offset paging:
//
//	entries, err := reporter.Search(ctx, "acme", compliance.Filters{
//		EntityType:   "workflow",
//		ChangedField: "status",
//		From:         time.Now().AddDate(0, 0, -7),
//	})
//
// Report aggregates a window [start, end): total changes, changes per kind
// (every kind listed, zero-filled), changes per observed entity type, the ten
// most active actors with display names from an ActorDirectory, and the
// number of critical changes. The totals always agree:
//
//	TotalChanges == sum(ChangesByKind) == sum(ChangesByEntity)
//
// Reports of windows that have already closed never change and can be cached
// with a ReportCache: MemoryCache for one process, RedisCache to share them.
//
// Scheduler builds the previous UTC day's report for every tenant on a cron
// schedule and passes each report to a Sink.
//
//	s := compliance.NewScheduler(reporter, tenants,
//		compliance.WithSchedule("@daily"),
//		compliance.WithSink(compliance.LogSink{Logger: log}),
//	)
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Stop(context.Background())
package compliance
