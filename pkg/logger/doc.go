// Package logger builds *slog.Logger instances with functional options and
// adds request-scoped attributes from context on every record.
//
// New picks a text or JSON handler, applies static attributes and wraps the
// handler with ContextHandler, which runs the registered ContextExtractor
// callbacks when a record is handled. An attribute passed explicitly to a log
// call takes precedence over the one extracted from context.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.AppEnv, "tenantcore"),
//		logger.WithLevelName(cfg.LogLevel),
//		logger.WithContextExtractors(tenant.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "pool opened", logger.PoolKey(key), logger.Duration(time.Since(start)))
//
// Attribute helpers (TenantID, ActorID, Entity, PoolKey, Error, ...) keep key
// names consistent. Error returns an empty attribute for a nil error, so it
// can be passed unconditionally.
package logger
