package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor derives an attribute from a request context, such as the
// resolved tenant or the request id.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// ContextHandler adds attributes extracted from the record's context. An
// extracted key already set on the record is skipped, so an explicit
// logger.TenantID in a call wins over the tenant found in context.
type ContextHandler struct {
	next       slog.Handler
	extractors []ContextExtractor
}

// NewContextHandler wraps next. Nil extractors are ignored; wrapping another
// ContextHandler merges the extractor lists instead of nesting.
func NewContextHandler(next slog.Handler, extractors ...ContextExtractor) *ContextHandler {
	var base []ContextExtractor
	if inner, ok := next.(*ContextHandler); ok {
		next, base = inner.next, inner.extractors
	}
	all := make([]ContextExtractor, 0, len(base)+len(extractors))
	all = append(all, base...)
	for _, ex := range extractors {
		if ex != nil {
			all = append(all, ex)
		}
	}
	return &ContextHandler{next: next, extractors: all}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if len(h.extractors) == 0 || ctx == nil {
		return h.next.Handle(ctx, rec)
	}

	var seen map[string]struct{}
	for _, ex := range h.extractors {
		attr, ok := ex(ctx)
		if !ok || attr.Equal(slog.Attr{}) {
			continue
		}
		if seen == nil {
			seen = make(map[string]struct{}, rec.NumAttrs())
			rec.Attrs(func(a slog.Attr) bool {
				seen[a.Key] = struct{}{}
				return true
			})
		}
		if _, dup := seen[attr.Key]; dup {
			continue
		}
		seen[attr.Key] = struct{}{}
		rec.AddAttrs(attr)
	}
	return h.next.Handle(ctx, rec)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name), extractors: h.extractors}
}
