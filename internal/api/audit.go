package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrymomot/tenantcore/pkg/audit"
	"github.com/dmitrymomot/tenantcore/pkg/compliance"
	"github.com/dmitrymomot/tenantcore/pkg/dataerr"
	"github.com/dmitrymomot/tenantcore/pkg/logger"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

type auditHandler struct {
	reporter *compliance.Reporter
	logger   *slog.Logger
}

type searchResponse struct {
	Entries []audit.Entry `json:"entries"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

func (h *auditHandler) search(w http.ResponseWriter, r *http.Request) {
	id, ok := tenant.FromContext(r.Context())
	if !ok {
		h.fail(w, r, tenant.ErrTenantNotFound)
		return
	}
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.reporter.Search(r.Context(), id, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = compliance.DefaultLimit
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Entries: entries,
		Limit:   min(limit, compliance.MaxLimit),
		Offset:  f.Offset,
	})
}

func (h *auditHandler) report(w http.ResponseWriter, r *http.Request) {
	id, ok := tenant.FromContext(r.Context())
	if !ok {
		h.fail(w, r, tenant.ErrTenantNotFound)
		return
	}
	q := r.URL.Query()
	start, err := parseTime(q, "start")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := parseTime(q, "end")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rep, err := h.reporter.Report(r.Context(), id, start, end, q.Get("entity_type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *auditHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if c := dataerr.Classify(err); c.Status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "audit request failed",
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	dataerr.WriteError(w, r, err)
}

// parseFilters reads entity_type, entity_id, actor_id, kind, ip,
// changed_field, from, to (RFC 3339), limit and offset.
func parseFilters(q url.Values) (compliance.Filters, error) {
	f := compliance.Filters{
		EntityType:   q.Get("entity_type"),
		EntityID:     q.Get("entity_id"),
		ActorID:      q.Get("actor_id"),
		Kind:         audit.ChangeKind(q.Get("kind")),
		IP:           q.Get("ip"),
		ChangedField: q.Get("changed_field"),
	}
	var err error
	if f.From, err = parseTime(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTime(q, "to"); err != nil {
		return f, err
	}
	if f.Limit, err = parseInt(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseInt(q, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTime(q url.Values, name string) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339", compliance.ErrInvalidFilter, name)
	}
	return t, nil
}

func parseInt(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", compliance.ErrInvalidFilter, name)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
