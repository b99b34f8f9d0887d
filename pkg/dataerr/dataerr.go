package dataerr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/tenantcore/pkg/audit"
	"github.com/dmitrymomot/tenantcore/pkg/compliance"
	"github.com/dmitrymomot/tenantcore/pkg/pool"
	"github.com/dmitrymomot/tenantcore/pkg/session"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

// DefaultRetryAfter is the retry hint attached to retryable classifications.
const DefaultRetryAfter = 2 * time.Second

// Class describes how an error surfaces to a client. Key is a stable,
// translatable identifier.
type Class struct {
	Status     int
	Key        string
	Retryable  bool
	RetryAfter time.Duration
}

// Error implements the error interface.
func (c Class) Error() string { return c.Key }

// Classes of data access errors.
var (
	BadRequest         = Class{Status: http.StatusBadRequest, Key: "bad_request"}
	Forbidden          = Class{Status: http.StatusForbidden, Key: "forbidden"}
	NotFound           = Class{Status: http.StatusNotFound, Key: "not_found"}
	TenantNotFound     = Class{Status: http.StatusNotFound, Key: "tenant_not_found"}
	Unprocessable      = Class{Status: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}
	ServiceUnavailable = Class{Status: http.StatusServiceUnavailable, Key: "service_unavailable", Retryable: true, RetryAfter: DefaultRetryAfter}
	Internal           = Class{Status: http.StatusInternalServerError, Key: "internal_server_error"}
)

var rules = []struct {
	target error
	class  Class
}{
	{tenant.ErrTenantNotFound, TenantNotFound},
	{tenant.ErrInvalidIdentifier, BadRequest},
	{session.ErrPermissionDenied, Forbidden},
	{session.ErrNotFound, NotFound},
	{session.ErrInvalidQuery, BadRequest},
	{compliance.ErrInvalidFilter, BadRequest},
	{compliance.ErrInvalidWindow, BadRequest},
	{audit.ErrInvalidChange, Unprocessable},
	{pool.ErrConnectionExhausted, ServiceUnavailable},
	{pool.ErrConnectionFailed, ServiceUnavailable},
	{pool.ErrRegistryClosed, ServiceUnavailable},
	{context.DeadlineExceeded, ServiceUnavailable},
}

// Classify maps an error to its client-facing class. The first matching rule
// wins; unknown errors are Internal. A Class in the chain is returned as is.
func Classify(err error) Class {
	var c Class
	if errors.As(err, &c) {
		return c
	}
	for _, r := range rules {
		if errors.Is(err, r.target) {
			return r.class
		}
	}
	return Internal
}

// WriteError writes the classified error as a JSON body, with a Retry-After
// header for retryable classes. It fits tenant.WithErrorHandler.
func WriteError(w http.ResponseWriter, _ *http.Request, err error) {
	c := Classify(err)
	if c.Retryable && c.RetryAfter > 0 {
		secs := int((c.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(c.Status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":     c.Key,
		"retryable": c.Retryable,
	})
}
