package dataerr_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantcore/pkg/audit"
	"github.com/dmitrymomot/tenantcore/pkg/dataerr"
	"github.com/dmitrymomot/tenantcore/pkg/pool"
	"github.com/dmitrymomot/tenantcore/pkg/session"
	"github.com/dmitrymomot/tenantcore/pkg/tenant"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{"tenant not found", fmt.Errorf("resolve: %w", tenant.ErrTenantNotFound), http.StatusNotFound, false},
		{"invalid identifier", tenant.ErrInvalidIdentifier, http.StatusBadRequest, false},
		{"permission denied", errors.Join(errors.New("update plants"), session.ErrPermissionDenied), http.StatusForbidden, false},
		{"not found", session.ErrNotFound, http.StatusNotFound, false},
		{"exhausted", fmt.Errorf("acme: %w", pool.ErrConnectionExhausted), http.StatusServiceUnavailable, true},
		{"connection failed", pool.ErrConnectionFailed, http.StatusServiceUnavailable, true},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, true},
		{"invalid change", audit.ErrInvalidChange, http.StatusUnprocessableEntity, false},
		{"audit persist", audit.ErrAuditPersist, http.StatusInternalServerError, false},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, false},
		{"explicit class", fmt.Errorf("wrapped: %w", dataerr.Forbidden), http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dataerr.Classify(tt.err)
			assert.Equal(t, tt.status, c.Status)
			assert.Equal(t, tt.retryable, c.Retryable)
			if tt.retryable {
				assert.Positive(t, c.RetryAfter)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	t.Run("retryable", func(t *testing.T) {
		rec := httptest.NewRecorder()
		dataerr.WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), pool.ErrConnectionExhausted)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "service_unavailable", body["error"])
		assert.Equal(t, true, body["retryable"])
	})

	t.Run("client error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		dataerr.WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tenant.ErrTenantNotFound)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "tenant_not_found")
	})
}
