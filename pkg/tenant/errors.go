package tenant

import "errors"

var (
	// ErrTenantNotFound is returned when a tenant cannot be resolved or is not in the catalog.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvalidIdentifier is returned when the identifier format is invalid.
	ErrInvalidIdentifier = errors.New("invalid tenant identifier")

	// ErrInvalidMode is returned for an unknown isolation mode.
	ErrInvalidMode = errors.New("invalid isolation mode")

	// ErrMissingDSN is returned when no connection descriptor can be built for a tenant.
	ErrMissingDSN = errors.New("no connection descriptor configured for tenant")
)
