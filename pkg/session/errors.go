package session

import "errors"

var (
	// ErrPermissionDenied indicates an attempt to read or write a row owned by another tenant.
	ErrPermissionDenied = errors.New("session.permission_denied")

	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("session.not_found")

	// ErrInvalidQuery indicates a malformed identifier, operator or ordering.
	ErrInvalidQuery = errors.New("session.invalid_query")

	// ErrScopeClosed indicates use of a scope after its unit of work ended.
	ErrScopeClosed = errors.New("session.scope_closed")
)
