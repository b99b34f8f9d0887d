// Package dataerr classifies data access errors for clients.
//
// Classify walks the error chain and returns a Class carrying the HTTP
// status, a stable key and a retry hint:
//
//	tenant not found               404 tenant_not_found
//	invalid tenant identifier      400 bad_request
//	permission denied              403 forbidden
//	row not found                  404 not_found
//	connection exhausted or failed 503 service_unavailable, retryable
//	anything else                  500 internal_server_error
//
// Business errors returned through the audit interceptor keep their identity,
// so callers can classify them with their own rules before falling back to
// Classify.
package dataerr
