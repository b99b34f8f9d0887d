// Package requestid attaches a correlation id to every HTTP request served by
// tenantcore and exposes it to loggers through LoggerExtractor.
//
// Client supplied X-Request-ID values are kept when they are at most 128
// characters of [a-zA-Z0-9_-]; anything else is replaced by a new UUIDv7.
package requestid
