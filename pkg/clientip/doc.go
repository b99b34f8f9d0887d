// Package clientip resolves the originating client address of an
// *http.Request behind reverse proxies and carries it, together with the
// user agent, in the request context for audit entries.
//
// The default header priority is:
//
//  1. CF-Connecting-IP  – Cloudflare
//  2. DO-Connecting-IP  – DigitalOcean App Platform
//  3. X-Forwarded-For   – comma-separated list, first valid address wins
//  4. X-Real-IP         – Nginx and similar proxies
//  5. RemoteAddr        – TCP peer address
//
// # Usage
//
//	r := chi.NewRouter()
//	r.Use(clientip.Middleware)
//
//	rec := audit.NewRecorder(store, sessions,
//		audit.WithIPExtractor(clientip.IPExtractor),
//		audit.WithUserAgentExtractor(clientip.UserAgentExtractor),
//	)
//
// GetIP never returns an error. If no valid address is found an empty
// string is returned so callers can decide how to proceed.
package clientip
