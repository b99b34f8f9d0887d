package clientip

import "net/http"

// maxUserAgentLen caps what is stored; audit rows keep the value verbatim.
const maxUserAgentLen = 512

// Middleware stores the client IP and user agent in the request context.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithHeaders(DefaultHeaders...)(next)
}

// MiddlewareWithHeaders is Middleware with a custom header priority, for
// deployments whose proxies forward the client address differently.
func MiddlewareWithHeaders(headers ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := SetIPToContext(r.Context(), Resolve(r, headers...))

			ua := r.UserAgent()
			if len(ua) > maxUserAgentLen {
				ua = ua[:maxUserAgentLen]
			}
			ctx = SetUserAgentToContext(ctx, ua)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
