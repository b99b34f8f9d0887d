package clientip

import "context"

type (
	ipContextKey        struct{}
	userAgentContextKey struct{}
)

// SetIPToContext stores client IP in context
func SetIPToContext(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipContextKey{}, ip)
}

// GetIPFromContext retrieves client IP from context
func GetIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ipContextKey{}).(string)
	return ip
}

// SetUserAgentToContext stores the client user agent in context.
func SetUserAgentToContext(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, ua)
}

// GetUserAgentFromContext retrieves the client user agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentContextKey{}).(string)
	return ua
}

// IPExtractor reports the stored client IP. It plugs into audit and logger
// extractor options.
func IPExtractor(ctx context.Context) (string, bool) {
	ip := GetIPFromContext(ctx)
	return ip, ip != ""
}

// UserAgentExtractor reports the stored user agent.
func UserAgentExtractor(ctx context.Context) (string, bool) {
	ua := GetUserAgentFromContext(ctx)
	return ua, ua != ""
}
