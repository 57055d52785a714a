// Package context carries per-request scope through the call tree so a
// log line written anywhere in the stack can be tied back to one API call.
package context

import "context"

// RequestScope identifies one inbound request. The venue rides along
// because nearly every route is venue-scoped and a log line without the
// venue is useless during an incident.
type RequestScope struct {
	TraceID   string
	RequestID string
	VenueID   string
}

type scopeKey struct{}

// WithScope attaches scope to ctx.
func WithScope(ctx context.Context, scope *RequestScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the request scope, or nil outside a request.
func ScopeFrom(ctx context.Context) *RequestScope {
	if s, ok := ctx.Value(scopeKey{}).(*RequestScope); ok {
		return s
	}
	return nil
}

// RequestID returns the scoped request id, or "" outside a request.
func RequestID(ctx context.Context) string {
	if s := ScopeFrom(ctx); s != nil {
		return s.RequestID
	}
	return ""
}

// VenueID returns the scoped venue id, or "" when the route has none.
func VenueID(ctx context.Context) string {
	if s := ScopeFrom(ctx); s != nil {
		return s.VenueID
	}
	return ""
}
