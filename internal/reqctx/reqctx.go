// Package reqctx carries per-request values from the HTTP layer down to
// services through context.Context.
package reqctx

import "context"

// Info describes the client side of a request as recorded in audit entries.
type Info struct {
	UserAgent string
	URL       string
	Referrer  string
	ClientIP  string
	// SessionID is the browser session supplied in X-Session-Id, if any.
	SessionID string
}

type (
	infoKey      struct{}
	requestIDKey struct{}
)

func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// InfoFrom returns the Info stored by WithInfo, or a zero Info.
func InfoFrom(ctx context.Context) Info {
	info, _ := ctx.Value(infoKey{}).(Info)
	return info
}

func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestID extracts the request ID from a standard context
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}
