package audit

import "context"

type clientInfoKey struct{}

// ClientInfo is the request metadata the HTTP layer hands down for the
// trail. The core never inspects it.
type ClientInfo struct {
	SourceIP  string
	UserAgent string
}

// WithClientInfo attaches request metadata to the context so every event
// recorded downstream carries it.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	if info.SourceIP == "" && info.UserAgent == "" {
		return ctx
	}
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFromContext returns previously attached request metadata.
func ClientInfoFromContext(ctx context.Context) (ClientInfo, bool) {
	if ctx == nil {
		return ClientInfo{}, false
	}
	info, ok := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info, ok
}
