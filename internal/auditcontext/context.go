package auditcontext

import (
	"context"
	"strings"
)

type actorKey struct{}
type requestMetaKey struct{}

type actor struct {
	actorType string
	actorID   string
}

type requestMeta struct {
	ipAddress string
	userAgent string
}

// WithActor attaches the acting principal to ctx.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		actorType: strings.TrimSpace(actorType),
		actorID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.actorType, value.actorID
}

// WithRequestMeta attaches client details of the inbound HTTP request.
func WithRequestMeta(ctx context.Context, ipAddress, userAgent string) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, requestMeta{
		ipAddress: strings.TrimSpace(ipAddress),
		userAgent: strings.TrimSpace(userAgent),
	})
}

func IPAddressFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return value.ipAddress
}

func UserAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return value.userAgent
}
