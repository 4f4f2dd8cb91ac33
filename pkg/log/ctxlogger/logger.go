// Package ctxlogger derives request and scheduler-run scoped zap loggers from
// the values carried on a context.
package ctxlogger

import (
	"context"
	"sync/atomic"

	"github.com/smallbiznis/spendwise/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type orgKey struct{}

var service atomic.Value

// SetServiceName sets the service field stamped on every entry.
func SetServiceName(name string) {
	service.Store(name)
}

// ContextWithOrg tags ctx with the org whose decisions are being processed.
func ContextWithOrg(ctx context.Context, orgID string) context.Context {
	if orgID == "" {
		return ctx
	}
	return context.WithValue(ctx, orgKey{}, orgID)
}

// FromContext is WithContext over the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext returns base annotated with the service name and whatever
// correlation id, span and org ctx carries.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.L()
	}
	if ctx == nil {
		return base
	}
	return base.With(fields(ctx)...)
}

func fields(ctx context.Context) []zap.Field {
	name, _ := service.Load().(string)
	if name == "" {
		name = "unknown"
	}
	out := []zap.Field{zap.String("service", name)}

	if id := correlation.ID(ctx); id != "" {
		out = append(out, zap.String("correlation_id", id))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		out = append(out,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if orgID, _ := ctx.Value(orgKey{}).(string); orgID != "" {
		out = append(out, zap.String("org_id", orgID))
	}
	return out
}
