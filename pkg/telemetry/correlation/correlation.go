// Package correlation carries the id that ties a request or a scheduler run
// to its logs, spans and audit entries.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type key struct{}

// ID returns the correlation id on ctx, or "".
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

// WithID stores id on ctx. Blank ids are ignored.
func WithID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key{}, id)
}

// Ensure keeps an existing id or mints a new one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return WithID(ctx, id), id
}

// ForRun mints an id for one run of a background job, prefixed with the job
// name so audit entries written by the run can be traced back to it.
func ForRun(ctx context.Context, job string) (context.Context, string) {
	id := ulid.Make().String()
	if job = strings.TrimSpace(job); job != "" {
		id = job + ":" + id
	}
	return WithID(ctx, id), id
}
