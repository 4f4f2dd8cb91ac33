// Package orgcontext carries the organization a request or job acts on.
package orgcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type orgKey struct{}

// WithOrgID scopes ctx to one organization. A zero id leaves ctx unchanged.
func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	if orgID == 0 {
		return ctx
	}
	return context.WithValue(ctx, orgKey{}, orgID)
}

// OrgIDFromContext returns the organization set by WithOrgID.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	orgID, ok := ctx.Value(orgKey{}).(snowflake.ID)
	return orgID, ok && orgID != 0
}
