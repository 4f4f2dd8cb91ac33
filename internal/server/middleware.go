package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	"github.com/smallbiznis/spendwise/internal/auditcontext"
	"github.com/smallbiznis/spendwise/internal/orgcontext"
	"github.com/smallbiznis/spendwise/pkg/log/ctxlogger"
)

const (
	HeaderActor       = "X-Actor-ID"
	contextActorIDKey = "actor_id"
	contextOrgIDKey   = "org_id"
)

// OrgContext resolves the organization from the route and scopes the
// request context to it.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := parseSnowflakeParam(c, "org_id")
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		ctx = ctxlogger.ContextWithOrg(ctx, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextOrgIDKey, orgID)
		c.Next()
	}
}

// ActorRequired identifies the calling user from the X-Actor-ID header.
func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderActor))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		actorID, err := snowflake.ParseString(raw)
		if err != nil || actorID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := auditcontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeUser), actorID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextActorIDKey, actorID)
		c.Next()
	}
}

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}
