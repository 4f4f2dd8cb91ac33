package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/spendwise/internal/authorization"
)

type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

type Actor struct {
	Type  ActorType
	OrgID snowflake.ID
	ID    snowflake.ID
}

func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeOrgActionWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOrgActionWithContext(c *gin.Context, object string, action string) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}

	err := s.authzSvc.Authorize(
		c.Request.Context(),
		actor.subject(),
		actor.OrgID.String(),
		strings.TrimSpace(object),
		strings.TrimSpace(action),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrInvalidActor):
		return ErrUnauthorized
	case errors.Is(err, authorization.ErrForbidden):
		return ErrForbidden
	default:
		return err
	}
}

func actorFromContext(c *gin.Context) (Actor, bool) {
	if c == nil {
		return Actor{}, false
	}
	actorID, ok := c.Get(contextActorIDKey)
	if !ok {
		return Actor{}, false
	}
	id, ok := actorID.(snowflake.ID)
	if !ok || id == 0 {
		return Actor{}, false
	}
	orgID, _ := orgIDFromGin(c)
	return Actor{Type: ActorUser, OrgID: orgID, ID: id}, true
}

func orgIDFromGin(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextOrgIDKey)
	if !ok {
		return 0, false
	}
	orgID, ok := value.(snowflake.ID)
	return orgID, ok && orgID != 0
}

func (a Actor) subject() string {
	switch a.Type {
	case ActorUser:
		return fmt.Sprintf("user:%s", a.ID)
	case ActorSystem:
		return authorization.ActorSystem
	default:
		return ""
	}
}
