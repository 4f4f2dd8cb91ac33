package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
)

type respondEscalationRequest struct {
	Response string `json:"response" binding:"required"`
}

func (s *Server) RespondEscalation(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body respondEscalationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	actor, _ := actorFromContext(c)
	result, err := s.escalationSvc.Respond(c.Request.Context(), escalationdomain.RespondRequest{
		OrgID:        actor.OrgID,
		EscalationID: id,
		ActorID:      actor.ID,
		Response:     escalationdomain.ResponseType(strings.ToLower(strings.TrimSpace(body.Response))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
