package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
)

type decideRequest struct {
	Notes string `json:"notes"`
}

type analyzeSummary struct {
	Analyzed       int `json:"analyzed"`
	Created        int `json:"created"`
	SkippedPending int `json:"skipped_pending"`
	NoAction       int `json:"no_action"`
}

func (s *Server) AnalyzeSubscription(c *gin.Context) {
	orgID, _ := orgIDFromGin(c)
	subscriptionID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.decisionSvc.Analyze(c.Request.Context(), orgID, subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == decisiondomain.OutcomeCreated {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) AnalyzeAll(c *gin.Context) {
	orgID, _ := orgIDFromGin(c)

	results, err := s.decisionSvc.AnalyzeAll(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary := analyzeSummary{Analyzed: len(results)}
	created := make([]*decisiondomain.Decision, 0)
	for _, r := range results {
		switch r.Outcome {
		case decisiondomain.OutcomeCreated:
			summary.Created++
			created = append(created, r.Decision)
		case decisiondomain.OutcomeSkippedPending:
			summary.SkippedPending++
		default:
			summary.NoAction++
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": created, "summary": summary})
}

func (s *Server) ListDecisions(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	// Only the pending queue is exposed; settled decisions are read by id.
	if status := strings.TrimSpace(query.Status); status != "" && status != string(decisiondomain.DecisionStatusPending) {
		AbortWithError(c, newValidationError("status", "invalid_status", "only pending decisions can be listed"))
		return
	}

	orgID, _ := orgIDFromGin(c)
	items, err := s.decisionSvc.ListPending(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetDecision(c *gin.Context) {
	orgID, _ := orgIDFromGin(c)
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.decisionSvc.Get(c.Request.Context(), orgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	escalations, err := s.escalationSvc.ListByDecision(c.Request.Context(), orgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if escalations == nil {
		escalations = []escalationdomain.Escalation{}
	}

	c.JSON(http.StatusOK, gin.H{"data": item, "escalations": escalations})
}

// GetDecisionAudit returns the decision's trail, newest entry first.
func (s *Server) GetDecisionAudit(c *gin.Context) {
	orgID, _ := orgIDFromGin(c)
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.decisionSvc.Get(c.Request.Context(), orgID, id); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), orgID, auditdomain.ListAuditLogRequest{
		TargetType: auditdomain.TargetDecision,
		TargetID:   id.String(),
		Limit:      auditdomain.TrailLimit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs})
}

func (s *Server) ApproveDecision(c *gin.Context) {
	s.decideDecision(c, s.decisionSvc.Approve)
}

func (s *Server) RejectDecision(c *gin.Context) {
	s.decideDecision(c, s.decisionSvc.Reject)
}

func (s *Server) ExecuteDecision(c *gin.Context) {
	s.decideDecision(c, s.decisionSvc.Execute)
}

type decideFunc func(ctx context.Context, req decisiondomain.DecideRequest) (*decisiondomain.Decision, error)

func (s *Server) decideDecision(c *gin.Context, fn decideFunc) {
	req, ok := bindDecideRequest(c)
	if !ok {
		return
	}

	item, err := fn(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func bindDecideRequest(c *gin.Context) (decisiondomain.DecideRequest, bool) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return decisiondomain.DecideRequest{}, false
	}

	var body decideRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return decisiondomain.DecideRequest{}, false
		}
	}

	actor, _ := actorFromContext(c)
	return decisiondomain.DecideRequest{
		OrgID:      actor.OrgID,
		DecisionID: id,
		ActorID:    actor.ID,
		Notes:      strings.TrimSpace(body.Notes),
	}, true
}
