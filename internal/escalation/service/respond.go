package service

import (
	"context"
	"fmt"

	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	"github.com/smallbiznis/spendwise/internal/observability/metrics"
	"github.com/smallbiznis/spendwise/pkg/log/ctxlogger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// decisionStatusFor maps a response to the decision status it settles.
// Snoozed and delegated answers stop the ladder but leave the decision open.
func decisionStatusFor(response escalationdomain.ResponseType) (decisiondomain.DecisionStatus, bool) {
	switch response {
	case escalationdomain.ResponseApproved:
		return decisiondomain.DecisionStatusApproved, true
	case escalationdomain.ResponseRejected:
		return decisiondomain.DecisionStatusRejected, true
	default:
		return "", false
	}
}

// Respond records the first answer to an escalation and derives the decision
// status from it in the same transaction.
func (s *Service) Respond(ctx context.Context, req escalationdomain.RespondRequest) (escalationdomain.RespondResult, error) {
	if !req.Response.Valid() {
		return escalationdomain.RespondResult{}, escalationdomain.ErrInvalidResponse
	}
	if req.ActorID == 0 {
		return escalationdomain.RespondResult{}, escalationdomain.ErrInvalidResponder
	}

	now := s.clock.Now()
	var (
		result   escalationdomain.RespondResult
		settled  decisiondomain.DecisionStatus
		previous *escalationdomain.Escalation
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := s.repo.FindByID(ctx, tx, req.OrgID, req.EscalationID)
		if err != nil {
			return fmt.Errorf("find escalation: %w", err)
		}
		if e == nil {
			return escalationdomain.ErrEscalationNotFound
		}
		if e.Responded() {
			return escalationdomain.ErrAlreadyResponded
		}
		previous = e

		d, err := s.decisions.FindByID(ctx, tx, req.OrgID, e.DecisionID)
		if err != nil {
			return fmt.Errorf("find decision: %w", err)
		}
		if d == nil {
			return decisiondomain.ErrDecisionNotFound
		}
		if d.Status != decisiondomain.DecisionStatusPending {
			return escalationdomain.ErrDecisionClosed
		}

		moved, err := s.repo.RecordResponse(ctx, tx, escalationdomain.ResponseRecord{
			OrgID:        req.OrgID,
			EscalationID: e.ID,
			Response:     req.Response,
			RespondedBy:  req.ActorID,
			At:           now,
		})
		if err != nil {
			return fmt.Errorf("record response: %w", err)
		}
		if !moved {
			return escalationdomain.ErrAlreadyResponded
		}

		if to, ok := decisionStatusFor(req.Response); ok {
			actor := req.ActorID
			moved, err := s.decisions.ChangeStatus(ctx, tx, decisiondomain.StatusChange{
				OrgID:      req.OrgID,
				DecisionID: d.ID,
				From:       decisiondomain.DecisionStatusPending,
				To:         to,
				DecidedBy:  &actor,
				At:         now,
			})
			if err != nil {
				return fmt.Errorf("change decision status: %w", err)
			}
			if !moved {
				return escalationdomain.ErrDecisionClosed
			}
			settled = to
		}

		if result.Escalation, err = s.repo.FindByID(ctx, tx, req.OrgID, e.ID); err != nil {
			return err
		}
		if result.Decision, err = s.decisions.FindByID(ctx, tx, req.OrgID, d.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return escalationdomain.RespondResult{}, err
	}

	s.metrics.RecordEscalation(ctx, previous.Level, string(escalationdomain.StatusResponded))
	s.audit(ctx, req.OrgID, auditdomain.ActionEscalationResponded, auditdomain.TargetEscalation, previous.ID, map[string]any{
		"decision_id": previous.DecisionID.String(),
		"level":       previous.Level,
		"response":    string(req.Response),
	})
	if settled != "" {
		metrics.Scheduler().IncDecisionTransition(metrics.DecisionStatusPending, string(settled))
		action := auditdomain.ActionDecisionApproved
		if settled == decisiondomain.DecisionStatusRejected {
			action = auditdomain.ActionDecisionRejected
		}
		s.audit(ctx, req.OrgID, action, auditdomain.TargetDecision, previous.DecisionID, map[string]any{
			"escalation_id": previous.ID.String(),
			"level":         previous.Level,
		})
	}

	ctxlogger.WithContext(ctx, s.log).Info("escalation responded",
		zap.String("org_id", req.OrgID.String()),
		zap.String("escalation_id", previous.ID.String()),
		zap.String("decision_id", previous.DecisionID.String()),
		zap.Int("level", previous.Level),
		zap.String("response", string(req.Response)),
		zap.String("decision_status", string(result.Decision.Status)),
	)
	return result, nil
}
