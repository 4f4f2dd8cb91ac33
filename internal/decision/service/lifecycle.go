package service

import (
	"context"
	"fmt"
	"strings"

	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	"github.com/smallbiznis/spendwise/internal/observability/metrics"
	"github.com/smallbiznis/spendwise/pkg/log/ctxlogger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) Approve(ctx context.Context, req decisiondomain.DecideRequest) (*decisiondomain.Decision, error) {
	return s.decide(ctx, req, decisiondomain.DecisionStatusApproved, auditdomain.ActionDecisionApproved)
}

func (s *Service) Reject(ctx context.Context, req decisiondomain.DecideRequest) (*decisiondomain.Decision, error) {
	return s.decide(ctx, req, decisiondomain.DecisionStatusRejected, auditdomain.ActionDecisionRejected)
}

// decide moves a pending decision to a human verdict.
func (s *Service) decide(ctx context.Context, req decisiondomain.DecideRequest, to decisiondomain.DecisionStatus, action string) (*decisiondomain.Decision, error) {
	if req.ActorID == 0 {
		return nil, decisiondomain.ErrInvalidDecision
	}

	now := s.clock.Now()
	actor := req.ActorID
	moved, err := s.repo.ChangeStatus(ctx, s.db, decisiondomain.StatusChange{
		OrgID:      req.OrgID,
		DecisionID: req.DecisionID,
		From:       decisiondomain.DecisionStatusPending,
		To:         to,
		DecidedBy:  &actor,
		Notes:      notes(req.Notes),
		At:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("change decision status: %w", err)
	}

	d, err := s.Get(ctx, req.OrgID, req.DecisionID)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, decisiondomain.ErrInvalidTransition
	}

	s.transitioned(ctx, d, decisiondomain.DecisionStatusPending, action)
	return d, nil
}

// Execute applies an approved decision to its subscription. CANCEL marks the
// subscription cancelled and DOWNSIZE lowers its paid seats; REVIEW and KEEP
// have nothing to apply.
func (s *Service) Execute(ctx context.Context, req decisiondomain.DecideRequest) (*decisiondomain.Decision, error) {
	if req.ActorID == 0 {
		return nil, decisiondomain.ErrInvalidDecision
	}

	now := s.clock.Now()
	var executed *decisiondomain.Decision
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.repo.FindByID(ctx, tx, req.OrgID, req.DecisionID)
		if err != nil {
			return err
		}
		if d == nil {
			return decisiondomain.ErrDecisionNotFound
		}
		if d.Status != decisiondomain.DecisionStatusApproved {
			return decisiondomain.ErrInvalidTransition
		}

		switch d.DecisionType {
		case decisiondomain.DecisionTypeCancel:
			if err := s.subscriptions.MarkCancelled(ctx, tx, d.OrgID, d.SubscriptionID, now); err != nil {
				return fmt.Errorf("cancel subscription: %w", err)
			}
		case decisiondomain.DecisionTypeDownsize:
			if d.RecommendedSeats == nil {
				return decisiondomain.ErrNotExecutable
			}
			if err := s.subscriptions.UpdatePaidSeats(ctx, tx, d.OrgID, d.SubscriptionID, *d.RecommendedSeats, now); err != nil {
				return fmt.Errorf("update paid seats: %w", err)
			}
		default:
			return decisiondomain.ErrNotExecutable
		}

		// decided_by keeps the approver; the executor is in the audit trail.
		moved, err := s.repo.ChangeStatus(ctx, tx, decisiondomain.StatusChange{
			OrgID:      req.OrgID,
			DecisionID: req.DecisionID,
			From:       decisiondomain.DecisionStatusApproved,
			To:         decisiondomain.DecisionStatusExecuted,
			Notes:      notes(req.Notes),
			At:         now,
		})
		if err != nil {
			return fmt.Errorf("change decision status: %w", err)
		}
		if !moved {
			return decisiondomain.ErrInvalidTransition
		}

		executed, err = s.repo.FindByID(ctx, tx, req.OrgID, req.DecisionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(ctx, executed, decisiondomain.DecisionStatusApproved, auditdomain.ActionDecisionExecuted)
	return executed, nil
}

func (s *Service) transitioned(ctx context.Context, d *decisiondomain.Decision, from decisiondomain.DecisionStatus, action string) {
	metrics.Scheduler().IncDecisionTransition(string(from), string(d.Status))
	metadata := map[string]any{
		"from":          string(from),
		"to":            string(d.Status),
		"decision_type": string(d.DecisionType),
	}
	if d.Status == decisiondomain.DecisionStatusExecuted && d.RecommendedSeats != nil {
		metadata["paid_seats"] = *d.RecommendedSeats
	}
	s.audit(ctx, d.OrgID, action, d.ID, metadata)

	ctxlogger.WithContext(ctx, s.log).Info("decision status changed",
		zap.String("org_id", d.OrgID.String()),
		zap.String("decision_id", d.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(d.Status)),
	)
}

func notes(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
