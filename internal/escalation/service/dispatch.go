package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	notificationdomain "github.com/smallbiznis/spendwise/internal/notification/domain"
	"go.uber.org/zap"
)

var errNoDeliveries = errors.New("no_deliveries")

// DispatchPending sends every due escalation and records the outcome. A
// level whose decision was settled meanwhile is closed without sending.
func (s *Service) DispatchPending(ctx context.Context, limit int) (escalationdomain.DispatchResult, error) {
	var result escalationdomain.DispatchResult
	if s.dispatcher == nil {
		s.log.Debug("no notification dispatcher configured")
		return result, nil
	}

	now := s.clock.Now()
	due, err := s.repo.ListDue(ctx, s.db, now, limit)
	if err != nil {
		return result, fmt.Errorf("list due escalations: %w", err)
	}

	var firstErr error
	for _, e := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Attempted++

		delivery := escalationdomain.DeliveryResult{EscalationID: e.ID, At: now}
		maxAttempts := MaxDeliveryAttempts

		msg, open, err := s.message(ctx, e)
		switch {
		case err != nil:
			delivery.Err = err.Error()
		case !open:
			delivery.Err = escalationdomain.ErrDecisionClosed.Error()
			maxAttempts = 1
		default:
			deliveries, err := s.dispatcher.Dispatch(ctx, msg)
			switch {
			case err != nil:
				delivery.Err = err.Error()
			case notificationdomain.Delivered(deliveries):
				delivery.Delivered = true
			default:
				failure := notificationdomain.Failures(deliveries)
				if failure == nil {
					failure = errNoDeliveries
				}
				delivery.Err = failure.Error()
			}
		}

		if err := s.repo.RecordDelivery(ctx, s.db, delivery, maxAttempts); err != nil {
			s.log.Warn("record delivery failed", zap.String("escalation_id", e.ID.String()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		switch {
		case delivery.Delivered:
			result.Sent++
		case !open && err == nil:
			result.Skipped++
		default:
			result.Failed++
			s.log.Warn("escalation delivery failed",
				zap.String("escalation_id", e.ID.String()),
				zap.Int("level", e.Level),
				zap.Int("attempt", e.Attempts+1),
				zap.String("error", delivery.Err),
			)
		}
	}
	return result, firstErr
}

// message builds the notification for an escalation. open is false once the
// decision is no longer pending.
func (s *Service) message(ctx context.Context, e escalationdomain.Escalation) (notificationdomain.Message, bool, error) {
	decision, err := s.decisions.FindByID(ctx, s.db, e.OrgID, e.DecisionID)
	if err != nil {
		return notificationdomain.Message{}, false, fmt.Errorf("find decision: %w", err)
	}
	if decision == nil {
		return notificationdomain.Message{}, false, decisiondomain.ErrDecisionNotFound
	}
	if decision.Status != decisiondomain.DecisionStatusPending {
		return notificationdomain.Message{}, false, nil
	}

	data := notificationdomain.TemplateData{
		DecisionID:   decision.ID.String(),
		DecisionType: string(decision.DecisionType),
		Explanation:  decision.Explanation,
		Level:        e.Level,
		SavingsCents: decision.SavingsPotentialCents,
		DueDate:      decision.DueDate,
	}

	tool, err := s.tools.FindByID(ctx, s.db, e.OrgID, decision.ToolID)
	if err != nil {
		return notificationdomain.Message{}, true, fmt.Errorf("find tool: %w", err)
	}
	if tool != nil {
		data.ToolName = tool.Name
	}

	subscription, err := s.subscriptions.FindByID(ctx, s.db, e.OrgID, decision.SubscriptionID)
	if err != nil {
		return notificationdomain.Message{}, true, fmt.Errorf("find subscription: %w", err)
	}
	if subscription != nil {
		data.AmountCents = subscription.AmountCents
		data.RenewalDate = subscription.RenewalDate
	}

	ids := make([]snowflake.ID, 0, len(e.Recipients))
	for _, raw := range e.Recipients {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	users, err := s.users.FindByIDs(ctx, s.db, e.OrgID, ids)
	if err != nil {
		return notificationdomain.Message{}, true, fmt.Errorf("find recipients: %w", err)
	}

	recipients := make([]notificationdomain.Recipient, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, notificationdomain.Recipient{
			UserID:  u.ID,
			Name:    u.Name,
			Email:   u.Email,
			SlackID: u.SlackID,
			Phone:   u.Phone,
		})
	}

	channels := make([]notificationdomain.Channel, 0, len(e.Channels))
	for _, c := range e.Channels {
		channels = append(channels, notificationdomain.Channel(c))
	}

	return notificationdomain.Message{
		OrgID:        e.OrgID,
		EscalationID: e.ID,
		Template:     e.Template,
		Channels:     channels,
		Recipients:   recipients,
		Data:         data,
	}, true, nil
}
