package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	"github.com/smallbiznis/spendwise/pkg/db"
	"gorm.io/gorm"
)

const decisionColumns = `id, org_id, subscription_id, tool_id, decision_type, rule, confidence, risk_score,
	risk_level, savings_potential_cents, current_seats, recommended_seats, factors, explanation,
	status, priority, requires_approval, due_date, decided_by, decided_at, executed_at,
	execution_notes, created_at, updated_at`

type repo struct{}

func Provide() decisiondomain.Repository {
	return &repo{}
}

// Insert stores a decision. A second pending decision for the same
// subscription hits the partial unique index and is reported as
// ErrPendingDecisionExists.
func (r *repo) Insert(ctx context.Context, conn *gorm.DB, d *decisiondomain.Decision) error {
	if d == nil {
		return decisiondomain.ErrInvalidDecision
	}
	result := conn.WithContext(ctx).Exec(
		`INSERT INTO decisions (`+decisionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		d.ID,
		d.OrgID,
		d.SubscriptionID,
		d.ToolID,
		d.DecisionType,
		d.Rule,
		d.Confidence,
		d.RiskScore,
		d.RiskLevel,
		d.SavingsPotentialCents,
		d.CurrentSeats,
		d.RecommendedSeats,
		d.Factors,
		d.Explanation,
		d.Status,
		d.Priority,
		d.RequiresApproval,
		d.DueDate,
		d.DecidedBy,
		d.DecidedAt,
		d.ExecutedAt,
		d.ExecutionNotes,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return decisiondomain.ErrPendingDecisionExists
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return decisiondomain.ErrPendingDecisionExists
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, orgID, id snowflake.ID) (*decisiondomain.Decision, error) {
	var d decisiondomain.Decision
	err := conn.WithContext(ctx).Raw(
		`SELECT `+decisionColumns+` FROM decisions WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

func (r *repo) FindPendingBySubscription(ctx context.Context, conn *gorm.DB, orgID, subscriptionID snowflake.ID) (*decisiondomain.Decision, error) {
	var d decisiondomain.Decision
	err := conn.WithContext(ctx).Raw(
		`SELECT `+decisionColumns+` FROM decisions
		 WHERE org_id = ? AND subscription_id = ? AND status = ?
		 LIMIT 1`,
		orgID,
		subscriptionID,
		decisiondomain.DecisionStatusPending,
	).Scan(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

func (r *repo) ListByStatus(ctx context.Context, conn *gorm.DB, orgID snowflake.ID, status decisiondomain.DecisionStatus, limit int) ([]decisiondomain.Decision, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []decisiondomain.Decision
	err := conn.WithContext(ctx).Raw(
		`SELECT `+decisionColumns+` FROM decisions
		 WHERE org_id = ? AND status = ?
		 ORDER BY due_date IS NULL, due_date, id
		 LIMIT ?`,
		orgID,
		status,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListPendingIDs(ctx context.Context, conn *gorm.DB, query decisiondomain.PendingQuery) ([]decisiondomain.DecisionRef, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	var refs []decisiondomain.DecisionRef
	err := conn.WithContext(ctx).Raw(
		`SELECT d.org_id, d.id FROM decisions d
		 LEFT JOIN subscriptions s ON s.org_id = d.org_id AND s.id = d.subscription_id
		 WHERE d.status = ? AND d.decision_type <> ? AND d.id > ?
		   AND (
		     (s.renewal_date IS NOT NULL AND s.renewal_date < ?)
		     OR NOT EXISTS (
		       SELECT 1 FROM escalations e
		       WHERE e.org_id = d.org_id AND e.decision_id = d.id AND e.responded_at IS NOT NULL
		     )
		   )
		 ORDER BY d.id
		 LIMIT ?`,
		decisiondomain.DecisionStatusPending,
		decisiondomain.DecisionTypeKeep,
		query.AfterID,
		query.RenewalBefore,
		limit,
	).Scan(&refs).Error
	return refs, err
}

// ChangeStatus applies change only while the decision is still in
// change.From and reports whether a row moved.
func (r *repo) ChangeStatus(ctx context.Context, conn *gorm.DB, change decisiondomain.StatusChange) (bool, error) {
	var executedAt any
	if change.To == decisiondomain.DecisionStatusExecuted {
		executedAt = change.At
	}

	result := conn.WithContext(ctx).Exec(
		`UPDATE decisions
		 SET status = ?,
		     decided_by = COALESCE(?, decided_by),
		     decided_at = CASE WHEN ? THEN ? ELSE decided_at END,
		     executed_at = COALESCE(?, executed_at),
		     execution_notes = COALESCE(?, execution_notes),
		     updated_at = ?
		 WHERE org_id = ? AND id = ? AND status = ?`,
		change.To,
		change.DecidedBy,
		change.DecidedBy != nil,
		change.At,
		executedAt,
		change.Notes,
		change.At,
		change.OrgID,
		change.DecisionID,
		change.From,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
