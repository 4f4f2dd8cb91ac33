package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	"github.com/smallbiznis/spendwise/pkg/db"
	"gorm.io/gorm"
)

const escalationColumns = `id, org_id, decision_id, level, channels, recipients, template, scheduled_at,
	sent_at, responded_at, response_type, responded_by, status, attempts, last_error, created_at, updated_at`

const supersededError = "superseded"

type repo struct{}

func Provide() escalationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, e *escalationdomain.Escalation) error {
	if e == nil {
		return escalationdomain.ErrInvalidLevel
	}
	if e.Level < escalationdomain.MinLevel || e.Level > escalationdomain.MaxLevel {
		return escalationdomain.ErrInvalidLevel
	}

	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`UPDATE escalations
			 SET status = ?, last_error = ?, updated_at = ?
			 WHERE decision_id = ? AND level < ? AND status IN ?`,
			escalationdomain.StatusFailed,
			supersededError,
			e.CreatedAt,
			e.DecisionID,
			e.Level,
			[]escalationdomain.Status{
				escalationdomain.StatusPending,
				escalationdomain.StatusSent,
				escalationdomain.StatusDelivered,
			},
		).Error; err != nil {
			return err
		}

		result := tx.Exec(
			`INSERT INTO escalations (`+escalationColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`,
			e.ID,
			e.OrgID,
			e.DecisionID,
			e.Level,
			e.Channels,
			e.Recipients,
			e.Template,
			e.ScheduledAt,
			e.SentAt,
			e.RespondedAt,
			e.ResponseType,
			e.RespondedBy,
			e.Status,
			e.Attempts,
			e.LastError,
			e.CreatedAt,
			e.UpdatedAt,
		)
		if result.Error != nil {
			if db.IsDuplicateKeyErr(result.Error) {
				return escalationdomain.ErrEscalationLevelExists
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			return escalationdomain.ErrEscalationLevelExists
		}
		return nil
	})
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, orgID, id snowflake.ID) (*escalationdomain.Escalation, error) {
	var e escalationdomain.Escalation
	err := conn.WithContext(ctx).Raw(
		`SELECT `+escalationColumns+` FROM escalations WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == 0 {
		return nil, nil
	}
	return &e, nil
}

func (r *repo) ListByDecision(ctx context.Context, conn *gorm.DB, orgID, decisionID snowflake.ID) ([]escalationdomain.Escalation, error) {
	var items []escalationdomain.Escalation
	err := conn.WithContext(ctx).Raw(
		`SELECT `+escalationColumns+` FROM escalations
		 WHERE org_id = ? AND decision_id = ?
		 ORDER BY level ASC`,
		orgID,
		decisionID,
	).Scan(&items).Error
	return items, err
}

// ListDue returns undelivered escalations whose scheduled time has come,
// oldest first, across all orgs.
func (r *repo) ListDue(ctx context.Context, conn *gorm.DB, now time.Time, limit int) ([]escalationdomain.Escalation, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []escalationdomain.Escalation
	err := conn.WithContext(ctx).Raw(
		`SELECT `+escalationColumns+` FROM escalations
		 WHERE status = ? AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC, id ASC
		 LIMIT ?`,
		escalationdomain.StatusPending,
		now,
		limit,
	).Scan(&items).Error
	return items, err
}

// RecordDelivery marks a pending escalation sent, or counts a failed attempt
// and gives up once maxAttempts is reached.
func (r *repo) RecordDelivery(ctx context.Context, conn *gorm.DB, result escalationdomain.DeliveryResult, maxAttempts int) error {
	if result.Delivered {
		return conn.WithContext(ctx).Exec(
			`UPDATE escalations
			 SET status = ?, sent_at = ?, attempts = attempts + 1, last_error = NULL, updated_at = ?
			 WHERE id = ? AND status = ?`,
			escalationdomain.StatusSent,
			result.At,
			result.At,
			result.EscalationID,
			escalationdomain.StatusPending,
		).Error
	}

	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return conn.WithContext(ctx).Exec(
		`UPDATE escalations
		 SET attempts = attempts + 1,
		     last_error = ?,
		     status = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		result.Err,
		maxAttempts,
		escalationdomain.StatusFailed,
		result.At,
		result.EscalationID,
		escalationdomain.StatusPending,
	).Error
}

// RecordResponse stores the first answer to an escalation. Later answers
// leave the row untouched and report false.
func (r *repo) RecordResponse(ctx context.Context, conn *gorm.DB, record escalationdomain.ResponseRecord) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE escalations
		 SET status = ?, responded_at = ?, response_type = ?, responded_by = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND responded_at IS NULL`,
		escalationdomain.StatusResponded,
		record.At,
		record.Response,
		record.RespondedBy,
		record.At,
		record.OrgID,
		record.EscalationID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
