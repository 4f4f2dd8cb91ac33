package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	subscriptiondomain "github.com/smallbiznis/spendwise/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, org_id, tool_id, paid_seats, active_seats, amount_cents, billing_cycle,
	renewal_date, owner_id, status, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE org_id = ? AND status = ? ORDER BY id`,
		orgID,
		subscriptiondomain.SubscriptionStatusActive,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListRenewalCandidates(ctx context.Context, db *gorm.DB, query subscriptiondomain.RenewalQuery) ([]subscriptiondomain.Subscription, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	var items []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions s
		 WHERE s.status = ? AND s.renewal_date IS NOT NULL AND s.renewal_date <= ? AND s.id > ?
		   AND NOT EXISTS (
		     SELECT 1 FROM decisions d
		     WHERE d.org_id = s.org_id AND d.subscription_id = s.id
		       AND (d.status = ? OR (d.status = ? AND d.created_at > s.renewal_date))
		   )
		 ORDER BY s.id
		 LIMIT ?`,
		subscriptiondomain.SubscriptionStatusActive,
		query.Before,
		query.AfterID,
		decisiondomain.DecisionStatusPending,
		decisiondomain.DecisionStatusExpired,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListOrgIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT org_id FROM tools ORDER BY org_id`,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		subscriptiondomain.SubscriptionStatusCancelled,
		at,
		orgID,
		id,
	).Error
}

func (r *repo) UpdatePaidSeats(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, seats int, at time.Time) error {
	if seats < 0 {
		return subscriptiondomain.ErrInvalidSeatCount
	}
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET paid_seats = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		seats,
		at,
		orgID,
		id,
	).Error
}
