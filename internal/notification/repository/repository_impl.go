package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/spendwise/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() notificationdomain.Repository {
	return &repo{}
}

func (r *repo) InsertInApp(ctx context.Context, db *gorm.DB, n *notificationdomain.InAppNotification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO in_app_notifications (id, org_id, user_id, escalation_id, title, body, read_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.OrgID,
		n.UserID,
		n.EscalationID,
		n.Title,
		n.Body,
		n.ReadAt,
		n.CreatedAt,
	).Error
}

func (r *repo) ListUnread(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, limit int) ([]notificationdomain.InAppNotification, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []notificationdomain.InAppNotification
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, user_id, escalation_id, title, body, read_at, created_at
		 FROM in_app_notifications
		 WHERE org_id = ? AND user_id = ? AND read_at IS NULL
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		orgID,
		userID,
		limit,
	).Scan(&items).Error
	return items, err
}
