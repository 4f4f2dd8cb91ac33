package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/spendwise/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() userdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*userdomain.User, error) {
	var user userdomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, email, role, status, manager_id, slack_id, phone, created_at, updated_at
		 FROM users WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]userdomain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []userdomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, email, role, status, manager_id, slack_id, phone, created_at, updated_at
		 FROM users WHERE org_id = ? AND id IN ? ORDER BY id`,
		orgID,
		ids,
	).Scan(&users).Error
	return users, err
}

func (r *repo) ListActiveByRole(ctx context.Context, db *gorm.DB, orgID snowflake.ID, roles ...userdomain.Role) ([]userdomain.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var users []userdomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, email, role, status, manager_id, slack_id, phone, created_at, updated_at
		 FROM users WHERE org_id = ? AND status = ? AND role IN ? ORDER BY id`,
		orgID,
		userdomain.StatusActive,
		roles,
	).Scan(&users).Error
	return users, err
}
