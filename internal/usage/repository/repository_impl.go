package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/spendwise/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) ListByTool(ctx context.Context, db *gorm.DB, orgID, toolID snowflake.ID) ([]usagedomain.ToolAccess, error) {
	var rows []usagedomain.ToolAccess
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, tool_id, user_id, last_active_at, activity_days_30, activity_days_90,
		        activity_score, status, created_at, updated_at
		 FROM tool_access
		 WHERE org_id = ? AND tool_id = ?
		 ORDER BY id`,
		orgID,
		toolID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type toolCount struct {
	ToolID snowflake.ID
	Total  int
}

func (r *repo) CountActiveByTool(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (map[snowflake.ID]int, error) {
	var rows []toolCount
	err := db.WithContext(ctx).Raw(
		`SELECT tool_id, COUNT(*) AS total
		 FROM tool_access
		 WHERE org_id = ? AND status = ?
		 GROUP BY tool_id`,
		orgID,
		usagedomain.AccessStatusActive,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[snowflake.ID]int, len(rows))
	for _, row := range rows {
		counts[row.ToolID] = row.Total
	}
	return counts, nil
}
