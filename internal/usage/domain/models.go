// Package domain contains per-user access records and the usage metrics
// reduced from them.
package domain

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type AccessStatus string

const (
	AccessStatusActive   AccessStatus = "active"
	AccessStatusInactive AccessStatus = "inactive"
	AccessStatusRevoked  AccessStatus = "revoked"
)

// NoActivityDays is reported as LastActivityDays when no access row has ever
// recorded activity.
const NoActivityDays = math.MaxInt32

// DefaultFreshnessWindow is how recent last_active_at must be for a user to
// count as active.
const DefaultFreshnessWindow = 30 * 24 * time.Hour

// ToolAccess is one user's access to one tool, updated daily by the usage
// collectors.
type ToolAccess struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	OrgID          snowflake.ID `gorm:"not null;index"`
	ToolID         snowflake.ID `gorm:"not null;index"`
	UserID         snowflake.ID `gorm:"not null"`
	LastActiveAt   *time.Time   `gorm:""`
	ActivityDays30 int          `gorm:"column:activity_days_30;not null;default:0"`
	ActivityDays90 int          `gorm:"column:activity_days_90;not null;default:0"`
	ActivityScore  float64      `gorm:"not null;default:0"`
	Status         AccessStatus `gorm:"type:text;not null"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ToolAccess) TableName() string { return "tool_access" }

type UsageMetrics struct {
	ToolID           snowflake.ID `json:"tool_id"`
	TotalUsers       int          `json:"total_users"`
	ActiveUsers      int          `json:"active_users"`
	LastActivityDays int          `json:"last_activity_days"`
	AsOf             time.Time    `json:"as_of"`
}

// HasActivity reports whether any access row ever recorded activity.
func (m UsageMetrics) HasActivity() bool {
	return m.LastActivityDays != NoActivityDays
}

var ErrInvalidTool = errors.New("invalid_tool")

type Repository interface {
	ListByTool(ctx context.Context, db *gorm.DB, orgID, toolID snowflake.ID) ([]ToolAccess, error)
	CountActiveByTool(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (map[snowflake.ID]int, error)
}

type Service interface {
	Metrics(ctx context.Context, orgID, toolID snowflake.ID, asOf time.Time) (UsageMetrics, error)
	OrgUserCounts(ctx context.Context, orgID snowflake.ID) (map[snowflake.ID]int, error)
}
