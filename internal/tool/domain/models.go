package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Category string

const (
	CategoryProductivity  Category = "productivity"
	CategoryDevTools      Category = "dev_tools"
	CategoryCommunication Category = "communication"
	CategorySecurity      Category = "security"
	CategoryHR            Category = "hr"
	CategoryFinance       Category = "finance"
	CategoryMarketing     Category = "marketing"
	CategorySales         Category = "sales"
	CategoryAnalytics     Category = "analytics"
	CategoryOther         Category = "other"
)

// Tool is a SaaS product used by an organization. KeystoneScore and
// IsKeystone are derived by the batch scorer and never edited by users.
type Tool struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name             string       `gorm:"type:text;not null" json:"name"`
	NormalizedName   string       `gorm:"type:text;not null" json:"normalized_name"`
	Category         Category     `gorm:"type:text;not null" json:"category"`
	IsKeystone       bool         `gorm:"not null;default:false" json:"is_keystone"`
	KeystoneScore    float64      `gorm:"not null;default:0" json:"keystone_score"`
	KeystoneScoredAt *time.Time   `gorm:"" json:"keystone_scored_at,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tool) TableName() string { return "tools" }

// KeystoneUpdate is the write-back produced by a keystone recompute.
type KeystoneUpdate struct {
	ToolID     snowflake.ID
	Score      float64
	IsKeystone bool
}

var categories = map[Category]struct{}{
	CategoryProductivity:  {},
	CategoryDevTools:      {},
	CategoryCommunication: {},
	CategorySecurity:      {},
	CategoryHR:            {},
	CategoryFinance:       {},
	CategoryMarketing:     {},
	CategorySales:         {},
	CategoryAnalytics:     {},
	CategoryOther:         {},
}

// Valid reports whether c is a known category. The empty category is
// accepted and stored as CategoryOther.
func (c Category) Valid() bool {
	if c == "" {
		return true
	}
	_, ok := categories[c]
	return ok
}

type UpsertToolRequest struct {
	OrgID    snowflake.ID
	Name     string
	Category Category
}

// UpsertToolResult carries the stored tool. Created is false when a tool
// with the same normalized name already existed.
type UpsertToolResult struct {
	Tool    *Tool `json:"tool"`
	Created bool  `json:"created"`
}

var (
	ErrToolNotFound        = errors.New("tool_not_found")
	ErrInvalidToolName     = errors.New("invalid_tool_name")
	ErrInvalidToolCategory = errors.New("invalid_tool_category")
)

// Service records tools reported by discovery sources.
type Service interface {
	Upsert(ctx context.Context, req UpsertToolRequest) (UpsertToolResult, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Tool, error)
	ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*Tool, error)
	Upsert(ctx context.Context, db *gorm.DB, tool *Tool) (*Tool, error)
	UpdateKeystone(ctx context.Context, db *gorm.DB, orgID snowflake.ID, updates []KeystoneUpdate, at time.Time) error
}
