// Package domain contains tool-to-tool dependency edges.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type DependencyType string

const (
	DependencyTypeIntegration DependencyType = "integration"
	DependencyTypeDataFlow    DependencyType = "data_flow"
	DependencyTypeAuth        DependencyType = "authentication"
	DependencyTypeWorkflow    DependencyType = "workflow"
)

// ToolDependency records that SourceToolID depends on TargetToolID.
type ToolDependency struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID   `gorm:"not null;index" json:"org_id"`
	SourceToolID   snowflake.ID   `gorm:"not null" json:"source_tool_id"`
	TargetToolID   snowflake.ID   `gorm:"not null" json:"target_tool_id"`
	DependencyType DependencyType `gorm:"type:text;not null" json:"dependency_type"`
	Strength       float64        `gorm:"not null;default:0.5" json:"strength"`
	Verified       bool           `gorm:"not null;default:false" json:"verified"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ToolDependency) TableName() string { return "tool_dependencies" }

// ToolDependencies splits the edges touching one tool by direction.
type ToolDependencies struct {
	ToolID     snowflake.ID     `json:"tool_id"`
	DependsOn  []ToolDependency `json:"depends_on"`
	DependedBy []ToolDependency `json:"depended_by"`
}

// Valid reports whether t is one of the recorded dependency kinds.
func (t DependencyType) Valid() bool {
	switch t {
	case DependencyTypeIntegration, DependencyTypeDataFlow, DependencyTypeAuth, DependencyTypeWorkflow:
		return true
	}
	return false
}

// DefaultStrength is stored when a request leaves Strength unset.
const DefaultStrength = 0.5

// AddDependencyRequest declares that SourceToolID depends on TargetToolID.
type AddDependencyRequest struct {
	OrgID          snowflake.ID
	SourceToolID   snowflake.ID
	TargetToolID   snowflake.ID
	DependencyType DependencyType
	Strength       *float64
	Verified       bool
}

var (
	ErrToolNotFound          = errors.New("tool_not_found")
	ErrDependencyNotFound    = errors.New("dependency_not_found")
	ErrDependencyExists      = errors.New("dependency_exists")
	ErrSelfDependency        = errors.New("self_dependency")
	ErrInvalidDependencyType = errors.New("invalid_dependency_type")
	ErrInvalidStrength       = errors.New("invalid_strength")
)

type Repository interface {
	ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]ToolDependency, error)
	Insert(ctx context.Context, db *gorm.DB, edge *ToolDependency) error
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ToolDependency, error)
}
