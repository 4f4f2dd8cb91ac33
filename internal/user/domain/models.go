// Package domain contains the user snapshot the governance core reads to
// resolve owners and escalation recipients.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFinance Role = "finance"
	RoleITAdmin Role = "it_admin"
	RoleMember  Role = "member"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusOffboarded Status = "offboarded"
)

// User is owned by the directory sync collaborator; the core only reads it.
type User struct {
	ID        snowflake.ID  `gorm:"primaryKey"`
	OrgID     snowflake.ID  `gorm:"not null;index"`
	Name      string        `gorm:"type:text;not null"`
	Email     string        `gorm:"type:text;not null"`
	Role      Role          `gorm:"type:text;not null"`
	Status    Status        `gorm:"type:text;not null"`
	ManagerID *snowflake.ID `gorm:""`
	SlackID   *string       `gorm:"type:text"`
	Phone     *string       `gorm:"type:text"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

func (u User) IsActive() bool { return u.Status == StatusActive }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*User, error)
	FindByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]User, error)
	ListActiveByRole(ctx context.Context, db *gorm.DB, orgID snowflake.ID, roles ...Role) ([]User, error)
}
