// Package domain holds the decision record produced for a subscription and
// the snapshot of factors it was derived from.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DecisionType string

const (
	DecisionTypeKeep     DecisionType = "keep"
	DecisionTypeDownsize DecisionType = "downsize"
	DecisionTypeReview   DecisionType = "review"
	DecisionTypeCancel   DecisionType = "cancel"
)

type DecisionStatus string

const (
	DecisionStatusPending  DecisionStatus = "pending"
	DecisionStatusApproved DecisionStatus = "approved"
	DecisionStatusRejected DecisionStatus = "rejected"
	DecisionStatusExecuted DecisionStatus = "executed"
	DecisionStatusExpired  DecisionStatus = "expired"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNeutral  Impact = "neutral"
	ImpactNegative Impact = "negative"
)

// Analyze outcomes.
const (
	OutcomeCreated        = "created"
	OutcomeSkippedPending = "skipped_pending"
	OutcomeNoAction       = "no_action"
)

// Factor records one input that drove a decision.
type Factor struct {
	Name        string  `json:"name"`
	Value       any     `json:"value"`
	Weight      float64 `json:"weight"`
	Impact      Impact  `json:"impact"`
	Explanation string  `json:"explanation"`
}

// DecisionFactors is the snapshot a decision is evaluated on.
type DecisionFactors struct {
	ToolName         string     `json:"tool_name"`
	ActiveUsers      int        `json:"active_users"`
	PaidSeats        int        `json:"paid_seats"`
	UtilizationRate  float64    `json:"utilization_rate"`
	LastActivityDays int        `json:"last_activity_days"`
	RenewalDays      int        `json:"renewal_days"`
	RenewalDate      *time.Time `json:"renewal_date,omitempty"`
	AnnualCostCents  int64      `json:"annual_cost_cents"`
	KeystoneScore    float64    `json:"keystone_score"`
	DependencyCount  int        `json:"dependency_count"`
	OwnerActive      bool       `json:"owner_active"`
	OwnerName        string     `json:"owner_name,omitempty"`
}

// Utilization is active/paid, 0 when nothing is paid for.
func Utilization(activeUsers, paidSeats int) float64 {
	if paidSeats <= 0 || activeUsers <= 0 {
		return 0
	}
	return float64(activeUsers) / float64(paidSeats)
}

type Decision struct {
	ID                    snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID                 snowflake.ID   `json:"org_id" gorm:"not null;index"`
	SubscriptionID        snowflake.ID   `json:"subscription_id" gorm:"not null"`
	ToolID                snowflake.ID   `json:"tool_id" gorm:"not null"`
	DecisionType          DecisionType   `json:"decision_type" gorm:"type:text;not null"`
	Rule                  string         `json:"rule" gorm:"type:text;not null"`
	Confidence            float64        `json:"confidence" gorm:"not null"`
	RiskScore             float64        `json:"risk_score" gorm:"not null"`
	RiskLevel             RiskLevel      `json:"risk_level" gorm:"type:text;not null"`
	SavingsPotentialCents int64          `json:"savings_potential_cents" gorm:"not null"`
	CurrentSeats          int            `json:"current_seats" gorm:"not null"`
	RecommendedSeats      *int           `json:"recommended_seats,omitempty"`
	Factors               datatypes.JSON `json:"factors" gorm:"type:jsonb;not null"`
	Explanation           string         `json:"explanation" gorm:"type:text;not null"`
	Status                DecisionStatus `json:"status" gorm:"type:text;not null"`
	Priority              Priority       `json:"priority" gorm:"type:text;not null"`
	RequiresApproval      bool           `json:"requires_approval" gorm:"not null"`
	DueDate               *time.Time     `json:"due_date,omitempty"`
	DecidedBy             *snowflake.ID  `json:"decided_by,omitempty"`
	DecidedAt             *time.Time     `json:"decided_at,omitempty"`
	ExecutedAt            *time.Time     `json:"executed_at,omitempty"`
	ExecutionNotes        *string        `json:"execution_notes,omitempty"`
	CreatedAt             time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time      `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Decision) TableName() string { return "decisions" }

// FactorList decodes the stored factors.
func (d Decision) FactorList() ([]Factor, error) {
	if len(d.Factors) == 0 {
		return nil, nil
	}
	var factors []Factor
	if err := json.Unmarshal(d.Factors, &factors); err != nil {
		return nil, err
	}
	return factors, nil
}

// StatusChange is a conditional status write: it only applies while the
// decision is still in From.
type StatusChange struct {
	OrgID      snowflake.ID
	DecisionID snowflake.ID
	From       DecisionStatus
	To         DecisionStatus
	DecidedBy  *snowflake.ID
	Notes      *string
	At         time.Time
}

var (
	ErrDecisionNotFound      = errors.New("decision_not_found")
	ErrPendingDecisionExists = errors.New("pending_decision_exists")
	ErrInvalidTransition     = errors.New("invalid_decision_transition")
	ErrNotExecutable         = errors.New("decision_not_executable")
	ErrInvalidDecision       = errors.New("invalid_decision")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, decision *Decision) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Decision, error)
	FindPendingBySubscription(ctx context.Context, db *gorm.DB, orgID, subscriptionID snowflake.ID) (*Decision, error)
	ListByStatus(ctx context.Context, db *gorm.DB, orgID snowflake.ID, status DecisionStatus, limit int) ([]Decision, error)
	ListPendingIDs(ctx context.Context, db *gorm.DB, query PendingQuery) ([]DecisionRef, error)
	ChangeStatus(ctx context.Context, db *gorm.DB, change StatusChange) (bool, error)
}

// PendingQuery pages pending non-KEEP decisions by id. A decision with an
// answered escalation is left out unless its renewal date is before
// RenewalBefore.
type PendingQuery struct {
	AfterID       snowflake.ID
	RenewalBefore time.Time
	Limit         int
}

// DecisionRef addresses a decision across orgs for batch jobs.
type DecisionRef struct {
	OrgID snowflake.ID
	ID    snowflake.ID
}
