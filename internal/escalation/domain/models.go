// Package domain holds the escalation ladder attached to a pending decision.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	MinLevel = 1
	MaxLevel = 4
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusResponded Status = "responded"
	StatusFailed    Status = "failed"
)

type ResponseType string

const (
	ResponseApproved  ResponseType = "approved"
	ResponseRejected  ResponseType = "rejected"
	ResponseSnoozed   ResponseType = "snoozed"
	ResponseDelegated ResponseType = "delegated"
)

func (r ResponseType) Valid() bool {
	switch r {
	case ResponseApproved, ResponseRejected, ResponseSnoozed, ResponseDelegated:
		return true
	default:
		return false
	}
}

type Channel string

const (
	ChannelInApp    Channel = "in_app"
	ChannelEmail    Channel = "email"
	ChannelSlack    Channel = "slack"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

// Audience says who a level is addressed to.
type Audience string

const (
	AudienceOwner          Audience = "owner"
	AudienceManagerFinance Audience = "manager_finance"
	AudienceFinanceLead    Audience = "finance_lead"
)

// LevelSpec describes one rung of the ladder.
type LevelSpec struct {
	Level    int
	Channels []Channel
	Audience Audience
	Template string
}

var levels = [MaxLevel]LevelSpec{
	{Level: 1, Channels: []Channel{ChannelInApp, ChannelEmail}, Audience: AudienceOwner, Template: "decision_review_l1"},
	{Level: 2, Channels: []Channel{ChannelEmail, ChannelSlack}, Audience: AudienceOwner, Template: "decision_review_l2"},
	{Level: 3, Channels: []Channel{ChannelEmail}, Audience: AudienceManagerFinance, Template: "decision_review_l3"},
	{Level: 4, Channels: []Channel{ChannelWhatsApp, ChannelSMS}, Audience: AudienceFinanceLead, Template: "decision_review_l4"},
}

// Level returns the settings of level, and false when level is out of range.
func Level(level int) (LevelSpec, bool) {
	if level < MinLevel || level > MaxLevel {
		return LevelSpec{}, false
	}
	return levels[level-1], true
}

// Escalation is one notification step. Channels and Recipients are text
// arrays; recipients hold user ids.
type Escalation struct {
	ID           snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID        snowflake.ID   `json:"org_id" gorm:"not null"`
	DecisionID   snowflake.ID   `json:"decision_id" gorm:"not null"`
	Level        int            `json:"level" gorm:"not null"`
	Channels     pq.StringArray `json:"channels" gorm:"type:text[];not null"`
	Recipients   pq.StringArray `json:"recipients" gorm:"type:text[];not null"`
	Template     string         `json:"template" gorm:"type:text;not null"`
	ScheduledAt  time.Time      `json:"scheduled_at" gorm:"not null"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	RespondedAt  *time.Time     `json:"responded_at,omitempty"`
	ResponseType *ResponseType  `json:"response_type,omitempty"`
	RespondedBy  *snowflake.ID  `json:"responded_by,omitempty"`
	Status       Status         `json:"status" gorm:"type:text;not null"`
	Attempts     int            `json:"attempts" gorm:"not null"`
	LastError    *string        `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Escalation) TableName() string { return "escalations" }

func (e Escalation) Responded() bool {
	return e.RespondedAt != nil || e.Status == StatusResponded
}

// WaitStart is sent_at, or scheduled_at when the level was never sent.
func (e Escalation) WaitStart() time.Time {
	if e.SentAt != nil {
		return *e.SentAt
	}
	return e.ScheduledAt
}

// DeliveryResult is what a dispatch attempt reports back.
type DeliveryResult struct {
	EscalationID snowflake.ID
	Delivered    bool
	Err          string
	At           time.Time
}

// ResponseRecord is the write applied when a human answers.
type ResponseRecord struct {
	OrgID        snowflake.ID
	EscalationID snowflake.ID
	Response     ResponseType
	RespondedBy  snowflake.ID
	At           time.Time
}

var (
	ErrEscalationNotFound    = errors.New("escalation_not_found")
	ErrEscalationLevelExists = errors.New("escalation_level_exists")
	ErrAlreadyResponded      = errors.New("escalation_already_responded")
	ErrDecisionClosed        = errors.New("decision_not_pending")
	ErrInvalidResponse       = errors.New("invalid_response_type")
	ErrInvalidLevel          = errors.New("invalid_escalation_level")
	ErrNoRecipients          = errors.New("no_escalation_recipients")
	ErrInvalidResponder      = errors.New("invalid_responder")
)

type Repository interface {
	// Insert creates the escalation unless its (decision_id, level) already
	// exists, in which case ErrEscalationLevelExists is returned. Pending
	// rows of lower levels are closed as superseded in the same transaction.
	Insert(ctx context.Context, db *gorm.DB, escalation *Escalation) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Escalation, error)
	ListByDecision(ctx context.Context, db *gorm.DB, orgID, decisionID snowflake.ID) ([]Escalation, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Escalation, error)
	RecordDelivery(ctx context.Context, db *gorm.DB, result DeliveryResult, maxAttempts int) error
	RecordResponse(ctx context.Context, db *gorm.DB, record ResponseRecord) (bool, error)
}
