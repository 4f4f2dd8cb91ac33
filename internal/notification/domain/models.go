// Package domain describes the notifications an escalation level fans out
// to its recipients.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Channel string

const (
	ChannelInApp    Channel = "in_app"
	ChannelEmail    Channel = "email"
	ChannelSlack    Channel = "slack"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

type Recipient struct {
	UserID  snowflake.ID
	Name    string
	Email   string
	SlackID *string
	Phone   *string
}

// TemplateData is what the level templates can reference.
type TemplateData struct {
	DecisionID    string
	ToolName      string
	DecisionType  string
	Explanation   string
	Level         int
	SavingsCents  int64
	AmountCents   int64
	RenewalDate   *time.Time
	DueDate       *time.Time
	RecipientName string
}

type Message struct {
	OrgID        snowflake.ID
	EscalationID snowflake.ID
	Template     string
	Channels     []Channel
	Recipients   []Recipient
	Data         TemplateData
}

// Rendered is a template expanded for one recipient.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Delivery is the outcome of one channel for one recipient.
type Delivery struct {
	Channel Channel
	UserID  snowflake.ID
	Err     error
}

// Sender delivers rendered content over a single channel.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, msg Message, to Recipient, content Rendered) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) ([]Delivery, error)
}

// Delivered is true when at least one channel reached at least one
// recipient.
func Delivered(deliveries []Delivery) bool {
	for _, d := range deliveries {
		if d.Err == nil {
			return true
		}
	}
	return false
}

// Failures joins every delivery error.
func Failures(deliveries []Delivery) error {
	var errs []error
	for _, d := range deliveries {
		if d.Err != nil {
			errs = append(errs, d.Err)
		}
	}
	return errors.Join(errs...)
}

// InAppNotification is the row shown in the product's inbox.
type InAppNotification struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID        snowflake.ID `json:"org_id" gorm:"not null"`
	UserID       snowflake.ID `json:"user_id" gorm:"not null"`
	EscalationID snowflake.ID `json:"escalation_id" gorm:"not null"`
	Title        string       `json:"title" gorm:"type:text;not null"`
	Body         string       `json:"body" gorm:"type:text;not null"`
	ReadAt       *time.Time   `json:"read_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (InAppNotification) TableName() string { return "in_app_notifications" }

var (
	ErrUnknownTemplate = errors.New("unknown_notification_template")
	ErrNoSender        = errors.New("notification_channel_not_configured")
	ErrMissingAddress  = errors.New("recipient_missing_address")
	ErrNoRecipients    = errors.New("notification_no_recipients")
)

type Repository interface {
	InsertInApp(ctx context.Context, db *gorm.DB, n *InAppNotification) error
	ListUnread(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, limit int) ([]InAppNotification, error)
}
