// Package domain contains the subscription snapshot the decision engine
// evaluates and the write-backs applied when a decision is executed.
package domain

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusPending   SubscriptionStatus = "pending"
)

type BillingCycle string

const (
	BillingCycleMonthly   BillingCycle = "monthly"
	BillingCycleQuarterly BillingCycle = "quarterly"
	BillingCycleYearly    BillingCycle = "yearly"
)

// Subscription is the current paid plan for a tool. Rows are never deleted;
// execution flips Status or lowers PaidSeats.
type Subscription struct {
	ID           snowflake.ID       `gorm:"primaryKey"`
	OrgID        snowflake.ID       `gorm:"not null;index"`
	ToolID       snowflake.ID       `gorm:"not null;index"`
	PaidSeats    int                `gorm:"not null;default:0"`
	ActiveSeats  int                `gorm:"not null;default:0"`
	AmountCents  int64              `gorm:"not null;default:0"`
	BillingCycle BillingCycle       `gorm:"type:text;not null"`
	RenewalDate  *time.Time         `gorm:""`
	OwnerID      *snowflake.ID      `gorm:""`
	Status       SubscriptionStatus `gorm:"type:text;not null"`
	CreatedAt    time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// AnnualCostCents normalizes the billed amount to a yearly figure.
func (s Subscription) AnnualCostCents() int64 {
	return AnnualizeCents(s.AmountCents, s.BillingCycle)
}

func AnnualizeCents(amountCents int64, cycle BillingCycle) int64 {
	if amountCents <= 0 {
		return 0
	}
	switch cycle {
	case BillingCycleMonthly:
		return amountCents * 12
	case BillingCycleQuarterly:
		return amountCents * 4
	default:
		return amountCents
	}
}

// NoRenewalDays stands in for "no renewal date on file".
const NoRenewalDays = math.MaxInt32

// RenewalDays counts calendar days from now until the renewal date. It is
// negative once the renewal is overdue.
func (s Subscription) RenewalDays(now time.Time) int {
	return DaysUntil(s.RenewalDate, now)
}

func DaysUntil(date *time.Time, now time.Time) int {
	if date == nil {
		return NoRenewalDays
	}
	return int(truncateDay(*date).Sub(truncateDay(now)).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidSeatCount     = errors.New("invalid_seat_count")
	ErrSubscriptionInactive = errors.New("subscription_inactive")
)

// RenewalQuery pages active subscriptions renewing on or before Before by
// id. Subscriptions with a pending decision, or with a decision that expired
// after being opened against the current overdue renewal, are left out.
type RenewalQuery struct {
	Before  time.Time
	AfterID snowflake.ID
	Limit   int
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Subscription, error)
	ListActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Subscription, error)
	ListRenewalCandidates(ctx context.Context, db *gorm.DB, query RenewalQuery) ([]Subscription, error)
	ListOrgIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
	MarkCancelled(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) error
	UpdatePaidSeats(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, seats int, at time.Time) error
}
