package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/spendwise/internal/subscription/domain"
)

type ActionKind string

const (
	// ActionNone leaves the ladder untouched.
	ActionNone ActionKind = "none"
	// ActionCreate opens Action.Level.
	ActionCreate ActionKind = "create"
	// ActionHold keeps the ladder at its current level.
	ActionHold ActionKind = "hold"
	// ActionExpire closes the pending decision because the renewal passed.
	ActionExpire ActionKind = "expire"
)

// Reasons attached to an Action.
const (
	ReasonDecisionClosed   = "decision_closed"
	ReasonResponded        = "responded"
	ReasonRenewalPassed    = "renewal_passed"
	ReasonOverdueElapsed   = "overdue_window_elapsed"
	ReasonOpen             = "open"
	ReasonWaitElapsed      = "wait_elapsed"
	ReasonWaiting          = "waiting"
	ReasonTopLevel         = "top_level"
	ReasonLevel4Ineligible = "level4_ineligible"
)

// Snapshot is everything Advance needs to know about one decision.
type Snapshot struct {
	DecisionID   snowflake.ID
	DecisionOpen bool
	CreatedAt    time.Time
	AmountCents  int64
	RenewalDate  *time.Time
	Escalations  []Escalation
}

// Policy carries the tunable parts of the ladder.
type Policy struct {
	Wait                 func(level int) time.Duration
	Level4MinAmountCents int64
	Level4MaxRenewalDays int
	// OverdueWindow bounds a decision opened after its renewal date already
	// passed. Zero leaves such decisions open until someone answers.
	OverdueWindow time.Duration
}

type Action struct {
	Kind   ActionKind
	Level  int
	Reason string
}

// Current returns the highest level escalation, if any.
func (s Snapshot) Current() (Escalation, bool) {
	var (
		current Escalation
		found   bool
	)
	for _, e := range s.Escalations {
		if !found || e.Level > current.Level {
			current = e
			found = true
		}
	}
	return current, found
}

// Responded is true once any level received an answer.
func (s Snapshot) Responded() bool {
	for _, e := range s.Escalations {
		if e.Responded() {
			return true
		}
	}
	return false
}

// Deadline reports whether an open decision ran out of time. A decision
// opened before its renewal lapses once the renewal day is over; one opened
// against an overdue renewal lapses after the overdue window.
func (s Snapshot) Deadline(p Policy, now time.Time) (bool, string) {
	if s.RenewalDate == nil {
		return false, ""
	}
	if s.CreatedAt.IsZero() || subscriptiondomain.DaysUntil(s.RenewalDate, s.CreatedAt) >= 0 {
		return subscriptiondomain.DaysUntil(s.RenewalDate, now) < 0, ReasonRenewalPassed
	}
	if p.OverdueWindow <= 0 {
		return false, ""
	}
	return !now.Before(s.CreatedAt.Add(p.OverdueWindow)), ReasonOverdueElapsed
}

// Advance decides the next step of the ladder. It has no side effects, so a
// caller may invoke it as often as it likes; only ActionCreate and
// ActionExpire require a write.
//
// The deadline is checked before responses: a snoozed or delegated answer
// stops the ladder but does not keep the decision open past it.
func Advance(s Snapshot, p Policy, now time.Time) Action {
	if !s.DecisionOpen {
		return Action{Kind: ActionNone, Reason: ReasonDecisionClosed}
	}
	if lapsed, reason := s.Deadline(p, now); lapsed {
		return Action{Kind: ActionExpire, Reason: reason}
	}
	if s.Responded() {
		return Action{Kind: ActionNone, Reason: ReasonResponded}
	}

	current, ok := s.Current()
	if !ok {
		return Action{Kind: ActionCreate, Level: MinLevel, Reason: ReasonOpen}
	}
	if current.Level >= MaxLevel {
		return Action{Kind: ActionNone, Level: current.Level, Reason: ReasonTopLevel}
	}

	var wait time.Duration
	if p.Wait != nil {
		wait = p.Wait(current.Level)
	}
	if now.Sub(current.WaitStart()) < wait {
		return Action{Kind: ActionNone, Level: current.Level, Reason: ReasonWaiting}
	}

	next := current.Level + 1
	if next == MaxLevel && !Level4Eligible(s, p, now) {
		return Action{Kind: ActionHold, Level: current.Level, Reason: ReasonLevel4Ineligible}
	}
	return Action{Kind: ActionCreate, Level: next, Reason: ReasonWaitElapsed}
}

// Level4Eligible requires a large enough amount and an imminent renewal.
func Level4Eligible(s Snapshot, p Policy, now time.Time) bool {
	if s.AmountCents < p.Level4MinAmountCents {
		return false
	}
	if s.RenewalDate == nil {
		return false
	}
	return subscriptiondomain.DaysUntil(s.RenewalDate, now) <= p.Level4MaxRenewalDays
}
