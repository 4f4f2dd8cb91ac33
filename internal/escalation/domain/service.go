package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
)

// Advance outcomes.
const (
	OutcomeCreated        = "created"
	OutcomeDuplicateLevel = "duplicate_level"
	OutcomeHeld           = "held"
	OutcomeExpired        = "expired"
	OutcomeNone           = "none"
)

type OpenRequest struct {
	OrgID      snowflake.ID
	DecisionID snowflake.ID
}

type AdvanceResult struct {
	OrgID      snowflake.ID `json:"org_id"`
	DecisionID snowflake.ID `json:"decision_id"`
	Outcome    string       `json:"outcome"`
	Level      int          `json:"level"`
	Reason     string       `json:"reason"`
	Escalation *Escalation  `json:"escalation,omitempty"`
}

type RespondRequest struct {
	OrgID        snowflake.ID
	EscalationID snowflake.ID
	ActorID      snowflake.ID
	Response     ResponseType
}

type RespondResult struct {
	Escalation *Escalation              `json:"escalation"`
	Decision   *decisiondomain.Decision `json:"decision"`
}

type DispatchResult struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type Service interface {
	// Open starts the ladder of a freshly created decision at level 1.
	Open(ctx context.Context, req OpenRequest) (AdvanceResult, error)
	Advance(ctx context.Context, orgID, decisionID snowflake.ID) (AdvanceResult, error)
	AdvanceAll(ctx context.Context, limit int) ([]AdvanceResult, error)
	Respond(ctx context.Context, req RespondRequest) (RespondResult, error)
	DispatchPending(ctx context.Context, limit int) (DispatchResult, error)
	ListByDecision(ctx context.Context, orgID, decisionID snowflake.ID) ([]Escalation, error)
}
