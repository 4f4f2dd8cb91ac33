package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type AnalyzeResult struct {
	Outcome  string    `json:"outcome"`
	Decision *Decision `json:"decision,omitempty"`
	// Evaluated is set for KEEP outcomes, which are not persisted.
	Evaluated *Decision `json:"evaluated,omitempty"`
}

type DecideRequest struct {
	OrgID      snowflake.ID
	DecisionID snowflake.ID
	ActorID    snowflake.ID
	Notes      string
}

type Service interface {
	Analyze(ctx context.Context, orgID, subscriptionID snowflake.ID) (AnalyzeResult, error)
	AnalyzeAll(ctx context.Context, orgID snowflake.ID) ([]AnalyzeResult, error)
	AnalyzeRenewing(ctx context.Context, within time.Duration, limit int) ([]AnalyzeResult, error)
	Approve(ctx context.Context, req DecideRequest) (*Decision, error)
	Reject(ctx context.Context, req DecideRequest) (*Decision, error)
	Execute(ctx context.Context, req DecideRequest) (*Decision, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*Decision, error)
	ListPending(ctx context.Context, orgID snowflake.ID) ([]Decision, error)
}
