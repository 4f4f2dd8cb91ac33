// Package domain holds the keystone scoring formula shared by the batch
// scorer and the decision engine.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CriticalThreshold is the score above which a tool is a keystone. The
// decision engine protects tools above the same value.
const CriticalThreshold = 0.7

const (
	UserWeight       = 0.4
	DependentsWeight = 0.6
)

// Score combines seat coverage and dependents into [0,1]. A ratio whose
// denominator is zero counts as 0.
func Score(userCount, maxUserCount, dependentCount, maxDependentCount int) float64 {
	score := UserWeight*ratio(userCount, maxUserCount) + DependentsWeight*ratio(dependentCount, maxDependentCount)
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

func IsKeystone(score float64) bool {
	return score > CriticalThreshold
}

func ratio(n, total int) float64 {
	if total <= 0 || n <= 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// ToolScore is the recompute output for one tool.
type ToolScore struct {
	ToolID         snowflake.ID `json:"tool_id"`
	UserCount      int          `json:"user_count"`
	DependentCount int          `json:"dependent_count"`
	KeystoneScore  float64      `json:"keystone_score"`
	IsKeystone     bool         `json:"is_keystone"`
	PreviousScore  float64      `json:"previous_score"`
}

type RecomputeResult struct {
	OrgID             snowflake.ID `json:"org_id"`
	Tools             []ToolScore  `json:"tools"`
	MaxUserCount      int          `json:"max_user_count"`
	MaxDependentCount int          `json:"max_dependent_count"`
	Keystones         int          `json:"keystones"`
	ComputedAt        time.Time    `json:"computed_at"`
}

type Service interface {
	Recompute(ctx context.Context, orgID snowflake.ID) (RecomputeResult, error)
	RecomputeAll(ctx context.Context) ([]RecomputeResult, error)
}
