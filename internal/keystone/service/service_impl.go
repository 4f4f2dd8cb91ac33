package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/spendwise/internal/clock"
	"github.com/smallbiznis/spendwise/internal/dependency/graph"
	dependencyservice "github.com/smallbiznis/spendwise/internal/dependency/service"
	keystonedomain "github.com/smallbiznis/spendwise/internal/keystone/domain"
	"github.com/smallbiznis/spendwise/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/spendwise/internal/subscription/domain"
	tooldomain "github.com/smallbiznis/spendwise/internal/tool/domain"
	usagedomain "github.com/smallbiznis/spendwise/internal/usage/domain"
	"github.com/smallbiznis/spendwise/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	ToolRepo     tooldomain.Repository
	Subscription subscriptiondomain.Repository
	Usage        usagedomain.Service
	Dependencies *dependencyservice.Service
	Clock        clock.Clock      `optional:"true"`
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	toolRepo     tooldomain.Repository
	subscription subscriptiondomain.Repository
	usage        usagedomain.Service
	dependencies *dependencyservice.Service
	clock        clock.Clock
	metrics      *metrics.Metrics
}

func NewService(p Params) keystonedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("keystone.service"),
		toolRepo:     p.ToolRepo,
		subscription: p.Subscription,
		usage:        p.Usage,
		dependencies: p.Dependencies,
		clock:        clk,
		metrics:      p.Metrics,
	}
}

// Recompute scores every tool of the org against the org-wide maxima and
// writes the scores back in one transaction.
func (s *Service) Recompute(ctx context.Context, orgID snowflake.ID) (keystonedomain.RecomputeResult, error) {
	now := s.clock.Now()
	result := keystonedomain.RecomputeResult{
		OrgID:      orgID,
		Tools:      []keystonedomain.ToolScore{},
		ComputedAt: now,
	}

	tools, err := s.toolRepo.ListByOrg(ctx, s.db, orgID)
	if err != nil {
		return result, fmt.Errorf("list tools: %w", err)
	}
	if len(tools) == 0 {
		return result, nil
	}

	userCounts, err := s.usage.OrgUserCounts(ctx, orgID)
	if err != nil {
		return result, err
	}
	g, err := s.dependencies.Graph(ctx, orgID)
	if err != nil {
		return result, err
	}
	impacts := g.ImpactAll()

	for _, t := range tools {
		if userCounts[t.ID] > result.MaxUserCount {
			result.MaxUserCount = userCounts[t.ID]
		}
	}
	result.MaxDependentCount = graph.MaxDependents(impacts)

	updates := make([]tooldomain.KeystoneUpdate, 0, len(tools))
	for _, t := range tools {
		users := userCounts[t.ID]
		dependents := impacts[t.ID].TotalDependents
		score := keystonedomain.Score(users, result.MaxUserCount, dependents, result.MaxDependentCount)
		isKeystone := keystonedomain.IsKeystone(score)
		if isKeystone {
			result.Keystones++
		}

		result.Tools = append(result.Tools, keystonedomain.ToolScore{
			ToolID:         t.ID,
			UserCount:      users,
			DependentCount: dependents,
			KeystoneScore:  score,
			IsKeystone:     isKeystone,
			PreviousScore:  t.KeystoneScore,
		})
		updates = append(updates, tooldomain.KeystoneUpdate{
			ToolID:     t.ID,
			Score:      score,
			IsKeystone: isKeystone,
		})

		if isKeystone != t.IsKeystone {
			ctxlogger.WithContext(ctx, s.log).Info("keystone status changed",
				zap.String("org_id", orgID.String()),
				zap.String("tool_id", t.ID.String()),
				zap.Bool("is_keystone", isKeystone),
				zap.Float64("score", score),
			)
		}
	}

	if err := s.toolRepo.UpdateKeystone(ctx, s.db, orgID, updates, now); err != nil {
		return result, fmt.Errorf("update keystone scores: %w", err)
	}

	s.metrics.RecordKeystoneRecompute(ctx, len(result.Tools), result.Keystones)
	s.log.Debug("keystone scores recomputed",
		zap.String("org_id", orgID.String()),
		zap.Int("tools", len(result.Tools)),
		zap.Int("keystones", result.Keystones),
		zap.Int("max_user_count", result.MaxUserCount),
		zap.Int("max_dependent_count", result.MaxDependentCount),
	)
	return result, nil
}

// RecomputeAll runs Recompute for every org with tools. A failing org is
// logged and skipped; the first error is returned after all orgs ran.
func (s *Service) RecomputeAll(ctx context.Context) ([]keystonedomain.RecomputeResult, error) {
	orgIDs, err := s.subscription.ListOrgIDs(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list orgs: %w", err)
	}

	results := make([]keystonedomain.RecomputeResult, 0, len(orgIDs))
	var firstErr error
	for _, orgID := range orgIDs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := s.Recompute(ctx, orgID)
		if err != nil {
			s.log.Warn("keystone recompute failed",
				zap.String("org_id", orgID.String()),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, result)
	}
	return results, firstErr
}
