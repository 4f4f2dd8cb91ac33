package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/spendwise/internal/config"
	usagedomain "github.com/smallbiznis/spendwise/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       usagedomain.Repository
	Governance *config.GovernanceHolder `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       usagedomain.Repository
	governance *config.GovernanceHolder
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("usage.service"),
		repo:       p.Repo,
		governance: p.Governance,
	}
}

func (s *Service) Metrics(ctx context.Context, orgID, toolID snowflake.ID, asOf time.Time) (usagedomain.UsageMetrics, error) {
	if toolID == 0 {
		return usagedomain.UsageMetrics{}, usagedomain.ErrInvalidTool
	}

	rows, err := s.repo.ListByTool(ctx, s.db, orgID, toolID)
	if err != nil {
		return usagedomain.UsageMetrics{}, fmt.Errorf("list tool access: %w", err)
	}

	metrics := usagedomain.Aggregate(rows, asOf, s.governance.Get().FreshnessWindow())
	metrics.ToolID = toolID
	s.log.Debug("usage aggregated",
		zap.String("tool_id", toolID.String()),
		zap.Int("total_users", metrics.TotalUsers),
		zap.Int("active_users", metrics.ActiveUsers),
	)
	return metrics, nil
}

// OrgUserCounts returns the active access grants per tool. Revoked and
// inactive grants are not counted.
func (s *Service) OrgUserCounts(ctx context.Context, orgID snowflake.ID) (map[snowflake.ID]int, error) {
	counts, err := s.repo.CountActiveByTool(ctx, s.db, orgID)
	if err != nil {
		return nil, fmt.Errorf("count tool access: %w", err)
	}
	return counts, nil
}
