package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	"github.com/smallbiznis/spendwise/internal/clock"
	tooldomain "github.com/smallbiznis/spendwise/internal/tool/domain"
	"github.com/smallbiznis/spendwise/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     tooldomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     tooldomain.Repository
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func NewService(p Params) tooldomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tool.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		clock:    clk,
	}
}

// Upsert records a tool reported by a discovery source. Spellings that
// normalize to the same key resolve to the row stored first.
func (s *Service) Upsert(ctx context.Context, req tooldomain.UpsertToolRequest) (tooldomain.UpsertToolResult, error) {
	name := strings.TrimSpace(req.Name)
	if tooldomain.NormalizeName(name) == "" {
		return tooldomain.UpsertToolResult{}, tooldomain.ErrInvalidToolName
	}
	if !req.Category.Valid() {
		return tooldomain.UpsertToolResult{}, tooldomain.ErrInvalidToolCategory
	}

	now := s.clock.Now()
	candidate := &tooldomain.Tool{
		ID:        s.genID.Generate(),
		OrgID:     req.OrgID,
		Name:      name,
		Category:  req.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, err := s.repo.Upsert(ctx, s.db, candidate)
	if err != nil {
		return tooldomain.UpsertToolResult{}, fmt.Errorf("upsert tool: %w", err)
	}
	if stored == nil {
		return tooldomain.UpsertToolResult{}, tooldomain.ErrToolNotFound
	}

	result := tooldomain.UpsertToolResult{Tool: stored, Created: stored.ID == candidate.ID}
	if !result.Created {
		return result, nil
	}

	ctxlogger.WithContext(ctx, s.log).Info("tool discovered",
		zap.String("org_id", req.OrgID.String()),
		zap.String("tool_id", stored.ID.String()),
		zap.String("normalized_name", stored.NormalizedName),
	)
	if s.auditSvc != nil {
		id := stored.ID.String()
		if err := s.auditSvc.AuditLog(ctx, &stored.OrgID, "", nil, auditdomain.ActionToolDiscovered, auditdomain.TargetTool, &id, map[string]any{
			"name":            stored.Name,
			"normalized_name": stored.NormalizedName,
			"category":        string(stored.Category),
		}); err != nil {
			s.log.Warn("audit log failed", zap.String("action", auditdomain.ActionToolDiscovered), zap.Error(err))
		}
	}
	return result, nil
}
