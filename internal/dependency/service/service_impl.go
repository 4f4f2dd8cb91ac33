package service

import (
	"context"
	"fmt"
	"math"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	"github.com/smallbiznis/spendwise/internal/clock"
	"github.com/smallbiznis/spendwise/internal/config"
	dependencydomain "github.com/smallbiznis/spendwise/internal/dependency/domain"
	"github.com/smallbiznis/spendwise/internal/dependency/graph"
	tooldomain "github.com/smallbiznis/spendwise/internal/tool/domain"
	"github.com/smallbiznis/spendwise/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       dependencydomain.Repository
	ToolRepo   tooldomain.Repository
	Governance *config.GovernanceHolder `optional:"true"`
	AuditSvc   auditdomain.Service      `optional:"true"`
	Clock      clock.Clock              `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       dependencydomain.Repository
	toolRepo   tooldomain.Repository
	governance *config.GovernanceHolder
	auditSvc   auditdomain.Service
	clock      clock.Clock
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("dependency.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		toolRepo:   p.ToolRepo,
		governance: p.Governance,
		auditSvc:   p.AuditSvc,
		clock:      clk,
	}
}

// Graph loads the org's tools and edges into a traversal graph.
func (s *Service) Graph(ctx context.Context, orgID snowflake.ID) (*graph.Graph, error) {
	tools, err := s.toolRepo.ListByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	edges, err := s.repo.ListByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}

	ids := make([]snowflake.ID, 0, len(tools))
	for _, t := range tools {
		ids = append(ids, t.ID)
	}

	g := graph.New(ids, ToEdges(edges), graph.WithMaxDepth(s.governance.Get().MaxTraversalDepth))
	if dropped := g.DroppedSelfLoops(); dropped > 0 {
		s.log.Warn("self-referencing dependencies ignored",
			zap.String("org_id", orgID.String()),
			zap.Int("count", dropped),
		)
	}
	return g, nil
}

func (s *Service) Impact(ctx context.Context, orgID, toolID snowflake.ID) (graph.Impact, error) {
	tool, err := s.toolRepo.FindByID(ctx, s.db, orgID, toolID)
	if err != nil {
		return graph.Impact{}, err
	}
	if tool == nil {
		return graph.Impact{}, dependencydomain.ErrToolNotFound
	}

	g, err := s.Graph(ctx, orgID)
	if err != nil {
		return graph.Impact{}, err
	}
	return g.ImpactSet(toolID), nil
}

// Dependencies returns the direct edges in both directions for one tool.
func (s *Service) Dependencies(ctx context.Context, orgID, toolID snowflake.ID) (dependencydomain.ToolDependencies, error) {
	out := dependencydomain.ToolDependencies{
		ToolID:     toolID,
		DependsOn:  []dependencydomain.ToolDependency{},
		DependedBy: []dependencydomain.ToolDependency{},
	}

	edges, err := s.repo.ListByOrg(ctx, s.db, orgID)
	if err != nil {
		return out, fmt.Errorf("list dependencies: %w", err)
	}
	for _, e := range edges {
		switch toolID {
		case e.SourceToolID:
			out.DependsOn = append(out.DependsOn, e)
		case e.TargetToolID:
			out.DependedBy = append(out.DependedBy, e)
		}
	}
	return out, nil
}

// AddDependency records that req.SourceToolID depends on req.TargetToolID.
// Both tools must belong to the org.
func (s *Service) AddDependency(ctx context.Context, req dependencydomain.AddDependencyRequest) (dependencydomain.ToolDependency, error) {
	if req.SourceToolID == req.TargetToolID {
		return dependencydomain.ToolDependency{}, dependencydomain.ErrSelfDependency
	}
	if !req.DependencyType.Valid() {
		return dependencydomain.ToolDependency{}, dependencydomain.ErrInvalidDependencyType
	}
	strength := dependencydomain.DefaultStrength
	if req.Strength != nil {
		strength = *req.Strength
		if math.IsNaN(strength) || strength < 0 || strength > 1 {
			return dependencydomain.ToolDependency{}, dependencydomain.ErrInvalidStrength
		}
	}

	edge := dependencydomain.ToolDependency{
		ID:             s.genID.Generate(),
		OrgID:          req.OrgID,
		SourceToolID:   req.SourceToolID,
		TargetToolID:   req.TargetToolID,
		DependencyType: req.DependencyType,
		Strength:       strength,
		Verified:       req.Verified,
		CreatedAt:      s.clock.Now(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range []snowflake.ID{req.SourceToolID, req.TargetToolID} {
			tool, err := s.toolRepo.FindByID(ctx, tx, req.OrgID, id)
			if err != nil {
				return err
			}
			if tool == nil {
				return dependencydomain.ErrToolNotFound
			}
		}
		return s.repo.Insert(ctx, tx, &edge)
	})
	if err != nil {
		return dependencydomain.ToolDependency{}, err
	}

	ctxlogger.WithContext(ctx, s.log).Info("dependency added",
		zap.String("org_id", req.OrgID.String()),
		zap.String("dependency_id", edge.ID.String()),
		zap.String("source_tool_id", edge.SourceToolID.String()),
		zap.String("target_tool_id", edge.TargetToolID.String()),
	)
	s.audit(ctx, auditdomain.ActionDependencyAdded, edge)
	return edge, nil
}

// RemoveDependency deletes one edge touching toolID.
func (s *Service) RemoveDependency(ctx context.Context, orgID, toolID, dependencyID snowflake.ID) error {
	var removed *dependencydomain.ToolDependency
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edge, err := s.repo.Delete(ctx, tx, orgID, dependencyID)
		if err != nil {
			return err
		}
		if edge.SourceToolID != toolID && edge.TargetToolID != toolID {
			return dependencydomain.ErrDependencyNotFound
		}
		removed = edge
		return nil
	})
	if err != nil {
		return err
	}

	ctxlogger.WithContext(ctx, s.log).Info("dependency removed",
		zap.String("org_id", orgID.String()),
		zap.String("dependency_id", dependencyID.String()),
	)
	s.audit(ctx, auditdomain.ActionDependencyRemoved, *removed)
	return nil
}

func (s *Service) audit(ctx context.Context, action string, edge dependencydomain.ToolDependency) {
	if s.auditSvc == nil {
		return
	}
	id := edge.SourceToolID.String()
	if err := s.auditSvc.AuditLog(ctx, &edge.OrgID, "", nil, action, auditdomain.TargetTool, &id, map[string]any{
		"dependency_id":   edge.ID.String(),
		"target_tool_id":  edge.TargetToolID.String(),
		"dependency_type": string(edge.DependencyType),
		"strength":        edge.Strength,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func ToEdges(rows []dependencydomain.ToolDependency) []graph.Edge {
	edges := make([]graph.Edge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, graph.Edge{
			Source:   row.SourceToolID,
			Target:   row.TargetToolID,
			Type:     string(row.DependencyType),
			Strength: row.Strength,
		})
	}
	return edges
}
