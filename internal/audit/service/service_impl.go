package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	"github.com/smallbiznis/spendwise/internal/audit/masking"
	"github.com/smallbiznis/spendwise/internal/auditcontext"
	"github.com/smallbiznis/spendwise/internal/clock"
	"github.com/smallbiznis/spendwise/internal/orgcontext"
	"github.com/smallbiznis/spendwise/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultListLimit = 50

// Contact details never land in the trail in clear text.
var sensitiveKeys = []string{"email", "phone", "slack_id", "recipients", "webhook_url"}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

// AuditLog appends one entry. Org and actor fall back to the request
// context; contact details in metadata are masked before they are stored.
func (s *Service) AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OrgID:      s.resolveOrgID(ctx, orgID),
		Action:     action,
		TargetType: strings.TrimSpace(targetType),
		TargetID:   trimmedOrNil(targetID),
		Metadata:   datatypes.JSONMap(entryMetadata(ctx, metadata)),
		IPAddress:  nonEmpty(auditcontext.IPAddressFromContext(ctx)),
		UserAgent:  nonEmpty(auditcontext.UserAgentFromContext(ctx)),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if entry.TargetType == "" {
		entry.TargetType = "unknown"
	}
	entry.ActorType, entry.ActorID = resolveActor(ctx, strings.TrimSpace(actorType), actorID)

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("target_type", entry.TargetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if orgID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidOrganization
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		OrgID:      orgID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Limit:      clampLimit(req.Limit),
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item != nil {
			logs = append(logs, *item)
		}
	}
	return auditdomain.ListAuditLogResponse{AuditLogs: logs}, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > auditdomain.TrailLimit:
		return auditdomain.TrailLimit
	default:
		return limit
	}
}

// entryMetadata masks contact fields and records the correlation id. Ids
// minted for a scheduler run are stored as run_id, request ids as request_id.
func entryMetadata(ctx context.Context, metadata map[string]any) map[string]any {
	payload := masking.MaskFields(metadata, sensitiveKeys...)
	if payload == nil {
		payload = map[string]any{}
	}
	if id := correlation.ID(ctx); id != "" {
		if strings.Contains(id, ":") {
			payload["run_id"] = id
		} else {
			payload["request_id"] = id
		}
	}
	return payload
}

func (s *Service) resolveOrgID(ctx context.Context, orgID *snowflake.ID) *snowflake.ID {
	if orgID != nil && *orgID != 0 {
		return orgID
	}
	if resolved, ok := orgcontext.OrgIDFromContext(ctx); ok {
		return &resolved
	}
	return nil
}

// resolveActor prefers the explicit actor, then the one on ctx, and
// otherwise attributes the entry to the system.
func resolveActor(ctx context.Context, actorType string, actorID *string) (string, *string) {
	if actorType != "" {
		return actorType, trimmedOrNil(actorID)
	}
	if ctxType, ctxID := auditcontext.ActorFromContext(ctx); ctxType != "" {
		if id := trimmedOrNil(actorID); id != nil {
			return ctxType, id
		}
		return ctxType, nonEmpty(ctxID)
	}
	return string(auditdomain.ActorTypeSystem), trimmedOrNil(actorID)
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	return nonEmpty(strings.TrimSpace(*value))
}

func nonEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
