package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	"github.com/smallbiznis/spendwise/internal/clock"
	"github.com/smallbiznis/spendwise/internal/config"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	notificationdomain "github.com/smallbiznis/spendwise/internal/notification/domain"
	"github.com/smallbiznis/spendwise/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/spendwise/internal/subscription/domain"
	tooldomain "github.com/smallbiznis/spendwise/internal/tool/domain"
	userdomain "github.com/smallbiznis/spendwise/internal/user/domain"
	"github.com/smallbiznis/spendwise/pkg/log/ctxlogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxDeliveryAttempts is how often a level is retried before it is marked
// failed. The ladder still climbs past a failed level once its wait elapses.
const MaxDeliveryAttempts = 3

const defaultAdvanceBatch = 100

var tracer = otel.Tracer("spendwise/escalation")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          escalationdomain.Repository
	Decisions     decisiondomain.Repository
	Subscriptions subscriptiondomain.Repository
	Tools         tooldomain.Repository
	Users         userdomain.Repository
	Dispatcher    notificationdomain.Dispatcher `optional:"true"`
	Governance    *config.GovernanceHolder      `optional:"true"`
	AuditSvc      auditdomain.Service           `optional:"true"`
	Clock         clock.Clock                   `optional:"true"`
	Metrics       *metrics.Metrics              `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          escalationdomain.Repository
	decisions     decisiondomain.Repository
	subscriptions subscriptiondomain.Repository
	tools         tooldomain.Repository
	users         userdomain.Repository
	dispatcher    notificationdomain.Dispatcher
	governance    *config.GovernanceHolder
	auditSvc      auditdomain.Service
	clock         clock.Clock
	metrics       *metrics.Metrics
}

func NewService(p Params) escalationdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("escalation.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		decisions:     p.Decisions,
		subscriptions: p.Subscriptions,
		tools:         p.Tools,
		users:         p.Users,
		dispatcher:    p.Dispatcher,
		governance:    p.Governance,
		auditSvc:      p.AuditSvc,
		clock:         clk,
		metrics:       p.Metrics,
	}
}

// ladder is the persisted state Advance is evaluated on.
type ladder struct {
	decision     *decisiondomain.Decision
	subscription *subscriptiondomain.Subscription
	snapshot     escalationdomain.Snapshot
}

func (s *Service) Open(ctx context.Context, req escalationdomain.OpenRequest) (escalationdomain.AdvanceResult, error) {
	l, err := s.load(ctx, req.OrgID, req.DecisionID)
	if err != nil {
		return escalationdomain.AdvanceResult{}, err
	}
	if current, ok := l.snapshot.Current(); ok {
		return escalationdomain.AdvanceResult{
			OrgID:      req.OrgID,
			DecisionID: req.DecisionID,
			Outcome:    escalationdomain.OutcomeDuplicateLevel,
			Level:      current.Level,
			Reason:     escalationdomain.ReasonOpen,
		}, nil
	}
	return s.apply(ctx, l)
}

func (s *Service) Advance(ctx context.Context, orgID, decisionID snowflake.ID) (escalationdomain.AdvanceResult, error) {
	ctx, span := tracer.Start(ctx, "escalation.advance")
	defer span.End()
	span.SetAttributes(attribute.String("decision_id", decisionID.String()))

	l, err := s.load(ctx, orgID, decisionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return escalationdomain.AdvanceResult{}, err
	}
	result, err := s.apply(ctx, l)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		return result, err
	}
	span.SetAttributes(
		attribute.String("outcome", result.Outcome),
		attribute.Int("level", result.Level),
	)
	return result, nil
}

// AdvanceAll advances every pending non-KEEP decision, limit decisions per
// page. Answered decisions are only listed once their renewal passed. A
// decision that fails is logged and skipped; the first error is returned
// after the batch.
func (s *Service) AdvanceAll(ctx context.Context, limit int) ([]escalationdomain.AdvanceResult, error) {
	if limit <= 0 {
		limit = defaultAdvanceBatch
	}
	query := decisiondomain.PendingQuery{
		RenewalBefore: startOfDay(s.clock.Now()),
		Limit:         limit,
	}

	var (
		results  []escalationdomain.AdvanceResult
		firstErr error
	)
	for {
		refs, err := s.decisions.ListPendingIDs(ctx, s.db, query)
		if err != nil {
			return results, fmt.Errorf("list pending decisions: %w", err)
		}
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			result, err := s.Advance(ctx, ref.OrgID, ref.ID)
			if err != nil {
				s.log.Warn("escalation advance failed",
					zap.String("org_id", ref.OrgID.String()),
					zap.String("decision_id", ref.ID.String()),
					zap.Error(err),
				)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			results = append(results, result)
		}
		if len(refs) < limit {
			return results, firstErr
		}
		query.AfterID = refs[len(refs)-1].ID
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) load(ctx context.Context, orgID, decisionID snowflake.ID) (ladder, error) {
	decision, err := s.decisions.FindByID(ctx, s.db, orgID, decisionID)
	if err != nil {
		return ladder{}, fmt.Errorf("find decision: %w", err)
	}
	if decision == nil {
		return ladder{}, decisiondomain.ErrDecisionNotFound
	}

	subscription, err := s.subscriptions.FindByID(ctx, s.db, orgID, decision.SubscriptionID)
	if err != nil {
		return ladder{}, fmt.Errorf("find subscription: %w", err)
	}

	escalations, err := s.repo.ListByDecision(ctx, s.db, orgID, decisionID)
	if err != nil {
		return ladder{}, fmt.Errorf("list escalations: %w", err)
	}

	open := decision.Status == decisiondomain.DecisionStatusPending &&
		decision.DecisionType != decisiondomain.DecisionTypeKeep
	snapshot := escalationdomain.Snapshot{
		DecisionID:   decisionID,
		DecisionOpen: open,
		CreatedAt:    decision.CreatedAt,
		Escalations:  escalations,
	}
	if subscription != nil {
		snapshot.AmountCents = subscription.AmountCents
		snapshot.RenewalDate = subscription.RenewalDate
	}
	return ladder{decision: decision, subscription: subscription, snapshot: snapshot}, nil
}

func (s *Service) policy() escalationdomain.Policy {
	gp := s.governance.Get()
	return escalationdomain.Policy{
		Wait:                 gp.WaitFor,
		Level4MinAmountCents: gp.Level4MinAmountCents,
		Level4MaxRenewalDays: gp.Level4MaxRenewalDays,
		OverdueWindow:        gp.OverdueWindow(),
	}
}

func (s *Service) apply(ctx context.Context, l ladder) (escalationdomain.AdvanceResult, error) {
	now := s.clock.Now()
	action := escalationdomain.Advance(l.snapshot, s.policy(), now)
	result := escalationdomain.AdvanceResult{
		OrgID:      l.decision.OrgID,
		DecisionID: l.decision.ID,
		Outcome:    escalationdomain.OutcomeNone,
		Level:      action.Level,
		Reason:     action.Reason,
	}
	logger := ctxlogger.WithContext(ctx, s.log).With(
		zap.String("org_id", l.decision.OrgID.String()),
		zap.String("decision_id", l.decision.ID.String()),
	)

	switch action.Kind {
	case escalationdomain.ActionHold:
		result.Outcome = escalationdomain.OutcomeHeld
		metrics.Scheduler().IncEscalationHold(strconv.Itoa(action.Level), action.Reason)
		s.metrics.RecordEscalation(ctx, action.Level, escalationdomain.OutcomeHeld)
		logger.Debug("escalation held", zap.Int("level", action.Level), zap.String("reason", action.Reason))
		return result, nil

	case escalationdomain.ActionExpire:
		moved, err := s.decisions.ChangeStatus(ctx, s.db, decisiondomain.StatusChange{
			OrgID:      l.decision.OrgID,
			DecisionID: l.decision.ID,
			From:       decisiondomain.DecisionStatusPending,
			To:         decisiondomain.DecisionStatusExpired,
			At:         now,
		})
		if err != nil {
			return result, fmt.Errorf("expire decision: %w", err)
		}
		if !moved {
			result.Reason = escalationdomain.ReasonDecisionClosed
			return result, nil
		}
		result.Outcome = escalationdomain.OutcomeExpired
		if current, ok := l.snapshot.Current(); ok {
			result.Level = current.Level
		}
		metrics.Scheduler().IncDecisionTransition(metrics.DecisionStatusPending, metrics.DecisionStatusExpired)
		s.metrics.RecordEscalation(ctx, result.Level, escalationdomain.OutcomeExpired)
		s.audit(ctx, l.decision.OrgID, auditdomain.ActionDecisionExpired, auditdomain.TargetDecision, l.decision.ID, map[string]any{
			"reason": action.Reason,
			"level":  result.Level,
		})
		logger.Info("decision expired", zap.Int("level", result.Level), zap.String("reason", action.Reason))
		return result, nil

	case escalationdomain.ActionCreate:
		escalation, err := s.create(ctx, l, action.Level, now)
		if errors.Is(err, escalationdomain.ErrEscalationLevelExists) {
			result.Outcome = escalationdomain.OutcomeDuplicateLevel
			s.metrics.RecordEscalation(ctx, action.Level, escalationdomain.OutcomeDuplicateLevel)
			logger.Debug("escalation level already exists", zap.Int("level", action.Level))
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result.Outcome = escalationdomain.OutcomeCreated
		result.Escalation = escalation
		s.metrics.RecordEscalation(ctx, action.Level, escalationdomain.OutcomeCreated)
		s.audit(ctx, l.decision.OrgID, auditdomain.ActionEscalationOpened, auditdomain.TargetEscalation, escalation.ID, map[string]any{
			"decision_id": l.decision.ID.String(),
			"level":       escalation.Level,
			"channels":    []string(escalation.Channels),
			"recipients":  []string(escalation.Recipients),
		})
		logger.Info("escalation created",
			zap.String("escalation_id", escalation.ID.String()),
			zap.Int("level", escalation.Level),
			zap.Strings("channels", escalation.Channels),
		)
		return result, nil

	default:
		return result, nil
	}
}

func (s *Service) create(ctx context.Context, l ladder, level int, now time.Time) (*escalationdomain.Escalation, error) {
	spec, ok := escalationdomain.Level(level)
	if !ok {
		return nil, escalationdomain.ErrInvalidLevel
	}

	recipients, err := s.recipients(ctx, l, spec.Audience)
	if err != nil {
		return nil, err
	}

	channels := make([]string, 0, len(spec.Channels))
	for _, c := range spec.Channels {
		channels = append(channels, string(c))
	}
	ids := make([]string, 0, len(recipients))
	for _, u := range recipients {
		ids = append(ids, u.ID.String())
	}

	escalation := &escalationdomain.Escalation{
		ID:          s.genID.Generate(),
		OrgID:       l.decision.OrgID,
		DecisionID:  l.decision.ID,
		Level:       level,
		Channels:    channels,
		Recipients:  ids,
		Template:    spec.Template,
		ScheduledAt: now,
		Status:      escalationdomain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, escalation); err != nil {
		return nil, err
	}
	return escalation, nil
}

// recipients resolves who a level is addressed to. Owner levels fall back to
// finance when the owner is gone, and finance falls back to admins.
func (s *Service) recipients(ctx context.Context, l ladder, audience escalationdomain.Audience) ([]userdomain.User, error) {
	orgID := l.decision.OrgID

	var owner *userdomain.User
	if l.subscription != nil && l.subscription.OwnerID != nil {
		u, err := s.users.FindByID(ctx, s.db, orgID, *l.subscription.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("find owner: %w", err)
		}
		if u != nil && u.IsActive() {
			owner = u
		}
	}

	finance, err := s.users.ListActiveByRole(ctx, s.db, orgID, userdomain.RoleFinance)
	if err != nil {
		return nil, fmt.Errorf("list finance users: %w", err)
	}
	if len(finance) == 0 {
		finance, err = s.users.ListActiveByRole(ctx, s.db, orgID, userdomain.RoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("list admin users: %w", err)
		}
	}

	var out []userdomain.User
	switch audience {
	case escalationdomain.AudienceOwner:
		if owner != nil {
			out = append(out, *owner)
		} else {
			out = append(out, finance...)
		}
	case escalationdomain.AudienceManagerFinance:
		if owner != nil && owner.ManagerID != nil {
			manager, err := s.users.FindByID(ctx, s.db, orgID, *owner.ManagerID)
			if err != nil {
				return nil, fmt.Errorf("find manager: %w", err)
			}
			if manager != nil && manager.IsActive() {
				out = append(out, *manager)
			}
		}
		out = append(out, finance...)
	case escalationdomain.AudienceFinanceLead:
		if len(finance) > 0 {
			out = append(out, finance[0])
		}
	}

	out = dedupe(out)
	if len(out) == 0 {
		return nil, escalationdomain.ErrNoRecipients
	}
	return out, nil
}

func dedupe(users []userdomain.User) []userdomain.User {
	seen := make(map[snowflake.ID]struct{}, len(users))
	out := users[:0]
	for _, u := range users {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, targetType, &id, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) ListByDecision(ctx context.Context, orgID, decisionID snowflake.ID) ([]escalationdomain.Escalation, error) {
	decision, err := s.decisions.FindByID(ctx, s.db, orgID, decisionID)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, decisiondomain.ErrDecisionNotFound
	}
	return s.repo.ListByDecision(ctx, s.db, orgID, decisionID)
}
