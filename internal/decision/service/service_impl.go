package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	"github.com/smallbiznis/spendwise/internal/clock"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	"github.com/smallbiznis/spendwise/internal/decision/engine"
	dependencyservice "github.com/smallbiznis/spendwise/internal/dependency/service"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	"github.com/smallbiznis/spendwise/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/spendwise/internal/subscription/domain"
	tooldomain "github.com/smallbiznis/spendwise/internal/tool/domain"
	usagedomain "github.com/smallbiznis/spendwise/internal/usage/domain"
	userdomain "github.com/smallbiznis/spendwise/internal/user/domain"
	"github.com/smallbiznis/spendwise/pkg/log/ctxlogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	listPendingLimit    = 100
	defaultRenewalBatch = 100
)

var tracer = otel.Tracer("spendwise/decision")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          decisiondomain.Repository
	Subscriptions subscriptiondomain.Repository
	Tools         tooldomain.Repository
	Users         userdomain.Repository
	Usage         usagedomain.Service
	Dependencies  *dependencyservice.Service
	Escalations   escalationdomain.Service `optional:"true"`
	Engine        *engine.Engine           `optional:"true"`
	AuditSvc      auditdomain.Service      `optional:"true"`
	Clock         clock.Clock              `optional:"true"`
	Metrics       *metrics.Metrics         `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          decisiondomain.Repository
	subscriptions subscriptiondomain.Repository
	tools         tooldomain.Repository
	users         userdomain.Repository
	usage         usagedomain.Service
	dependencies  *dependencyservice.Service
	escalations   escalationdomain.Service
	engine        *engine.Engine
	auditSvc      auditdomain.Service
	clock         clock.Clock
	metrics       *metrics.Metrics
}

func NewService(p Params) decisiondomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	eng := p.Engine
	if eng == nil {
		eng = engine.New()
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("decision.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		subscriptions: p.Subscriptions,
		tools:         p.Tools,
		users:         p.Users,
		usage:         p.Usage,
		dependencies:  p.Dependencies,
		escalations:   p.Escalations,
		engine:        eng,
		auditSvc:      p.AuditSvc,
		clock:         clk,
		metrics:       p.Metrics,
	}
}

// Analyze evaluates one subscription and stores the decision. An existing
// pending decision turns the run into a no-op that returns it; KEEP outcomes
// are returned but not stored.
func (s *Service) Analyze(ctx context.Context, orgID, subscriptionID snowflake.ID) (decisiondomain.AnalyzeResult, error) {
	ctx, span := tracer.Start(ctx, "decision.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("subscription_id", subscriptionID.String()))

	result, err := s.analyze(ctx, orgID, subscriptionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analyze failed")
		return result, err
	}
	span.SetAttributes(attribute.String("outcome", result.Outcome))
	return result, nil
}

func (s *Service) analyze(ctx context.Context, orgID, subscriptionID snowflake.ID) (decisiondomain.AnalyzeResult, error) {
	now := s.clock.Now()
	logger := ctxlogger.WithContext(ctx, s.log).With(
		zap.String("org_id", orgID.String()),
		zap.String("subscription_id", subscriptionID.String()),
	)

	sub, err := s.subscriptions.FindByID(ctx, s.db, orgID, subscriptionID)
	if err != nil {
		return decisiondomain.AnalyzeResult{}, fmt.Errorf("find subscription: %w", err)
	}
	if sub == nil {
		return decisiondomain.AnalyzeResult{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	if sub.Status != subscriptiondomain.SubscriptionStatusActive {
		return decisiondomain.AnalyzeResult{}, subscriptiondomain.ErrSubscriptionInactive
	}

	existing, err := s.repo.FindPendingBySubscription(ctx, s.db, orgID, subscriptionID)
	if err != nil {
		return decisiondomain.AnalyzeResult{}, fmt.Errorf("find pending decision: %w", err)
	}
	if existing != nil {
		s.metrics.RecordDecision(ctx, string(existing.DecisionType), decisiondomain.OutcomeSkippedPending, 0)
		logger.Debug("pending decision exists", zap.String("decision_id", existing.ID.String()))
		return decisiondomain.AnalyzeResult{Outcome: decisiondomain.OutcomeSkippedPending, Decision: existing}, nil
	}

	factors, err := s.Snapshot(ctx, sub, now)
	if err != nil {
		return decisiondomain.AnalyzeResult{}, err
	}
	eval := s.engine.Evaluate(factors, now)

	decision, err := s.record(sub, eval, now)
	if err != nil {
		return decisiondomain.AnalyzeResult{}, err
	}

	if eval.Type == decisiondomain.DecisionTypeKeep {
		s.metrics.RecordDecision(ctx, string(eval.Type), decisiondomain.OutcomeNoAction, 0)
		logger.Debug("subscription kept", zap.String("rule", eval.Rule))
		return decisiondomain.AnalyzeResult{Outcome: decisiondomain.OutcomeNoAction, Evaluated: decision}, nil
	}

	if err := s.repo.Insert(ctx, s.db, decision); err != nil {
		if !errors.Is(err, decisiondomain.ErrPendingDecisionExists) {
			return decisiondomain.AnalyzeResult{}, fmt.Errorf("insert decision: %w", err)
		}
		winner, findErr := s.repo.FindPendingBySubscription(ctx, s.db, orgID, subscriptionID)
		if findErr != nil {
			return decisiondomain.AnalyzeResult{}, fmt.Errorf("find pending decision: %w", findErr)
		}
		s.metrics.RecordDecision(ctx, string(eval.Type), decisiondomain.OutcomeSkippedPending, 0)
		logger.Info("concurrent analysis already created a pending decision")
		return decisiondomain.AnalyzeResult{Outcome: decisiondomain.OutcomeSkippedPending, Decision: winner}, nil
	}

	s.metrics.RecordDecision(ctx, string(eval.Type), decisiondomain.OutcomeCreated, eval.SavingsCents)
	s.audit(ctx, orgID, auditdomain.ActionDecisionCreated, decision.ID, map[string]any{
		"subscription_id": subscriptionID.String(),
		"decision_type":   string(decision.DecisionType),
		"rule":            decision.Rule,
		"savings_cents":   decision.SavingsPotentialCents,
	})
	logger.Info("decision created",
		zap.String("decision_id", decision.ID.String()),
		zap.String("decision_type", string(decision.DecisionType)),
		zap.String("rule", decision.Rule),
		zap.Float64("confidence", decision.Confidence),
		zap.Int64("savings_cents", decision.SavingsPotentialCents),
	)

	if s.escalations != nil {
		opened, err := s.escalations.Open(ctx, escalationdomain.OpenRequest{OrgID: orgID, DecisionID: decision.ID})
		switch {
		case err != nil:
			// The escalation tick opens missing ladders on its next run.
			logger.Warn("open escalation failed", zap.String("decision_id", decision.ID.String()), zap.Error(err))
		case opened.Outcome == escalationdomain.OutcomeExpired:
			decision.Status = decisiondomain.DecisionStatusExpired
			logger.Warn("decision expired on open", zap.String("decision_id", decision.ID.String()), zap.String("reason", opened.Reason))
		}
	}

	return decisiondomain.AnalyzeResult{Outcome: decisiondomain.OutcomeCreated, Decision: decision}, nil
}

// Snapshot gathers the factors the engine evaluates for a subscription.
func (s *Service) Snapshot(ctx context.Context, sub *subscriptiondomain.Subscription, now time.Time) (decisiondomain.DecisionFactors, error) {
	tool, err := s.tools.FindByID(ctx, s.db, sub.OrgID, sub.ToolID)
	if err != nil {
		return decisiondomain.DecisionFactors{}, fmt.Errorf("find tool: %w", err)
	}
	if tool == nil {
		return decisiondomain.DecisionFactors{}, tooldomain.ErrToolNotFound
	}

	usage, err := s.usage.Metrics(ctx, sub.OrgID, sub.ToolID, now)
	if err != nil {
		return decisiondomain.DecisionFactors{}, err
	}
	impact, err := s.dependencies.Impact(ctx, sub.OrgID, sub.ToolID)
	if err != nil {
		return decisiondomain.DecisionFactors{}, fmt.Errorf("impact set: %w", err)
	}

	f := decisiondomain.DecisionFactors{
		ToolName:         tool.Name,
		ActiveUsers:      usage.ActiveUsers,
		PaidSeats:        sub.PaidSeats,
		LastActivityDays: usage.LastActivityDays,
		RenewalDays:      sub.RenewalDays(now),
		RenewalDate:      sub.RenewalDate,
		AnnualCostCents:  sub.AnnualCostCents(),
		KeystoneScore:    tool.KeystoneScore,
		DependencyCount:  impact.TotalDependents,
		OwnerActive:      true,
	}
	f.UtilizationRate = decisiondomain.Utilization(f.ActiveUsers, f.PaidSeats)

	// No owner on file is not an orphan; an owner who left is.
	if sub.OwnerID != nil {
		owner, err := s.users.FindByID(ctx, s.db, sub.OrgID, *sub.OwnerID)
		if err != nil {
			return decisiondomain.DecisionFactors{}, fmt.Errorf("find owner: %w", err)
		}
		f.OwnerActive = owner != nil && owner.IsActive()
		if owner != nil {
			f.OwnerName = owner.Name
		}
	}
	return f, nil
}

func (s *Service) record(sub *subscriptiondomain.Subscription, eval engine.Evaluation, now time.Time) (*decisiondomain.Decision, error) {
	factors, err := json.Marshal(eval.Factors)
	if err != nil {
		return nil, fmt.Errorf("encode factors: %w", err)
	}
	return &decisiondomain.Decision{
		ID:                    s.genID.Generate(),
		OrgID:                 sub.OrgID,
		SubscriptionID:        sub.ID,
		ToolID:                sub.ToolID,
		DecisionType:          eval.Type,
		Rule:                  eval.Rule,
		Confidence:            eval.Confidence,
		RiskScore:             eval.RiskScore,
		RiskLevel:             eval.RiskLevel,
		SavingsPotentialCents: eval.SavingsCents,
		CurrentSeats:          sub.PaidSeats,
		RecommendedSeats:      eval.RecommendedSeats,
		Factors:               datatypes.JSON(factors),
		Explanation:           eval.Explanation,
		Status:                decisiondomain.DecisionStatusPending,
		Priority:              eval.Priority,
		RequiresApproval:      eval.RequiresApproval,
		DueDate:               eval.DueDate,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// AnalyzeAll analyzes every active subscription of the org. A failing
// subscription is logged and skipped; the first error is returned.
func (s *Service) AnalyzeAll(ctx context.Context, orgID snowflake.ID) ([]decisiondomain.AnalyzeResult, error) {
	subs, err := s.subscriptions.ListActive(ctx, s.db, orgID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return s.analyzeEach(ctx, subs)
}

// AnalyzeRenewing analyzes active subscriptions across orgs that renew
// within the window, limit subscriptions per page. Subscriptions already
// carrying a pending decision are not listed.
func (s *Service) AnalyzeRenewing(ctx context.Context, within time.Duration, limit int) ([]decisiondomain.AnalyzeResult, error) {
	if limit <= 0 {
		limit = defaultRenewalBatch
	}
	query := subscriptiondomain.RenewalQuery{
		Before: s.clock.Now().Add(within),
		Limit:  limit,
	}

	var (
		results  []decisiondomain.AnalyzeResult
		firstErr error
	)
	for {
		subs, err := s.subscriptions.ListRenewalCandidates(ctx, s.db, query)
		if err != nil {
			return results, fmt.Errorf("list renewing subscriptions: %w", err)
		}
		page, err := s.analyzeEach(ctx, subs)
		results = append(results, page...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if len(subs) < limit {
			return results, firstErr
		}
		query.AfterID = subs[len(subs)-1].ID
	}
}

func (s *Service) analyzeEach(ctx context.Context, subs []subscriptiondomain.Subscription) ([]decisiondomain.AnalyzeResult, error) {
	results := make([]decisiondomain.AnalyzeResult, 0, len(subs))
	var firstErr error
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := s.Analyze(ctx, sub.OrgID, sub.ID)
		if err != nil {
			s.log.Warn("analysis failed",
				zap.String("org_id", sub.OrgID.String()),
				zap.String("subscription_id", sub.ID.String()),
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

func (s *Service) Get(ctx context.Context, orgID, id snowflake.ID) (*decisiondomain.Decision, error) {
	d, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, decisiondomain.ErrDecisionNotFound
	}
	return d, nil
}

func (s *Service) ListPending(ctx context.Context, orgID snowflake.ID) ([]decisiondomain.Decision, error) {
	items, err := s.repo.ListByStatus(ctx, s.db, orgID, decisiondomain.DecisionStatusPending, listPendingLimit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []decisiondomain.Decision{}
	}
	return items, nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, decisionID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := decisionID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, auditdomain.TargetDecision, &id, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
