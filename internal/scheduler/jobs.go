package scheduler

import (
	"context"

	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	obsmetrics "github.com/smallbiznis/spendwise/internal/observability/metrics"
	"go.uber.org/zap"
)

func (s *Scheduler) KeystoneRecomputeJob(ctx context.Context) error {
	ctx, run, finish := s.beginRun(ctx, JobKeystoneRecompute, 0)
	defer finish(nil)

	results, err := s.keystone.RecomputeAll(ctx)
	scored := 0
	for _, r := range results {
		scored += len(r.Tools)
	}
	run.AddProcessed(scored)
	obsmetrics.Scheduler().AddBatchProcessed(JobKeystoneRecompute, "tools", scored)
	if err != nil {
		s.logJobError(ctx, run, "keystone.recompute.failed", err)
		return err
	}
	return nil
}

// RenewalAnalysisJob evaluates subscriptions renewing inside the lookahead
// window, AnalysisBatch rows per page. Subscriptions that already carry a
// pending decision are not candidates.
func (s *Scheduler) RenewalAnalysisJob(ctx context.Context) error {
	ctx, run, finish := s.beginRun(ctx, JobRenewalAnalysis, s.cfg.AnalysisBatch)
	defer finish(nil)

	results, err := s.decisions.AnalyzeRenewing(ctx, s.cfg.RenewalLookahead, s.cfg.AnalysisBatch)
	created := 0
	for _, r := range results {
		if r.Outcome == decisiondomain.OutcomeCreated {
			created++
		}
	}
	run.AddProcessed(len(results))
	obsmetrics.Scheduler().AddBatchProcessed(JobRenewalAnalysis, "subscriptions", len(results))
	if len(results) == 0 && err == nil {
		obsmetrics.Scheduler().IncBatchDeferred(JobRenewalAnalysis, obsmetrics.SchedulerBatchDeferredReasonEmpty)
	}
	if err != nil {
		s.logJobError(ctx, run, "renewal.analysis.failed", err)
		return err
	}
	s.logger(ctx).Info("renewal analysis complete",
		zap.Int("analyzed", len(results)),
		zap.Int("decisions_created", created),
	)
	return nil
}

func (s *Scheduler) EscalationAdvanceJob(ctx context.Context) error {
	ctx, run, finish := s.beginRun(ctx, JobEscalationAdvance, s.cfg.EscalationBatch)
	defer finish(nil)

	results, err := s.escalations.AdvanceAll(ctx, s.cfg.EscalationBatch)
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Outcome]++
	}
	run.AddProcessed(len(results))
	obsmetrics.Scheduler().AddBatchProcessed(JobEscalationAdvance, "decisions", len(results))
	if err != nil {
		s.logJobError(ctx, run, "escalation.advance.failed", err)
		return err
	}
	if counts[escalationdomain.OutcomeCreated] > 0 || counts[escalationdomain.OutcomeExpired] > 0 {
		s.logger(ctx).Info("escalations advanced",
			zap.Int("created", counts[escalationdomain.OutcomeCreated]),
			zap.Int("held", counts[escalationdomain.OutcomeHeld]),
			zap.Int("expired", counts[escalationdomain.OutcomeExpired]),
		)
	}
	return nil
}

func (s *Scheduler) NotificationDispatchJob(ctx context.Context) error {
	ctx, run, finish := s.beginRun(ctx, JobNotificationDispatch, s.cfg.NotificationBatch)
	defer finish(nil)

	result, err := s.escalations.DispatchPending(ctx, s.cfg.NotificationBatch)
	run.AddProcessed(result.Attempted)
	obsmetrics.Scheduler().AddBatchProcessed(JobNotificationDispatch, "escalations", result.Attempted)
	if err != nil {
		s.logJobError(ctx, run, "notification.dispatch.failed", err)
		return err
	}
	if result.Failed > 0 {
		s.logger(ctx).Warn("escalation deliveries failed",
			zap.Int("attempted", result.Attempted),
			zap.Int("failed", result.Failed),
		)
	}
	return nil
}
