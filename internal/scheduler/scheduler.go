package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	auditcontext "github.com/smallbiznis/spendwise/internal/auditcontext"
	"github.com/smallbiznis/spendwise/internal/clock"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	keystonedomain "github.com/smallbiznis/spendwise/internal/keystone/domain"
	obsmetrics "github.com/smallbiznis/spendwise/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Job names.
const (
	JobKeystoneRecompute    = "keystone_recompute"
	JobRenewalAnalysis      = "renewal_analysis"
	JobEscalationAdvance    = "escalation_advance"
	JobNotificationDispatch = "notification_dispatch"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

var tracer = otel.Tracer("spendwise/scheduler")

type Params struct {
	fx.In

	Log         *zap.Logger
	Keystone    keystonedomain.Service
	Decisions   decisiondomain.Service
	Escalations escalationdomain.Service
	Clock       clock.Clock `optional:"true"`
	Locker      Locker      `optional:"true"`
	Config      Config      `optional:"true"`
}

type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	locker      Locker
	keystone    keystonedomain.Service
	decisions   decisiondomain.Service
	escalations escalationdomain.Service

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Keystone == nil || p.Decisions == nil || p.Escalations == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		clock:       clk,
		locker:      p.Locker,
		keystone:    p.Keystone,
		decisions:   p.Decisions,
		escalations: p.Escalations,
		lastRun:     make(map[string]time.Time),
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "scheduler."+name)
	defer span.End()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, run, finish := s.beginRun(ctx, name, batchSize)
	span.SetAttributes(attribute.String("run_id", run.runID))
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	span.SetAttributes(attribute.Int("processed_count", run.processedCount))
	finish(err)
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "job failed")

	// Deadlines are soft: the next tick picks up where this one stopped.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

type job struct {
	name      string
	interval  time.Duration
	batchSize int
	run       func(context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobKeystoneRecompute, s.cfg.KeystoneInterval, 0, s.KeystoneRecomputeJob},
		{JobRenewalAnalysis, s.cfg.AnalysisInterval, s.cfg.AnalysisBatch, s.RenewalAnalysisJob},
		{JobEscalationAdvance, 0, s.cfg.EscalationBatch, s.EscalationAdvanceJob},
		{JobNotificationDispatch, 0, s.cfg.NotificationBatch, s.NotificationDispatchJob},
	}
}

// RunOnce runs every enabled job that is due. Keystone recompute runs before
// analysis so new decisions see fresh scores, and advance runs before
// dispatch so new levels go out on the same tick.
func (s *Scheduler) RunOnce(parent context.Context) error {
	release, ok := s.acquireTick(parent)
	if !ok {
		return nil
	}
	defer release()

	var err error
	now := s.clock.Now()
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) || !s.due(j.name, j.interval, now) {
			continue
		}
		jobErr := s.runJob(parent, j.name, j.batchSize, s.cfg.JobTimeout, j.run)
		if jobErr == nil {
			s.markRun(j.name, now)
		}
		err = errors.Join(err, jobErr)
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// acquireTick takes the replica lock when one is configured. A held lock
// skips the tick.
func (s *Scheduler) acquireTick(ctx context.Context) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	token, ok, err := s.locker.TryLock(ctx, tickLockKey, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("scheduler lock failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		obsmetrics.Scheduler().IncBatchDeferred("tick", obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.log.Debug("scheduler tick held by another replica")
		return nil, false
	}
	return func() {
		if err := s.locker.Release(context.Background(), tickLockKey, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.Error(err))
		}
	}, true
}

func (s *Scheduler) due(name string, interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[name]
	return !ok || now.Sub(last) >= interval
}

func (s *Scheduler) markRun(name string, now time.Time) {
	s.mu.Lock()
	s.lastRun[name] = now
	s.mu.Unlock()
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
