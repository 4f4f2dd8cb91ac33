package scheduler

import (
	"context"
	"time"

	obsmetrics "github.com/smallbiznis/spendwise/internal/observability/metrics"
	"github.com/smallbiznis/spendwise/pkg/log/ctxlogger"
	"github.com/smallbiznis/spendwise/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// jobRun tallies one execution of a job. The run id doubles as the
// correlation id, so audit entries written during the run carry it.
type jobRun struct {
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r != nil && count > 0 {
		r.processedCount += count
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errorCount++
	}
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

// beginRun attaches a run to ctx and logs its start. When ctx already carries
// a run (a job invoked by runJob) that run is reused and finish does nothing,
// so each run is summarised exactly once.
func (s *Scheduler) beginRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, func(error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, func(error) {}
	}

	ctx, runID := correlation.ForRun(ctx, job)
	run := &jobRun{
		job:       job,
		runID:     runID,
		batchSize: batchSize,
		startedAt: time.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)

	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", job),
		zap.String("run_id", runID),
		zap.Int("batch_size", batchSize),
	)
	return ctx, run, func(err error) {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logRunSummary(ctx, run)
	}
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return ctxlogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logRunSummary(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Duration("duration", time.Since(run.startedAt)),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
	}
	if run.errorCount > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

// logJobError counts err against the run and logs its retry classification.
func (s *Scheduler) logJobError(ctx context.Context, run *jobRun, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	job := ""
	if run != nil {
		job = run.job
	}
	s.logger(ctx).Error(msg, append([]zap.Field{
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Error(err),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
	}, fields...)...)
}
