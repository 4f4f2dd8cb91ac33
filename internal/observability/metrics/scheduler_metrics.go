package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeAuthorization    = "authorization"
	SchedulerErrorTypeBusinessRule     = "business_rule"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeUnknown          = "unknown"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonForbidden            = "forbidden"
	SchedulerJobReasonUnknown              = "unknown"

	SchedulerBatchDeferredReasonLockHeld = "lock_held"
	SchedulerBatchDeferredReasonEmpty    = "empty_batch"
)

const (
	EscalationHoldReasonWaiting          = "waiting"
	EscalationHoldReasonLevel4Ineligible = "level4_ineligible"
)

// Decision status values tracked by the transition counter.
const (
	DecisionStatusPending  = "pending"
	DecisionStatusApproved = "approved"
	DecisionStatusRejected = "rejected"
	DecisionStatusExecuted = "executed"
	DecisionStatusExpired  = "expired"
)

// SchedulerMetrics captures governance scheduler health signals.
type SchedulerMetrics struct {
	jobRuns             *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	jobTimeouts         *prometheus.CounterVec
	jobErrors           *prometheus.CounterVec
	batchProcessed      *prometheus.CounterVec
	batchDeferred       *prometheus.CounterVec
	runLoopLag          prometheus.Observer
	decisionTransitions *prometheus.CounterVec
	escalationHolds     *prometheus.CounterVec
	transitionCounts    map[string]map[string]prometheus.Counter
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

// NewSchedulerMetricsForTest builds an unshared registry-backed instance.
func NewSchedulerMetricsForTest(registerer prometheus.Registerer) *SchedulerMetrics {
	return newSchedulerMetrics(registerer, Config{ServiceName: "spendwise", Environment: "test"})
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	f := collectorFactory{
		registerer: registerer,
		labels: prometheus.Labels{
			"service": valueOr(cfg.ServiceName, "spendwise"),
			"env":     valueOr(cfg.Environment, "unknown"),
		},
	}

	m := &SchedulerMetrics{
		jobRuns:             f.counter("scheduler_job_runs_total", "Scheduler job runs by name.", "job"),
		jobDuration:         f.histogram("scheduler_job_duration_seconds", "Scheduler job latency.", jobDurationBuckets, "job"),
		jobTimeouts:         f.counter("scheduler_job_timeouts_total", "Scheduler job runs that hit their timeout.", "job"),
		jobErrors:           f.counter("scheduler_job_errors_total", "Scheduler job errors by low-cardinality reason.", "job", "reason"),
		batchProcessed:      f.counter("scheduler_batch_processed_total", "Scheduler batch items processed.", "job", "resource"),
		batchDeferred:       f.counter("scheduler_batch_deferred_total", "Scheduler batch deferrals by low-cardinality reason.", "job", "reason"),
		decisionTransitions: f.counter("decision_transition_total", "Decision status transitions.", "from", "to"),
		escalationHolds:     f.counter("escalation_holds_total", "Escalation advances that kept the current level.", "level", "reason"),
	}
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        metricPrefix + "scheduler_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     runLoopLagBuckets,
		ConstLabels: f.labels,
	})
	registerer.MustRegister(lag)
	m.runLoopLag = lag

	// The transitions the lifecycle allows are resolved up front.
	m.transitionCounts = map[string]map[string]prometheus.Counter{}
	for from, targets := range map[string][]string{
		DecisionStatusPending:  {DecisionStatusApproved, DecisionStatusRejected, DecisionStatusExpired},
		DecisionStatusApproved: {DecisionStatusExecuted},
	} {
		m.transitionCounts[from] = map[string]prometheus.Counter{}
		for _, to := range targets {
			m.transitionCounts[from][to] = m.decisionTransitions.WithLabelValues(from, to)
		}
	}
	return m
}

const metricPrefix = "spendwise_"

var (
	jobDurationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300}
	runLoopLagBuckets  = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
)

type collectorFactory struct {
	registerer prometheus.Registerer
	labels     prometheus.Labels
}

func (f collectorFactory) counter(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        metricPrefix + name,
		Help:        help,
		ConstLabels: f.labels,
	}, labels)
	f.registerer.MustRegister(c)
	return c
}

func (f collectorFactory) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        metricPrefix + name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: f.labels,
	}, labels)
	f.registerer.MustRegister(h)
	return h
}

func valueOr(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// IncJobRun increments the run counter for a scheduler job.
func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the scheduler job.
func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

// AddBatchProcessed increments the batch processed counter for a resource by count.
func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 || m.batchProcessed == nil {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

// IncBatchDeferred increments the batch deferred counter for a job and reason.
func (m *SchedulerMetrics) IncBatchDeferred(job, reason string) {
	if m == nil || m.batchDeferred == nil {
		return
	}
	m.batchDeferred.WithLabelValues(job, reason).Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// IncDecisionTransition increments decision status transition counters.
func (m *SchedulerMetrics) IncDecisionTransition(from, to string) {
	if m == nil || m.decisionTransitions == nil {
		return
	}
	if toCounters, ok := m.transitionCounts[from]; ok {
		if counter, ok := toCounters[to]; ok {
			counter.Inc()
			return
		}
	}
	m.decisionTransitions.WithLabelValues(from, to).Inc()
}

// IncEscalationHold counts an advance that stayed at level.
func (m *SchedulerMetrics) IncEscalationHold(level, reason string) {
	if m == nil || m.escalationHolds == nil {
		return
	}
	m.escalationHolds.WithLabelValues(level, reason).Inc()
}
