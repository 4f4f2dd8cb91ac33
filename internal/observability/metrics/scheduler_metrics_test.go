package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/spendwise/internal/authorization"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "forbidden",
			err:  fmt.Errorf("approve: %w", authorization.ErrForbidden),
			want: SchedulerJobReasonForbidden,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestClassifySchedulerErrorType(t *testing.T) {
	assert.Equal(t, SchedulerErrorTypeUnknown, ClassifySchedulerErrorType(nil))
	assert.Equal(t, SchedulerErrorTypeDB, ClassifySchedulerErrorType(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, SchedulerErrorTypeBusinessRule, ClassifySchedulerErrorType(gorm.ErrRecordNotFound))
	assert.True(t, IsSchedulerErrorRetryable(context.Canceled))
	assert.False(t, IsSchedulerErrorRetryable(errors.New("boom")))
}

func TestAddBatchProcessed(t *testing.T) {
	m := newSchedulerMetrics(prometheus.NewRegistry(), Config{
		ServiceName: "spendwise",
		Environment: "test",
	})

	m.AddBatchProcessed("escalation_advance", "decisions", 3)
	m.AddBatchProcessed("escalation_advance", "decisions", 0)

	got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("escalation_advance", "decisions"))
	assert.Equal(t, 3.0, got)
}

func TestDecisionTransitions(t *testing.T) {
	m := newSchedulerMetrics(prometheus.NewRegistry(), Config{})

	m.IncDecisionTransition(DecisionStatusPending, DecisionStatusExpired)
	m.IncDecisionTransition(DecisionStatusPending, DecisionStatusExpired)
	m.IncDecisionTransition(DecisionStatusApproved, DecisionStatusExecuted)
	m.IncDecisionTransition("approved", "rejected")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisionTransitions.WithLabelValues(DecisionStatusPending, DecisionStatusExpired)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisionTransitions.WithLabelValues(DecisionStatusApproved, DecisionStatusExecuted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisionTransitions.WithLabelValues("approved", "rejected")))
}

func TestEscalationHolds(t *testing.T) {
	m := newSchedulerMetrics(prometheus.NewRegistry(), Config{})
	m.IncEscalationHold("3", EscalationHoldReasonLevel4Ineligible)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalationHolds.WithLabelValues("3", EscalationHoldReasonLevel4Ineligible)))
}

func TestNilSchedulerMetricsAreSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("x")
	m.IncJobError("x", errors.New("boom"))
	m.IncDecisionTransition(DecisionStatusPending, DecisionStatusApproved)
	m.IncEscalationHold("1", EscalationHoldReasonWaiting)
}
