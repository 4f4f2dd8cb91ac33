package metrics

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/spendwise/internal/authorization"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes the scheduler distinguishes.
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

// jobFailure is the low-cardinality view of a job error shared by logs and
// the error counter.
type jobFailure struct {
	errorType string
	reason    string
	retryable bool
}

func classifyJobFailure(err error) jobFailure {
	if err == nil {
		return jobFailure{errorType: SchedulerErrorTypeUnknown, reason: SchedulerJobReasonUnknown}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return jobFailure{SchedulerErrorTypeDeadlineExceeded, SchedulerJobReasonDeadlineExceeded, true}
	}
	if isAuthorizationError(err) {
		return jobFailure{errorType: SchedulerErrorTypeAuthorization, reason: SchedulerJobReasonForbidden}
	}

	var pgErr *pgconn.PgError
	isPG := errors.As(err, &pgErr)
	f := jobFailure{errorType: SchedulerErrorTypeBusinessRule, reason: SchedulerJobReasonUnknown}
	if isPG || isGormDBError(err) {
		f.errorType = SchedulerErrorTypeDB
		f.retryable = true
	}
	switch {
	case isPG && pgErr.Code == pgLockNotAvailable:
		f.reason = SchedulerJobReasonDBLockTimeout
	case isPG && pgErr.Code == pgSerializationFailure:
		f.reason = SchedulerJobReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), isPG && pgErr.Code == pgUniqueViolation:
		f.reason = SchedulerJobReasonUniqueViolation
	}
	return f
}

// ClassifySchedulerErrorType returns a low-cardinality error type for logging.
func ClassifySchedulerErrorType(err error) string {
	return classifyJobFailure(err).errorType
}

// IsSchedulerErrorRetryable reports whether the next tick may succeed
// without intervention.
func IsSchedulerErrorRetryable(err error) bool {
	return err != nil && classifyJobFailure(err).retryable
}

// ClassifySchedulerJobReason maps job errors to the error counter's reason label.
func ClassifySchedulerJobReason(err error) string {
	return classifyJobFailure(err).reason
}

func isAuthorizationError(err error) bool {
	for _, target := range []error{
		authorization.ErrForbidden,
		authorization.ErrInvalidActor,
		authorization.ErrInvalidOrganization,
		authorization.ErrInvalidAction,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isGormDBError(err error) bool {
	for _, target := range []error{
		gorm.ErrInvalidDB,
		gorm.ErrInvalidTransaction,
		gorm.ErrInvalidField,
		gorm.ErrInvalidData,
		gorm.ErrMissingWhereClause,
		gorm.ErrUnsupportedDriver,
		gorm.ErrInvalidValue,
		gorm.ErrDuplicatedKey,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
