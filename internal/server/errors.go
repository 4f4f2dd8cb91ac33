package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	decisiondomain "github.com/smallbiznis/spendwise/internal/decision/domain"
	dependencydomain "github.com/smallbiznis/spendwise/internal/dependency/domain"
	escalationdomain "github.com/smallbiznis/spendwise/internal/escalation/domain"
	subscriptiondomain "github.com/smallbiznis/spendwise/internal/subscription/domain"
	tooldomain "github.com/smallbiznis/spendwise/internal/tool/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog reports the response type and the most specific code
// known for err.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	switch {
	case len(payload.Errors) > 0:
		return payload.Type, payload.Errors[0].Code
	case payload.Type == "conflict":
		return payload.Type, payload.Message
	default:
		return payload.Type, payload.Type
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	decisiondomain.ErrInvalidDecision,
	escalationdomain.ErrInvalidResponse,
	escalationdomain.ErrInvalidResponder,
	escalationdomain.ErrInvalidLevel,
	subscriptiondomain.ErrInvalidSubscription,
	subscriptiondomain.ErrInvalidSeatCount,
	tooldomain.ErrInvalidToolName,
	tooldomain.ErrInvalidToolCategory,
	dependencydomain.ErrInvalidDependencyType,
	dependencydomain.ErrInvalidStrength,
	dependencydomain.ErrSelfDependency,
}

func isValidationError(err error) bool {
	return validationErrorCode(err) != ""
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, decisiondomain.ErrInvalidTransition),
		errors.Is(err, decisiondomain.ErrPendingDecisionExists),
		errors.Is(err, decisiondomain.ErrNotExecutable),
		errors.Is(err, escalationdomain.ErrAlreadyResponded),
		errors.Is(err, escalationdomain.ErrDecisionClosed),
		errors.Is(err, escalationdomain.ErrEscalationLevelExists),
		errors.Is(err, subscriptiondomain.ErrSubscriptionInactive),
		errors.Is(err, dependencydomain.ErrDependencyExists):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, decisiondomain.ErrDecisionNotFound),
		errors.Is(err, escalationdomain.ErrEscalationNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, tooldomain.ErrToolNotFound),
		errors.Is(err, dependencydomain.ErrToolNotFound),
		errors.Is(err, dependencydomain.ErrDependencyNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// conflictMessage exposes the domain code so callers can tell a stale
// transition from a duplicate response.
func conflictMessage(err error) string {
	for _, sentinel := range []error{
		decisiondomain.ErrInvalidTransition,
		decisiondomain.ErrPendingDecisionExists,
		decisiondomain.ErrNotExecutable,
		escalationdomain.ErrAlreadyResponded,
		escalationdomain.ErrDecisionClosed,
		escalationdomain.ErrEscalationLevelExists,
		subscriptiondomain.ErrSubscriptionInactive,
		dependencydomain.ErrDependencyExists,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "conflict"
}

func validationErrorCode(err error) string {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ""
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "self_dependency":
		return "target_tool_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
