package authorization

import (
	"context"
	"errors"
)

// Objects guarded by the policy.
const (
	ObjectDecision   = "decision"
	ObjectEscalation = "escalation"
	ObjectTool       = "tool"
)

const (
	ActionDecisionView    = "decision.view"
	ActionDecisionAnalyze = "decision.analyze"
	ActionDecisionApprove = "decision.approve"
	ActionDecisionReject  = "decision.reject"
	ActionDecisionExecute = "decision.execute"
	ActionDecisionExpire  = "decision.expire"

	ActionEscalationRespond = "escalation.respond"
	ActionEscalationAdvance = "escalation.advance"

	ActionToolView      = "tool.view"
	ActionToolRecompute = "tool.recompute"
	ActionToolManage    = "tool.manage"
)

// ActorSystem is the subject scheduler jobs act as.
const ActorSystem = "system"

// Service checks whether an actor may perform an action inside an org.
// Actors are "system" or "user:<id>".
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
)
