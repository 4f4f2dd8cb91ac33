package authorization

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	auditdomain "github.com/smallbiznis/spendwise/internal/audit/domain"
	userdomain "github.com/smallbiznis/spendwise/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Users    userdomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	users    userdomain.Repository
	auditSvc auditdomain.Service
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		users:    p.Users,
		auditSvc: p.AuditSvc,
	}
}

// principal is a resolved actor: the casbin subject, the role it holds in
// the org, and how it is recorded in the audit trail.
type principal struct {
	subject   string
	role      string
	auditType auditdomain.ActorType
	auditID   *string
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor, orgID = strings.TrimSpace(actor), strings.TrimSpace(orgID)
	object, action = strings.TrimSpace(object), strings.TrimSpace(action)
	switch {
	case actor == "":
		return ErrInvalidActor
	case orgID == "":
		return ErrInvalidOrganization
	case object == "":
		return ErrInvalidObject
	case action == "":
		return ErrInvalidAction
	}

	p, err := s.resolve(ctx, actor, orgID)
	if err != nil {
		if p.auditType != "" {
			s.auditDenied(ctx, p, orgID, object, action)
		}
		return err
	}

	domain := "org:" + orgID
	if err := s.syncRole(p.subject, p.role, domain); err != nil {
		return err
	}
	allowed, err := s.enforcer.Enforce(p.subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", p.subject),
			zap.String("org_id", orgID),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, p, orgID, object, action)
		return ErrForbidden
	}
	return nil
}

// resolve maps the actor string to a principal. Users only hold their role
// while active in the org; anyone else gets a principal that is denied.
func (s *ServiceImpl) resolve(ctx context.Context, actor, orgID string) (principal, error) {
	if actor == ActorSystem {
		return principal{subject: actor, role: systemRole, auditType: auditdomain.ActorTypeSystem}, nil
	}

	raw, ok := strings.CutPrefix(actor, "user:")
	if !ok {
		return principal{}, ErrInvalidActor
	}
	userID, err := snowflake.ParseString(raw)
	if err != nil || userID == 0 {
		return principal{}, ErrInvalidActor
	}
	id := userID.String()
	p := principal{subject: actor, auditType: auditdomain.ActorTypeUser, auditID: &id}

	org, err := snowflake.ParseString(orgID)
	if err != nil || org == 0 {
		return p, ErrInvalidOrganization
	}
	user, err := s.users.FindByID(ctx, s.db, org, userID)
	if err != nil {
		return p, err
	}
	if user == nil || !user.IsActive() || user.Role == "" {
		return p, ErrForbidden
	}
	p.role = roleSubject(userdomain.Role(strings.ToLower(string(user.Role))))
	return p, nil
}

// syncRole keeps exactly one grouping for subject in domain, replacing it
// when the user's role changed in the directory.
func (s *ServiceImpl) syncRole(subject, role, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	current := false
	for _, rule := range existing {
		if len(rule) >= 2 && rule[1] == role {
			current = true
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule); err != nil {
			return err
		}
	}
	if current {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, p principal, orgID, object, action string) {
	if s.auditSvc == nil {
		return
	}
	org, err := snowflake.ParseString(orgID)
	if err != nil || org == 0 {
		return
	}
	target := object + ":" + action
	if err := s.auditSvc.AuditLog(ctx, &org, string(p.auditType), p.auditID, auditdomain.ActionAuthorizationDenied, "authorization", &target, map[string]any{
		"object": object,
		"action": action,
	}); err != nil {
		s.log.Warn("failed to audit denied authorization", zap.Error(err))
	}
}
