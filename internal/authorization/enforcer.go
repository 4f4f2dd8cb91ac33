package authorization

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	userdomain "github.com/smallbiznis/spendwise/internal/user/domain"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const systemRole = "role:system"

type grant struct {
	object string
	action string
}

var (
	viewOnly = []grant{
		{ObjectDecision, ActionDecisionView},
		{ObjectEscalation, ActionEscalationRespond},
		{ObjectTool, ActionToolView},
	}
	decide = []grant{
		{ObjectDecision, ActionDecisionAnalyze},
		{ObjectDecision, ActionDecisionApprove},
		{ObjectDecision, ActionDecisionReject},
		{ObjectDecision, ActionDecisionExecute},
	}
)

// rolePolicy lists each role's grants. Every human role may answer the
// escalations addressed to it; only finance and admins settle decisions.
var rolePolicy = map[string][]grant{
	roleSubject(userdomain.RoleMember): viewOnly,
	roleSubject(userdomain.RoleITAdmin): append(append([]grant{}, viewOnly...),
		grant{ObjectDecision, ActionDecisionAnalyze},
		grant{ObjectTool, ActionToolRecompute},
		grant{ObjectTool, ActionToolManage},
	),
	roleSubject(userdomain.RoleFinance): append(append([]grant{}, viewOnly...), decide...),
	roleSubject(userdomain.RoleAdmin): append(append(append([]grant{}, viewOnly...), decide...),
		grant{ObjectTool, ActionToolRecompute},
		grant{ObjectTool, ActionToolManage},
	),
	systemRole: {
		{ObjectDecision, ActionDecisionAnalyze},
		{ObjectDecision, ActionDecisionExpire},
		{ObjectEscalation, ActionEscalationAdvance},
		{ObjectTool, ActionToolRecompute},
		{ObjectTool, ActionToolManage},
	},
}

func roleSubject(role userdomain.Role) string {
	return "role:" + string(role)
}

// NewEnforcer loads the persisted policy through the gorm adapter and seeds
// the built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	enforcer, err := newEnforcer(adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, enforcer.BuildRoleLinks()
}

// NewMemoryEnforcer builds a seeded enforcer without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	enforcer, err := newEnforcer(nil)
	if err != nil {
		return nil, err
	}
	return enforcer, seedPolicies(enforcer)
}

func newEnforcer(adapter *gormadapter.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	if adapter == nil {
		return casbin.NewSyncedEnforcer(m)
	}
	return casbin.NewSyncedEnforcer(m, adapter)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	var rules [][]string
	for role, grants := range rolePolicy {
		for _, g := range grants {
			rules = append(rules, []string{role, g.object, g.action})
		}
	}
	for _, rule := range rules {
		if ok, err := enforcer.HasPolicy(rule); err != nil {
			return err
		} else if ok {
			continue
		}
		if _, err := enforcer.AddPolicy(rule); err != nil {
			return err
		}
	}
	return nil
}
