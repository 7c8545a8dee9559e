package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Permission names checked by the route guards.
const (
	PermAccountsManage = "accounts.manage"
	PermLogsView       = "logs.view"
)

// Built-in role names. Roles are flat: a role maps straight to the
// permissions it grants, with "*" standing for everything.
const (
	RoleSuperadmin = "superadmin"
	RoleUserAdmin  = "useradmin"
	RoleAuditor    = "auditor"
)

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == r.obj || p.obj == "*")
`

var defaultPolicies = [][2]string{
	{RoleSuperadmin, "*"},
	{RoleUserAdmin, PermAccountsManage},
	{RoleUserAdmin, PermLogsView},
	{RoleAuditor, PermLogsView},
}

type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1]); err != nil {
			return nil, err
		}
	}
	return &Policy{enforcer: e}, nil
}

// Allowed reports whether any of the roles grants the permission.
func (p *Policy) Allowed(roles []string, perm string) bool {
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, perm)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// Grant adds a role to permission mapping at runtime.
func (p *Policy) Grant(role, perm string) error {
	_, err := p.enforcer.AddPolicy(role, perm)
	return err
}
