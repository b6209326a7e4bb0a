package service

import (
	"fmt"
	"strings"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
)

// Authorizer decides whether an identity may perform an action.
// It returns a *model.ForbiddenError when it may not.
type Authorizer interface {
	Authorize(id model.Identity, action model.Action) error
}

// RolePolicy grants actions by role.
type RolePolicy struct {
	allowed map[model.Action]map[model.Role]bool
}

// NewRolePolicy builds a policy from an action → roles table.
func NewRolePolicy(rules map[model.Action][]model.Role) *RolePolicy {
	p := &RolePolicy{allowed: make(map[model.Action]map[model.Role]bool, len(rules))}
	for action, roles := range rules {
		set := make(map[model.Role]bool, len(roles))
		for _, r := range roles {
			set[r] = true
		}
		p.allowed[action] = set
	}
	return p
}

// DefaultRolePolicy: farmers certify; inspectors and retailers verify;
// inspectors, retailers and logistics may raise disputes.
func DefaultRolePolicy() *RolePolicy {
	return NewRolePolicy(map[model.Action][]model.Role{
		model.ActionCertify: {model.RoleFarmer},
		model.ActionVerify:  {model.RoleInspector, model.RoleRetailer},
		model.ActionDispute: {model.RoleInspector, model.RoleRetailer, model.RoleLogistics},
	})
}

// ParseRoles converts configured role names.
func ParseRoles(names []string) ([]model.Role, error) {
	out := make([]model.Role, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		r, err := model.ParseRole(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Authorize implements Authorizer.
func (p *RolePolicy) Authorize(id model.Identity, action model.Action) error {
	if strings.TrimSpace(id.Subject) == "" {
		return &model.ForbiddenError{Subject: "anonymous", Action: action, Reason: "no identity"}
	}
	if !p.allowed[action][id.Role] {
		return &model.ForbiddenError{
			Subject: id.Subject,
			Action:  action,
			Reason:  fmt.Sprintf("role %q is not permitted", id.Role),
		}
	}
	return nil
}

// Roles returns the roles allowed to perform action.
func (p *RolePolicy) Roles(action model.Action) []model.Role {
	var out []model.Role
	for _, r := range []model.Role{
		model.RoleFarmer, model.RoleInspector, model.RolePackaging, model.RoleLogistics,
		model.RoleRetailer, model.RoleViewer, model.RoleAdmin,
	} {
		if p.allowed[action][r] {
			out = append(out, r)
		}
	}
	return out
}
