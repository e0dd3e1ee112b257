package auth

import (
	"context"

	"github.com/ajolla/ottowrite-sub001/internal/models"
)

type Role string

const (
	RoleViewer     Role = "viewer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
	RoleService    Role = "service"
	RoleUser       Role = "user"
)

// RolesForAdmin expands an admin console role into the roles it grants.
func RolesForAdmin(role models.AdminRole) []Role {
	switch role {
	case models.AdminRoleSuperAdmin:
		return []Role{RoleSuperAdmin, RoleAdmin, RoleViewer}
	case models.AdminRoleAdmin:
		return []Role{RoleAdmin, RoleViewer}
	case models.AdminRoleViewer:
		return []Role{RoleViewer}
	}
	return nil
}

// Principal is the authenticated caller. Handlers authorize by asking for
// roles, never by inspecting identity strings.
type Principal struct {
	UserID  string
	AdminID uint
	Roles   map[Role]struct{}
}

func NewPrincipal(claims *Claims) *Principal {
	p := &Principal{
		UserID:  claims.Subject,
		AdminID: claims.AdminID,
		Roles:   make(map[Role]struct{}, len(claims.Roles)),
	}
	for _, r := range claims.Roles {
		p.Roles[r] = struct{}{}
	}
	return p
}

// Has reports whether the principal holds any of roles.
func (p *Principal) Has(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if _, ok := p.Roles[r]; ok {
			return true
		}
	}
	return false
}

// Acts reports whether the principal is the given end user.
func (p *Principal) Acts(userID string) bool {
	return p != nil && userID != "" && p.UserID == userID
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored by the auth middleware, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}
