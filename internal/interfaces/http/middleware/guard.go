package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/identity"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/interfaces/http/dto"
	"github.com/saasbooks/backend/internal/tenantctx"
)

// Guard declares what a route requires. An empty Roles list admits any
// authenticated principal.
type Guard struct {
	Roles          []identity.Role
	TenantRequired bool
}

// GuardTable maps "METHOD /route/path" (the registered route pattern,
// not the concrete URL) to its guard. Routes absent from the table are
// denied, so forgetting an entry fails closed.
type GuardTable map[string]Guard

// DefaultGuardTable is the endpoint permission table for this
// deployment.
func DefaultGuardTable() GuardTable {
	adminRoles := []identity.Role{
		identity.RolePlatformAdmin,
		identity.RoleTenantOwner,
		identity.RoleCFO,
	}
	return GuardTable{
		"POST /api/v1/auth/logout":      {},
		"GET /api/v1/auth/navigation":   {},
		"GET /api/v1/auth/current-user": {},

		"GET /api/v1/admin/audit-logs":                   {Roles: adminRoles, TenantRequired: true},
		"GET /api/v1/admin/security-events":              {Roles: adminRoles, TenantRequired: true},
		"POST /api/v1/admin/security-events/:id/resolve": {Roles: adminRoles, TenantRequired: true},
		"GET /api/v1/admin/compliance-report":            {Roles: adminRoles, TenantRequired: true},
	}
}

// RouteGuard enforces the table. It must run after Authenticate and
// TenantScope.
func RouteGuard(table GuardTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		guard, ok := table[c.Request.Method+" "+c.FullPath()]
		if !ok {
			dto.Error(c, shared.ErrForbidden)
			return
		}

		p := GetPrincipal(c)
		if p == nil {
			dto.Error(c, shared.ErrUnauthenticated)
			return
		}

		if len(guard.Roles) > 0 && !roleAllowed(p.Role, guard.Roles) {
			dto.Error(c, shared.ErrForbidden)
			return
		}

		if guard.TenantRequired {
			tc, err := tenantctx.Current(c.Request.Context())
			if err != nil || tc.TenantID == uuid.Nil {
				dto.Error(c, shared.ErrTenantRequired)
				return
			}
		}

		c.Next()
	}
}

func roleAllowed(role identity.Role, allowed []identity.Role) bool {
	if role.IsPlatformStaff() {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
