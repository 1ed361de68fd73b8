package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/audit"
	"github.com/saasbooks/backend/internal/domain/identity"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/auth"
	"github.com/saasbooks/backend/internal/infrastructure/logger"
	"github.com/saasbooks/backend/internal/interfaces/http/dto"
	"github.com/saasbooks/backend/internal/tenantctx"
	"go.uber.org/zap"
)

// TenantHeaderKey lets platform staff act on behalf of a tenant. Every
// use is audited.
const TenantHeaderKey = "X-Tenant-ID"

// TenantScope resolves the request's tenant and installs the tenant
// context. Resolution order: token claim, then X-Tenant-ID (platform
// staff only), then the host suffix mapping. Suspended and expired
// tenants are refused before any handler runs.
//
// The installed context is bound to the request's context.Context; it
// is discarded with the request, so no deferred reset is needed.
type TenantScope struct {
	tenants    identity.TenantRepository
	recorder   audit.Recorder
	hostSuffix string
}

// NewTenantScope creates the tenant-scoping middleware.
func NewTenantScope(tenants identity.TenantRepository, recorder audit.Recorder, hostSuffix string) *TenantScope {
	return &TenantScope{tenants: tenants, recorder: recorder, hostSuffix: hostSuffix}
}

// Handler returns the gin middleware. It must run after Authenticate.
func (m *TenantScope) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil {
			dto.Error(c, shared.ErrUnauthenticated)
			return
		}

		tenantID, overridden, err := m.resolveTenantID(c, p)
		if err != nil {
			dto.Error(c, err)
			return
		}

		tc := &tenantctx.TenantContext{
			TenantID:      tenantID,
			UserID:        p.UserID,
			Role:          string(p.Role),
			RequestID:     dto.RequestID(c),
			PlatformStaff: p.IsPlatformStaff(),
		}
		ctx := tenantctx.With(c.Request.Context(), tc)
		c.Request = c.Request.WithContext(ctx)

		if tenantID != uuid.Nil {
			tenant, err := m.tenants.FindByID(ctx, tenantID)
			if err != nil {
				dto.Error(c, shared.ErrTokenInvalid)
				return
			}
			if !tenant.CanServe() {
				dto.Error(c, shared.ErrTenantSuspended)
				return
			}
		}

		if overridden {
			m.recordOverride(c, p, tenantID)
		}

		c.Next()
	}
}

// resolveTenantID applies the resolution order. The boolean reports
// whether the tenant came from the override header.
func (m *TenantScope) resolveTenantID(c *gin.Context, p *auth.Principal) (uuid.UUID, bool, error) {
	header := c.GetHeader(TenantHeaderKey)

	if p.TenantID != nil {
		// Tenant users cannot redirect their requests at another
		// tenant; trying is a security event.
		if header != "" && header != p.TenantID.String() {
			v := audit.NewViolation(*p.TenantID, audit.ViolationUnauthorizedAccess, audit.SeverityHigh,
				"tenant override header from non-staff principal")
			v.UserID = &p.UserID
			v.Details = map[string]any{"requested_tenant_id": header}
			v.IPAddress = c.ClientIP()
			if err := m.recorder.RecordViolation(c.Request.Context(), v); err != nil {
				logger.L(c.Request.Context()).Error("failed to record violation", zap.Error(err))
			}
			return uuid.Nil, false, shared.ErrTenantMismatch
		}
		return *p.TenantID, false, nil
	}

	// Platform staff: explicit header wins, host mapping is the
	// fallback for browser sessions.
	if header != "" {
		id, err := uuid.Parse(header)
		if err != nil {
			return uuid.Nil, false, shared.NewError(shared.KindValidationFailed, "invalid X-Tenant-ID header")
		}
		return id, true, nil
	}

	if slug := TenantSlugFromHost(c.Request.Host, m.hostSuffix); slug != "" {
		t, err := m.tenants.FindBySlug(c.Request.Context(), slug)
		if err != nil {
			return uuid.Nil, false, shared.ErrTenantRequired
		}
		return t.ID, false, nil
	}

	// Staff without an override keep a nil tenant; the guard table
	// decides whether the route needs one.
	return uuid.Nil, false, nil
}

func (m *TenantScope) recordOverride(c *gin.Context, p *auth.Principal, tenantID uuid.UUID) {
	e := audit.NewEntry(tenantID, audit.OpTenantOverride, "tenant", tenantID.String())
	e.UserID = &p.UserID
	e.IPAddress = c.ClientIP()
	e.UserAgent = c.Request.UserAgent()
	e.Severity = audit.SeverityMedium
	e.Details = map[string]any{"path": c.Request.URL.Path}
	if err := m.recorder.Record(c.Request.Context(), e); err != nil {
		logger.L(c.Request.Context()).Error("failed to record tenant override", zap.Error(err))
	}
}

// TenantSlugFromHost parses "{slug}.<suffix>" into a tenant slug.
func TenantSlugFromHost(host, suffix string) string {
	if suffix == "" {
		return ""
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	if !strings.HasSuffix(host, "."+suffix) {
		return ""
	}
	slug := strings.TrimSuffix(host, "."+suffix)
	if slug == "" || strings.Contains(slug, ".") {
		return ""
	}
	return slug
}
