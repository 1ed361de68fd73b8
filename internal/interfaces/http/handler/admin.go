package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/application/report"
	"github.com/saasbooks/backend/internal/domain/audit"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/interfaces/http/dto"
	"github.com/saasbooks/backend/internal/interfaces/http/middleware"
	"github.com/saasbooks/backend/internal/tenantctx"
)

// AdminHandler serves the audit-trail and security-event admin
// surface. All endpoints operate on the tenant installed in the
// request context.
type AdminHandler struct {
	store      audit.Store
	compliance *report.ComplianceService
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(store audit.Store, compliance *report.ComplianceService) *AdminHandler {
	return &AdminHandler{store: store, compliance: compliance}
}

// AuditLogQuery holds the audit-log filter parameters.
type AuditLogQuery struct {
	dto.Pagination
	Operation    string `form:"operation"`
	ResourceType string `form:"resource_type"`
	UserID       string `form:"user_id"`
	From         string `form:"from"`
	To           string `form:"to"`
}

// AuditEntryResponse is one audit entry.
type AuditEntryResponse struct {
	ID           uuid.UUID      `json:"id"`
	TenantID     uuid.UUID      `json:"tenant_id"`
	UserID       *uuid.UUID     `json:"user_id,omitempty"`
	Operation    string         `json:"operation"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	Severity     string         `json:"severity"`
	Timestamp    time.Time      `json:"timestamp"`
}

// ListAuditLogs returns a filtered page of audit entries for the
// current tenant.
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	var req AuditLogQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		dto.ErrorWith(c, shared.KindValidationFailed, "invalid audit-log filters")
		return
	}

	q := audit.Query{
		TenantID:     tenantctx.TenantID(c.Request.Context()),
		Operation:    audit.Operation(req.Operation),
		ResourceType: req.ResourceType,
		Filter:       req.Pagination.Filter(),
	}
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			dto.ErrorWith(c, shared.KindValidationFailed, "invalid user_id filter")
			return
		}
		q.UserID = &id
	}
	var err error
	if q.From, err = parseTimeParam(req.From); err != nil {
		dto.ErrorWith(c, shared.KindValidationFailed, "invalid from timestamp")
		return
	}
	if q.To, err = parseTimeParam(req.To); err != nil {
		dto.ErrorWith(c, shared.KindValidationFailed, "invalid to timestamp")
		return
	}

	page, err := h.store.Find(c.Request.Context(), q)
	if err != nil {
		dto.Error(c, err)
		return
	}

	items := make([]AuditEntryResponse, len(page.Items))
	for i := range page.Items {
		items[i] = auditEntryResponse(&page.Items[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"total":       page.Total,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages,
	})
}

// ViolationResponse is one security event.
type ViolationResponse struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	UserID      *uuid.UUID     `json:"user_id,omitempty"`
	Kind        string         `json:"kind"`
	Severity    string         `json:"severity"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	Resolved    bool           `json:"resolved"`
	ResolvedBy  *uuid.UUID     `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ListSecurityEvents returns the violation stream for the current
// tenant.
func (h *AdminHandler) ListSecurityEvents(c *gin.Context) {
	var req dto.Pagination
	if err := c.ShouldBindQuery(&req); err != nil {
		dto.ErrorWith(c, shared.KindValidationFailed, "invalid pagination")
		return
	}

	page, err := h.store.FindViolations(c.Request.Context(),
		tenantctx.TenantID(c.Request.Context()), req.Filter())
	if err != nil {
		dto.Error(c, err)
		return
	}

	items := make([]ViolationResponse, len(page.Items))
	for i := range page.Items {
		items[i] = violationResponse(&page.Items[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"total":       page.Total,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages,
	})
}

// ResolveSecurityEvent marks a violation resolved by the current user.
func (h *AdminHandler) ResolveSecurityEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		dto.ErrorWith(c, shared.KindValidationFailed, "invalid security event id")
		return
	}

	p := middleware.GetPrincipal(c)
	if p == nil {
		dto.Error(c, shared.ErrUnauthenticated)
		return
	}

	v, err := h.store.ResolveViolation(c.Request.Context(), id, p.UserID)
	if err != nil {
		dto.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, violationResponse(v))
}

// ComplianceReport generates an on-demand compliance summary for the
// current tenant.
func (h *AdminHandler) ComplianceReport(c *gin.Context) {
	framework := audit.Framework(c.Query("framework"))
	from, err := parseTimeParam(c.Query("from"))
	if err != nil || from == nil {
		dto.ErrorWith(c, shared.KindValidationFailed, "from timestamp required")
		return
	}
	to, err := parseTimeParam(c.Query("to"))
	if err != nil || to == nil {
		dto.ErrorWith(c, shared.KindValidationFailed, "to timestamp required")
		return
	}

	r, err := h.compliance.Generate(c.Request.Context(), framework,
		tenantctx.TenantID(c.Request.Context()), *from, *to)
	if err != nil {
		dto.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func auditEntryResponse(e *audit.Entry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:           e.ID,
		TenantID:     e.TenantID,
		UserID:       e.UserID,
		Operation:    string(e.Operation),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		IPAddress:    e.IPAddress,
		Severity:     string(e.Severity),
		Timestamp:    e.Timestamp,
	}
}

func violationResponse(v *audit.Violation) ViolationResponse {
	return ViolationResponse{
		ID:          v.ID,
		TenantID:    v.TenantID,
		UserID:      v.UserID,
		Kind:        string(v.Kind),
		Severity:    string(v.Severity),
		Description: v.Description,
		Details:     v.Details,
		IPAddress:   v.IPAddress,
		Resolved:    v.Resolved,
		ResolvedBy:  v.ResolvedBy,
		ResolvedAt:  v.ResolvedAt,
		Timestamp:   v.Timestamp,
	}
}
