// Package router assembles the gin engine: middleware pipeline, route
// table and guards.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/saasbooks/backend/internal/infrastructure/config"
	"github.com/saasbooks/backend/internal/interfaces/http/handler"
	"github.com/saasbooks/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Deps holds everything the router wires together.
type Deps struct {
	Config *config.Config
	Logger *zap.Logger

	Auth   *handler.AuthHandler
	Admin  *handler.AdminHandler
	System *handler.SystemHandler

	Authenticate gin.HandlerFunc
	TenantScope  gin.HandlerFunc
	GuardTable   middleware.GuardTable
}

// New builds the engine. Route order matters: the principal resolver
// runs before tenant scoping, tenant scoping before the guard table.
func New(d Deps) *gin.Engine {
	if d.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Unknown fields in request bodies are rejected, not silently
	// dropped.
	gin.EnableJsonDecoderDisallowUnknownFields()
	middleware.SetupValidator()

	r := gin.New()
	if len(d.Config.HTTP.TrustedProxies) > 0 {
		_ = r.SetTrustedProxies(d.Config.HTTP.TrustedProxies)
	}

	r.Use(otelgin.Middleware(d.Config.Telemetry.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recovery())
	r.Use(middleware.Deadline(d.Config.HTTP.RequestDeadline))

	r.GET("/health", d.System.Health)

	v1 := r.Group("/api/v1")
	v1.GET("/health", d.System.Health)

	public := v1.Group("/auth")
	{
		public.POST("/login", d.Auth.Login)
		public.POST("/token/refresh", d.Auth.Refresh)
	}

	guards := d.GuardTable
	if guards == nil {
		guards = middleware.DefaultGuardTable()
	}

	protected := v1.Group("")
	protected.Use(d.Authenticate, d.TenantScope, middleware.RouteGuard(guards))
	{
		protected.POST("/auth/logout", d.Auth.Logout)
		protected.GET("/auth/navigation", d.Auth.Navigation)
		protected.GET("/auth/current-user", d.Auth.CurrentUser)

		admin := protected.Group("/admin")
		{
			admin.GET("/audit-logs", d.Admin.ListAuditLogs)
			admin.GET("/security-events", d.Admin.ListSecurityEvents)
			admin.POST("/security-events/:id/resolve", d.Admin.ResolveSecurityEvent)
			admin.GET("/compliance-report", d.Admin.ComplianceReport)
		}
	}

	return r
}
