package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	identityapp "github.com/saasbooks/backend/internal/application/identity"
	reportapp "github.com/saasbooks/backend/internal/application/report"
	"github.com/saasbooks/backend/internal/infrastructure/auth"
	"github.com/saasbooks/backend/internal/infrastructure/cache"
	"github.com/saasbooks/backend/internal/infrastructure/config"
	"github.com/saasbooks/backend/internal/infrastructure/logger"
	"github.com/saasbooks/backend/internal/infrastructure/persistence"
	"github.com/saasbooks/backend/internal/infrastructure/rls"
	"github.com/saasbooks/backend/internal/infrastructure/telemetry"
	"github.com/saasbooks/backend/internal/interfaces/http/handler"
	"github.com/saasbooks/backend/internal/interfaces/http/middleware"
	"github.com/saasbooks/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	cfgStore := config.NewStore(cfg)

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting SaaSBooks Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize tracing
	tp, err := telemetry.NewTracerProvider(context.Background(), cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Initialize database connection
	db, err := persistence.NewDatabaseWithOptions(&cfg.Database, persistence.Options{
		LogLevel: gormLogLevel(cfg.Log.Level),
		Tracing:  cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Row security is a deployment prerequisite; a table without it is
	// an operator error worth failing loudly over in production.
	enforcer := rls.NewEnforcer(db.DB, rls.DefaultRegistry())
	if statuses, err := enforcer.Status(context.Background()); err != nil {
		log.Warn("Failed to inspect row security status", zap.Error(err))
	} else {
		for _, st := range statuses {
			if st.State != rls.StatePolicied {
				if cfg.App.Env == "production" {
					log.Fatal("Row security not enforced", zap.String("table", st.Table), zap.String("state", string(st.State)))
				}
				log.Warn("Row security not enforced", zap.String("table", st.Table), zap.String("state", string(st.State)))
			}
		}
	}

	// Initialize Redis-backed cache and session revocation list
	redisClient, err := cache.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}()
	cacheStore := cache.NewStore(redisClient, &cfg.Cache)
	sessionStore := auth.NewRedisSessionStore(redisClient)

	// Initialize repositories and the audit trail
	auditStore := persistence.NewAuditStore(db.DB, cfg.Audit.SensitiveReads)
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	userRepo := persistence.NewGormUserRepository(db.DB)

	// Navigation comes from navigation.toml when present; the built-in
	// default covers fresh deployments.
	navResolver := identityapp.NewNavigationResolver(identityapp.DefaultNavigationConfig())
	if _, err := os.Stat("navigation.toml"); err == nil {
		if err := navResolver.LoadFile("navigation.toml"); err != nil {
			log.Warn("Failed to load navigation.toml, using defaults", zap.Error(err))
		}
	}

	// Initialize application services
	jwtService := auth.NewJWTService(cfg.Token)
	resolver := auth.NewResolver(jwtService, sessionStore, userRepo, auditStore)
	authService := identityapp.NewAuthService(userRepo, tenantRepo, jwtService, sessionStore, auditStore, navResolver, cfg.Token)
	complianceService := reportapp.NewComplianceService(auditStore)

	// Initialize HTTP handlers and middleware
	authHandler := handler.NewAuthHandler(authService, cfg.Tenant.HostSuffix)
	adminHandler := handler.NewAdminHandler(auditStore, complianceService)
	systemHandler := handler.NewSystemHandler(db, cacheStore)
	tenantScope := middleware.NewTenantScope(tenantRepo, auditStore, cfg.Tenant.HostSuffix)

	engine := router.New(router.Deps{
		Config:       cfg,
		Logger:       log,
		Auth:         authHandler,
		Admin:        adminHandler,
		System:       systemHandler,
		Authenticate: middleware.Authenticate(resolver),
		TenantScope:  tenantScope.Handler(),
		GuardTable:   middleware.DefaultGuardTable(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// SIGHUP reloads configuration and the navigation table without a
	// restart. In-flight requests keep the snapshot they started with.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if _, err := cfgStore.Reload(); err != nil {
				log.Error("Configuration reload failed", zap.Error(err))
				continue
			}
			if _, err := os.Stat("navigation.toml"); err == nil {
				if err := navResolver.LoadFile("navigation.toml"); err != nil {
					log.Error("Navigation reload failed", zap.Error(err))
				}
			}
			log.Info("Configuration reloaded")
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "warn", "error":
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}
