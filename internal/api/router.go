package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/config"
	"github.com/member-dashboard-api/internal/metrics"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/service"
	"github.com/rs/zerolog"
)

// Options are the optional router collaborators
type Options struct {
	// Stream serves /v1/members/stream; nil disables it
	Stream SnapshotStream
	// Metrics backs /metrics/prometheus and guard counters; nil disables it
	Metrics *metrics.Metrics
	// Subscribers reports live stream subscribers
	Subscribers func() int
	// HealthCheck pings storage for /health
	HealthCheck func(ctx context.Context) error
}

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, opts Options, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())

	// Handlers
	guard := NewGuard(services.Account, opts.Metrics)
	authHandler := NewAuthHandler(services, log)
	accountHandler := NewAccountHandler(services, log)
	memberHandler := NewMemberHandler(services, opts.Stream, opts.Metrics, log)
	importHandler := NewImportHandler(services, cfg, log)
	analyticsHandler := NewAnalyticsHandler(services, log)

	// Health check
	router.GET("/health", healthCheck(opts.HealthCheck))
	router.GET("/metrics", metricsHandler(services, opts))
	if opts.Metrics != nil {
		router.GET("/metrics/prometheus", gin.WrapH(opts.Metrics.Handler()))
	}

	// API v1
	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/signup", authHandler.SignUp)
			auth.POST("/signin", authHandler.SignIn)
			auth.POST("/signout", guard.RequireAuth(), authHandler.SignOut)
		}

		me := v1.Group("/me", guard.RequireAuth())
		{
			me.GET("", authHandler.Me)
			me.POST("/password", authHandler.ChangePassword)
		}

		// Member table endpoints
		members := v1.Group("/members", guard.RequireRole(authz.RoleModerator))
		{
			members.GET("", memberHandler.List)
			members.POST("", guard.RequirePermission(authz.PermEditContent), memberHandler.Create)
			members.GET("/export", memberHandler.Export)
			members.GET("/stream", memberHandler.Stream)
			members.GET("/:id", memberHandler.Get)
			members.PUT("/:id", guard.RequirePermission(authz.PermEditContent), memberHandler.Update)
			members.DELETE("/:id", guard.RequirePermission(authz.PermEditContent), memberHandler.Delete)
		}

		// Import endpoints
		imports := v1.Group("/imports", guard.RequirePermission(authz.PermEditContent))
		{
			imports.GET("/template", importHandler.Template)
			imports.POST("", importHandler.Upload)
			imports.GET("/:import_id", importHandler.Get)
			imports.POST("/:import_id/confirm", importHandler.Confirm)
		}

		analytics := v1.Group("/analytics", guard.RequirePermission(authz.PermViewAnalytics))
		{
			analytics.GET("/overview", analyticsHandler.Overview)
			analytics.GET("/demographics", analyticsHandler.Demographics)
			analytics.GET("/geography", analyticsHandler.Geography)
			analytics.GET("/employment", analyticsHandler.Employment)
		}

		// User management endpoints
		accounts := v1.Group("/accounts", guard.RequirePermission(authz.PermManageUsers))
		{
			accounts.GET("", accountHandler.List)
			accounts.POST("", accountHandler.Create)
			accounts.GET("/stats", accountHandler.Stats)
			accounts.GET("/roles", accountHandler.Roles)
			accounts.PUT("/:id", accountHandler.Update)
			accounts.DELETE("/:id", accountHandler.Delete)
			accounts.PUT("/:id/role", accountHandler.ChangeRole)
			accounts.PUT("/:id/status", accountHandler.ChangeStatus)
			accounts.POST("/:id/password", accountHandler.ChangePassword)
		}
	}

	return router
}

// healthCheck returns the health status
func healthCheck(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				loggerFrom(c).Warn().Err(err).Msg("Database health check failed")
				status, code = "unhealthy", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   "member-dashboard-api",
		})
	}
}

// metricsHandler returns collection counts
func metricsHandler(services *service.Services, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, _ := services.Member.Query(ctx, models.MemberQuery{PageSize: 1})
		stats, _ := services.Account.Stats(ctx)

		body := gin.H{
			"timestamp": time.Now().Format(time.RFC3339),
		}
		database := gin.H{}
		if page != nil {
			database["members"] = page.Total
		}
		if stats != nil {
			database["accounts"] = stats
		}
		body["database"] = database
		if opts.Subscribers != nil {
			body["subscribers"] = opts.Subscribers()
		}
		c.JSON(http.StatusOK, body)
	}
}
