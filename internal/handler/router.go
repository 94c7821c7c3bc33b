package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/internal/service"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"github.com/prohmpiriya/leadflow/pkg/middleware"
	"github.com/prohmpiriya/leadflow/pkg/telemetry"
)

// RouterConfig collects everything the HTTP surface is assembled from
type RouterConfig struct {
	AuthService service.AuthService

	Health    *HealthHandler
	Auth      *AuthHandler
	Tenants   *TenantHandler
	Leads     *LeadHandler
	Dashboard *DashboardHandler
	Channel   *ChannelHandler
	Ingest    *IngestHandler

	Logger       *logger.Logger
	CORS         middleware.CORSConfig
	LoginLimiter middleware.Limiter
	// Audit is optional; mutating groups are recorded when set
	Audit *middleware.AuditLogger
}

// NewRouter builds the gin engine with every route registered
func NewRouter(cfg *RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(telemetry.GinMiddleware())
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}
	r.Use(logger.GinMiddleware(log))

	r.GET("/health", cfg.Health.Health)
	r.GET("/ready", cfg.Health.Ready)

	audit := func(resourceType string) gin.HandlerFunc {
		if cfg.Audit == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.AuditMiddleware(cfg.Audit, resourceType)
	}
	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.LoginLimiter != nil {
		limit = middleware.RateLimitByIP(cfg.LoginLimiter)
	}

	clientPath := RequireAuth(cfg.AuthService, domain.RoleClient, TenantFromPath)
	clientQuery := RequireAuth(cfg.AuthService, domain.RoleClient, TenantFromQuery)
	admin := RequireAuth(cfg.AuthService, domain.RoleAdmin, TenantNone)
	adminPath := RequireAuth(cfg.AuthService, domain.RoleAdmin, TenantFromPath)

	auth := r.Group("/api/auth", audit("session"))
	{
		auth.POST("/login", limit, cfg.Auth.Login)
		auth.POST("/admin/login", limit, cfg.Auth.AdminLogin)
		auth.GET("/verify", cfg.Auth.Verify)
		auth.POST("/logout", cfg.Auth.Logout)

		ig := auth.Group("/instagram")
		ig.GET("/connect/:tenant_id", clientPath, cfg.Channel.Connect)
		ig.GET("/callback", cfg.Channel.Callback)
		ig.POST("/disconnect/:tenant_id", clientPath, cfg.Channel.Disconnect)
		ig.GET("/disconnect/:tenant_id", clientPath, cfg.Channel.Disconnect)
		ig.GET("/status/:tenant_id", clientPath, cfg.Channel.Status)
	}

	clients := r.Group("/admin/clients", admin, audit("tenant"))
	{
		clients.POST("", cfg.Tenants.Create)
		clients.GET("", cfg.Tenants.List)
		clients.GET("/:tenant_id", cfg.Tenants.GetByID)
		clients.PUT("/:tenant_id", cfg.Tenants.Update)
		clients.DELETE("/:tenant_id", cfg.Tenants.Delete)
	}

	leads := r.Group("/api/clients/:tenant_id/leads", clientPath, audit("lead"))
	{
		leads.GET("", cfg.Leads.List)
		leads.GET("/followup", cfg.Leads.Followups)
		leads.GET("/booking", cfg.Leads.Bookings)
		leads.GET("/:lead_id/conversation", cfg.Leads.Conversation)
		leads.POST("/:lead_id/status", cfg.Leads.Transition)
		leads.POST("/:lead_id/block", cfg.Leads.Block)
	}

	client := r.Group("/api/client", clientQuery)
	{
		client.GET("/dashboard", cfg.Dashboard.Dashboard)
		client.GET("/activity", cfg.Dashboard.Activity)
	}

	internal := r.Group("/api/internal", audit("message"))
	{
		internal.POST("/messages", admin, cfg.Ingest.Ingest)
		internal.POST("/bookings", admin, cfg.Ingest.ConfirmBooking)
		internal.POST("/leads/:tenant_id/:lead_id/followup", adminPath, cfg.Ingest.RecordFollowup)
	}

	return r
}
