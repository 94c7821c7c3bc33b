package di

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/internal/client"
	"github.com/prohmpiriya/leadflow/internal/event"
	"github.com/prohmpiriya/leadflow/internal/handler"
	"github.com/prohmpiriya/leadflow/internal/repository"
	"github.com/prohmpiriya/leadflow/internal/service"
	"github.com/prohmpiriya/leadflow/internal/worker"
	"github.com/prohmpiriya/leadflow/pkg/config"
	"github.com/prohmpiriya/leadflow/pkg/database"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"github.com/prohmpiriya/leadflow/pkg/middleware"
	"github.com/prohmpiriya/leadflow/pkg/redis"
)

// Container holds all dependencies for the lead platform
type Container struct {
	// Infrastructure
	DB        *database.PostgresDB
	KV        redis.KVStore
	Publisher event.Publisher
	Channel   client.ChannelClient

	// Repositories
	TenantRepo  repository.TenantRepository
	LeadRepo    repository.LeadRepository
	MessageRepo repository.MessageRepository
	SessionRepo repository.SessionRepository
	StateRepo   repository.OAuthStateRepository
	AuditSink   middleware.AuditSink

	// Services
	Locks               *service.LeadLocks
	AuthService         service.AuthService
	TenantService       service.TenantService
	LeadService         service.LeadService
	ConversationService service.ConversationService
	AnalyticsService    service.AnalyticsService
	ChannelService      service.ChannelService

	// Background
	FollowupWorker *worker.FollowupWorker
	AuditLogger    *middleware.AuditLogger
	LoginLimiter   middleware.Limiter
	localLimiter   *middleware.LocalRateLimiter

	Router *gin.Engine
}

// ContainerConfig contains configuration for building the container.
// A nil DB selects the in-memory store.
type ContainerConfig struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *database.PostgresDB
	KV        redis.KVStore
	Publisher event.Publisher
	Channel   client.ChannelClient
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("di: a key-value store is required")
	}
	appCfg := cfg.Config

	c := &Container{
		DB:        cfg.DB,
		KV:        cfg.KV,
		Publisher: cfg.Publisher,
		Channel:   cfg.Channel,
	}
	if c.Publisher == nil {
		c.Publisher = event.NewLogPublisher()
	}
	if c.Channel == nil {
		c.Channel = client.NewInstagramClient(appCfg.Instagram)
	}

	// Initialize repositories
	if c.DB != nil {
		pool := c.DB.Pool()
		c.TenantRepo = repository.NewPostgresTenantRepository(pool)
		c.LeadRepo = repository.NewPostgresLeadRepository(pool)
		c.MessageRepo = repository.NewPostgresMessageRepository(pool)
		c.AuditSink = repository.NewPostgresAuditRepository(pool)
	} else {
		store := repository.NewMemoryStore()
		c.TenantRepo = repository.NewMemoryTenantRepository(store)
		c.LeadRepo = repository.NewMemoryLeadRepository(store)
		c.MessageRepo = repository.NewMemoryMessageRepository(store)
		c.AuditSink = repository.NewMemoryAuditRepository()
	}
	c.SessionRepo = repository.NewKVSessionRepository(c.KV)
	c.StateRepo = repository.NewKVOAuthStateRepository(c.KV)

	// Initialize services
	var err error
	c.AuthService, err = service.NewAuthService(service.AuthConfig{
		JWT:   appCfg.JWT,
		Admin: appCfg.Admin,
	}, c.TenantRepo, c.SessionRepo)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	c.Locks = service.NewLeadLocks()
	c.TenantService = service.NewTenantService(c.TenantRepo)
	c.LeadService = service.NewLeadService(c.LeadRepo, c.MessageRepo, c.Publisher, c.Locks, appCfg.Leads)
	c.ConversationService = service.NewConversationService(c.TenantRepo, c.LeadRepo, c.MessageRepo, c.Publisher, c.Locks)
	c.AnalyticsService = service.NewAnalyticsService(c.LeadRepo, c.MessageRepo, c.KV, appCfg.Analytics.CacheTTL)
	c.ChannelService = service.NewChannelService(c.TenantService, c.StateRepo, c.Channel, c.Publisher, appCfg.Instagram.StateTTL)

	c.FollowupWorker = worker.NewFollowupWorker(c.TenantRepo, c.LeadService, c.Publisher, &worker.FollowupWorkerConfig{
		ScanInterval: appCfg.Leads.FollowupScanInterval,
		ScanTimeout:  2 * time.Minute,
	})
	c.AuditLogger = middleware.NewAuditLogger(c.AuditSink, middleware.DefaultAuditConfig())
	// login buckets are shared through Redis when one is configured
	if scripter, ok := c.KV.(redis.Scripter); ok && appCfg.Redis.Enabled {
		c.LoginLimiter = middleware.NewRedisRateLimiter(scripter, middleware.LoginRateLimitConfig())
	} else {
		c.localLimiter = middleware.NewLocalRateLimiter(middleware.LoginRateLimitConfig())
		c.LoginLimiter = c.localLimiter
	}

	// Initialize handlers
	checks := map[string]handler.Pinger{"kv": c.KV}
	if c.DB != nil {
		checks["database"] = c.DB
	}
	cors := middleware.DefaultCORSConfig()
	if len(appCfg.Server.AllowOrigins) > 0 {
		cors.AllowOrigins = appCfg.Server.AllowOrigins
	}

	c.Router = handler.NewRouter(&handler.RouterConfig{
		AuthService:  c.AuthService,
		Health:       handler.NewHealthHandler(appCfg.App.Version, checks),
		Auth:         handler.NewAuthHandler(c.AuthService),
		Tenants:      handler.NewTenantHandler(c.TenantService),
		Leads:        handler.NewLeadHandler(c.LeadService, c.ConversationService),
		Dashboard:    handler.NewDashboardHandler(c.AnalyticsService),
		Channel:      handler.NewChannelHandler(c.ChannelService),
		Ingest:       handler.NewIngestHandler(c.ConversationService, c.LeadService),
		Logger:       cfg.Logger,
		CORS:         cors,
		LoginLimiter: c.LoginLimiter,
		Audit:        c.AuditLogger,
	})

	return c, nil
}

// Close stops background work. Infrastructure is closed by its owner.
func (c *Container) Close() {
	c.FollowupWorker.Stop()
	if c.localLimiter != nil {
		c.localLimiter.Stop()
	}
	_ = c.AuditLogger.Close()
}
