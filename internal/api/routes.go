// Package api wires the reference host's HTTP surface: authentication,
// storage, and the container inspection core itself, behind the gin
// middleware stack (recovery, security, rate limiting, metrics).
package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rendiffdev/containerintegrity/internal/circuitbreaker"
	"github.com/rendiffdev/containerintegrity/internal/config"
	"github.com/rendiffdev/containerintegrity/internal/database"
	"github.com/rendiffdev/containerintegrity/internal/handlers"
	"github.com/rendiffdev/containerintegrity/internal/inspector"
	"github.com/rendiffdev/containerintegrity/internal/middleware"
	"github.com/rendiffdev/containerintegrity/internal/services"
	"github.com/rendiffdev/containerintegrity/internal/storage"
	"github.com/rendiffdev/containerintegrity/pkg/logger"
)

// circuitBreakerFor builds the breaker guarding calls to the configured
// storage provider, tripping after repeated consecutive failures and
// resetting on the interval cfg controls.
func circuitBreakerFor(cfg *config.Config) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:     "storage-provider",
		Timeout:  time.Duration(cfg.CircuitBreakerTimeout) * time.Second,
		Interval: time.Duration(cfg.CircuitBreakerInterval) * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// Router owns every handler and middleware the host exposes and assembles
// them into a gin.Engine.
type Router struct {
	cfg    *config.Config
	logger zerolog.Logger

	authMiddleware       *middleware.AuthMiddleware
	rateLimitMiddleware  *middleware.RateLimitMiddleware
	securityMiddleware   *middleware.SecurityMiddleware
	monitoringMiddleware *middleware.MonitoringMiddleware

	authHandler       *handlers.AuthHandler
	storageHandler    *handlers.StorageHandler
	inspectionHandler *handlers.InspectionHandler
	reportHandler     *handlers.ReportHandler
	apiKeyHandler     *handlers.APIKeyHandler
}

// NewRouter wires storage, persistence, the inspector registry and every
// handler/middleware from cfg and an already-open database connection.
func NewRouter(cfg *config.Config, db *database.DB, log zerolog.Logger) (*Router, error) {
	storageProvider, err := storage.NewProvider(storage.Config{
		Provider:  cfg.StorageProvider,
		Region:    cfg.StorageRegion,
		Bucket:    cfg.StorageBucket,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Endpoint:  cfg.StorageEndpoint,
		UseSSL:    cfg.StorageUseSSL,
		BaseURL:   cfg.StorageBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage provider: %w", err)
	}

	var storageService *services.StorageService
	if cfg.EnableCircuitBreaker {
		breaker := circuitBreakerFor(cfg)
		storageService = services.NewStorageServiceWithBreaker(storageProvider, breaker, log)
	} else {
		storageService = services.NewStorageService(storageProvider, log)
	}

	repo := database.NewRepository(db)
	registry := inspector.NewDefaultRegistry()
	inspectionService := services.NewInspectionService(repo, storageService, registry, cfg.UploadDir, log)
	reportRenderer := services.NewReportRenderer()
	rotationService := services.NewSecretRotationService(db.SQLX, log, services.SecretRotationConfig{})

	authConfig := middleware.AuthConfig{
		JWTSecret:     cfg.JWTSecret,
		APIKey:        cfg.APIKey,
		TokenExpiry:   time.Duration(cfg.TokenExpiry) * time.Hour,
		RefreshExpiry: time.Duration(cfg.RefreshExpiry) * time.Hour,
	}
	authMiddleware := middleware.NewAuthMiddleware(authConfig, db.SQLX, log)

	rateLimitMiddleware := middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		RequestsPerHour:   cfg.RateLimitPerHour,
		RequestsPerDay:    cfg.RateLimitPerDay,
		EnablePerIP:       true,
		EnablePerUser:     true,
	}, log)

	securityMiddleware := middleware.NewSecurityMiddleware(middleware.SecurityConfig{
		EnableCSRF:         cfg.EnableCSRF,
		EnableXSS:          true,
		EnableFrameGuard:   true,
		EnableHSTS:         !cfg.CloudMode,
		ContentTypeNoSniff: true,
		AllowedOrigins:     cfg.AllowedOrigins,
		AllowedMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:     []string{"Authorization", "Content-Type", "X-API-Key"},
		ExposeHeaders:      []string{"X-Request-ID"},
	}, log)

	monitoringMiddleware := middleware.NewMonitoringMiddleware(log)

	return &Router{
		cfg:    cfg,
		logger: log,

		authMiddleware:       authMiddleware,
		rateLimitMiddleware:  rateLimitMiddleware,
		securityMiddleware:   securityMiddleware,
		monitoringMiddleware: monitoringMiddleware,

		authHandler:       handlers.NewAuthHandler(authMiddleware, rotationService, log),
		storageHandler:    handlers.NewStorageHandler(storageService, cfg.MaxFileSize, log),
		inspectionHandler: handlers.NewInspectionHandler(inspectionService, log),
		reportHandler:     handlers.NewReportHandler(inspectionService, reportRenderer, log),
		apiKeyHandler:     handlers.NewAPIKeyHandler(rotationService, log),
	}, nil
}

// SetupRoutes assembles the gin.Engine: global middleware first, then
// every route group.
func (r *Router) SetupRoutes() *gin.Engine {
	if r.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(r.logger))
	engine.Use(logger.RequestIDMiddleware())
	engine.Use(logger.LoggingMiddleware(r.logger))
	engine.Use(r.securityMiddleware.Security())
	engine.Use(r.securityMiddleware.CORS())
	engine.Use(r.monitoringMiddleware.Metrics())

	if len(r.cfg.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(r.cfg.TrustedProxies)
	}

	engine.GET("/health", r.health)
	engine.GET("/api/v1/system/version", r.version)

	v1 := engine.Group("/api/v1")
	if r.cfg.EnableRateLimit {
		v1.Use(r.rateLimitMiddleware.RateLimit())
	}

	auth := v1.Group("/auth")
	{
		auth.POST("/login", r.authHandler.Login)
		auth.POST("/refresh", r.authHandler.RefreshToken)
	}

	authed := v1.Group("")
	if r.cfg.EnableAuth {
		authed.Use(r.authMiddleware.JWTAuth())
	}
	{
		authed.POST("/auth/logout", r.authHandler.Logout)
		authed.GET("/auth/profile", r.authHandler.Profile)
		authed.POST("/auth/change-password", r.authHandler.ChangePassword)
		authed.GET("/auth/validate", r.authHandler.ValidateToken)
		authed.POST("/auth/api-key", r.authHandler.GenerateAPIKey)
		authed.GET("/auth/api-keys", r.authHandler.ListAPIKeys)
		authed.DELETE("/auth/api-keys/:id", r.authHandler.RevokeAPIKey)

		keys := authed.Group("/keys")
		{
			keys.POST("", r.apiKeyHandler.CreateAPIKey)
			keys.POST("/rotate", r.apiKeyHandler.RotateAPIKey)
			keys.POST("/rotate-jwt", r.apiKeyHandler.RotateJWTSecret)
			keys.PUT("/rate-limits", r.apiKeyHandler.UpdateRateLimits)
			keys.GET("/rotation-status", r.apiKeyHandler.CheckRotationStatus)
			keys.POST("/cleanup", r.apiKeyHandler.CleanupExpiredKeys)
		}

		storageGroup := authed.Group("/storage")
		storageGroup.Use(r.monitoringMiddleware.UploadMetrics())
		{
			storageGroup.POST("/upload", r.storageHandler.UploadFile)
			storageGroup.GET("/download/:key", r.storageHandler.DownloadFile)
			storageGroup.DELETE("/:key", r.storageHandler.DeleteFile)
			storageGroup.GET("/info/:key", r.storageHandler.GetFileInfo)
			storageGroup.POST("/signed-url", r.storageHandler.GetSignedURL)
		}

		inspections := authed.Group("/inspections")
		inspections.Use(r.monitoringMiddleware.InspectionMetrics())
		{
			inspections.POST("", r.inspectionHandler.Submit)
			inspections.POST("/batch", r.inspectionHandler.SubmitBatch)
			inspections.GET("", r.inspectionHandler.List)
			inspections.GET("/:id", r.inspectionHandler.Get)
			inspections.GET("/:id/export", r.reportHandler.Export)
			inspections.POST("/:id/correlate", r.inspectionHandler.Correlate)
		}
	}

	return engine
}

func (r *Router) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func (r *Router) version(c *gin.Context) {
	c.JSON(200, gin.H{"service": "containerintegrity", "api_version": "v1"})
}
