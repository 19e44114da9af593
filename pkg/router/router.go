package router

import (
	"context"
	"fmt"

	"webhook-ingest/backend/internal/api"
	"webhook-ingest/backend/pkg/config"
	"webhook-ingest/backend/pkg/di"
	"webhook-ingest/backend/pkg/errors"
	"webhook-ingest/backend/pkg/logger"
	"webhook-ingest/backend/pkg/middleware"
	"webhook-ingest/backend/pkg/validator"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container. ctx bounds background
// work started by middleware, such as the rate limiter's sweeper.
func New(ctx context.Context, container *di.Container) (*Router, error) {
	// Use the container's logger
	logger.SetGlobal(container.Logger)

	cfg := container.Config

	// Configure Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Request IDs first so every later middleware and log line can see them
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(middleware.Metrics())

	// Add custom error handler middleware
	engine.Use(errors.ErrorHandler())

	// Add custom recovery middleware with structured logging instead of default
	engine.Use(errors.RecoveryWithLogger())

	engine.Use(corsMiddleware(cfg.Webhook.SignatureHeader))
	engine.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	engine.Use(middleware.BodyLimit(cfg.Server.MaxBodySize))

	limiterOptions := middleware.DefaultRateLimiterOptions()
	limiterOptions.Limit = rate.Limit(cfg.Security.RateLimit)
	limiterOptions.Burst = cfg.Security.RateLimitBurst
	rateLimiter := middleware.NewRateLimiter(container.Logger, limiterOptions)
	engine.Use(rateLimiter.Middleware(ctx))

	if cfg.Observability.OpenAPIValidation {
		v, err := validator.NewOpenAPIValidator()
		if err != nil {
			return nil, fmt.Errorf("failed to load openapi document: %w", err)
		}
		engine.Use(v.Middleware())
		container.Logger.Info("OpenAPI request validation enabled")
	}

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}, nil
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	webhookController := api.NewWebhookController(r.Container.IngestService, r.Config.Webhook.SignatureHeader)
	messageController := api.NewMessageController(r.Container.QueryService, r.Container.StatsService)
	healthController := api.NewHealthController(r.Container.Health)

	webhookController.RegisterRoutes(r.Engine)
	messageController.RegisterRoutes(r.Engine)
	healthController.RegisterRoutes(r.Engine)

	r.setupOperationalRoutes()
}

// corsMiddleware lets browser clients read the API and the request ID header
func corsMiddleware(signatureHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Origin, X-Request-ID, "+signatureHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
