package router

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/erp/weclapp-migration/docs"
	"github.com/erp/weclapp-migration/internal/infrastructure/auth"
	"github.com/erp/weclapp-migration/internal/infrastructure/logger"
	"github.com/erp/weclapp-migration/internal/infrastructure/telemetry"
	"github.com/erp/weclapp-migration/internal/interfaces/http/handler"
	"github.com/erp/weclapp-migration/internal/interfaces/http/middleware"
)

// EngineConfig wires the job API
type EngineConfig struct {
	Logger *zap.Logger
	// Tokens validates operator bearer tokens. Required.
	Tokens middleware.TokenValidator
	// Meter records HTTP metrics; nil disables them
	Meter       *telemetry.MeterProvider
	Tracing     middleware.TracingConfig
	MaxBodySize int64
	// RateLimiter limits requests per token subject; nil disables it
	RateLimiter    *middleware.RateLimiter
	RequestTimeout time.Duration
	// ProfileLabels labels profile samples by route
	ProfileLabels bool
	// Swagger guards /swagger; the zero value hides the docs
	Swagger middleware.SwaggerConfig
	Health  handler.Pinger
	Jobs    *handler.JobHandler
}

// NewEngine builds the gin engine serving /health, /swagger and the /api/v1 job API.
//
// Middleware order: recovery, request logging, security headers, tracing,
// metrics, body limit, profile labels, then on /api/v1 authentication, span attributes and
// rate limiting.
func NewEngine(cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.TracingWithConfig(cfg.Tracing))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(cfg.Meter))
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	if cfg.ProfileLabels {
		engine.Use(middleware.ProfileLabels())
	}

	if cfg.Health != nil {
		engine.GET("/health", handler.Health(cfg.Health))
	}

	authn := middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		Validator: cfg.Tokens,
		Logger:    log,
	})
	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(cfg.Swagger, authn),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	apiMiddleware := []gin.HandlerFunc{
		authn,
		middleware.TracingAttributeInjector(),
		middleware.Timeout(cfg.RequestTimeout),
	}
	if cfg.RateLimiter != nil {
		apiMiddleware = append(apiMiddleware, middleware.RateLimit(cfg.RateLimiter))
	}

	r := NewRouter(engine, WithAPIVersion("v1"), WithMiddleware(apiMiddleware...))
	r.Register(JobRoutes(cfg.Jobs))
	r.Setup()
	return engine
}

// JobRoutes maps the job handler onto /jobs, /logs and /plan.
// Reads need the jobs:read scope, submissions jobs:write.
func JobRoutes(h *handler.JobHandler) *RouteGroup {
	root := NewRouteGroup("")
	root.GET("/logs", auth.ScopeJobsRead, h.Logs).
		GET("/plan", auth.ScopeJobsRead, h.Plan)

	root.Group("/jobs").
		GET("", auth.ScopeJobsRead, h.List).
		GET("/:id", auth.ScopeJobsRead, h.Get).
		POST("/cache", auth.ScopeJobsWrite, h.Cache).
		POST("/migrate", auth.ScopeJobsWrite, h.Migrate).
		POST("/clear/:kind", auth.ScopeJobsWrite, h.Clear)
	return root
}
