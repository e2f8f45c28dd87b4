package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mxi/presale/internal/infrastructure/config"
	"github.com/mxi/presale/internal/infrastructure/logger"
	"github.com/mxi/presale/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// HealthPath is served outside the versioned API and is never logged,
// traced or rate limited
const HealthPath = "/health"

// EngineOptions configures the global middleware chain
type EngineOptions struct {
	ServiceName      string
	Production       bool
	HTTP             config.HTTPConfig
	TracingEnabled   bool
	ProfilingEnabled bool
	// Meter records HTTP metrics; nil disables them
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewEngine builds a gin engine with the middleware chain in order:
// request ID, request log, panic recovery, tracing, metrics, profiling,
// security headers, CORS and body limit.
func NewEngine(opts EngineOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	engine := gin.New()
	if len(opts.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
			opts.Logger.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(opts.Logger, HealthPath))
	engine.Use(logger.Recovery(opts.Logger))
	engine.Use(middleware.Tracing(opts.ServiceName, opts.TracingEnabled))
	engine.Use(middleware.HTTPMetrics(opts.Meter))
	engine.Use(middleware.Profiling(opts.ProfilingEnabled, HealthPath))
	engine.Use(middleware.Secure(opts.Production))

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = opts.HTTP.CORSAllowOrigins
	if len(opts.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = opts.HTTP.CORSAllowMethods
	}
	if len(opts.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = opts.HTTP.CORSAllowHeaders
	}
	cors.MaxAge = 12 * time.Hour
	engine.Use(middleware.CORSWithConfig(cors))

	if opts.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(opts.HTTP.MaxBodySize))
	}
	return engine
}
