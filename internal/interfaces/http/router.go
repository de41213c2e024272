// Package http assembles the gin route tree and the HTTP server that
// serves it.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/vinsight/vinsight/internal/config"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/prometheus"
	"github.com/vinsight/vinsight/internal/interfaces/http/handlers"
	"github.com/vinsight/vinsight/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and infrastructure needed to build
// the complete route tree.
type RouterConfig struct {
	ValuationHandler *handlers.ValuationHandler
	ReportHandler    *handlers.ReportHandler
	HealthHandler    *handlers.HealthHandler

	Server  config.ServerConfig
	Metrics *prometheus.AppMetrics
	Logger  logging.Logger

	// RateLimiter enables per-client throttling when non-nil.
	RateLimiter *middleware.ClientRateLimiter
}

// NewRouter builds the gin engine: global middleware, public probes, the
// metrics endpoint, and the /api/v1 resource groups.
func NewRouter(cfg RouterConfig) *gin.Engine {
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Logging(cfg.Logger, cfg.Metrics))

	if cfg.RateLimiter != nil {
		rlc := middleware.DefaultRateLimitConfig()
		if cfg.Server.RateLimitRPS > 0 {
			rlc.RequestsPerSecond = cfg.Server.RateLimitRPS
		}
		if cfg.Server.RateLimitBurst > 0 {
			rlc.Burst = cfg.Server.RateLimitBurst
		}
		r.Use(middleware.RateLimit(cfg.RateLimiter, rlc))
	}

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api/v1")
	if cfg.ValuationHandler != nil {
		cfg.ValuationHandler.RegisterRoutes(api)
	}
	if cfg.ReportHandler != nil {
		cfg.ReportHandler.RegisterRoutes(api)
	}

	return r
}
