// Package http assembles the gin engine and the HTTP server of the
// KeyConcept API.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyConcept/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyConcept/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware settings of the
// route tree.  Nil handlers leave their routes unmounted.
type RouterConfig struct {
	AnnotationHandler *handlers.AnnotationHandler
	IndexHandler      *handlers.IndexHandler
	TermsHandler      *handlers.TermsHandler
	HealthHandler     *handlers.HealthHandler

	Server  config.ServerConfig
	Auth    config.AuthConfig
	Logging middleware.LoggingConfig

	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
	Metrics          *prometheus.AppMetrics
}

// NewRouter builds the engine: global middleware, public probes and
// metrics, and the authenticated /api/v1 group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	logger := logging.OrNop(cfg.Logger)
	logCfg := cfg.Logging
	if logCfg.SkipPaths == nil && logCfg.SlowThreshold == 0 {
		logCfg = middleware.DefaultLoggingConfig()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins)),
		middleware.RequestLogging(logger, logCfg),
		middleware.Metrics(cfg.Metrics),
		middleware.BodyLimit(cfg.Server.MaxBodySize),
	)

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1", middleware.APIKeyAuth(cfg.Auth, logger))
	if cfg.AnnotationHandler != nil {
		cfg.AnnotationHandler.RegisterRoutes(api)
	}
	if cfg.IndexHandler != nil {
		cfg.IndexHandler.RegisterRoutes(api)
	}
	if cfg.TermsHandler != nil {
		cfg.TermsHandler.RegisterRoutes(api)
	}
	return r
}
