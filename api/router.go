package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tietpapers/api/handler"
	"github.com/use-agent/tietpapers/api/middleware"
	"github.com/use-agent/tietpapers/cache"
	"github.com/use-agent/tietpapers/config"
	"github.com/use-agent/tietpapers/webhook"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:     Recovery → Logger → CORS
//	run-script: Auth (if enabled) → RateLimit
//
// Status endpoints stay outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, proc handler.ProcessFunc, cc *cache.Cache, runs *handler.Runs, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.CORS())

	r.GET("/", handler.Root())
	r.GET("/api/v1/health", handler.Health(runs, startTime))

	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/run-script", handler.RunScript(proc, runs, handler.RunOptions{
		Timeout:  cfg.Server.RunTimeout,
		Cache:    cc,
		MaxAge:   cfg.Cache.MaxAge,
		Notifier: webhook.New(cfg.Webhook.URL, cfg.Webhook.Secret),
	}))

	return r
}
