// Package api assembles the HTTP surface.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/use-agent/npiharvest/api/handler"
	"github.com/use-agent/npiharvest/api/middleware"
	"github.com/use-agent/npiharvest/cache"
	"github.com/use-agent/npiharvest/config"
	"github.com/use-agent/npiharvest/scraper"
	"github.com/use-agent/npiharvest/webhook"
)

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(cfg *config.Config, s *scraper.Scraper, rc *cache.ResultCache, notifier *webhook.Notifier) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	scrapeHandler := handler.NewScrapeHandler(s, rc, cfg)
	batchHandler := handler.NewBatchHandler(s, notifier, cfg)
	healthHandler := handler.NewHealthHandler(s)

	v1 := r.Group("/api/v1")
	v1.GET("/health", healthHandler.Handle)

	protected := v1.Group("")
	protected.Use(middleware.Auth(cfg.Auth), middleware.RateLimit(cfg.RateLimit))
	{
		protected.GET("/scrape/home-health", scrapeHandler.Handle)
		protected.POST("/scrape/home-health/batch", batchHandler.Create)
		protected.GET("/batch/:id", batchHandler.Status)
	}

	return r
}
