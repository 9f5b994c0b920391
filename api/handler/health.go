package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/npiharvest/models"
	"github.com/use-agent/npiharvest/scraper"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// HealthHandler serves liveness and pool statistics.
type HealthHandler struct {
	scraper   *scraper.Scraper
	startedAt time.Time
}

// NewHealthHandler wires the handler.
func NewHealthHandler(s *scraper.Scraper) *HealthHandler {
	return &HealthHandler{scraper: s, startedAt: time.Now()}
}

// Handle serves GET /api/v1/health.
func (h *HealthHandler) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		PoolStats: h.scraper.Stats(),
		Version:   Version,
	})
}
