// Package handler implements the HTTP endpoints.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/npiharvest/cache"
	"github.com/use-agent/npiharvest/config"
	"github.com/use-agent/npiharvest/models"
	"github.com/use-agent/npiharvest/scraper"
)

// ScrapeHandler serves the synchronous single-query endpoint.
type ScrapeHandler struct {
	scraper *scraper.Scraper
	cache   *cache.ResultCache
	cfg     *config.Config
}

// NewScrapeHandler wires the handler.
func NewScrapeHandler(s *scraper.Scraper, rc *cache.ResultCache, cfg *config.Config) *ScrapeHandler {
	return &ScrapeHandler{scraper: s, cache: rc, cfg: cfg}
}

// Handle serves GET /api/v1/scrape/home-health.
func (h *ScrapeHandler) Handle(c *gin.Context) {
	start := time.Now()

	var req models.ScrapeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ScrapeResponse{
			Success: false,
			Error: &models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: err.Error(),
			},
			Timing: models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
		})
		return
	}
	req.Defaults()

	q := models.Query{
		State:    strings.ToUpper(req.State),
		Location: strings.TrimSpace(req.Location),
	}

	if req.MaxAge > 0 {
		maxAge := time.Duration(req.MaxAge) * time.Second
		if agencies, engineUsed, ok := h.cache.Get(q, req.Engine, maxAge); ok {
			c.JSON(http.StatusOK, models.ScrapeResponse{
				Success:     true,
				Agencies:    agencies,
				Count:       len(agencies),
				EngineUsed:  engineUsed,
				CacheStatus: "hit",
				Timing:      models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
			})
			return
		}
	}

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout > h.cfg.Registry.MaxRunTimeout {
		timeout = h.cfg.Registry.MaxRunTimeout
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	extractStart := time.Now()
	agencies, engineUsed, err := h.scraper.Extract(ctx, q, req.Engine)
	if err != nil {
		status, detail := errorToResponse(err)
		slog.Error("extraction failed",
			"state", q.State, "location", q.Location,
			"engine", req.Engine, "error", err)
		c.JSON(status, models.ScrapeResponse{
			Success: false,
			Error:   detail,
			Timing: models.TimingInfo{
				TotalMs:      time.Since(start).Milliseconds(),
				ExtractionMs: time.Since(extractStart).Milliseconds(),
			},
		})
		return
	}

	h.cache.Put(q, req.Engine, engineUsed, agencies)

	cacheStatus := ""
	if req.MaxAge > 0 {
		cacheStatus = "miss"
	}
	c.JSON(http.StatusOK, models.ScrapeResponse{
		Success:     true,
		Agencies:    agencies,
		Count:       len(agencies),
		EngineUsed:  engineUsed,
		CacheStatus: cacheStatus,
		Timing: models.TimingInfo{
			TotalMs:      time.Since(start).Milliseconds(),
			ExtractionMs: time.Since(extractStart).Milliseconds(),
		},
	})
}

// errorToResponse maps internal errors onto HTTP statuses and API details.
func errorToResponse(err error) (int, *models.ErrorDetail) {
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError, &models.ErrorDetail{
			Code:    models.ErrCodeInternal,
			Message: "internal error",
		}
	}

	switch se.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest, se.ToDetail()
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized, se.ToDetail()
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests, se.ToDetail()
	case models.ErrCodeTimeout, models.ErrCodeChallengeTimeout:
		return http.StatusGatewayTimeout, se.ToDetail()
	case models.ErrCodeFetch, models.ErrCodeRunFailed:
		return http.StatusBadGateway, se.ToDetail()
	default:
		return http.StatusInternalServerError, se.ToDetail()
	}
}
