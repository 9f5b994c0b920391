package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/npiharvest/config"
	"github.com/use-agent/npiharvest/models"
	"github.com/use-agent/npiharvest/scraper"
	"github.com/use-agent/npiharvest/webhook"
)

const (
	// batchConcurrency bounds simultaneous runs within one batch; the
	// registry tolerates very little parallelism before challenging.
	batchConcurrency = 2

	// jobRetention is how long finished jobs stay queryable.
	jobRetention = time.Hour
)

// BatchHandler serves the asynchronous multi-query endpoints. Jobs live in
// memory and expire after jobRetention.
type BatchHandler struct {
	scraper  *scraper.Scraper
	notifier *webhook.Notifier
	cfg      *config.Config

	jobs sync.Map // id (string) -> *jobState
}

type jobState struct {
	mu  sync.Mutex
	job models.BatchJob
}

// NewBatchHandler wires the handler and starts the job-expiry loop.
func NewBatchHandler(s *scraper.Scraper, n *webhook.Notifier, cfg *config.Config) *BatchHandler {
	h := &BatchHandler{scraper: s, notifier: n, cfg: cfg}
	go h.expiryLoop()
	return h
}

// Create serves POST /api/v1/scrape/home-health/batch. It validates the
// worklist, registers a job and returns immediately; the queries run in the
// background.
func (h *BatchHandler) Create(c *gin.Context) {
	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ScrapeResponse{
			Success: false,
			Error: &models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: err.Error(),
			},
		})
		return
	}
	if req.Options.Engine == "" {
		req.Options.Engine = h.cfg.Engine.Default
	}
	if req.Options.Timeout == 0 {
		req.Options.Timeout = 300
	}

	id := newJobID()
	state := &jobState{job: models.BatchJob{
		ID:        id,
		Status:    "processing",
		Total:     len(req.Queries),
		CreatedAt: time.Now().Unix(),
	}}
	h.jobs.Store(id, state)

	go h.process(id, state, req)

	c.JSON(http.StatusAccepted, models.BatchResponse{
		ID:     id,
		Status: "processing",
		Total:  len(req.Queries),
	})
}

// Status serves GET /api/v1/batch/:id.
func (h *BatchHandler) Status(c *gin.Context) {
	val, ok := h.jobs.Load(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ScrapeResponse{
			Success: false,
			Error: &models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: "batch job not found or expired",
			},
		})
		return
	}

	state := val.(*jobState)
	state.mu.Lock()
	resp := models.BatchStatusResponse{
		ID:        state.job.ID,
		Status:    state.job.Status,
		Completed: state.job.Completed,
		Total:     state.job.Total,
		Results:   append([]models.BatchResult(nil), state.job.Results...),
	}
	state.mu.Unlock()

	c.JSON(http.StatusOK, resp)
}

// process runs every query in the batch with bounded concurrency, recording
// per-query outcomes as they land. One failed query never sinks the batch.
func (h *BatchHandler) process(id string, state *jobState, req models.BatchRequest) {
	timeout := time.Duration(req.Options.Timeout) * time.Second
	if timeout > h.cfg.Registry.MaxRunTimeout {
		timeout = h.cfg.Registry.MaxRunTimeout
	}

	results := make([]models.BatchResult, len(req.Queries))
	sem := make(chan struct{}, batchConcurrency)
	var wg sync.WaitGroup

	for i, q := range req.Queries {
		wg.Add(1)
		go func(i int, q models.Query) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			q.State = strings.ToUpper(q.State)
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			agencies, _, err := h.scraper.Extract(ctx, q, req.Options.Engine)
			res := models.BatchResult{
				State:    q.State,
				Location: q.Location,
				Agencies: agencies,
			}
			if err != nil {
				_, detail := errorToResponse(err)
				res.Error = detail
				res.Agencies = nil
			}
			results[i] = res

			state.mu.Lock()
			state.job.Completed++
			state.mu.Unlock()
		}(i, q)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	status := "completed"
	switch {
	case failed == len(results):
		status = "failed"
	case failed > 0:
		status = "partial"
	}

	state.mu.Lock()
	state.job.Status = status
	state.job.Results = results
	completed := state.job.Completed
	state.mu.Unlock()

	slog.Info("batch finished", "id", id, "status", status,
		"total", len(results), "failed", failed)

	if req.WebhookURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := h.notifier.Send(ctx, req.WebhookURL, webhook.Event{
			Type:      "batch.completed",
			BatchID:   id,
			Status:    status,
			Total:     len(results),
			Completed: completed,
			Failed:    failed,
			Timestamp: time.Now().Unix(),
		}); err != nil {
			slog.Warn("batch webhook not delivered", "id", id, "error", err)
		}
	}
}

// expiryLoop evicts finished jobs older than jobRetention.
func (h *BatchHandler) expiryLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-jobRetention).Unix()
		h.jobs.Range(func(key, val any) bool {
			state := val.(*jobState)
			state.mu.Lock()
			expired := state.job.CreatedAt < cutoff && state.job.Status != "processing"
			state.mu.Unlock()
			if expired {
				h.jobs.Delete(key)
			}
			return true
		})
	}
}

func newJobID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:32]
	}
	return hex.EncodeToString(b)
}
