package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/npiharvest/cache"
	"github.com/use-agent/npiharvest/config"
	"github.com/use-agent/npiharvest/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Validation failures never reach the scraper, so a nil scraper is safe here.
func newValidationRouter() *gin.Engine {
	h := NewScrapeHandler(nil, cache.New(10), &config.Config{})
	r := gin.New()
	r.GET("/scrape", h.Handle)
	return r
}

func TestScrapeRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		query string
	}{
		{"missing-state", "location=Raleigh"},
		{"missing-location", "state=NC"},
		{"long-state", "state=NCX&location=Raleigh"},
		{"numeric-state", "state=12&location=Raleigh"},
		{"bad-engine", "state=NC&location=Raleigh&engine=selenium"},
		{"timeout-too-high", "state=NC&location=Raleigh&timeout=9999"},
	}

	r := newValidationRouter()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/scrape?"+tc.query, nil)
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestErrorToResponse(t *testing.T) {
	cases := []struct {
		code       string
		wantStatus int
	}{
		{models.ErrCodeInvalidInput, http.StatusBadRequest},
		{models.ErrCodeTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeChallengeTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeFetch, http.StatusBadGateway},
		{models.ErrCodeRunFailed, http.StatusBadGateway},
		{models.ErrCodeBrowserCrash, http.StatusInternalServerError},
		{models.ErrCodeRateLimited, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			status, detail := errorToResponse(models.NewScrapeError(tc.code, "boom", nil))
			if status != tc.wantStatus {
				t.Errorf("status = %d, want %d", status, tc.wantStatus)
			}
			if detail.Code != tc.code {
				t.Errorf("detail.Code = %q", detail.Code)
			}
		})
	}

	status, detail := errorToResponse(errors.New("plain error"))
	if status != http.StatusInternalServerError || detail.Code != models.ErrCodeInternal {
		t.Errorf("plain error mapped to %d/%s", status, detail.Code)
	}
}
