package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/npiharvest/config"
	"github.com/use-agent/npiharvest/webhook"
)

func newBatchRouter() (*BatchHandler, *gin.Engine) {
	h := NewBatchHandler(nil, webhook.New("", time.Second), &config.Config{})
	r := gin.New()
	r.POST("/batch", h.Create)
	r.GET("/batch/:id", h.Status)
	return h, r
}

func TestBatchRejectsBadPayload(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not-json", "not json"},
		{"empty-queries", `{"queries":[]}`},
		{"missing-queries", `{}`},
		{"bad-state", `{"queries":[{"state":"NCX","location":"Raleigh"}]}`},
		{"missing-location", `{"queries":[{"state":"NC"}]}`},
		{"bad-webhook", `{"queries":[{"state":"NC","location":"Raleigh"}],"webhook_url":"not-a-url"}`},
	}

	_, r := newBatchRouter()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/batch", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestBatchStatusUnknownID(t *testing.T) {
	_, r := newBatchRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/batch/deadbeef", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
