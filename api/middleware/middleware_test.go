package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/npiharvest/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/scrape/home-health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doGet(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/scrape/home-health", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthOpenWhenDisabled(t *testing.T) {
	r := newRouter(Auth(config.AuthConfig{Enabled: false, APIKeys: []string{"k1"}}))
	if w := doGet(r, nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", w.Code)
	}

	r = newRouter(Auth(config.AuthConfig{Enabled: true}))
	if w := doGet(r, nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with no keys configured", w.Code)
	}
}

func TestAuthRejectsMissingOrInvalidKey(t *testing.T) {
	r := newRouter(Auth(config.AuthConfig{Enabled: true, APIKeys: []string{"k1"}}))

	if w := doGet(r, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want 401", w.Code)
	}
	if w := doGet(r, map[string]string{"X-API-Key": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("invalid key: status = %d, want 401", w.Code)
	}
}

func TestAuthAcceptsBothHeaderStyles(t *testing.T) {
	r := newRouter(Auth(config.AuthConfig{Enabled: true, APIKeys: []string{"k1"}}))

	if w := doGet(r, map[string]string{"X-API-Key": "k1"}); w.Code != http.StatusOK {
		t.Errorf("X-API-Key: status = %d, want 200", w.Code)
	}
	if w := doGet(r, map[string]string{"Authorization": "Bearer k1"}); w.Code != http.StatusOK {
		t.Errorf("Bearer: status = %d, want 200", w.Code)
	}
}

func TestRateLimitExhaustsBurst(t *testing.T) {
	// Zero refill rate: exactly the burst is admitted, then 429.
	r := newRouter(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0, Burst: 2}))

	for i := 0; i < 2; i++ {
		if w := doGet(r, nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}
	if w := doGet(r, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 after burst", w.Code)
	}
}

func TestRateLimitBucketsPerCaller(t *testing.T) {
	auth := Auth(config.AuthConfig{Enabled: true, APIKeys: []string{"k1", "k2"}})
	limit := RateLimit(config.RateLimitConfig{RequestsPerSecond: 0, Burst: 1})
	r := newRouter(auth, limit)

	if w := doGet(r, map[string]string{"X-API-Key": "k1"}); w.Code != http.StatusOK {
		t.Fatalf("k1 first: status = %d", w.Code)
	}
	if w := doGet(r, map[string]string{"X-API-Key": "k1"}); w.Code != http.StatusTooManyRequests {
		t.Errorf("k1 second: status = %d, want 429", w.Code)
	}
	// A different caller gets its own bucket.
	if w := doGet(r, map[string]string{"X-API-Key": "k2"}); w.Code != http.StatusOK {
		t.Errorf("k2 first: status = %d, want 200", w.Code)
	}
}
