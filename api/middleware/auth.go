// Package middleware holds the request-admission layer: who may trigger
// registry runs, and how fast.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/npiharvest/config"
	"github.com/use-agent/npiharvest/models"
)

// callerKey is the gin context key the authenticated caller identity is
// stored under. Rate limiting keys its buckets on it.
const callerKey = "caller"

// Auth guards the scrape endpoints with static API keys, sent as either
// "X-API-Key: <key>" or "Authorization: Bearer <key>". With auth disabled or
// no keys configured the service runs open (the local-dev default).
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	if !cfg.Enabled || len(cfg.APIKeys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		key := requestKey(c)
		if key == "" {
			reject(c, http.StatusUnauthorized,
				"missing API key: send X-API-Key or Authorization: Bearer <key>")
			return
		}
		if _, ok := keys[key]; !ok {
			reject(c, http.StatusUnauthorized, "invalid API key")
			return
		}
		c.Set(callerKey, key)
		c.Next()
	}
}

func requestKey(c *gin.Context) string {
	if k := c.GetHeader("X-API-Key"); k != "" {
		return k
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// reject aborts with the same error envelope the handlers emit.
func reject(c *gin.Context, status int, msg string) {
	code := models.ErrCodeUnauthorized
	if status == http.StatusTooManyRequests {
		code = models.ErrCodeRateLimited
	}
	c.AbortWithStatusJSON(status, models.ScrapeResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: msg},
	})
}
