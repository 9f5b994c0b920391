package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/npiharvest/config"
)

// callerLimiters hands out one token bucket per caller and forgets callers
// idle for an hour, so the map never grows with the key space.
type callerLimiters struct {
	mu      sync.Mutex
	buckets map[string]*callerBucket
	rps     rate.Limit
	burst   int
}

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newCallerLimiters(cfg config.RateLimitConfig) *callerLimiters {
	l := &callerLimiters{
		buckets: make(map[string]*callerBucket),
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
	}
	go l.evictLoop()
	return l
}

func (l *callerLimiters) allow(caller string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[caller]
	if !ok {
		b = &callerBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[caller] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

func (l *callerLimiters) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-time.Hour)
		l.mu.Lock()
		for caller, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, caller)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit enforces per-caller admission. Every accepted scrape request
// holds a fetch session for the whole run, so fairness between callers is
// decided here rather than inside the scraper. Identity is the API key set
// by Auth, falling back to client IP on open deployments.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiters := newCallerLimiters(cfg)

	return func(c *gin.Context) {
		caller := c.GetString(callerKey)
		if caller == "" {
			caller = c.ClientIP()
		}
		if !limiters.allow(caller) {
			reject(c, http.StatusTooManyRequests,
				"rate limit exceeded: runs are paced per caller, retry shortly")
			return
		}
		c.Next()
	}
}
