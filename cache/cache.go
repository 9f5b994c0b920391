// Package cache holds recent extraction results so repeated queries can be
// answered without another registry run.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/npiharvest/models"
)

type entry struct {
	agencies   []models.Agency
	engineUsed string
	storedAt   time.Time
}

// ResultCache maps (state, location, requested engine) to the agencies the
// last run produced. Freshness is decided per lookup: callers pass the max
// age they will accept, so one cache serves both aggressive and conservative
// clients.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
}

// New creates a cache bounded to maxEntries results.
func New(maxEntries int) *ResultCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &ResultCache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
	}
}

func key(q models.Query, engine string) string {
	return fmt.Sprintf("%s|%s|%s",
		strings.ToUpper(q.State),
		strings.ToLower(strings.TrimSpace(q.Location)),
		engine)
}

// Get returns a cached result no older than maxAge, along with the engine
// that produced it.
func (c *ResultCache) Get(q models.Query, engine string, maxAge time.Duration) ([]models.Agency, string, bool) {
	if maxAge <= 0 {
		return nil, "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key(q, engine)]
	if !ok {
		return nil, "", false
	}
	if time.Since(e.storedAt) > maxAge {
		delete(c.entries, key(q, engine))
		return nil, "", false
	}
	return e.agencies, e.engineUsed, true
}

// Put stores a run's result, evicting the oldest entry when full.
func (c *ResultCache) Put(q models.Query, engine, engineUsed string, agencies []models.Agency) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key(q, engine)] = &entry{
		agencies:   agencies,
		engineUsed: engineUsed,
		storedAt:   time.Now(),
	}
}

// Len reports the number of cached results.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResultCache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
