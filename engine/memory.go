package engine

import (
	"sync"
	"time"
)

// hostEntry stores the engine that last succeeded for a host, with a TTL.
type hostEntry struct {
	engineName string
	expiresAt  time.Time
}

// Memory remembers which engine last produced a usable run for each host,
// so "auto" mode can skip straight past backends the site is known to block.
// Entries expire after the configured TTL and are pruned periodically.
type Memory struct {
	store sync.Map // host (string) -> *hostEntry
	ttl   time.Duration
	done  chan struct{}
}

// NewMemory creates a Memory with the given TTL and starts a background
// goroutine that prunes expired entries every hour.
func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Get returns the remembered engine name for a host, or "" if not found / expired.
func (m *Memory) Get(host string) string {
	val, ok := m.store.Load(host)
	if !ok {
		return ""
	}
	entry := val.(*hostEntry)
	if time.Now().After(entry.expiresAt) {
		m.store.Delete(host)
		return ""
	}
	return entry.engineName
}

// Set records which engine succeeded for a host.
func (m *Memory) Set(host, engineName string) {
	m.store.Store(host, &hostEntry{
		engineName: engineName,
		expiresAt:  time.Now().Add(m.ttl),
	})
}

// Delete removes the memory for a host (e.g. after the remembered engine fails).
func (m *Memory) Delete(host string) {
	m.store.Delete(host)
}

// Stop terminates the background cleanup goroutine.
func (m *Memory) Stop() {
	close(m.done)
}

// cleanupLoop runs every hour, deleting expired entries.
func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := time.Now()
			m.store.Range(func(key, value any) bool {
				entry := value.(*hostEntry)
				if now.After(entry.expiresAt) {
					m.store.Delete(key)
				}
				return true
			})
		}
	}
}
