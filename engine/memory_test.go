package engine

import (
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory(time.Hour)
	defer m.Stop()

	if got := m.Get("npidb.org"); got != "" {
		t.Errorf("Get on empty memory = %q", got)
	}

	m.Set("npidb.org", "browser")
	if got := m.Get("npidb.org"); got != "browser" {
		t.Errorf("Get = %q, want browser", got)
	}

	m.Delete("npidb.org")
	if got := m.Get("npidb.org"); got != "" {
		t.Errorf("Get after Delete = %q", got)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(20 * time.Millisecond)
	defer m.Stop()

	m.Set("npidb.org", "http")
	time.Sleep(40 * time.Millisecond)
	if got := m.Get("npidb.org"); got != "" {
		t.Errorf("Get after TTL = %q, want empty", got)
	}
}
