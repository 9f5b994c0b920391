package cache

import (
	"testing"
	"time"

	"github.com/use-agent/npiharvest/models"
)

var q = models.Query{State: "NC", Location: "Raleigh"}

func TestCacheHitAndMiss(t *testing.T) {
	c := New(10)

	if _, _, ok := c.Get(q, "auto", time.Minute); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	agencies := []models.Agency{{AgencyName: "Acme Home Care", DetailURL: "https://npidb.org/x.aspx"}}
	c.Put(q, "auto", "http", agencies)

	got, engineUsed, ok := c.Get(q, "auto", time.Minute)
	if !ok {
		t.Fatal("expected a hit")
	}
	if engineUsed != "http" {
		t.Errorf("engineUsed = %q", engineUsed)
	}
	if len(got) != 1 || got[0].AgencyName != "Acme Home Care" {
		t.Errorf("got = %+v", got)
	}

	// Same query under a different engine mode is a different entry.
	if _, _, ok := c.Get(q, "browser", time.Minute); ok {
		t.Error("engine mode must be part of the cache key")
	}
}

func TestCacheKeyNormalization(t *testing.T) {
	c := New(10)
	c.Put(models.Query{State: "nc", Location: " Raleigh "}, "auto", "http", nil)

	if _, _, ok := c.Get(models.Query{State: "NC", Location: "raleigh"}, "auto", time.Minute); !ok {
		t.Error("lookups must be case- and whitespace-insensitive")
	}
}

func TestCacheMaxAge(t *testing.T) {
	c := New(10)
	c.Put(q, "auto", "http", nil)

	if _, _, ok := c.Get(q, "auto", 0); ok {
		t.Error("maxAge 0 must always miss")
	}
	time.Sleep(20 * time.Millisecond)
	if _, _, ok := c.Get(q, "auto", time.Millisecond); ok {
		t.Error("stale entry must miss")
	}
	// The stale lookup also evicts.
	if c.Len() != 0 {
		t.Errorf("Len = %d after stale eviction", c.Len())
	}
}

func TestCacheEviction(t *testing.T) {
	c := New(2)
	c.Put(models.Query{State: "NC", Location: "a"}, "auto", "http", nil)
	c.Put(models.Query{State: "NC", Location: "b"}, "auto", "http", nil)
	c.Put(models.Query{State: "NC", Location: "c"}, "auto", "http", nil)

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, _, ok := c.Get(models.Query{State: "NC", Location: "a"}, "auto", time.Minute); ok {
		t.Error("oldest entry should have been evicted")
	}
}
