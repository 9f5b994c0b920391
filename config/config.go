package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Registry  RegistryConfig
	Engine    EngineConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs across runs).
	MaxPages int // default: 10

	// DefaultProxy is the proxy URL used by both fetch backends.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// RegistryConfig describes the target registry site and the run policy
// against it.
type RegistryConfig struct {
	// Origin is the site root used to resolve relative detail links.
	Origin string // default: "https://npidb.org"

	// BaseURL is the listing base; the state path and location query are
	// appended per run.
	BaseURL string // default: Origin + "/organizations/agencies/" + TaxonomySegment

	// TaxonomySegment is the fixed path segment that identifies detail-page
	// links when falling back to generic anchor discovery.
	TaxonomySegment string // default: "home-health_251e00000x"

	// MaxListingPages is the hard pagination ceiling per run.
	MaxListingPages int // default: 100

	// ListingRetries is the total number of listing-load attempts before a
	// run is declared failed.
	ListingRetries int // default: 3

	// ChallengeMaxWait bounds the challenge-clear poll on listing pages.
	ChallengeMaxWait time.Duration // default: 10s

	// DetailChallengeMaxWait bounds the challenge-clear poll on detail pages.
	DetailChallengeMaxWait time.Duration // default: 8s

	// PageTimeout is the per-navigation deadline.
	PageTimeout time.Duration // default: 30s

	// RequestInterval is the minimum spacing between registry requests within
	// one run. A random jitter is added on top to avoid periodicity.
	RequestInterval time.Duration // default: 1s

	// MaxRunTimeout caps the client-supplied run timeout.
	MaxRunTimeout time.Duration // default: 600s
}

// EngineConfig controls fetch-backend selection.
type EngineConfig struct {
	// Default is the backend used when a request does not name one:
	// "auto", "http", or "browser".
	Default string // default: "auto"

	// MemoryTTL is how long a per-host "this engine worked" note is trusted.
	MemoryTTL time.Duration // default: 24h
}

// CacheConfig controls the extraction result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached query results.
	MaxEntries int // default: 500
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// WebhookConfig controls outgoing batch-completion notifications.
type WebhookConfig struct {
	// Secret signs webhook payloads (HMAC-SHA256). Empty disables signing.
	Secret string

	// Timeout bounds each delivery attempt.
	Timeout time.Duration // default: 10s
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	origin := envOr("NPIHARVEST_SITE_ORIGIN", "https://npidb.org")
	taxonomy := envOr("NPIHARVEST_TAXONOMY", "home-health_251e00000x")

	return &Config{
		Server: ServerConfig{
			Host: envOr("NPIHARVEST_HOST", "0.0.0.0"),
			Port: envIntOr("NPIHARVEST_PORT", 8080),
			Mode: envOr("NPIHARVEST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("NPIHARVEST_HEADLESS", true),
			MaxPages:     envIntOr("NPIHARVEST_MAX_PAGES", 10),
			DefaultProxy: os.Getenv("NPIHARVEST_PROXY"),
			NoSandbox:    envBoolOr("NPIHARVEST_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("NPIHARVEST_BROWSER_BIN"),
		},
		Registry: RegistryConfig{
			Origin:                 origin,
			BaseURL:                envOr("NPIHARVEST_BASE_URL", origin+"/organizations/agencies/"+taxonomy),
			TaxonomySegment:        taxonomy,
			MaxListingPages:        envIntOr("NPIHARVEST_MAX_LISTING_PAGES", 100),
			ListingRetries:         envIntOr("NPIHARVEST_LISTING_RETRIES", 3),
			ChallengeMaxWait:       envDurationOr("NPIHARVEST_CHALLENGE_WAIT", 10*time.Second),
			DetailChallengeMaxWait: envDurationOr("NPIHARVEST_DETAIL_CHALLENGE_WAIT", 8*time.Second),
			PageTimeout:            envDurationOr("NPIHARVEST_PAGE_TIMEOUT", 30*time.Second),
			RequestInterval:        envDurationOr("NPIHARVEST_REQUEST_INTERVAL", time.Second),
			MaxRunTimeout:          envDurationOr("NPIHARVEST_MAX_RUN_TIMEOUT", 600*time.Second),
		},
		Engine: EngineConfig{
			Default:   envOr("NPIHARVEST_ENGINE", "auto"),
			MemoryTTL: envDurationOr("NPIHARVEST_ENGINE_MEMORY_TTL", 24*time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("NPIHARVEST_AUTH_ENABLED", true),
			APIKeys: envSliceOr("NPIHARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("NPIHARVEST_RATE_RPS", 1.0),
			Burst:             envIntOr("NPIHARVEST_RATE_BURST", 3),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("NPIHARVEST_CACHE_MAX_ENTRIES", 500),
		},
		Webhook: WebhookConfig{
			Secret:  os.Getenv("NPIHARVEST_WEBHOOK_SECRET"),
			Timeout: envDurationOr("NPIHARVEST_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  envOr("NPIHARVEST_LOG_LEVEL", "info"),
			Format: envOr("NPIHARVEST_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
