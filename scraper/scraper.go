// Package scraper orchestrates extraction runs against the registry: it owns
// the shared browser, the fetch backends and the per-host engine memory, and
// exposes one entry point per (state, location) query.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/use-agent/npiharvest/config"
	"github.com/use-agent/npiharvest/engine"
	"github.com/use-agent/npiharvest/extract"
	"github.com/use-agent/npiharvest/models"
)

// Scraper is the extraction service. One instance is shared by all API
// requests; runs borrow sessions from the backends and return them when done.
type Scraper struct {
	cfg      *config.Config
	launcher *launcher.Launcher
	browser  *rod.Browser
	pool     rod.Pool[rod.Page]
	engines  map[string]engine.Engine
	memory   *engine.Memory
	site     extract.Site

	activeRuns atomic.Int64
}

// New launches the shared browser, builds both fetch backends and wires the
// engine memory. The browser is started eagerly so a broken Chrome install
// fails the process at startup instead of on the first request.
func New(cfg *config.Config) (*Scraper, error) {
	l := launcher.New().
		Headless(cfg.Browser.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-dev-shm-usage")
	if cfg.Browser.NoSandbox {
		l = l.NoSandbox(true)
	}
	if cfg.Browser.BrowserBin != "" {
		l = l.Bin(cfg.Browser.BrowserBin)
	}
	if cfg.Browser.DefaultProxy != "" {
		l = l.Proxy(cfg.Browser.DefaultProxy)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	pool := rod.NewPagePool(cfg.Browser.MaxPages)

	s := &Scraper{
		cfg:      cfg,
		launcher: l,
		browser:  browser,
		pool:     pool,
		memory:   engine.NewMemory(cfg.Engine.MemoryTTL),
		site: extract.Site{
			Origin:          cfg.Registry.Origin,
			TaxonomySegment: cfg.Registry.TaxonomySegment,
		},
	}
	s.engines = map[string]engine.Engine{
		"http": engine.NewHTTPEngine(cfg.Browser.DefaultProxy),
		"browser": engine.NewRodEngine(
			browser, pool,
			cfg.Registry.PageTimeout,
			cfg.Registry.DetailChallengeMaxWait,
		),
	}

	slog.Info("scraper initialized",
		"headless", cfg.Browser.Headless,
		"max_pages", cfg.Browser.MaxPages,
		"registry", cfg.Registry.Origin)
	return s, nil
}

// Extract runs one query with the named backend ("http", "browser") or with
// automatic selection ("auto" or empty). It returns the extracted agencies
// and the name of the backend that produced them.
func (s *Scraper) Extract(ctx context.Context, q models.Query, engineName string) ([]models.Agency, string, error) {
	s.activeRuns.Add(1)
	defer s.activeRuns.Add(-1)

	switch engineName {
	case "", "auto":
		return s.extractAuto(ctx, q)
	default:
		eng, ok := s.engines[engineName]
		if !ok {
			return nil, "", models.NewScrapeError(models.ErrCodeInvalidInput,
				fmt.Sprintf("unknown engine %q", engineName), nil)
		}
		agencies, err := s.runEngine(ctx, eng, q)
		return agencies, eng.Name(), err
	}
}

// extractAuto tries the cheap HTTP backend first and escalates to the
// rendered browser when it fails or comes back empty. A host the browser was
// last needed for skips the HTTP attempt until the memory entry expires.
func (s *Scraper) extractAuto(ctx context.Context, q models.Query) ([]models.Agency, string, error) {
	host := hostOf(s.cfg.Registry.Origin)

	order := []string{"http", "browser"}
	if s.memory.Get(host) == "browser" {
		order = []string{"browser"}
	}

	var (
		lastErr   error
		lastName  string
		emptyOK   bool
		emptyName string
	)
	for _, name := range order {
		agencies, err := s.runEngine(ctx, s.engines[name], q)
		if err == nil && len(agencies) > 0 {
			s.memory.Set(host, name)
			return agencies, name, nil
		}
		if err == nil {
			// Empty but clean: could be a location with no agencies, could
			// be silent blocking. Remember it and escalate once.
			emptyOK = true
			emptyName = name
			continue
		}
		if ctx.Err() != nil {
			// The run budget is spent; escalating would just fail slower.
			return nil, name, err
		}
		slog.Warn("engine failed, escalating", "engine", name, "error", err)
		lastErr = err
		lastName = name
	}

	if emptyOK {
		return []models.Agency{}, emptyName, nil
	}
	return nil, lastName, lastErr
}

// Stats reports session usage for the health endpoint.
func (s *Scraper) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:   s.cfg.Browser.MaxPages,
		ActiveRuns: int(s.activeRuns.Load()),
	}
}

// Close shuts down the engine memory and the shared browser.
func (s *Scraper) Close() {
	s.memory.Stop()
	if err := s.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	s.launcher.Cleanup()
}

func hostOf(origin string) string {
	if u, err := url.Parse(origin); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return origin
}
