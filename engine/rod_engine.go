package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/npiharvest/models"
	"github.com/ysmood/gson"
)

// RodEngine is the rendered-browser backend. It shares one Chrome process
// across all runs; each session borrows a tab from the pool and prepares it
// with the full evasion set before any navigation.
type RodEngine struct {
	browser     *rod.Browser
	pool        rod.Pool[rod.Page]
	pageTimeout time.Duration
	detailWait  time.Duration
}

// NewRodEngine wraps an already-connected browser and its page pool.
// detailWait bounds the challenge poll performed inside detail-page fetches.
func NewRodEngine(browser *rod.Browser, pool rod.Pool[rod.Page], pageTimeout, detailWait time.Duration) *RodEngine {
	return &RodEngine{
		browser:     browser,
		pool:        pool,
		pageTimeout: pageTimeout,
		detailWait:  detailWait,
	}
}

func (e *RodEngine) Name() string { return "browser" }

// NewSession borrows a tab from the pool and installs the evasion scripts
// and the resource-blocking router on it.
func (e *RodEngine) NewSession(ctx context.Context) (Session, error) {
	page, err := e.pool.Get(func() (*rod.Page, error) {
		return e.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", err)
	}

	sess := &rodSession{eng: e, page: page, ua: randomUA()}
	if err := sess.preparePage(page); err != nil {
		// Evasion is best-effort: a page that rejects init scripts can still
		// navigate, it just stands out more.
		slog.Warn("evasion setup incomplete, proceeding", "error", err)
	}
	sess.router = setupHijack(page)

	return sess, nil
}

// rodSession owns one pooled tab (the listing surface). Detail pages open
// in short-lived extra tabs so the listing's DOM state is never lost.
type rodSession struct {
	eng       *RodEngine
	page      *rod.Page
	router    *rod.HijackRouter
	ua        string
	closeOnce sync.Once
}

func (s *rodSession) Name() string { return "browser" }

func (s *rodSession) Fetch(ctx context.Context, target string) (*FetchResult, error) {
	// Human-like pause before navigating.
	if !sleepJitter(ctx, 500*time.Millisecond, 1500*time.Millisecond) {
		return nil, categorize(ctx.Err(), "navigation canceled")
	}

	s.setHeaders(s.page, target)

	navCtx, cancel := context.WithTimeout(ctx, s.eng.pageTimeout)
	defer cancel()
	p := s.page.Context(navCtx)

	if err := p.Navigate(target); err != nil {
		return nil, categorize(err, "navigation to listing page failed")
	}
	settle(p)

	return snapshot(p, target), nil
}

// FetchDetail opens a fresh tab, rides out any challenge interstitial on it,
// extracts the content and closes the tab.
func (s *rodSession) FetchDetail(ctx context.Context, target string) (*FetchResult, error) {
	page, err := s.eng.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open detail tab", err)
	}
	defer func() { _ = page.Close() }()

	if err := s.preparePage(page); err != nil {
		slog.Debug("detail tab evasion setup incomplete", "error", err)
	}
	router := setupHijack(page)
	defer func() { _ = router.Stop() }()
	s.setHeaders(page, target)

	if !sleepJitter(ctx, 300*time.Millisecond, 800*time.Millisecond) {
		return nil, categorize(ctx.Err(), "detail fetch canceled")
	}

	navCtx, cancel := context.WithTimeout(ctx, s.eng.pageTimeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(target); err != nil {
		return nil, categorize(err, "navigation to detail page failed")
	}
	settle(p)

	if res := snapshot(p, target); !IsChallenge(res.Title) {
		return res, nil
	}

	// Challenge interstitial on the detail tab: poll its live title, then
	// take a fresh snapshot whether or not it cleared.
	AwaitChallengeClear(ctx, func(c context.Context) (string, error) {
		return liveTitle(page.Context(c))
	}, s.eng.detailWait)

	return snapshot(p, target), nil
}

func (s *rodSession) Refresh(ctx context.Context) (*FetchResult, error) {
	p := s.page.Context(ctx)
	info, err := p.Info()
	if err != nil {
		return nil, categorize(err, "failed to read page state")
	}
	return snapshot(p, info.URL), nil
}

func (s *rodSession) Title(ctx context.Context) (string, error) {
	return liveTitle(s.page.Context(ctx))
}

// Close returns the tab to the pool after parking it on about:blank, which
// both releases the listing DOM and keeps the pooled tab reusable.
func (s *rodSession) Close() {
	s.closeOnce.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		if err := s.page.Navigate("about:blank"); err != nil {
			slog.Warn("session cleanup: failed to navigate to about:blank", "error", err)
		}
		s.eng.pool.Put(s.page)
	})
}

// preparePage installs evasions and the session's browser identity on a tab.
func (s *rodSession) preparePage(page *rod.Page) error {
	if err := applyEvasions(page); err != nil {
		return err
	}
	return page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.ua,
		AcceptLanguage: "en-US,en;q=0.9",
	})
}

// setHeaders adds browser-typical headers plus a search-engine Referer for
// the target's host. Best-effort.
func (s *rodSession) setHeaders(page *rod.Page, target string) {
	headers := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	}
	if u, err := url.Parse(target); err == nil {
		headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
	}
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: m}.Call(page)
}

// settle waits for the DOM to stop mutating; non-convergence is not fatal,
// the current DOM is still inspectable.
func settle(p *rod.Page) {
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	// Small scroll nudge: looks human and triggers lazy-loaded rows.
	_ = p.Mouse.Scroll(0, 120, 2)
}

// snapshot extracts the rendered HTML, title and final URL from the page.
func snapshot(p *rod.Page, requested string) *FetchResult {
	htmlStr, err := p.HTML()
	if err != nil {
		slog.Debug("failed to read page HTML", "error", err)
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = requested
	}

	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	return &FetchResult{
		HTML:       htmlStr,
		Title:      title,
		StatusCode: statusCode,
		FinalURL:   finalURL,
		Engine:     "browser",
	}
}

func liveTitle(p *rod.Page) (string, error) {
	res, err := p.Eval(`() => document.title`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// categorize wraps raw errors into typed ScrapeErrors.
func categorize(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeFetch, msg, err)
	}
}
