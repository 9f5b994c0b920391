package engine

import (
	"context"
)

// Engine is a fetch backend that can open per-run sessions.
type Engine interface {
	// Name returns the backend identifier: "http" or "browser".
	Name() string

	// NewSession opens an isolated fetch session. The caller owns the
	// session and must Close it on every exit path.
	NewSession(ctx context.Context) (Session, error)
}

// Session is one run's private fetch surface. A session holds whatever
// state the backend needs between requests (browser tab, cookie jar) and
// is never shared between runs.
type Session interface {
	// Name returns the owning engine's identifier.
	Name() string

	// Fetch navigates the session's primary surface to the URL and returns
	// the rendered content. Used for listing pages.
	Fetch(ctx context.Context, url string) (*FetchResult, error)

	// FetchDetail retrieves a URL without disturbing the primary surface,
	// so the listing page's state survives detail-page enrichment.
	FetchDetail(ctx context.Context, url string) (*FetchResult, error)

	// Refresh re-reads the primary surface's current content without a new
	// navigation. Used after a challenge page clears.
	Refresh(ctx context.Context) (*FetchResult, error)

	// Title re-reads the primary surface's current title. On the browser
	// backend this is live; on the HTTP backend it re-requests the page.
	Title(ctx context.Context) (string, error)

	// Close releases all session resources. Safe to call more than once.
	Close()
}

// FetchResult is the rendered content of one fetched page.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	Engine     string
}
