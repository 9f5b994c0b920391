package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/npiharvest/engine"
	"github.com/use-agent/npiharvest/extract"
	"github.com/use-agent/npiharvest/models"
)

// sessionLostMarkers are error signatures that mean the fetch surface itself
// died mid-run (tab crash, browser restart, dropped connection). These runs
// are retried from the top with a fresh session; anything else fails fast.
var sessionLostMarkers = []string{
	"target page, context or browser has been closed",
	"target closed",
	"session closed",
	"browser has been closed",
	"connection reset",
	"broken pipe",
	"EOF",
}

func isSessionLost(err error) bool {
	var se *models.ScrapeError
	if errors.As(err, &se) && se.Code == models.ErrCodeBrowserCrash {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range sessionLostMarkers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// retryBackoffBase paces run retries after session loss; each such attempt
// waits a growing, jittered multiple of it so retries don't land in lockstep.
var retryBackoffBase = 2 * time.Second

// runEngine executes one query on one backend. Any listing-level failure is
// retried up to ListingRetries total attempts, each on a fresh session; a
// lost session additionally earns a backoff sleep before the next attempt.
// Only an exhausted run budget cuts the loop short.
func (s *Scraper) runEngine(ctx context.Context, eng engine.Engine, q models.Query) ([]models.Agency, error) {
	listURL := s.listingURL(q)
	retries := s.cfg.Registry.ListingRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	sessionLost := false
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 && sessionLost {
			backoff := time.Duration(attempt-1) * (retryBackoffBase + time.Duration(rand.Int63n(int64(retryBackoffBase))))
			slog.Info("backing off after session loss", "engine", eng.Name(), "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, models.NewScrapeError(models.ErrCodeTimeout, "run canceled during retry backoff", ctx.Err())
			case <-time.After(backoff):
			}
		}

		sess, err := eng.NewSession(ctx)
		if err != nil {
			lastErr = err
			sessionLost = true
			continue
		}

		agencies, err := s.harvest(ctx, sess, q, listURL)
		sess.Close()
		if err == nil {
			return agencies, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			// Retrying a spent budget would just fail slower.
			return nil, err
		}
		sessionLost = isSessionLost(err)
		slog.Warn("run attempt failed", "engine", eng.Name(), "attempt", attempt,
			"session_lost", sessionLost, "error", err)
	}

	return nil, models.NewScrapeError(models.ErrCodeRunFailed,
		fmt.Sprintf("run failed after %d attempts", retries), lastErr)
}

// harvest walks the listing pages for one query on an established session:
// load listing, ride out any challenge, locate rows, fetch each new detail
// page, follow the next-page link, repeat up to the pagination ceiling.
func (s *Scraper) harvest(ctx context.Context, sess engine.Session, q models.Query, listURL string) ([]models.Agency, error) {
	limiter := rate.NewLimiter(rate.Every(s.cfg.Registry.RequestInterval), 1)

	res, err := sess.Fetch(ctx, listURL)
	if err != nil {
		return nil, err
	}
	res, err = s.clearChallenge(ctx, sess, res)
	if err != nil {
		return nil, err
	}

	agencies := make([]models.Agency, 0, 32)
	seen := make(map[string]struct{})

	for pageNum := 1; ; pageNum++ {
		doc, err := extract.ParseDocument(res.HTML, res.Title, res.FinalURL)
		if err != nil {
			return agencies, models.NewScrapeError(models.ErrCodeFetch, "listing page is not parseable HTML", err)
		}

		rows := extract.LocateRecords(doc, s.site)
		slog.Info("listing page processed",
			"engine", sess.Name(), "state", q.State, "location", q.Location,
			"page", pageNum, "rows", len(rows))

		for _, row := range rows {
			sum, ok := extract.ExtractSummary(row, doc, s.site)
			if !ok {
				continue
			}
			if _, dup := seen[sum.DetailURL]; dup {
				continue
			}
			seen[sum.DetailURL] = struct{}{}

			if err := limiter.Wait(ctx); err != nil {
				return agencies, models.NewScrapeError(models.ErrCodeTimeout, "run budget exhausted", err)
			}
			agencies = append(agencies, s.fetchDetail(ctx, sess, sum, q))
		}

		if pageNum >= s.cfg.Registry.MaxListingPages {
			slog.Warn("pagination ceiling reached", "page", pageNum)
			break
		}
		nextURL, ok := extract.NextPageURL(doc, pageNum)
		if !ok {
			break
		}

		if err := limiter.Wait(ctx); err != nil {
			return agencies, models.NewScrapeError(models.ErrCodeTimeout, "run budget exhausted", err)
		}
		next, err := sess.Fetch(ctx, nextURL)
		if err != nil {
			if isSessionLost(err) || ctx.Err() != nil {
				return agencies, err
			}
			// A dead next-page link ends pagination but keeps the harvest.
			slog.Warn("next page fetch failed, stopping pagination", "url", nextURL, "error", err)
			break
		}
		next, err = s.clearChallenge(ctx, sess, next)
		if err != nil {
			return agencies, err
		}
		res = next
	}

	return agencies, nil
}

// clearChallenge inspects a fetched listing page for the anti-bot
// interstitial and, when present, polls until it clears and re-reads the
// page. The wait is best-effort: a challenge that outlives the budget is
// logged and the run proceeds with the content at hand, where the locator
// simply finds no rows on interstitial markup.
func (s *Scraper) clearChallenge(ctx context.Context, sess engine.Session, res *engine.FetchResult) (*engine.FetchResult, error) {
	if !engine.IsChallenge(res.Title) {
		return res, nil
	}

	slog.Info("challenge interstitial detected", "engine", sess.Name(), "url", res.FinalURL)
	if !engine.AwaitChallengeClear(ctx, sess.Title, s.cfg.Registry.ChallengeMaxWait) {
		slog.Warn("challenge did not clear within wait budget, proceeding with current content",
			"engine", sess.Name(), "url", res.FinalURL)
		return res, nil
	}

	cleared, err := sess.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if engine.IsChallenge(cleared.Title) {
		slog.Warn("challenge page persisted after clearing wait, proceeding with current content",
			"engine", sess.Name(), "url", cleared.FinalURL)
	}
	return cleared, nil
}

// fetchDetail enriches one summary from its detail page. Failures degrade to
// a partial record built from the listing row alone; a single broken detail
// page never aborts the run.
func (s *Scraper) fetchDetail(ctx context.Context, sess engine.Session, sum extract.Summary, q models.Query) models.Agency {
	res, err := sess.FetchDetail(ctx, sum.DetailURL)
	if err != nil {
		slog.Warn("detail fetch failed, emitting partial record", "url", sum.DetailURL, "error", err)
		return extract.PartialFromSummary(sum, q)
	}
	if engine.IsChallenge(res.Title) {
		slog.Warn("detail page stuck on challenge, emitting partial record", "url", sum.DetailURL)
		return extract.PartialFromSummary(sum, q)
	}

	doc, err := extract.ParseDocument(res.HTML, res.Title, res.FinalURL)
	if err != nil {
		slog.Warn("detail page is not parseable HTML, emitting partial record", "url", sum.DetailURL, "error", err)
		return extract.PartialFromSummary(sum, q)
	}
	return extract.EnrichFromDetail(doc, sum, q)
}

// listingURL builds the first listing page for a query: lowercase state as a
// path segment, location as a form-encoded query value.
func (s *Scraper) listingURL(q models.Query) string {
	return fmt.Sprintf("%s/%s/?location=%s",
		strings.TrimSuffix(s.cfg.Registry.BaseURL, "/"),
		strings.ToLower(q.State),
		url.QueryEscape(q.Location))
}
