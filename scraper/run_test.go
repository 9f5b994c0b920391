package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/use-agent/npiharvest/config"
	"github.com/use-agent/npiharvest/engine"
	"github.com/use-agent/npiharvest/extract"
	"github.com/use-agent/npiharvest/models"
)

const (
	testBase    = "https://npidb.org/organizations/agencies/home-health_251e00000x"
	testListing = testBase + "/nc/?location=Raleigh"
)

var testQuery = models.Query{State: "NC", Location: "Raleigh"}

func testConfig() *config.Config {
	return &config.Config{
		Browser: config.BrowserConfig{MaxPages: 2},
		Registry: config.RegistryConfig{
			Origin:                 "https://npidb.org",
			BaseURL:                testBase,
			TaxonomySegment:        "home-health_251e00000x",
			MaxListingPages:        100,
			ListingRetries:         3,
			ChallengeMaxWait:       3 * time.Second,
			DetailChallengeMaxWait: time.Second,
			PageTimeout:            5 * time.Second,
			RequestInterval:        0,
			MaxRunTimeout:          30 * time.Second,
		},
		Engine: config.EngineConfig{Default: "auto", MemoryTTL: time.Hour},
	}
}

func testScraper(cfg *config.Config) *Scraper {
	return &Scraper{
		cfg: cfg,
		site: extract.Site{
			Origin:          cfg.Registry.Origin,
			TaxonomySegment: cfg.Registry.TaxonomySegment,
		},
	}
}

// stubSession serves canned pages from maps and records what was fetched.
type stubSession struct {
	listings  map[string]*engine.FetchResult
	listErr   map[string]error
	details   map[string]*engine.FetchResult
	detailErr map[string]error
	titleFn   func() string
	refreshFn func() (*engine.FetchResult, error)

	fetched []string
	closed  bool
}

func (s *stubSession) Name() string { return "stub" }

func (s *stubSession) Fetch(_ context.Context, u string) (*engine.FetchResult, error) {
	s.fetched = append(s.fetched, u)
	if err := s.listErr[u]; err != nil {
		return nil, err
	}
	res, ok := s.listings[u]
	if !ok {
		return nil, fmt.Errorf("unexpected listing fetch: %s", u)
	}
	return res, nil
}

func (s *stubSession) FetchDetail(_ context.Context, u string) (*engine.FetchResult, error) {
	if err := s.detailErr[u]; err != nil {
		return nil, err
	}
	res, ok := s.details[u]
	if !ok {
		return nil, fmt.Errorf("unexpected detail fetch: %s", u)
	}
	return res, nil
}

func (s *stubSession) Refresh(_ context.Context) (*engine.FetchResult, error) {
	if s.refreshFn != nil {
		return s.refreshFn()
	}
	return nil, errors.New("refresh not stubbed")
}

func (s *stubSession) Title(_ context.Context) (string, error) {
	if s.titleFn != nil {
		return s.titleFn(), nil
	}
	return "", nil
}

func (s *stubSession) Close() { s.closed = true }

// stubEngine hands out a fixed sequence of sessions.
type stubEngine struct {
	sessions []engine.Session
	idx      int
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) NewSession(context.Context) (engine.Session, error) {
	if e.idx >= len(e.sessions) {
		return nil, errors.New("no more stub sessions")
	}
	s := e.sessions[e.idx]
	e.idx++
	return s, nil
}

func listingPage(finalURL, rows, pager string) *engine.FetchResult {
	return &engine.FetchResult{
		HTML: `<html><head><title>Home Health Agencies</title></head><body><table>
			<tr><th>Name</th><th>NPI</th><th>Address</th></tr>` + rows + `</table>` + pager + `</body></html>`,
		Title:    "Home Health Agencies",
		FinalURL: finalURL,
		Engine:   "stub",
	}
}

func listingRow(slug, name, phone, cityStateZip string) string {
	return fmt.Sprintf(
		`<tr><td><a href="/organizations/agencies/home-health_251e00000x/%s.aspx">%s</a></td><td>%s</td><td>%s</td></tr>`,
		slug, name, phone, cityStateZip)
}

func detailPage(u, npi, name string) *engine.FetchResult {
	return &engine.FetchResult{
		HTML: fmt.Sprintf(`<html><body><h1>NPI %s - %s</h1>
			<div>NPI: %s</div>
			<div>Enumeration Date: 05/12/2008</div>
			<div>Address: 123 Main St, Raleigh, NC 27601</div>
			<div>Phone: (919) 555-0100</div>
			<div>Authorized Official: Jane Smith</div>
			<div>Title: Administrator</div></body></html>`, npi, name, npi),
		Title:    fmt.Sprintf("NPI %s - %s", npi, name),
		FinalURL: u,
		Engine:   "stub",
	}
}

func detailURLFor(slug string) string {
	return "https://npidb.org/organizations/agencies/home-health_251e00000x/" + slug + ".aspx"
}

func TestHarvestPaginatesAndDeduplicates(t *testing.T) {
	page2URL := testListing + "&page=2"

	// Page 2 repeats the acme row; the duplicate must be dropped.
	sess := &stubSession{
		listings: map[string]*engine.FetchResult{
			testListing: listingPage(testListing,
				listingRow("acme-1", "Acme Home Care", "(919) 555-0100", "Raleigh, NC 27601")+
					listingRow("bright-2", "BrightPath Nursing", "(919) 555-0200", "Raleigh, NC 27603"),
				`<a href="?location=Raleigh&page=2">Next</a>`),
			page2URL: listingPage(page2URL,
				listingRow("caring-3", "Caring Hands LLC", "(919) 555-0300", "Cary, NC 27511")+
					listingRow("acme-1", "Acme Home Care", "(919) 555-0100", "Raleigh, NC 27601"),
				`<a href="#" class="disabled">Next</a>`),
		},
		details: map[string]*engine.FetchResult{
			detailURLFor("acme-1"):   detailPage(detailURLFor("acme-1"), "1234567890", "Acme Home Care"),
			detailURLFor("bright-2"): detailPage(detailURLFor("bright-2"), "2345678901", "BrightPath Nursing"),
			detailURLFor("caring-3"): detailPage(detailURLFor("caring-3"), "3456789012", "Caring Hands LLC"),
		},
	}
	eng := &stubEngine{sessions: []engine.Session{sess}}

	agencies, err := testScraper(testConfig()).runEngine(context.Background(), eng, testQuery)
	if err != nil {
		t.Fatalf("runEngine: %v", err)
	}
	if len(agencies) != 3 {
		t.Fatalf("got %d agencies, want 3", len(agencies))
	}
	wantNPIs := []string{"1234567890", "2345678901", "3456789012"}
	for i, want := range wantNPIs {
		if agencies[i].NPI != want {
			t.Errorf("agencies[%d].NPI = %q, want %q", i, agencies[i].NPI, want)
		}
		if agencies[i].SourceState != "NC" || agencies[i].SourceLocation != "Raleigh" {
			t.Errorf("agencies[%d] source = %q/%q", i, agencies[i].SourceState, agencies[i].SourceLocation)
		}
	}
	if !sess.closed {
		t.Error("session was not closed")
	}
}

func TestHarvestStopsAtPaginationCeiling(t *testing.T) {
	cfg := testConfig() // ceiling stays at the default 100

	// 150 listing pages, each advertising another next page. The run must
	// stop advancing at page 100.
	listings := make(map[string]*engine.FetchResult)
	details := make(map[string]*engine.FetchResult)
	for p := 1; p <= 150; p++ {
		u := testListing
		if p > 1 {
			u = fmt.Sprintf("%s&page=%d", testListing, p)
		}
		slug := fmt.Sprintf("agency-%d", p)
		listings[u] = listingPage(u,
			listingRow(slug, fmt.Sprintf("Agency %d", p), "(919) 555-0100", "Raleigh, NC 27601"),
			fmt.Sprintf(`<a href="?location=Raleigh&page=%d">Next</a>`, p+1))
		details[detailURLFor(slug)] = detailPage(detailURLFor(slug), "1234567890", fmt.Sprintf("Agency %d", p))
	}
	sess := &stubSession{listings: listings, details: details}
	eng := &stubEngine{sessions: []engine.Session{sess}}

	agencies, err := testScraper(cfg).runEngine(context.Background(), eng, testQuery)
	if err != nil {
		t.Fatalf("runEngine: %v", err)
	}
	if len(agencies) != 100 {
		t.Fatalf("got %d agencies, want 100 (one per page up to the ceiling)", len(agencies))
	}
	if got := len(sess.fetched); got != 100 {
		t.Errorf("fetched %d listing pages, want 100", got)
	}
}

func TestDetailFailureYieldsPartialRecord(t *testing.T) {
	sess := &stubSession{
		listings: map[string]*engine.FetchResult{
			testListing: listingPage(testListing,
				listingRow("acme-1", "Acme Home Care", "(919) 555-0100", "Raleigh, NC 27601"),
				""),
		},
		detailErr: map[string]error{
			detailURLFor("acme-1"): errors.New("net::ERR_CONNECTION_CLOSED"),
		},
	}
	eng := &stubEngine{sessions: []engine.Session{sess}}

	agencies, err := testScraper(testConfig()).runEngine(context.Background(), eng, testQuery)
	if err != nil {
		t.Fatalf("runEngine: %v", err)
	}
	if len(agencies) != 1 {
		t.Fatalf("got %d agencies, want 1", len(agencies))
	}
	rec := agencies[0]
	if rec.AgencyName != "Acme Home Care" {
		t.Errorf("AgencyName = %q", rec.AgencyName)
	}
	if rec.NPI != "" || rec.EnumerationDate != "" {
		t.Errorf("detail-only fields must be empty on partial record, got NPI=%q date=%q", rec.NPI, rec.EnumerationDate)
	}
	if rec.DetailURL != detailURLFor("acme-1") {
		t.Errorf("DetailURL = %q", rec.DetailURL)
	}
}

func TestRunRetriesAfterSessionLoss(t *testing.T) {
	old := retryBackoffBase
	retryBackoffBase = 10 * time.Millisecond
	defer func() { retryBackoffBase = old }()

	dead := &stubSession{
		listErr: map[string]error{
			testListing: errors.New("Target page, context or browser has been closed"),
		},
	}
	healthy := &stubSession{
		listings: map[string]*engine.FetchResult{
			testListing: listingPage(testListing,
				listingRow("acme-1", "Acme Home Care", "(919) 555-0100", "Raleigh, NC 27601"),
				""),
		},
		details: map[string]*engine.FetchResult{
			detailURLFor("acme-1"): detailPage(detailURLFor("acme-1"), "1234567890", "Acme Home Care"),
		},
	}
	eng := &stubEngine{sessions: []engine.Session{dead, healthy}}

	agencies, err := testScraper(testConfig()).runEngine(context.Background(), eng, testQuery)
	if err != nil {
		t.Fatalf("runEngine: %v", err)
	}
	if len(agencies) != 1 {
		t.Fatalf("got %d agencies, want 1", len(agencies))
	}
	if !dead.closed {
		t.Error("dead session was not closed before the retry")
	}
}

func TestRunFailsAfterRetriesExhausted(t *testing.T) {
	old := retryBackoffBase
	retryBackoffBase = 10 * time.Millisecond
	defer func() { retryBackoffBase = old }()

	mk := func() engine.Session {
		return &stubSession{
			listErr: map[string]error{
				testListing: errors.New("target closed"),
			},
		}
	}
	eng := &stubEngine{sessions: []engine.Session{mk(), mk(), mk()}}

	_, err := testScraper(testConfig()).runEngine(context.Background(), eng, testQuery)
	var se *models.ScrapeError
	if !errors.As(err, &se) || se.Code != models.ErrCodeRunFailed {
		t.Fatalf("err = %v, want %s", err, models.ErrCodeRunFailed)
	}
	if eng.idx != 3 {
		t.Errorf("used %d sessions, want 3", eng.idx)
	}
}

func TestChallengeClearsBeforeExtraction(t *testing.T) {
	real := listingPage(testListing,
		listingRow("acme-1", "Acme Home Care", "(919) 555-0100", "Raleigh, NC 27601"),
		"")

	sess := &stubSession{
		listings: map[string]*engine.FetchResult{
			testListing: {
				HTML:     `<html><head><title>Just a moment...</title></head><body>Checking your browser</body></html>`,
				Title:    "Just a moment...",
				FinalURL: testListing,
				Engine:   "stub",
			},
		},
		titleFn:   func() string { return "Home Health Agencies" },
		refreshFn: func() (*engine.FetchResult, error) { return real, nil },
	}
	sess.details = map[string]*engine.FetchResult{
		detailURLFor("acme-1"): detailPage(detailURLFor("acme-1"), "1234567890", "Acme Home Care"),
	}
	eng := &stubEngine{sessions: []engine.Session{sess}}

	agencies, err := testScraper(testConfig()).runEngine(context.Background(), eng, testQuery)
	if err != nil {
		t.Fatalf("runEngine: %v", err)
	}
	if len(agencies) != 1 || agencies[0].NPI != "1234567890" {
		t.Fatalf("agencies = %+v, want the record behind the interstitial", agencies)
	}
}

func TestChallengeThatNeverClearsProceedsBestEffort(t *testing.T) {
	cfg := testConfig()
	cfg.Registry.ChallengeMaxWait = 1200 * time.Millisecond
	cfg.Registry.ListingRetries = 1

	// Interstitial title that never clears, but the body already carries
	// parseable rows. The run waits out the budget, logs and extracts what
	// is there instead of failing.
	stuck := listingPage(testListing,
		listingRow("acme-1", "Acme Home Care", "(919) 555-0100", "Raleigh, NC 27601")+
			listingRow("bright-2", "BrightPath Nursing", "(919) 555-0200", "Raleigh, NC 27603"),
		"")
	stuck.Title = "Just a moment..."

	sess := &stubSession{
		listings: map[string]*engine.FetchResult{testListing: stuck},
		details: map[string]*engine.FetchResult{
			detailURLFor("acme-1"):   detailPage(detailURLFor("acme-1"), "1234567890", "Acme Home Care"),
			detailURLFor("bright-2"): detailPage(detailURLFor("bright-2"), "2345678901", "BrightPath Nursing"),
		},
		titleFn: func() string { return "Just a moment..." },
	}
	eng := &stubEngine{sessions: []engine.Session{sess}}

	agencies, err := testScraper(cfg).runEngine(context.Background(), eng, testQuery)
	if err != nil {
		t.Fatalf("runEngine: %v (a stuck challenge must not fail the run)", err)
	}
	if len(agencies) != 2 {
		t.Fatalf("got %d agencies, want 2 from the content behind the interstitial title", len(agencies))
	}
}

func TestRunRetriesTransientFetchError(t *testing.T) {
	old := retryBackoffBase
	retryBackoffBase = 10 * time.Millisecond
	defer func() { retryBackoffBase = old }()

	// A fetch error with no session-loss signature still gets the remaining
	// listing attempts, just without the loss backoff.
	flaky := &stubSession{
		listErr: map[string]error{
			testListing: errors.New("net::ERR_TIMED_OUT navigating to listing"),
		},
	}
	healthy := &stubSession{
		listings: map[string]*engine.FetchResult{
			testListing: listingPage(testListing,
				listingRow("acme-1", "Acme Home Care", "(919) 555-0100", "Raleigh, NC 27601"),
				""),
		},
		details: map[string]*engine.FetchResult{
			detailURLFor("acme-1"): detailPage(detailURLFor("acme-1"), "1234567890", "Acme Home Care"),
		},
	}
	eng := &stubEngine{sessions: []engine.Session{flaky, healthy}}

	agencies, err := testScraper(testConfig()).runEngine(context.Background(), eng, testQuery)
	if err != nil {
		t.Fatalf("runEngine: %v (transient listing errors must be retried)", err)
	}
	if len(agencies) != 1 {
		t.Fatalf("got %d agencies, want 1", len(agencies))
	}
	if !flaky.closed {
		t.Error("flaky session was not closed before the retry")
	}
}

func TestListingURL(t *testing.T) {
	s := testScraper(testConfig())
	got := s.listingURL(models.Query{State: "NC", Location: "Winston Salem"})
	want := testBase + "/nc/?location=Winston+Salem"
	if got != want {
		t.Errorf("listingURL = %q, want %q", got, want)
	}
}
