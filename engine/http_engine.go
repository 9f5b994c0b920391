package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/npiharvest/models"
	"golang.org/x/net/html"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		// Fallback: if spec generation fails, connections apply HelloChrome_Auto
		// as-is. (Should never happen with a valid utls version.)
		return
	}
	// Replace h2 with http/1.1 only in the ALPN extension so the server
	// never negotiates HTTP/2 (which Go's http.Transport cannot handle
	// over a utls connection).
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTPEngine is the lightweight backend: plain requests carrying a real
// Chrome TLS fingerprint and header set. No JavaScript is executed, so a
// challenge page either clears server-side (cookie issued on retry) or the
// run escalates to the browser backend.
type HTTPEngine struct {
	proxy string
}

// NewHTTPEngine creates the impersonated-HTTP backend. proxy may be empty.
func NewHTTPEngine(proxy string) *HTTPEngine {
	return &HTTPEngine{proxy: proxy}
}

func (e *HTTPEngine) Name() string { return "http" }

// NewSession builds a client with its own cookie jar so any clearance
// cookies issued mid-run stick for the rest of the run.
func (e *HTTPEngine) NewSession(ctx context.Context) (Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "failed to create cookie jar", err)
	}

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if e.proxy != "" {
		if proxyURL, err := url.Parse(e.proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &httpSession{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}, nil
}

// httpSession is one run's HTTP client plus the last primary page fetched.
type httpSession struct {
	client     *http.Client
	currentURL string
}

func (s *httpSession) Name() string { return "http" }

func (s *httpSession) Fetch(ctx context.Context, target string) (*FetchResult, error) {
	res, err := s.get(ctx, target)
	if err != nil {
		return nil, err
	}
	s.currentURL = res.FinalURL
	return res, nil
}

func (s *httpSession) FetchDetail(ctx context.Context, target string) (*FetchResult, error) {
	return s.get(ctx, target)
}

// Refresh re-requests the current primary URL. Combined with the cookie jar
// this is how an HTTP session recovers once the challenge clears.
func (s *httpSession) Refresh(ctx context.Context) (*FetchResult, error) {
	if s.currentURL == "" {
		return nil, models.NewScrapeError(models.ErrCodeFetch, "refresh before first fetch", nil)
	}
	return s.get(ctx, s.currentURL)
}

func (s *httpSession) Title(ctx context.Context) (string, error) {
	res, err := s.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return res.Title, nil
}

func (s *httpSession) Close() {
	s.client.CloseIdleConnections()
}

func (s *httpSession) get(ctx context.Context, target string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeFetch, "build request", err)
	}

	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeFetch, fmt.Sprintf("request failed for %s", target), err)
	}
	defer resp.Body.Close()

	const maxBody = 10 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeFetch, "read body", err)
	}

	// Challenge interstitials arrive with 403/503 and an HTML body; the
	// detector needs to see them, so error status alone is not a failure.
	// Non-HTML responses are.
	if !isHTMLContentType(resp.Header.Get("Content-Type")) {
		return nil, models.NewScrapeError(models.ErrCodeFetch,
			fmt.Sprintf("non-html response (status %d, content-type %q)", resp.StatusCode, resp.Header.Get("Content-Type")), nil)
	}

	bodyStr := string(body)
	return &FetchResult{
		HTML:       bodyStr,
		Title:      ExtractTitle(bodyStr),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Engine:     s.Name(),
	}, nil
}

// isHTMLContentType returns true if the content-type header looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// ExtractTitle uses the Go HTML tokenizer to find the first <title> element.
func ExtractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
