// Package extract turns fetched registry pages into structured agency
// records. Everything in here is pure: documents in, records out, no I/O.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Site describes the registry being scraped: the origin used to resolve
// relative detail links and the taxonomy path segment that identifies
// detail-page URLs.
type Site struct {
	Origin          string
	TaxonomySegment string
}

// Document is one fetched page in queryable form.
type Document struct {
	// Title is the page title (from the fetch, falling back to <title>).
	Title string

	// URL is the page's final URL; relative links resolve against it.
	URL string

	doc  *goquery.Document
	text string
}

// ParseDocument parses raw HTML into a Document. Script, style and noscript
// subtrees are dropped up front so text-pattern extraction never matches
// inside code.
func ParseDocument(rawHTML, title, finalURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	doc.Find("script, style, noscript").Remove()

	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	return &Document{Title: title, URL: finalURL, doc: doc}, nil
}

// Find runs a CSS selector against the document.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Text returns the page's visible text with line breaks at block boundaries,
// matching what a browser's innerText would produce closely enough for the
// label-anchored patterns to work.
func (d *Document) Text() string {
	if d.text != "" {
		return d.text
	}
	body := d.doc.Find("body")
	if body.Length() == 0 {
		d.text = blockText(d.doc.Selection)
	} else {
		d.text = blockText(body)
	}
	return d.text
}

// blockTags are elements that imply a line break around their content.
var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {},
	"dd": {}, "div": {}, "dl": {}, "dt": {}, "fieldset": {}, "footer": {},
	"form": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"header": {}, "hr": {}, "li": {}, "main": {}, "nav": {}, "ol": {},
	"p": {}, "pre": {}, "section": {}, "table": {}, "tbody": {}, "td": {},
	"th": {}, "thead": {}, "tr": {}, "ul": {},
}

func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		writeNodeText(&b, node)
	}
	// Collapse runs of blank lines left behind by nested blocks.
	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n")
}

func writeNodeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		_, block := blockTags[n.Data]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeNodeText(b, c)
		}
		if block {
			b.WriteByte('\n')
		}
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeNodeText(b, c)
		}
	}
}

// ResolveDetailURL applies the detail-link resolution policy: site-relative
// paths resolve against the origin, absolute URLs pass through, anything
// else joins onto the listing URL (query and fragment stripped).
func (d *Document) ResolveDetailURL(href string, site Site) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "/"):
		return strings.TrimSuffix(site.Origin, "/") + href
	case strings.HasPrefix(href, "http"):
		return href
	default:
		base := d.URL
		if u, err := url.Parse(d.URL); err == nil {
			u.RawQuery = ""
			u.Fragment = ""
			base = u.String()
		}
		return strings.TrimSuffix(base, "/") + "/" + href
	}
}

// ResolveRef resolves an arbitrary href (e.g. a pagination link, which may
// be query-only) against the page URL.
func (d *Document) ResolveRef(href string) string {
	base, err := url.Parse(d.URL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
