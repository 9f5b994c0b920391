package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rowStrategy is one candidate for locating result rows on a listing page.
// Strategies run in order; the first one that yields any elements wins and
// the rest are never consulted.
type rowStrategy struct {
	name         string
	selector     string
	filterHeader bool
}

var rowStrategies = []rowStrategy{
	{"table-body-rows", "table tbody tr", true},
	{"table-rows", "table tr", true},
	{"body-rows", "tbody tr", true},
	{"agency-class", "[class*='agency']", false},
	{"result-class", "[class*='result']", false},
	{"agency-row", ".agency-row", false},
	{"result-row", ".result-row", false},
	{"any-row", "tr", true},
}

// headerKeywords mark a leading table row as a column-header row.
var headerKeywords = []string{"name", "npi", "address", "provider"}

// LocateRecords finds the per-record elements on a listing page. When no
// structural strategy matches it falls back to scanning for detail-page
// anchors and treats each anchor as a degenerate record. A page with no
// recognizable records yields an empty slice, never an error.
func LocateRecords(d *Document, site Site) []*goquery.Selection {
	for _, st := range rowStrategies {
		sel := d.Find(st.selector)
		if sel.Length() == 0 {
			continue
		}
		rows := splitSelection(sel)
		if st.filterHeader && len(rows) > 0 && looksLikeHeader(rows[0]) {
			rows = rows[1:]
		}
		if len(rows) > 0 {
			return rows
		}
	}

	// Structural strategies all came up empty: fall back to detail-page
	// links, which the registry always renders even in stripped layouts.
	anchorSel := fmt.Sprintf("a[href*='%s'][href*='.aspx']", site.TaxonomySegment)
	return splitSelection(d.Find(anchorSel))
}

func splitSelection(sel *goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out
}

// looksLikeHeader reports whether a row reads like a column-header row
// rather than a data row: it contains header cells, or its text is made of
// the registry's known column labels.
func looksLikeHeader(row *goquery.Selection) bool {
	if row.Find("th").Length() > 0 {
		return true
	}
	text := strings.ToLower(strings.TrimSpace(row.Text()))
	if text == "" {
		return false
	}
	// Header rows carry labels but never a detail link.
	if row.Find("a[href]").Length() > 0 {
		return false
	}
	for _, kw := range headerKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
