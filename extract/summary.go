package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Summary holds what a single listing row reveals about an agency before
// its detail page is fetched. DetailURL is the only mandatory field.
type Summary struct {
	Name      string
	Phone     string
	Zip       string
	DetailURL string
}

var (
	phoneLikeRe = regexp.MustCompile(`\(?\d{3}\)?[\s\-.]?\d{3}[\s\-.]?\d{4}`)
	zipLikeRe   = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
	digitsRe    = regexp.MustCompile(`\d`)
)

// ExtractSummary pulls the summary fields out of one located row. The row is
// either a table row with a detail link inside it, or (from the anchor
// fallback) the detail link itself. Rows without a usable detail link are
// skipped: the detail URL doubles as the record identity.
func ExtractSummary(row *goquery.Selection, d *Document, site Site) (Summary, bool) {
	if goquery.NodeName(row) == "a" {
		return summaryFromAnchor(row, d, site)
	}

	href := detailHref(row, site)
	if href == "" {
		return Summary{}, false
	}

	sum := Summary{DetailURL: d.ResolveDetailURL(href, site)}

	// Cell scan: first cell is the name column, the rest are sniffed for
	// phone-shaped and zip-shaped values.
	cells := row.Find("td")
	cells.Each(func(i int, cell *goquery.Selection) {
		text := strings.TrimSpace(cell.Text())
		if text == "" {
			return
		}
		if i == 0 {
			sum.Name = firstLine(text)
			return
		}
		if sum.Phone == "" {
			if m := phoneLikeRe.FindString(text); m != "" && len(digitsRe.FindAllString(m, -1)) >= 10 {
				sum.Phone = strings.TrimSpace(m)
			}
		}
		if sum.Zip == "" {
			if m := zipLikeRe.FindString(text); m != "" {
				sum.Zip = m
			}
		}
	})

	if sum.Name == "" {
		if t := strings.TrimSpace(row.Find("a").First().Text()); t != "" {
			sum.Name = firstLine(t)
		}
	}
	if sum.Name == "" {
		if t := firstLine(strings.TrimSpace(row.Text())); len(t) > 3 {
			sum.Name = t
		}
	}
	if sum.Name == "" {
		sum.Name = "Unknown Agency"
	}
	return sum, true
}

func summaryFromAnchor(a *goquery.Selection, d *Document, site Site) (Summary, bool) {
	href, _ := a.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return Summary{}, false
	}
	name := firstLine(strings.TrimSpace(a.Text()))
	if name == "" {
		name = strings.TrimSpace(a.AttrOr("title", ""))
	}
	if name == "" {
		name = "Unknown Agency"
	}
	return Summary{
		Name:      name,
		DetailURL: d.ResolveDetailURL(href, site),
	}, true
}

// detailHref finds the row's detail-page link: an anchor whose href carries
// the taxonomy segment, or failing that any .aspx link, or the first link.
func detailHref(row *goquery.Selection, site Site) string {
	href := ""
	row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, _ := a.Attr("href")
		h = strings.TrimSpace(h)
		if h == "" || strings.HasPrefix(h, "#") || strings.HasPrefix(h, "javascript:") {
			return true
		}
		if strings.Contains(h, site.TaxonomySegment) {
			href = h
			return false
		}
		if href == "" && strings.Contains(h, ".aspx") {
			href = h
		}
		return true
	})
	if href != "" {
		return href
	}
	h, _ := row.Find("a[href]").First().Attr("href")
	h = strings.TrimSpace(h)
	if strings.HasPrefix(h, "#") || strings.HasPrefix(h, "javascript:") {
		return ""
	}
	return h
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
