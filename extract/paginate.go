package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nextMatcher recognizes one style of next-page affordance. Matchers run in
// priority order over all of the page's links; the first enabled link with a
// resolvable href wins.
type nextMatcher func(text, ariaLabel string, nextPage int) bool

var nextMatchers = []nextMatcher{
	func(text, _ string, _ int) bool {
		return strings.Contains(strings.ToLower(text), "next")
	},
	func(text, _ string, _ int) bool {
		return text == ">" || text == "›" || text == "»"
	},
	func(_, ariaLabel string, _ int) bool {
		return strings.Contains(strings.ToLower(ariaLabel), "next")
	},
	func(text, _ string, nextPage int) bool {
		return text == strconv.Itoa(nextPage)
	},
}

// NextPageURL finds the URL of the page after currentPage, or ok=false when
// the listing has no further pages. Disabled affordances (the usual way the
// registry marks the last page) are skipped, which terminates pagination.
func NextPageURL(d *Document, currentPage int) (string, bool) {
	links := splitSelection(d.Find("a"))

	for _, match := range nextMatchers {
		for _, a := range links {
			text := strings.TrimSpace(a.Text())
			aria := a.AttrOr("aria-label", "")
			if !match(text, aria, currentPage+1) {
				continue
			}
			if isDisabled(a) {
				continue
			}
			href := strings.TrimSpace(a.AttrOr("href", ""))
			if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
				continue
			}
			if resolved := d.ResolveRef(href); resolved != "" {
				return resolved, true
			}
		}
	}
	return "", false
}

// isDisabled checks the link and its immediate container for the disabled
// markers paginators conventionally use.
func isDisabled(a *goquery.Selection) bool {
	if _, ok := a.Attr("disabled"); ok {
		return true
	}
	if a.AttrOr("aria-disabled", "") == "true" {
		return true
	}
	if strings.Contains(a.AttrOr("class", ""), "disabled") {
		return true
	}
	parent := a.Parent()
	if parent.Length() > 0 && strings.Contains(parent.AttrOr("class", ""), "disabled") {
		return true
	}
	return false
}
