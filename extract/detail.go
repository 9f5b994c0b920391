package extract

import (
	"regexp"
	"strings"

	"github.com/use-agent/npiharvest/models"
)

// Per-field pattern chains, tried in order against the detail page's visible
// text. First match wins; later patterns are progressively looser.
var (
	npiPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)NPI\s*#?\s*:?\s*(\d{10})`),
		regexp.MustCompile(`(?i)NPI\s+Number\s*:?\s*(\d{10})`),
		regexp.MustCompile(`\b(\d{10})\b`),
	}

	enumDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Enumeration\s+Date\s*:?\s*(\d{1,2}/\d{1,2}/\d{4})`),
		regexp.MustCompile(`(?i)Enumeration\s+Date\s*:?\s*(\d{4}-\d{2}-\d{2})`),
		regexp.MustCompile(`(?i)Enumeration\s*:?\s*(\d{1,2}/\d{1,2}/\d{4})`),
	}

	addressPatterns = []*regexp.Regexp{
		// Two-line form: street on the label line, "City, ST 12345" below it.
		regexp.MustCompile(`(?i)(?:Mailing\s+)?Address\s*:?\s*([^\n]+\n[^\n]*\d{5}(?:-\d{4})?[^\n]*)`),
		regexp.MustCompile(`(?i)(?:Mailing\s+)?Address\s*:?\s*([^\n]+)`),
		regexp.MustCompile(`(?i)Location\s*:?\s*([^\n]+)`),
	}

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Phone|Telephone)\s*:?\s*([\(\)\d\-\. ]{10,})`),
		regexp.MustCompile(`\(\d{3}\)\s*\d{3}[\-.]?\d{4}`),
		regexp.MustCompile(`\b\d{3}[\-.]\d{3}[\-.]\d{4}\b`),
	}

	officialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Authorized\s+Official\s*:?\s*([^\n]+)`),
		regexp.MustCompile(`(?i)Authorized\s+Official\s+Name\s*:?\s*([^\n]+)`),
	}

	officialTitleRe = regexp.MustCompile(`(?i)(?:Title|Position)(?:\s+or\s+Position)?\s*:?\s*([^\n]+)`)

	// npiPrefixRe strips a leading "NPI 1234567890 - " decoration that the
	// registry prepends to provider headings and page titles.
	npiPrefixRe = regexp.MustCompile(`(?i)^NPI\s*#?\s*\d{10}\s*[-:]?\s*`)
)

// firstCapture runs a pattern chain over text and returns the first
// non-empty capture, trimmed.
func firstCapture(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		got := m[0]
		if len(m) > 1 {
			got = m[1]
		}
		if got = strings.TrimSpace(got); got != "" {
			return got
		}
	}
	return ""
}

// EnrichFromDetail builds a full Agency record from a detail page plus the
// listing-row summary it came from. Any field the page does not surface is
// left empty; the record is still returned.
func EnrichFromDetail(d *Document, sum Summary, q models.Query) models.Agency {
	text := d.Text()

	rec := PartialFromSummary(sum, q)
	rec.NPI = firstCapture(npiPatterns, text)
	rec.EnumerationDate = firstCapture(enumDatePatterns, text)

	if raw := firstCapture(addressPatterns, text); raw != "" {
		addr := ParseAddress(strings.ReplaceAll(raw, "\n", ", "))
		if addr.Zip == "" {
			addr.Zip = sum.Zip
		}
		rec.Address = addr
	}

	if phone := firstCapture(phonePatterns, text); phone != "" {
		rec.Phone = strings.TrimSpace(phone)
	}

	rec.AuthorizedOfficial = extractOfficial(text)

	if name := providerName(d); name != "" {
		rec.ProviderName = name
	}
	return rec
}

// PartialFromSummary degrades gracefully when the detail page could not be
// fetched: the record keeps everything the listing row already gave us and
// leaves the detail-only fields empty.
func PartialFromSummary(sum Summary, q models.Query) models.Agency {
	return models.Agency{
		ProviderName:   sum.Name,
		AgencyName:     sum.Name,
		Phone:          sum.Phone,
		Address:        models.Address{Zip: sum.Zip},
		DetailURL:      sum.DetailURL,
		SourceState:    q.State,
		SourceLocation: q.Location,
	}
}

func extractOfficial(text string) models.AuthorizedOfficial {
	var off models.AuthorizedOfficial

	for _, re := range officialPatterns {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		off.Name = strings.TrimSpace(text[loc[2]:loc[3]])

		// Title and phone, if present, sit in the lines right after the
		// official's name.
		tail := text[loc[1]:]
		if len(tail) > 200 {
			tail = tail[:200]
		}
		if m := officialTitleRe.FindStringSubmatch(tail); m != nil {
			off.Title = strings.TrimSpace(m[1])
		}
		if m := phoneLikeRe.FindString(tail); m != "" {
			off.Telephone = strings.TrimSpace(m)
		}
		break
	}
	return off
}

// providerName pulls the page's provider heading, trying structured elements
// before falling back to the document title.
func providerName(d *Document) string {
	for _, sel := range []string{"h1", ".provider-name", "[class*='provider']"} {
		if t := strings.TrimSpace(d.Find(sel).First().Text()); t != "" {
			return cleanProviderName(t)
		}
	}
	if d.Title != "" {
		// Titles read like "NPI 1234567890 - Acme Home Care; NPI Registry".
		t := d.Title
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return cleanProviderName(t)
	}
	return ""
}

func cleanProviderName(s string) string {
	return strings.TrimSpace(npiPrefixRe.ReplaceAllString(firstLine(s), ""))
}
