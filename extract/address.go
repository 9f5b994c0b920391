package extract

import (
	"regexp"
	"strings"

	"github.com/use-agent/npiharvest/models"
)

// stateZipRe matches the trailing "NC 27601" / "NC 27601-1234" segment of a
// comma-separated US address.
var stateZipRe = regexp.MustCompile(`^([A-Z]{2})\s+(\d{5}(?:-\d{4})?)$`)

// ParseAddress splits a single-line US address into its components. Missing
// trailing segments simply stay empty: "123 Main St, Raleigh" parses to
// street and city with no state or zip. A malformed final segment degrades
// to a best-effort two-letter state with no zip.
func ParseAddress(raw string) models.Address {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var addr models.Address
	if len(parts) < 2 {
		return addr
	}
	addr.Street = parts[0]
	addr.City = parts[1]
	if len(parts) < 3 || parts[2] == "" {
		return addr
	}

	tail := parts[2]
	if m := stateZipRe.FindStringSubmatch(tail); m != nil {
		addr.State = m[1]
		addr.Zip = m[2]
		return addr
	}
	if len(tail) >= 2 {
		addr.State = strings.ToUpper(tail[:2])
		if rest := strings.TrimSpace(tail[2:]); rest != "" && zipLikeRe.MatchString(rest) {
			addr.Zip = zipLikeRe.FindString(rest)
		}
	}
	return addr
}
