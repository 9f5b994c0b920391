package models

// Query is the (state, location) pair that drives one extraction run.
// It is carried unchanged into every Agency produced by that run.
type Query struct {
	State    string `json:"state" binding:"required,len=2,alpha"`
	Location string `json:"location" binding:"required"`
}

// Address holds the postal address of an agency. Every field is independently
// optional; an empty string means the field was not found on the page.
type Address struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// AuthorizedOfficial is the contact-person block from a detail page.
type AuthorizedOfficial struct {
	Name      string `json:"name,omitempty"`
	Title     string `json:"title,omitempty"`
	Telephone string `json:"telephone,omitempty"`
}

// Agency is one extracted home health agency record.
//
// DetailURL is the only required field: a record without a resolvable detail
// page is never emitted. Everything else is best-effort; an empty value means
// "not found", not an error.
type Agency struct {
	// NPI is the 10-digit registry identifier, when one could be recovered.
	NPI string `json:"npi,omitempty"`

	// ProviderName is the legal name from the detail page. AgencyName is the
	// display name from the listing row; the two may differ.
	ProviderName string `json:"provider_name,omitempty"`
	AgencyName   string `json:"agency_name,omitempty"`

	Address Address `json:"address"`
	Phone   string  `json:"phone,omitempty"`

	// EnumerationDate is kept as the raw string found on the page; the site
	// is not consistent enough to parse it into a time.Time reliably.
	EnumerationDate string `json:"enumeration_date,omitempty"`

	AuthorizedOfficial AuthorizedOfficial `json:"authorized_official"`

	// DetailURL is the absolute URL of the agency's detail page.
	DetailURL string `json:"detail_url"`

	// SourceState and SourceLocation record the query this agency was found under.
	SourceState    string `json:"source_state"`
	SourceLocation string `json:"source_location"`
}

// PoolStats is a snapshot of scraper session usage, reported by /health.
type PoolStats struct {
	MaxPages   int `json:"max_pages"`
	ActiveRuns int `json:"active_runs"`
}
