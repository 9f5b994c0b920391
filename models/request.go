package models

// ScrapeRequest is the query payload for GET /api/v1/scrape/home-health.
type ScrapeRequest struct {
	// State is the 2-letter state code, e.g. "NC". Required.
	State string `form:"state" binding:"required,len=2,alpha"`

	// Location is the city or county to search, e.g. "Raleigh" or
	// "Henrico County". Required.
	Location string `form:"location" binding:"required"`

	// Engine selects the fetch backend.
	// "auto" (default): HTTP first, escalate to the browser when blocked.
	// "http": impersonated plain HTTP only (fastest, no JS).
	// "browser": headless Chrome with stealth.
	Engine string `form:"engine" binding:"omitempty,oneof=auto http browser"`

	// Timeout is the maximum duration in seconds for the whole run
	// (all pages, all detail fetches). Default: 300. Max: 600.
	Timeout int `form:"timeout" binding:"omitempty,min=1,max=600"`

	// MaxAge enables the result cache: a cached result younger than this
	// many seconds is returned without hitting the registry. 0 disables.
	MaxAge int `form:"max_age" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	if r.Engine == "" {
		r.Engine = "auto"
	}
	if r.Timeout == 0 {
		r.Timeout = 300
	}
}

// BatchRequest is the payload for POST /api/v1/scrape/home-health/batch.
type BatchRequest struct {
	// Queries is the worklist of (state, location) pairs. Required.
	Queries []Query `json:"queries" binding:"required,min=1,max=100,dive"`

	// Options are shared run settings applied to every query.
	Options BatchOptions `json:"options"`

	// WebhookURL, when set, receives a batch.completed event once all
	// queries have finished.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// BatchOptions are the shared settings applied to every query in a batch.
type BatchOptions struct {
	Engine  string `json:"engine,omitempty" binding:"omitempty,oneof=auto http browser"`
	Timeout int    `json:"timeout,omitempty" binding:"omitempty,min=1,max=600"`
}
