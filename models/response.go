package models

// ScrapeResponse is the body returned by GET /api/v1/scrape/home-health.
type ScrapeResponse struct {
	Success bool `json:"success"`

	// Agencies is the extracted record set. May be empty on a valid run.
	Agencies []Agency `json:"agencies,omitempty"`
	Count    int      `json:"count"`

	// EngineUsed reports which fetch backend produced the result.
	EngineUsed string `json:"engine_used,omitempty"`

	// CacheStatus is "hit" or "miss" when the result cache was consulted.
	CacheStatus string `json:"cache_status,omitempty"`

	Timing TimingInfo   `json:"timing"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down where a request's time went.
type TimingInfo struct {
	TotalMs      int64 `json:"total_ms"`
	ExtractionMs int64 `json:"extraction_ms,omitempty"`
}

// BatchResult is the per-query outcome inside a batch job. A failed query
// carries its error alongside the other queries' successful results.
type BatchResult struct {
	State    string       `json:"state"`
	Location string       `json:"location"`
	Agencies []Agency     `json:"agencies"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/scrape/home-health/batch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Results   []BatchResult `json:"results,omitempty"`
}

// BatchJob tracks an in-progress batch extraction.
type BatchJob struct {
	ID        string
	Status    string // "processing", "completed", "failed", "partial"
	Total     int
	Completed int
	Results   []BatchResult
	CreatedAt int64 // unix timestamp
}

// HealthResponse is the body for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}
