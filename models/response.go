package models

// RunResponse is the response for POST /run-script. Output and Error carry the
// spawned process's stdout and stderr verbatim.
type RunResponse struct {
	RunID  string `json:"run_id,omitempty"`
	Output string `json:"output"`
	Error  string `json:"error"`

	// CacheStatus is "hit" or "miss" when caching is enabled.
	CacheStatus string `json:"cache_status,omitempty"`

	// DurationMs is the wall time of the spawned process.
	DurationMs int64 `json:"duration_ms"`
}

// FailureResponse is returned when the process could not be started or
// exceeded its time budget.
type FailureResponse struct {
	Error  string       `json:"error"`
	Detail *ErrorDetail `json:"detail,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	ActiveRuns int    `json:"active_runs"`
	Version    string `json:"version"`
}
