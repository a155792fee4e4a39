package http

// InfoResponse is the response body for GET /.
type InfoResponse struct {
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
	Health  string `json:"health"`
	Analyze string `json:"analyze"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}

// RebuildResponse is the response body for POST /api/v1/index/rebuild.
type RebuildResponse struct {
	IndexEntries int     `json:"indexEntries"`
	Duration     float64 `json:"durationSeconds"`
}
