package api

import "github.com/watermetergateway/exporter/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State               string  `json:"state"`
	Polls               int     `json:"polls"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	UptimePct           float64 `json:"uptime_pct"`
	LastSuccess         string  `json:"last_success,omitempty"` // RFC3339
	LastError           string  `json:"last_error,omitempty"`
	LastErrorAt         string  `json:"last_error_at,omitempty"` // RFC3339
}

// ReadingResponse is the payload for GET /api/v1/reading.
type ReadingResponse struct {
	Fields    types.Reading `json:"fields"`
	FetchedAt string        `json:"fetched_at"` // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
