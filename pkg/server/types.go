package server

import (
	"time"

	"gatling-report/pkg/batch"
	"gatling-report/pkg/parser"
	"gatling-report/pkg/stats"
)

// ErrorResponse is the body of every non 2xx reply
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    int       `json:"uptime"` // in seconds
	Version   string    `json:"version"`
}

type SimulationListResponse struct {
	Simulations []batch.Info `json:"simulations"`
	Total       int          `json:"total"`
}

// ParseRequest asks the server to parse a log readable by the server
// process, a local path or an s3:// URL.
type ParseRequest struct {
	Path string `json:"path" binding:"required"`
	ID   string `json:"id"`
}

type ParseResponse struct {
	ID        string                  `json:"id"`
	Path      string                  `json:"path"`
	Variant   string                  `json:"variant"`
	Counters  parser.Counters         `json:"counters"`
	ElapsedMs int64                   `json:"elapsed_ms"`
	Summary   stats.SimulationSummary `json:"summary"`
}
