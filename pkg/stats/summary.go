package stats

import (
	"encoding/json"
	"time"
)

// RequestSummary is the finalized view of one RequestStats
type RequestSummary struct {
	Simulation     string   `json:"simulation"`
	Scenario       string   `json:"scenario"`
	Request        string   `json:"request"`
	Start          int64    `json:"start"` // epoch milliseconds
	Count          int64    `json:"count"`
	SuccessCount   int64    `json:"success_count"`
	ErrorCount     int64    `json:"error_count"`
	Min            int64    `json:"min"` // in milliseconds
	Max            int64    `json:"max"` // in milliseconds
	Avg            float64  `json:"avg"` // in milliseconds
	StdDev         float64  `json:"stddev"`
	P50            int64    `json:"p50"`
	P95            int64    `json:"p95"`
	P99            int64    `json:"p99"`
	RPS            float64  `json:"rps"`
	Apdex          *float64 `json:"apdex,omitempty"`
	DurationMillis int64    `json:"duration_ms"`
	MaxUsers       int      `json:"max_users"`
}

// ErrorRate returns the failed share of requests as a percentage
func (r RequestSummary) ErrorRate() float64 {
	if r.Count == 0 {
		return 0
	}
	return float64(r.ErrorCount) * 100 / float64(r.Count)
}

// StartTime converts Start to a time.Time
func (r RequestSummary) StartTime() time.Time {
	return time.UnixMilli(r.Start)
}

// MarshalJSON implements json.Marshaler interface for RequestSummary
func (r RequestSummary) MarshalJSON() ([]byte, error) {
	type Alias RequestSummary
	return json.Marshal((Alias)(r))
}

// UnmarshalJSON implements json.Unmarshaler interface for RequestSummary
func (r *RequestSummary) UnmarshalJSON(data []byte) error {
	type Alias RequestSummary
	return json.Unmarshal(data, (*Alias)(r))
}

// SimulationSummary is everything report renderers need from one parsed run
type SimulationSummary struct {
	FilePath       string           `json:"file_path"`
	Simulation     string           `json:"simulation"`
	Scenario       string           `json:"scenario"`
	Start          int64            `json:"start"`       // epoch milliseconds
	DurationMillis int64            `json:"duration_ms"` // max request end - start
	MaxUsers       int              `json:"max_users"`
	UserPeaks      map[string]int   `json:"user_peaks"`
	All            RequestSummary   `json:"all"`
	Requests       []RequestSummary `json:"requests"` // ascending by avg
}

// ID is the default storage identifier of a run
func (s SimulationSummary) ID() string {
	return s.Simulation + "-" + s.StartTime().UTC().Format("20060102150405")
}

// StartTime converts Start to a time.Time
func (s SimulationSummary) StartTime() time.Time {
	return time.UnixMilli(s.Start)
}

// Request looks a request summary up by name.
func (s SimulationSummary) Request(name string) (RequestSummary, bool) {
	for _, r := range s.Requests {
		if r.Request == name {
			return r, true
		}
	}
	return RequestSummary{}, false
}

// MarshalJSON implements json.Marshaler interface for SimulationSummary
func (s SimulationSummary) MarshalJSON() ([]byte, error) {
	type Alias SimulationSummary
	return json.Marshal((Alias)(s))
}

// UnmarshalJSON implements json.Unmarshaler interface for SimulationSummary
func (s *SimulationSummary) UnmarshalJSON(data []byte) error {
	type Alias SimulationSummary
	return json.Unmarshal(data, (*Alias)(s))
}
