package stats

import (
	"errors"
	"math"

	"github.com/igrmk/treemap/v2"
)

var (
	ErrFinalized    = errors.New("statistics already finalized")
	ErrNotFinalized = errors.New("statistics not finalized")
)

// Percentiles are expressed in per mille so ranks can be computed with
// integer arithmetic.
const (
	p50 = 500
	p95 = 950
	p99 = 990
)

// RequestStats accumulates timing samples for one request name, or for a
// whole run under the AllRequests name. Durations are kept as an ordered
// duration -> occurrences map, so percentiles are exact without retaining
// individual samples.
type RequestStats struct {
	simulation string
	scenario   string
	request    string

	start int64
	end   int64

	count        int64
	successCount int64
	errorCount   int64
	sum          float64
	sumSquares   float64
	min          int64
	max          int64

	durations *treemap.TreeMap[int64, int64]

	apdexT *float64

	finalized bool
	summary   RequestSummary
}

// NewRequestStats creates an empty aggregator. start is the run start in
// epoch milliseconds (0 when unknown). apdexT is the apdex threshold in
// milliseconds; nil disables apdex.
func NewRequestStats(simulation, scenario, request string, start int64, apdexT *float64) *RequestStats {
	return &RequestStats{
		simulation: simulation,
		scenario:   scenario,
		request:    request,
		start:      start,
		durations:  treemap.New[int64, int64](),
		apdexT:     apdexT,
	}
}

// Add records one sample.
func (s *RequestStats) Add(start, end int64, success bool) error {
	if s.finalized {
		return ErrFinalized
	}

	duration := end - start

	if s.count == 0 || duration < s.min {
		s.min = duration
	}
	if s.count == 0 || duration > s.max {
		s.max = duration
	}
	if s.start == 0 || start < s.start {
		s.start = start
	}
	if end > s.end {
		s.end = end
	}

	s.count++
	if success {
		s.successCount++
	} else {
		s.errorCount++
	}

	d := float64(duration)
	s.sum += d
	s.sumSquares += d * d

	occurrences, _ := s.durations.Get(duration)
	s.durations.Set(duration, occurrences+1)

	return nil
}

// Name returns the request name.
func (s *RequestStats) Name() string {
	return s.request
}

// Scenario returns the scenario the request was first seen under.
func (s *RequestStats) Scenario() string {
	return s.scenario
}

// Count returns the number of recorded samples.
func (s *RequestStats) Count() int64 {
	return s.count
}

// ElapsedMillis is the span between the earliest start and the latest end.
func (s *RequestStats) ElapsedMillis() int64 {
	if s.count == 0 {
		return 0
	}
	return s.end - s.start
}

// Finalized reports whether Finalize has been called.
func (s *RequestStats) Finalized() bool {
	return s.finalized
}

// Finalize derives the summary fields. totalDurationMillis is the run
// duration used for throughput, maxUsers the concurrency peak for the scope
// of this aggregator. It can only be called once.
func (s *RequestStats) Finalize(totalDurationMillis int64, maxUsers int) error {
	if s.finalized {
		return ErrFinalized
	}
	s.finalized = true

	sum := RequestSummary{
		Simulation:     s.simulation,
		Scenario:       s.scenario,
		Request:        s.request,
		Start:          s.start,
		Count:          s.count,
		SuccessCount:   s.successCount,
		ErrorCount:     s.errorCount,
		DurationMillis: totalDurationMillis,
		MaxUsers:       maxUsers,
	}

	if s.count > 0 {
		n := float64(s.count)
		sum.Min = s.min
		sum.Max = s.max
		sum.Avg = s.sum / n
		sum.StdDev = math.Sqrt(math.Max(0, s.sumSquares/n-sum.Avg*sum.Avg))
		sum.P50 = s.percentile(p50)
		sum.P95 = s.percentile(p95)
		sum.P99 = s.percentile(p99)
		if s.apdexT != nil {
			apdex := s.apdex(*s.apdexT)
			sum.Apdex = &apdex
		}
	}

	if totalDurationMillis > 0 {
		sum.RPS = float64(s.count) / (float64(totalDurationMillis) / 1000.0)
	}

	s.summary = sum
	return nil
}

// Summary returns the immutable derived view.
func (s *RequestStats) Summary() (RequestSummary, error) {
	if !s.finalized {
		return RequestSummary{}, ErrNotFinalized
	}
	return s.summary, nil
}

// percentile returns the duration at 1-indexed rank ceil(permille*count/1000),
// clamped to [1, count].
func (s *RequestStats) percentile(permille int64) int64 {
	rank := (permille*s.count + 999) / 1000
	if rank < 1 {
		rank = 1
	}
	if rank > s.count {
		rank = s.count
	}

	var seen int64
	for it := s.durations.Iterator(); it.Valid(); it.Next() {
		seen += it.Value()
		if seen >= rank {
			return it.Key()
		}
	}
	return s.max
}

// apdex computes (satisfied + tolerating/2) / count for threshold t.
func (s *RequestStats) apdex(t float64) float64 {
	var satisfied, tolerating int64
	for it := s.durations.Iterator(); it.Valid(); it.Next() {
		d := float64(it.Key())
		switch {
		case d <= t:
			satisfied += it.Value()
		case d <= 4*t:
			tolerating += it.Value()
		default:
			return (float64(satisfied) + float64(tolerating)/2) / float64(s.count)
		}
	}
	return (float64(satisfied) + float64(tolerating)/2) / float64(s.count)
}
