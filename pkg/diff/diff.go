// Package diff compares two aggregated simulation runs. All deltas are the
// challenger relative to the reference.
package diff

import (
	"fmt"

	"gatling-report/pkg/stats"
)

const (
	Win   = "win"
	Loose = "loose"

	// ZeroPercent replaces a percentage whose reference value is zero.
	ZeroPercent = "+0.00"
)

// Direction tells which way a metric improves
type Direction int

const (
	LowerIsBetter Direction = iota
	HigherIsBetter
)

// Delta is one compared metric, ready for rendering
type Delta struct {
	Value string `json:"value"`
	Class string `json:"class"`
}

// Percent formats (challenger/reference - 1) * 100 with an explicit sign.
// Ties are a win in both directions.
func Percent(reference, challenger float64, dir Direction) Delta {
	d := Delta{Value: ZeroPercent, Class: classify(reference, challenger, dir)}
	if reference != 0 {
		d.Value = fmt.Sprintf("%+.2f", challenger*100/reference-100)
	}
	return d
}

// Count formats the signed difference of two counters.
func Count(reference, challenger int64, dir Direction) Delta {
	return Delta{
		Value: fmt.Sprintf("%+d", challenger-reference),
		Class: classify(float64(reference), float64(challenger), dir),
	}
}

func classify(reference, challenger float64, dir Direction) string {
	if dir == LowerIsBetter && challenger <= reference {
		return Win
	}
	if dir == HigherIsBetter && challenger >= reference {
		return Win
	}
	return Loose
}

// Run identifies one side of a comparison
type Run struct {
	FilePath       string `json:"file_path"`
	Simulation     string `json:"simulation"`
	Scenario       string `json:"scenario"`
	Start          int64  `json:"start"`
	DurationMillis int64  `json:"duration_ms"`
	MaxUsers       int    `json:"max_users"`
}

func runOf(s stats.SimulationSummary) Run {
	return Run{
		FilePath:       s.FilePath,
		Simulation:     s.Simulation,
		Scenario:       s.Scenario,
		Start:          s.Start,
		DurationMillis: s.DurationMillis,
		MaxUsers:       s.MaxUsers,
	}
}

// RequestDiff compares one request name across both runs
type RequestDiff struct {
	Request    string               `json:"request"`
	Reference  stats.RequestSummary `json:"reference"`
	Challenger stats.RequestSummary `json:"challenger"`

	// Missing on one side, compared against a zero-valued summary.
	ReferenceOnly  bool `json:"reference_only,omitempty"`
	ChallengerOnly bool `json:"challenger_only,omitempty"`

	Min    Delta `json:"min"`
	Avg    Delta `json:"avg"`
	Max    Delta `json:"max"`
	P50    Delta `json:"p50"`
	P95    Delta `json:"p95"`
	P99    Delta `json:"p99"`
	Count  Delta `json:"count"`
	Errors Delta `json:"errors"`
}

// Result is the full comparison of two runs
type Result struct {
	Reference  Run `json:"reference"`
	Challenger Run `json:"challenger"`

	Avg          Delta `json:"avg"`
	RPS          Delta `json:"rps"`
	Duration     Delta `json:"duration"`
	RequestCount Delta `json:"request_count"`
	ErrorCount   Delta `json:"error_count"`
	MaxUsers     Delta `json:"max_users"`

	// Max is the larger run-level max latency, a common scale for charts.
	Max int64 `json:"max"`

	Requests []RequestDiff `json:"requests"`
}

// Compare diffs two finalized runs. Every reference request appears once,
// ordered by descending reference average; requests seen only in the
// challenger follow, ordered by descending challenger average.
func Compare(reference, challenger stats.SimulationSummary) Result {
	ref, ch := reference.All, challenger.All

	res := Result{
		Reference:    runOf(reference),
		Challenger:   runOf(challenger),
		Avg:          Percent(ref.Avg, ch.Avg, LowerIsBetter),
		RPS:          Percent(ref.RPS, ch.RPS, HigherIsBetter),
		Duration:     Percent(float64(reference.DurationMillis), float64(challenger.DurationMillis), LowerIsBetter),
		RequestCount: Percent(float64(ref.Count), float64(ch.Count), HigherIsBetter),
		ErrorCount:   Count(ref.ErrorCount, ch.ErrorCount, LowerIsBetter),
		MaxUsers:     Percent(float64(reference.MaxUsers), float64(challenger.MaxUsers), HigherIsBetter),
		Max:          max(ref.Max, ch.Max),
	}

	refRequests := descendingByAvg(reference.Requests)
	seen := make(map[string]bool, len(refRequests))
	for _, r := range refRequests {
		seen[r.Request] = true
		c, ok := challenger.Request(r.Request)
		if !ok {
			c = zeroLike(r)
		}
		d := CompareRequest(r, c)
		d.ReferenceOnly = !ok
		res.Requests = append(res.Requests, d)
	}

	for _, c := range descendingByAvg(challenger.Requests) {
		if seen[c.Request] {
			continue
		}
		d := CompareRequest(zeroLike(c), c)
		d.ChallengerOnly = true
		res.Requests = append(res.Requests, d)
	}

	return res
}

// CompareSimulations diffs two run aggregators, which must be finalized.
func CompareSimulations(reference, challenger *stats.Simulation) (Result, error) {
	ref, err := reference.Summary()
	if err != nil {
		return Result{}, fmt.Errorf("reference: %w", err)
	}
	ch, err := challenger.Summary()
	if err != nil {
		return Result{}, fmt.Errorf("challenger: %w", err)
	}
	return Compare(ref, ch), nil
}

// CompareRequest diffs one request summary against its reference.
func CompareRequest(reference, challenger stats.RequestSummary) RequestDiff {
	return RequestDiff{
		Request:    reference.Request,
		Reference:  reference,
		Challenger: challenger,
		Min:        Percent(float64(reference.Min), float64(challenger.Min), LowerIsBetter),
		Avg:        Percent(reference.Avg, challenger.Avg, LowerIsBetter),
		Max:        Percent(float64(reference.Max), float64(challenger.Max), LowerIsBetter),
		P50:        Percent(float64(reference.P50), float64(challenger.P50), LowerIsBetter),
		P95:        Percent(float64(reference.P95), float64(challenger.P95), LowerIsBetter),
		P99:        Percent(float64(reference.P99), float64(challenger.P99), LowerIsBetter),
		Count:      Percent(float64(reference.Count), float64(challenger.Count), HigherIsBetter),
		Errors:     Count(reference.ErrorCount, challenger.ErrorCount, LowerIsBetter),
	}
}

// zeroLike is an empty summary sharing the identity of r
func zeroLike(r stats.RequestSummary) stats.RequestSummary {
	return stats.RequestSummary{
		Simulation: r.Simulation,
		Scenario:   r.Scenario,
		Request:    r.Request,
	}
}

func descendingByAvg(requests []stats.RequestSummary) []stats.RequestSummary {
	sorted := make([]stats.RequestSummary, len(requests))
	copy(sorted, requests)
	stats.SortByAvg(sorted)
	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	return sorted
}

// Wins counts the winning request level latency averages, a one-line
// verdict for console output.
func (r Result) Wins() (wins, losses int) {
	for _, d := range r.Requests {
		if d.Avg.Class == Win {
			wins++
		} else {
			losses++
		}
	}
	return wins, losses
}
