package stats

import (
	"sort"
)

// AllRequests names the aggregator that sees every request of a run.
const AllRequests = "_all"

// Simulation aggregates one simulation log. It is created empty when a parse
// starts, fed by exactly one parser and finalized once at end of input.
type Simulation struct {
	filePath string
	apdexT   *float64

	name     string
	scenario string
	start    int64

	all      *RequestStats
	requests map[string]*RequestStats
	users    map[string]*RunningTotal

	maxUsers  int
	finalized bool
}

// NewSimulation creates an empty run aggregator for filePath. apdexT is the
// apdex threshold in milliseconds, nil to disable apdex.
func NewSimulation(filePath string, apdexT *float64) *Simulation {
	return &Simulation{
		filePath: filePath,
		apdexT:   apdexT,
		all:      NewRequestStats("", AllRequests, AllRequests, 0, apdexT),
		requests: make(map[string]*RequestStats),
		users:    make(map[string]*RunningTotal),
	}
}

func (s *Simulation) FilePath() string {
	return s.filePath
}

func (s *Simulation) Name() string {
	return s.name
}

func (s *Simulation) Scenario() string {
	return s.scenario
}

func (s *Simulation) Start() int64 {
	return s.start
}

func (s *Simulation) SetSimulationName(name string) {
	s.name = name
	s.all.simulation = name
}

func (s *Simulation) SetScenarioName(name string) {
	s.scenario = name
	s.all.scenario = name
}

// SetStart sets the run start in epoch milliseconds.
func (s *Simulation) SetStart(start int64) {
	s.start = start
	s.all.start = start
}

// AddRequest records one request sample under its request name and under
// the run-level aggregator. The scenario is kept from the first sample of a
// request name.
func (s *Simulation) AddRequest(scenario, name string, start, end int64, success bool) error {
	if s.finalized {
		return ErrFinalized
	}

	req, ok := s.requests[name]
	if !ok {
		req = NewRequestStats(s.name, scenario, name, s.start, s.apdexT)
		s.requests[name] = req
	}
	if err := req.Add(start, end, success); err != nil {
		return err
	}
	return s.all.Add(start, end, success)
}

// AddUserStart registers a user start for scenario.
func (s *Simulation) AddUserStart(scenario string) {
	total, ok := s.users[scenario]
	if !ok {
		total = &RunningTotal{}
		s.users[scenario] = total
	}
	total.Incr()
}

// AddUserEnd registers a user end for scenario. Ends for a scenario that
// never saw a start are ignored.
func (s *Simulation) AddUserEnd(scenario string) {
	if total, ok := s.users[scenario]; ok {
		total.Decr()
	}
}

// Finalize computes every derived statistic. The run-level max users is the
// sum of the per-scenario peaks; each request uses the peak of its own
// scenario, or 1 when that scenario never registered a user.
func (s *Simulation) Finalize() error {
	if s.finalized {
		return ErrFinalized
	}
	s.finalized = true

	s.maxUsers = 0
	for _, total := range s.users {
		s.maxUsers += total.Max()
	}

	duration := s.all.ElapsedMillis()
	if err := s.all.Finalize(duration, s.maxUsers); err != nil {
		return err
	}

	for _, req := range s.requests {
		maxUsers := 1
		if total, ok := s.users[req.Scenario()]; ok {
			maxUsers = total.Max()
		}
		if err := req.Finalize(duration, maxUsers); err != nil {
			return err
		}
	}
	return nil
}

// Finalized reports whether Finalize has been called.
func (s *Simulation) Finalized() bool {
	return s.finalized
}

// MaxUsers returns the sum of per-scenario peaks, valid after Finalize.
func (s *Simulation) MaxUsers() int {
	return s.maxUsers
}

// UserPeaks returns the peak of concurrent users per scenario.
func (s *Simulation) UserPeaks() map[string]int {
	peaks := make(map[string]int, len(s.users))
	for name, total := range s.users {
		peaks[name] = total.Max()
	}
	return peaks
}

// Requests returns the finalized per-request summaries sorted by ascending
// average duration, ties broken by request name.
func (s *Simulation) Requests() ([]RequestSummary, error) {
	if !s.finalized {
		return nil, ErrNotFinalized
	}

	ret := make([]RequestSummary, 0, len(s.requests))
	for _, req := range s.requests {
		sum, err := req.Summary()
		if err != nil {
			return nil, err
		}
		ret = append(ret, sum)
	}
	SortByAvg(ret)
	return ret, nil
}

// Summary builds the immutable view of a finalized run.
func (s *Simulation) Summary() (SimulationSummary, error) {
	all, err := s.all.Summary()
	if err != nil {
		return SimulationSummary{}, err
	}
	requests, err := s.Requests()
	if err != nil {
		return SimulationSummary{}, err
	}

	return SimulationSummary{
		FilePath:       s.filePath,
		Simulation:     s.name,
		Scenario:       s.scenario,
		Start:          all.Start,
		DurationMillis: all.DurationMillis,
		MaxUsers:       s.maxUsers,
		UserPeaks:      s.UserPeaks(),
		All:            all,
		Requests:       requests,
	}, nil
}

// SortByAvg sorts summaries by ascending average duration, then by name.
func SortByAvg(requests []RequestSummary) {
	sort.SliceStable(requests, func(i, j int) bool {
		if requests[i].Avg != requests[j].Avg {
			return requests[i].Avg < requests[j].Avg
		}
		return requests[i].Request < requests[j].Request
	})
}
