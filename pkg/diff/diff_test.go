package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatling-report/pkg/stats"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name       string
		reference  float64
		challenger float64
		dir        Direction
		want       Delta
	}{
		{"faster", 100, 80, LowerIsBetter, Delta{"-20.00", Win}},
		{"slower", 100, 125, LowerIsBetter, Delta{"+25.00", Loose}},
		{"tie lower", 50, 50, LowerIsBetter, Delta{"+0.00", Win}},
		{"more throughput", 10, 12, HigherIsBetter, Delta{"+20.00", Win}},
		{"less throughput", 10, 5, HigherIsBetter, Delta{"-50.00", Loose}},
		{"tie higher", 10, 10, HigherIsBetter, Delta{"+0.00", Win}},
		{"zero reference", 0, 42, LowerIsBetter, Delta{ZeroPercent, Loose}},
		{"zero both", 0, 0, HigherIsBetter, Delta{ZeroPercent, Win}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percent(tt.reference, tt.challenger, tt.dir))
		})
	}
}

func TestCount(t *testing.T) {
	assert.Equal(t, Delta{"+3", Loose}, Count(2, 5, LowerIsBetter))
	assert.Equal(t, Delta{"-2", Win}, Count(5, 3, LowerIsBetter))
	assert.Equal(t, Delta{"+0", Win}, Count(4, 4, LowerIsBetter))
}

func request(name string, avg float64, count, errors int64) stats.RequestSummary {
	return stats.RequestSummary{
		Simulation: "sim",
		Scenario:   "scn",
		Request:    name,
		Count:      count,
		ErrorCount: errors,
		Min:        int64(avg / 2),
		Max:        int64(avg * 2),
		Avg:        avg,
		P50:        int64(avg),
		P95:        int64(avg * 1.5),
		P99:        int64(avg * 2),
	}
}

func run(start int64, duration int64, users int, all stats.RequestSummary, requests ...stats.RequestSummary) stats.SimulationSummary {
	return stats.SimulationSummary{
		FilePath:       "simulation.log",
		Simulation:     "sim",
		Scenario:       "scn",
		Start:          start,
		DurationMillis: duration,
		MaxUsers:       users,
		All:            all,
		Requests:       requests,
	}
}

func TestCompare(t *testing.T) {
	refAll := request(stats.AllRequests, 100, 200, 4)
	refAll.RPS = 20
	refAll.Max = 900
	chAll := request(stats.AllRequests, 80, 220, 1)
	chAll.RPS = 22
	chAll.Max = 1200

	reference := run(1000, 10000, 10, refAll,
		request("home", 50, 100, 0),
		request("search", 150, 80, 4),
		request("legacy", 120, 20, 0),
	)
	challenger := run(5000, 9000, 10, chAll,
		request("search", 100, 90, 1),
		request("home", 60, 100, 0),
		request("export", 300, 10, 0),
		request("report", 200, 20, 0),
	)

	res := Compare(reference, challenger)

	assert.Equal(t, Delta{"-20.00", Win}, res.Avg)
	assert.Equal(t, Delta{"+10.00", Win}, res.RPS)
	assert.Equal(t, Delta{"-10.00", Win}, res.Duration)
	assert.Equal(t, Delta{"+10.00", Win}, res.RequestCount)
	assert.Equal(t, Delta{"-3", Win}, res.ErrorCount)
	assert.Equal(t, Delta{"+0.00", Win}, res.MaxUsers)
	assert.Equal(t, int64(1200), res.Max)
	assert.Equal(t, int64(1000), res.Reference.Start)
	assert.Equal(t, int64(5000), res.Challenger.Start)

	names := make([]string, 0, len(res.Requests))
	for _, r := range res.Requests {
		names = append(names, r.Request)
	}
	assert.Equal(t, []string{"search", "legacy", "home", "export", "report"}, names)

	search := res.Requests[0]
	assert.Equal(t, Delta{"-33.33", Win}, search.Avg)
	assert.Equal(t, Delta{"+12.50", Win}, search.Count)
	assert.Equal(t, Delta{"-3", Win}, search.Errors)
	assert.False(t, search.ReferenceOnly)
	assert.False(t, search.ChallengerOnly)

	legacy := res.Requests[1]
	assert.True(t, legacy.ReferenceOnly)
	assert.Equal(t, int64(0), legacy.Challenger.Count)
	assert.Equal(t, "legacy", legacy.Challenger.Request)
	assert.Equal(t, Delta{"-100.00", Win}, legacy.Avg)
	assert.Equal(t, Delta{"-100.00", Loose}, legacy.Count)

	home := res.Requests[2]
	assert.Equal(t, Delta{"+20.00", Loose}, home.Avg)
	assert.Equal(t, Delta{"+20.00", Loose}, home.P50)

	export := res.Requests[3]
	assert.True(t, export.ChallengerOnly)
	assert.Equal(t, Delta{ZeroPercent, Loose}, export.Avg)
	assert.Equal(t, Delta{ZeroPercent, Win}, export.Count)

	wins, losses := res.Wins()
	assert.Equal(t, 2, wins)
	assert.Equal(t, 3, losses)
}

func TestCompareDoesNotReorderInput(t *testing.T) {
	reference := run(0, 1000, 1, request(stats.AllRequests, 10, 3, 0),
		request("a", 5, 1, 0), request("b", 10, 1, 0), request("c", 15, 1, 0))

	res := Compare(reference, reference)
	require.Len(t, res.Requests, 3)
	assert.Equal(t, "c", res.Requests[0].Request)
	assert.Equal(t, "a", reference.Requests[0].Request)

	for _, r := range res.Requests {
		assert.Equal(t, Win, r.Avg.Class, r.Request)
		assert.Equal(t, "+0.00", r.Avg.Value, r.Request)
	}
}

func TestCompareSimulationsRequiresFinalized(t *testing.T) {
	ref := stats.NewSimulation("ref.log", nil)
	ch := stats.NewSimulation("ch.log", nil)
	require.NoError(t, ref.AddRequest("scn", "home", 0, 10, true))
	require.NoError(t, ch.AddRequest("scn", "home", 0, 20, true))

	_, err := CompareSimulations(ref, ch)
	assert.ErrorIs(t, err, stats.ErrNotFinalized)

	require.NoError(t, ref.Finalize())
	require.NoError(t, ch.Finalize())

	res, err := CompareSimulations(ref, ch)
	require.NoError(t, err)
	require.Len(t, res.Requests, 1)
	assert.Equal(t, Delta{"+100.00", Loose}, res.Requests[0].Avg)
}
