package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"gatling-report/pkg/diff"
	"gatling-report/pkg/stats"
)

func formatStart(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatApdex(a *float64) string {
	if a == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *a)
}

// printStats dumps one run: header block then a request table, slowest first
func printStats(w io.Writer, s stats.SimulationSummary) error {
	peaks := make([]string, 0, len(s.UserPeaks))
	for scenario, peak := range s.UserPeaks {
		peaks = append(peaks, fmt.Sprintf("%s: %d", scenario, peak))
	}
	sort.Strings(peaks)

	fmt.Fprintf(w, "File:        %s\n", s.FilePath)
	fmt.Fprintf(w, "Simulation:  %s\n", s.Simulation)
	fmt.Fprintf(w, "Scenario:    %s\n", s.Scenario)
	fmt.Fprintf(w, "Start:       %s\n", formatStart(s.Start))
	fmt.Fprintf(w, "Duration:    %s\n", time.Duration(s.DurationMillis)*time.Millisecond)
	fmt.Fprintf(w, "Max users:   %d (%s)\n", s.MaxUsers, strings.Join(peaks, ", "))
	fmt.Fprintf(w, "Requests:    %d (%d errors)\n\n", s.All.Count, s.All.ErrorCount)

	requests := make([]stats.RequestSummary, len(s.Requests))
	copy(requests, s.Requests)
	sort.SliceStable(requests, func(i, j int) bool { return requests[i].Avg > requests[j].Avg })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "request\tcount\terrors\tmin\tp50\tp95\tp99\tmax\tavg\tstddev\trps\tapdex\t")
	for _, r := range append(requests, s.All) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%s\t\n",
			r.Request, r.Count, r.ErrorCount, r.Min, r.P50, r.P95, r.P99, r.Max,
			r.Avg, r.StdDev, r.RPS, formatApdex(r.Apdex))
	}
	return tw.Flush()
}

var (
	winColor   = color.New(color.FgGreen).SprintFunc()
	looseColor = color.New(color.FgRed).SprintFunc()
)

func delta(d diff.Delta) string {
	if d.Class == diff.Win {
		return winColor(d.Value)
	}
	return looseColor(d.Value)
}

// printDiff renders a comparison, percentages unless noted
func printDiff(w io.Writer, res diff.Result) error {
	fmt.Fprintf(w, "Reference:   %s (%s, %s)\n", res.Reference.Simulation, res.Reference.FilePath, formatStart(res.Reference.Start))
	fmt.Fprintf(w, "Challenger:  %s (%s, %s)\n\n", res.Challenger.Simulation, res.Challenger.FilePath, formatStart(res.Challenger.Start))

	fmt.Fprintf(w, "Avg:         %s %%\n", delta(res.Avg))
	fmt.Fprintf(w, "Throughput:  %s %%\n", delta(res.RPS))
	fmt.Fprintf(w, "Duration:    %s %%\n", delta(res.Duration))
	fmt.Fprintf(w, "Requests:    %s %%\n", delta(res.RequestCount))
	fmt.Fprintf(w, "Errors:      %s\n", delta(res.ErrorCount))
	fmt.Fprintf(w, "Max users:   %s %%\n\n", delta(res.MaxUsers))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "request\tavg ms\tavg\tmin\tp50\tp95\tp99\tmax\tcount\terrors\t")
	for _, r := range res.Requests {
		name := r.Request
		switch {
		case r.ReferenceOnly:
			name += " (reference only)"
		case r.ChallengerOnly:
			name += " (challenger only)"
		}
		fmt.Fprintf(tw, "%s\t%.0f -> %.0f\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			name, r.Reference.Avg, r.Challenger.Avg,
			delta(r.Avg), delta(r.Min), delta(r.P50), delta(r.P95), delta(r.P99), delta(r.Max),
			delta(r.Count), delta(r.Errors))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	wins, losses := res.Wins()
	fmt.Fprintf(w, "\nwin: %d, loose: %d\n", wins, losses)
	return nil
}
