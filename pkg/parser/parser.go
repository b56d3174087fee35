package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"gatling-report/pkg/source"
	"gatling-report/pkg/stats"
)

const (
	// UnknownScenario replaces a binary USER scenario index that the RUN
	// record does not declare.
	UnknownScenario = "unknown"
	// DefaultScenario attributes binary requests of a run declaring no
	// scenario.
	DefaultScenario = "default"
)

// Observer receives parse events, typically to export them as metrics
type Observer interface {
	RecordDecoded(t RecordType)
	RecordInvalid()
	CacheMiss()
	FileParsed(v Variant, elapsed time.Duration, err error)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) RecordDecoded(RecordType)                 {}
func (NopObserver) RecordInvalid()                           {}
func (NopObserver) CacheMiss()                               {}
func (NopObserver) FileParsed(Variant, time.Duration, error) {}

// Options configure one parse
type Options struct {
	// ApdexThreshold in milliseconds, 0 disables apdex.
	ApdexThreshold float64
	Logger         zerolog.Logger
	Observer       Observer
	// ArenaSize is the initial binary read buffer, 0 for DefaultArenaSize.
	ArenaSize int
}

func (o Options) observer() Observer {
	if o.Observer == nil {
		return NopObserver{}
	}
	return o.Observer
}

func (o Options) apdex() *float64 {
	if o.ApdexThreshold <= 0 {
		return nil
	}
	t := o.ApdexThreshold
	return &t
}

// Input is a readable log that can be sniffed without consuming it
type Input interface {
	io.Reader
	Peeker
}

// Result is the outcome of one successful parse
type Result struct {
	Header   Header                  `json:"header"`
	Variant  string                  `json:"variant"`
	Counters Counters                `json:"counters"`
	Summary  stats.SimulationSummary `json:"summary"`
}

// Parse sniffs, parses and finalizes one simulation log. No summary is
// returned for a failed parse.
func Parse(ctx context.Context, name string, in Input, opts Options) (*Result, error) {
	began := time.Now()
	logger := opts.Logger.With().Str("file", name).Logger()
	opts.Logger = logger

	header, err := Sniff(in)
	if err == nil {
		var variant Variant
		variant, err = SelectVariant(header)
		if err == nil {
			return parseVariant(ctx, name, in, header, variant, began, opts)
		}
	}
	opts.observer().FileParsed(0, time.Since(began), err)
	logger.Error().Err(err).Msg("failed to detect simulation log format")
	return nil, err
}

func parseVariant(ctx context.Context, name string, in Input, header Header, variant Variant, began time.Time, opts Options) (*Result, error) {
	logger := opts.Logger
	logger.Debug().Str("family", string(header.Family)).Str("version", header.Version).Str("variant", variant.String()).Msg("detected log format")

	sim := stats.NewSimulation(name, opts.apdex())

	var (
		counters Counters
		err      error
	)
	if variant == BinaryV3_13 {
		counters, err = parseBinary(ctx, in, sim, opts)
	} else {
		counters, err = parseText(ctx, in, variant, sim, opts)
	}
	if err == nil {
		err = sim.Finalize()
	}

	opts.observer().FileParsed(variant, time.Since(began), err)
	if err != nil {
		logger.Error().Err(err).Str("variant", variant.String()).Int64("records", counters.Total()).Msg("failed to parse simulation log")
		return nil, err
	}

	summary, err := sim.Summary()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("simulation", summary.Simulation).
		Str("variant", variant.String()).
		Int64("records", counters.Total()).
		Int64("users", counters.User).
		Int64("requests", counters.Request).
		Int64("invalid", counters.Invalid).
		Int64("cache_misses", counters.CacheMisses).
		Dur("elapsed", time.Since(began)).
		Msg("parsed simulation log")

	return &Result{
		Header:   header,
		Variant:  variant.String(),
		Counters: counters,
		Summary:  summary,
	}, nil
}

// ParseFile opens location (a local path or s3:// URL) and parses it
func ParseFile(ctx context.Context, opener *source.Opener, location string, opts Options) (*Result, error) {
	src, err := opener.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return Parse(ctx, location, src, opts)
}

func parseBinary(ctx context.Context, r io.Reader, sim *stats.Simulation, opts Options) (Counters, error) {
	dec := NewDecoder(r, opts.ArenaSize, opts.observer(), opts.Logger)

	var run *RunRecord
	for {
		rec, err := dec.Next(ctx)
		if errors.Is(err, io.EOF) {
			return dec.Counters(), nil
		}
		if err != nil {
			return dec.Counters(), err
		}

		switch rec := rec.(type) {
		case *RunRecord:
			run = rec
			sim.SetSimulationName(rec.Simulation)
			sim.SetStart(rec.Start)
			if len(rec.Scenarios) > 0 {
				sim.SetScenarioName(rec.Scenarios[0])
			}
			opts.Logger.Debug().
				Str("gatling", rec.GatlingVersion).
				Str("simulation", rec.Simulation).
				Int64("start", rec.Start).
				Strs("scenarios", rec.Scenarios).
				Int("assertions", rec.Assertions).
				Msg("run record")

		case *UserRecord:
			scenario := UnknownScenario
			if rec.Scenario >= 0 && int(rec.Scenario) < len(run.Scenarios) {
				scenario = run.Scenarios[rec.Scenario]
			} else {
				opts.Logger.Warn().Int32("index", rec.Scenario).Msg("user record with unknown scenario index")
			}
			if rec.Start {
				sim.AddUserStart(scenario)
			} else {
				sim.AddUserEnd(scenario)
			}

		case *RequestRecord:
			// The binary format does not tie requests to a scenario.
			scenario := DefaultScenario
			if len(run.Scenarios) > 0 {
				scenario = run.Scenarios[0]
			}
			start := run.Start + int64(rec.Start)
			end := run.Start + int64(rec.End)
			if err := sim.AddRequest(scenario, rec.Name, start, end, rec.Success); err != nil {
				return dec.Counters(), fmt.Errorf("add request %q: %w", rec.Name, err)
			}
			opts.Logger.Trace().Str("request", rec.Name).Int64("start", start).Int64("end", end).Bool("success", rec.Success).Msg("request record")

		case *GroupRecord, *ErrorRecord:
		}
	}
}
