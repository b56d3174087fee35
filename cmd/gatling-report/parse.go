package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"gatling-report/pkg/batch"
	"gatling-report/pkg/export"
	"gatling-report/pkg/parser"
	"gatling-report/pkg/stats"
)

type parseFlags struct {
	json    bool
	store   bool
	parquet string
}

// parseOutput is one file of the --json output
type parseOutput struct {
	Path      string                   `json:"path"`
	ID        string                   `json:"id,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Variant   string                   `json:"variant,omitempty"`
	Counters  *parser.Counters         `json:"counters,omitempty"`
	ElapsedMs int64                    `json:"elapsed_ms"`
	Summary   *stats.SimulationSummary `json:"summary,omitempty"`
}

func newParseCmd(a *app) *cobra.Command {
	var f parseFlags

	cmd := &cobra.Command{
		Use:   "parse FILE...",
		Short: "Parse simulation logs and print their statistics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runParse(cmd, args, f)
		},
	}

	cmd.Flags().BoolVar(&f.json, "json", false, "print summaries as JSON")
	cmd.Flags().BoolVar(&f.store, "store", false, "store summaries under the storage path")
	cmd.Flags().StringVar(&f.parquet, "parquet", "", "also write request rows to this parquet file")
	return cmd
}

func (a *app) runParse(cmd *cobra.Command, locations []string, f parseFlags) error {
	ctx := cmd.Context()

	m, err := a.manager(ctx, locations, f.store, false)
	if err != nil {
		return err
	}
	outcomes := m.Run(ctx, locations)

	if f.parquet != "" {
		if err := writeParquet(f.parquet, outcomes); err != nil {
			return err
		}
		a.logger.Info().Str("file", f.parquet).Msg("wrote parquet export")
	}

	if f.json {
		if err := a.printJSON(outcomes); err != nil {
			return err
		}
	} else {
		printed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				continue
			}
			if printed > 0 {
				fmt.Fprintln(a.out)
			}
			printed++
			if err := printStats(a.out, o.Result.Summary); err != nil {
				return err
			}
		}
	}

	failed := len(outcomes) - batch.Succeeded(outcomes)
	for _, o := range outcomes {
		if o.Err != nil {
			a.logger.Error().Err(o.Err).Str("file", o.Path).Msg("failed to parse")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(outcomes))
	}
	return nil
}

func (a *app) printJSON(outcomes []batch.Outcome) error {
	out := make([]parseOutput, 0, len(outcomes))
	for _, o := range outcomes {
		p := parseOutput{Path: o.Path, ID: o.ID, ElapsedMs: o.Elapsed.Milliseconds()}
		if o.Err != nil {
			p.Error = o.Err.Error()
		} else {
			p.Variant = o.Result.Variant
			p.Counters = &o.Result.Counters
			p.Summary = &o.Result.Summary
		}
		out = append(out, p)
	}

	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func writeParquet(path string, outcomes []batch.Outcome) error {
	pw, err := export.NewParquetWriter(path)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		if err := pw.Write(o.Result.Summary); err != nil {
			pw.Close()
			return err
		}
	}
	return pw.Close()
}
