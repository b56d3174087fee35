package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"gatling-report/pkg/diff"
	"gatling-report/pkg/stats"
)

type diffFlags struct {
	json   bool
	stored bool
}

func newDiffCmd(a *app) *cobra.Command {
	var f diffFlags

	cmd := &cobra.Command{
		Use:   "diff REFERENCE CHALLENGER",
		Short: "Compare a challenger run against a reference run",
		Long: `Compare two runs. Arguments are simulation logs, or stored summary IDs
with --stored. Percentages are challenger relative to reference; "win"
means the challenger is at least as good.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDiff(cmd, args[0], args[1], f)
		},
	}

	cmd.Flags().BoolVar(&f.json, "json", false, "print the comparison as JSON")
	cmd.Flags().BoolVar(&f.stored, "stored", false, "arguments are stored summary IDs")
	return cmd
}

func (a *app) runDiff(cmd *cobra.Command, reference, challenger string, f diffFlags) error {
	ctx := cmd.Context()
	locations := []string{reference, challenger}

	m, err := a.manager(ctx, locations, f.stored, false)
	if err != nil {
		return err
	}

	summaries := make([]stats.SimulationSummary, 2)
	if f.stored {
		for i, id := range locations {
			s, err := m.Get(id)
			if err != nil {
				return err
			}
			summaries[i] = *s
		}
	} else {
		for i, o := range m.Run(ctx, locations) {
			if o.Err != nil {
				return o.Err
			}
			summaries[i] = o.Result.Summary
		}
	}

	res := diff.Compare(summaries[0], summaries[1])
	if f.json {
		encoder := json.NewEncoder(a.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(res)
	}
	return printDiff(a.out, res)
}
