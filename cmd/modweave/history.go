package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"modweave/internal/core/app"
	"modweave/internal/data/history"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent patch runs",
		Long: `Show the most recent patch runs journaled in the history database,
newest first, with the number of stages each run applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireConfig(c); err != nil {
				return err
			}
			paths, err := c.paths()
			if err != nil {
				return err
			}
			store, err := history.Open(paths.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			a, err := app.New(c.cfg, paths, app.Dependencies{History: store})
			if err != nil {
				return err
			}
			runs, err := a.PatchService().RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintf(out, "no runs recorded in %s\n", store.Path())
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tMODULE\tSTARTED\tDURATION\tSTAGES")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					run.ID, run.Status, orDash(run.Module),
					run.StartedAt.Format(time.RFC3339), run.Duration().Round(time.Millisecond), applied(run))
			}
			return w.Flush()
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs to show (0 for all)")
	return historyCmd
}

func applied(run history.Run) int {
	n := 0
	for _, st := range run.Stages {
		if !st.Cancelled {
			n++
		}
	}
	return n
}
