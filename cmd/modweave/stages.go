package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modweave/internal/engine/pipeline"
)

func newStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages in run order",
		Long: `List the stages a patch run applies, in the order the modder applies
them, followed by the unit priorities that order work within a stage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSTAGE")
			for i, st := range pipeline.Stages() {
				fmt.Fprintf(w, "%d\t%s\n", i+1, st)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "PRIORITY\tVALUE")
			for _, p := range []struct {
				name  string
				value pipeline.Priority
			}{
				{"Early", pipeline.Early},
				{"Default", pipeline.Default},
				{"Late", pipeline.Late},
				{"Last", pipeline.Last},
			} {
				fmt.Fprintf(w, "%s\t%d\n", p.name, p.value)
			}
			return w.Flush()
		},
	}
}
