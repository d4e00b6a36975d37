package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modweave/internal/engine/query"
)

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <pattern>",
		Short: "Parse a symbol query and print its compiled patterns",
		Long: `Parse a symbol query such as "[Game] Game.Player.*&&*Renderer" and
print one line per compiled pattern. Grammar errors are reported with the
offending pattern.`,
		Example: `  modweave query 'Game.Player.Heal(int)'
  modweave query '[UnityEngine] UnityEngine.*&&*Behaviour'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns, err := query.ParsePatterns(args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PATTERN\tASSEMBLY\tMATCH\tPARAMETERS")
			for _, p := range patterns {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p, orDash(p.AssemblyName), matchKind(p), parameters(p))
			}
			return w.Flush()
		},
	}
}

func matchKind(p query.Pattern) string {
	switch {
	case p.StartsWith:
		return "prefix"
	case p.EndsWith:
		return "suffix"
	default:
		return "exact"
	}
}

func parameters(p query.Pattern) string {
	if !p.HasParameters {
		return "-"
	}
	return "(" + strings.Join(p.Parameters, ", ") + ")"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
