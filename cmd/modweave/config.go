package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"modweave/internal/core/config"
)

func newConfigCmd(c *cli) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the modweave config",
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Load and validate the config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireConfig(c); err != nil {
				return err
			}
			paths, err := c.paths()
			if err != nil {
				return err
			}
			source := c.loaded
			if source == "" {
				source = "built-in defaults"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %s\n", source)
			fmt.Fprintf(out, "stages: %s\n", strings.Join(c.cfg.Pipeline.Stages, ", "))
			fmt.Fprintf(out, "corelib scopes: %s\n", strings.Join(c.cfg.Relink.CoreLibScopes, ", "))
			if c.cfg.History.Enabled {
				fmt.Fprintf(out, "history: %s\n", paths.HistoryDB)
			} else {
				fmt.Fprintln(out, "history: disabled")
			}
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		// Skips the root hook; there is no config to load yet.
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFile
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			slog.Debug("config written", "path", path)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	configCmd.AddCommand(checkCmd, initCmd)
	return configCmd
}
