package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"modweave/internal/core/config"
	"modweave/internal/core/errors"
	"modweave/internal/shared/observability"
)

// cli carries the persistent flags and the state PersistentPreRunE builds.
type cli struct {
	configPath string
	verbose    bool

	cfg      *config.Config
	loaded   string
	shutdown func(context.Context) error
}

func main() {
	if err := newRootCmd(os.Stderr).Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:   "modweave",
		Short: "Metadata-driven module rewriting",
		Long: `modweave schedules modification units over a loaded module and
rewrites its references, hooks and core library links.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context(), logOut)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if c.shutdown == nil {
				return nil
			}
			return c.shutdown(context.WithoutCancel(cmd.Context()))
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to config file (default ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().BoolVar(&c.verbose, "verbose", false, "Enable verbose logging")

	rootCmd.AddCommand(
		newStagesCmd(),
		newQueryCmd(),
		newConfigCmd(c),
		newHistoryCmd(c),
		newVersionCmd(),
	)
	return rootCmd
}

func (c *cli) setup(ctx context.Context, logOut io.Writer) error {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	cfg, path, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	c.cfg, c.loaded = cfg, path
	slog.Debug("config loaded", "path", path)

	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.Observability.OTLPEndpoint,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		return err
	}
	c.shutdown = shutdown
	return nil
}

// loadConfig loads the explicit path, or the default file when it exists.
// Without either the built-in defaults apply, with env overrides on top.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	if _, err := os.Stat(config.DefaultFile); err == nil {
		cfg, err := config.Load(config.DefaultFile)
		return cfg, config.DefaultFile, err
	}
	cfg := config.DefaultConfig()
	config.ApplyEnvOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

func (c *cli) paths() (config.ResolvedPaths, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.ResolvedPaths{}, fmt.Errorf("resolve working directory: %w", err)
	}
	configPath := c.loaded
	if configPath == "" {
		configPath = filepath.Join(cwd, config.DefaultFile)
	}
	return config.ResolvePaths(c.cfg, configPath, cwd), nil
}

func requireConfig(c *cli) error {
	if c.cfg == nil {
		return errors.New(errors.CodeInternal, "config not loaded")
	}
	return nil
}
