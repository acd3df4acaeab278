// Package cmd wires the CLI surface. Commands parse flags, build the
// config object, and hand off to the internal packages; no evaluation
// logic lives here.
package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/locbench/locbench/internal/config"
	"github.com/locbench/locbench/internal/snapshot"
)

var (
	cfgFile     string
	flagVerbose bool
)

const defaultConfigPath = "locbench.yaml"

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "locbench",
		Short:         "Benchmark harness for code localization tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newRunCmd())
	root.AddCommand(newGridCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newBuildDatasetCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	explicit := cfgFile != defaultConfigPath
	return config.Load(cfgFile, explicit)
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

func newSnapshotManager(cfg *config.Config, log zerolog.Logger) *snapshot.Manager {
	policy := snapshot.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
		Jitter:      cfg.Retry.Jitter,
	}
	return snapshot.NewManager(cfg.CacheDir, policy, log)
}
