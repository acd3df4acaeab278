package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/locbench/locbench/internal/dataset"
	"github.com/locbench/locbench/internal/harness"
	"github.com/locbench/locbench/internal/report"
	"github.com/locbench/locbench/internal/runner"
)

var (
	flagDataset     string
	flagOutput      string
	flagLimit       int
	flagShuffle     bool
	flagSeed        int64
	flagMaxTurns    int
	flagTemperature float64
	flagPromptFile  string
	flagTimeout     int
	flagFailFast    int
	flagResume      bool
	flagDryRun      bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a benchmark run",
		RunE:  runBenchmark,
	}
	cmd.Flags().StringVar(&flagDataset, "dataset", "", "dataset JSONL path")
	cmd.Flags().StringVar(&flagOutput, "output", "", "output directory (default: results dir from config)")
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "run at most N cases")
	cmd.Flags().BoolVar(&flagShuffle, "shuffle", false, "shuffle cases before applying --limit")
	cmd.Flags().Int64Var(&flagSeed, "seed", 42, "shuffle seed")
	cmd.Flags().IntVar(&flagMaxTurns, "max-turns", 0, "override max agent turns")
	cmd.Flags().Float64Var(&flagTemperature, "temperature", -1, "override sampling temperature")
	cmd.Flags().StringVar(&flagPromptFile, "prompt-file", "", "override system prompt file")
	cmd.Flags().IntVar(&flagTimeout, "timeout", 0, "override per-case timeout in seconds")
	cmd.Flags().IntVar(&flagFailFast, "fail-fast", 0, "abort after N consecutive failures (0 disables)")
	cmd.Flags().BoolVar(&flagResume, "resume", false, "skip cases already in the results log")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "list selected cases without running them")
	cmd.MarkFlagRequired("dataset")
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	if flagMaxTurns > 0 {
		cfg.Run.MaxTurns = flagMaxTurns
	}
	if flagTemperature >= 0 {
		cfg.Run.Temperature = flagTemperature
	}
	if flagPromptFile != "" {
		cfg.Run.PromptFile = flagPromptFile
	}
	if flagTimeout > 0 {
		cfg.Run.TimeoutSeconds = flagTimeout
	}
	if flagFailFast > 0 {
		cfg.Run.FailFast = flagFailFast
	}

	opts := dataset.Options{Limit: flagLimit, Shuffle: flagShuffle, Seed: flagSeed}
	cases, err := dataset.Load(flagDataset, opts)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("dataset %s selected no cases", flagDataset)
	}

	if flagDryRun {
		fmt.Printf("Selected %d cases:\n", len(cases))
		for _, c := range cases {
			fmt.Printf("  %s  %s@%.12s\n", c.ID, c.Repo, c.BaseCommit)
		}
		return nil
	}

	outDir := flagOutput
	if outDir == "" {
		outDir = cfg.ResultsDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	h, err := harness.New(cfg.Harness, log)
	if err != nil {
		return err
	}
	snapshots := newSnapshotManager(cfg, log)
	snapshots.Prewarm(cmd.Context(), dataset.Repos(cases), cfg.PrewarmParallel)

	fingerprint, err := report.Fingerprint(flagDataset)
	if err != nil {
		return err
	}
	meta := report.Metadata{
		RunID:       report.NewRunID(),
		StartedAt:   time.Now().UTC(),
		Harness:     cfg.Harness.Type,
		MaxTurns:    cfg.Run.MaxTurns,
		Temperature: cfg.Run.Temperature,
		PromptFile:  cfg.Run.PromptFile,
		Seed:        flagSeed,
		Shuffle:     flagShuffle,
		Limit:       flagLimit,
		Dataset:     fingerprint,
	}

	run := runner.New(snapshots, h, runner.Options{
		Timeout:     time.Duration(cfg.Run.TimeoutSeconds) * time.Second,
		Budget:      cfg.Harness.Budget(),
		FailFast:    cfg.Run.FailFast,
		MaxTurns:    cfg.Run.MaxTurns,
		Temperature: cfg.Run.Temperature,
		PromptFile:  cfg.Run.PromptFile,
		Resume:      flagResume,
	}, log)

	logPath := filepath.Join(outDir, "results.jsonl")
	results, runErr := run.Run(cmd.Context(), cases, logPath)
	meta.CompletedAt = time.Now().UTC()

	rep := report.Build(results, meta)
	reportPath := filepath.Join(outDir, "report.json")
	if err := report.Write(reportPath, rep); err != nil {
		return err
	}

	printSummary(rep, reportPath)
	return runErr
}

func printSummary(r *report.Report, reportPath string) {
	fmt.Printf("\n--- Run %s ---\n", r.Metadata.RunID)
	fmt.Printf("cases:        %d (success %d, partial %d, error %d, timeout %d)\n",
		r.TotalCases, r.Completed, r.Partial, r.Errors, r.Timeouts)
	fmt.Printf("file recall:  %.3f\n", r.AvgFileRecall)
	fmt.Printf("file f1:      %.3f\n", r.AvgFileF1)
	fmt.Printf("line prec:    %.3f\n", r.AvgLinePrecisionMatched)
	fmt.Printf("line cover:   %.3f\n", r.AvgLineCoverage)
	if r.FunctionCases > 0 {
		fmt.Printf("func hit:     %.3f (over %d cases)\n", r.AvgFunctionHitRate, r.FunctionCases)
	}
	fmt.Printf("quality:      %.3f\n", r.AvgQualityScore)
	fmt.Printf("report:       %s\n", reportPath)
}
