package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/locbench/locbench/internal/dataset"
	"github.com/locbench/locbench/internal/grid"
	"github.com/locbench/locbench/internal/harness"
	"github.com/locbench/locbench/internal/report"
	"github.com/locbench/locbench/internal/runner"
)

var (
	flagGridDataset  string
	flagGridOutput   string
	flagGridTurns    []int
	flagGridTemps    []float64
	flagGridLimit    int
	flagGridShuffle  bool
	flagGridSeed     int64
	flagGridParallel int
	flagGridDryRun   bool
)

func newGridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Sweep max-turns and temperature combinations",
		RunE:  runGrid,
	}
	cmd.Flags().StringVar(&flagGridDataset, "dataset", "", "dataset JSONL path")
	cmd.Flags().StringVar(&flagGridOutput, "output", "", "output directory (default: results dir from config)")
	cmd.Flags().IntSliceVar(&flagGridTurns, "turns", nil, "max-turns axis values")
	cmd.Flags().Float64SliceVar(&flagGridTemps, "temperatures", nil, "temperature axis values")
	cmd.Flags().IntVar(&flagGridLimit, "limit", 0, "run at most N cases per combination")
	cmd.Flags().BoolVar(&flagGridShuffle, "shuffle", false, "shuffle cases before applying --limit")
	cmd.Flags().Int64Var(&flagGridSeed, "seed", 42, "shuffle seed")
	cmd.Flags().IntVar(&flagGridParallel, "parallel", 0, "override concurrent combinations")
	cmd.Flags().BoolVar(&flagGridDryRun, "dry-run", false, "list combinations without running them")
	cmd.MarkFlagRequired("dataset")
	cmd.MarkFlagRequired("turns")
	cmd.MarkFlagRequired("temperatures")
	return cmd
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	axes := grid.Axes{MaxTurns: flagGridTurns, Temperatures: flagGridTemps}
	combos := axes.Combinations()
	if flagGridDryRun {
		fmt.Printf("%d combinations:\n", len(combos))
		for _, c := range combos {
			fmt.Printf("  %s\n", c.Name())
		}
		return nil
	}

	opts := dataset.Options{Limit: flagGridLimit, Shuffle: flagGridShuffle, Seed: flagGridSeed}
	cases, err := dataset.Load(flagGridDataset, opts)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("dataset %s selected no cases", flagGridDataset)
	}

	h, err := harness.New(cfg.Harness, log)
	if err != nil {
		return err
	}
	snapshots := newSnapshotManager(cfg, log)
	snapshots.Prewarm(cmd.Context(), dataset.Repos(cases), cfg.PrewarmParallel)

	fingerprint, err := report.Fingerprint(flagGridDataset)
	if err != nil {
		return err
	}

	outDir := flagGridOutput
	if outDir == "" {
		outDir = cfg.ResultsDir
	}
	parallel := cfg.Grid.Parallel
	if flagGridParallel > 0 {
		parallel = flagGridParallel
	}

	coord := grid.New(snapshots, h, grid.Options{
		OutputDir: outDir,
		Parallel:  parallel,
		RunOpts: runner.Options{
			Timeout:    time.Duration(cfg.Run.TimeoutSeconds) * time.Second,
			Budget:     cfg.Harness.Budget(),
			FailFast:   cfg.Run.FailFast,
			PromptFile: cfg.Run.PromptFile,
		},
		Meta: report.Metadata{
			Harness:    cfg.Harness.Type,
			PromptFile: cfg.Run.PromptFile,
			Seed:       flagGridSeed,
			Shuffle:    flagGridShuffle,
			Limit:      flagGridLimit,
			Dataset:    fingerprint,
		},
	}, log)

	summary, err := coord.Run(cmd.Context(), axes, cases)
	if err != nil {
		return err
	}

	best, err := summary.Best()
	if err != nil {
		return err
	}
	fmt.Printf("\n--- Grid (%d combinations) ---\n", len(summary.Entries))
	for _, e := range summary.Entries {
		marker := "  "
		if e.Combination == best.Combination {
			marker = "* "
		}
		fmt.Printf("%s%-16s quality %.3f\n", marker, e.Combination, e.AvgQualityScore)
	}
	return nil
}
