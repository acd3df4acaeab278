// Package grid sweeps the Cartesian product of configuration axes,
// running one full benchmark pass per combination and collecting the
// per-combination reports into a grid summary.
package grid

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/locbench/locbench/internal/dataset"
	"github.com/locbench/locbench/internal/harness"
	"github.com/locbench/locbench/internal/report"
	"github.com/locbench/locbench/internal/runner"
)

// Axes are the swept configuration dimensions.
type Axes struct {
	MaxTurns     []int
	Temperatures []float64
}

// Combination is one point in the product.
type Combination struct {
	MaxTurns    int
	Temperature float64
}

// Name returns a filesystem-safe label, e.g. "t6__temp0p2".
func (c Combination) Name() string {
	temp := strconv.FormatFloat(c.Temperature, 'g', -1, 64)
	temp = strings.ReplaceAll(temp, ".", "p")
	return fmt.Sprintf("t%d__temp%s", c.MaxTurns, temp)
}

// Combinations expands the axes into their full Cartesian product, in
// axis order.
func (a Axes) Combinations() []Combination {
	var combos []Combination
	for _, turns := range a.MaxTurns {
		for _, temp := range a.Temperatures {
			combos = append(combos, Combination{MaxTurns: turns, Temperature: temp})
		}
	}
	return combos
}

// Options parameterize a grid sweep. RunOpts supplies everything a
// single pass needs except the swept MaxTurns and Temperature, which
// each combination overrides.
type Options struct {
	OutputDir string
	Parallel  int
	RunOpts   runner.Options
	Meta      report.Metadata
}

type Coordinator struct {
	snapshots runner.SnapshotProvider
	harness   harness.Harness
	log       zerolog.Logger
	opts      Options
}

func New(snapshots runner.SnapshotProvider, h harness.Harness, opts Options, log zerolog.Logger) *Coordinator {
	return &Coordinator{snapshots: snapshots, harness: h, log: log, opts: opts}
}

// Run executes one benchmark pass per combination, bounded by the
// configured parallelism, and writes the grid summary to OutputDir.
// Per-combination failures do not stop other combinations.
func (g *Coordinator) Run(ctx context.Context, axes Axes, cases []dataset.Case) (*report.GridSummary, error) {
	combos := axes.Combinations()
	if len(combos) == 0 {
		return nil, fmt.Errorf("grid axes produce no combinations")
	}
	if err := os.MkdirAll(g.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating grid output dir: %w", err)
	}

	parallel := g.opts.Parallel
	if parallel < 1 {
		parallel = 1
	}
	entries := make([]report.GridEntry, len(combos))
	var pool errgroup.Group
	pool.SetLimit(parallel)
	for i, combo := range combos {
		pool.Go(func() error {
			entry, err := g.runCombination(ctx, combo, cases)
			if err != nil {
				// Failures are logged here rather than returned so the
				// remaining combinations keep running.
				g.log.Error().Err(err).Str("combination", combo.Name()).Msg("grid combination failed")
				return nil
			}
			entries[i] = entry
			return nil
		})
	}
	pool.Wait()

	summary := &report.GridSummary{}
	for _, entry := range entries {
		if entry.Combination != "" {
			summary.Entries = append(summary.Entries, entry)
		}
	}
	if len(summary.Entries) == 0 {
		return nil, fmt.Errorf("every grid combination failed")
	}

	summaryPath := filepath.Join(g.opts.OutputDir, "grid_summary.json")
	if err := report.WriteGridSummary(summaryPath, summary); err != nil {
		return nil, err
	}
	g.log.Info().
		Int("combinations", len(summary.Entries)).
		Str("summary", summaryPath).
		Msg("grid sweep complete")
	return summary, nil
}

func (g *Coordinator) runCombination(ctx context.Context, combo Combination, cases []dataset.Case) (report.GridEntry, error) {
	name := combo.Name()
	logPath := filepath.Join(g.opts.OutputDir, name+".results.jsonl")
	reportPath := filepath.Join(g.opts.OutputDir, name+".report.json")

	opts := g.opts.RunOpts
	opts.MaxTurns = combo.MaxTurns
	opts.Temperature = combo.Temperature

	g.log.Info().Str("combination", name).Msg("starting combination")
	run := runner.New(g.snapshots, g.harness, opts, g.log.With().Str("combination", name).Logger())

	meta := g.opts.Meta
	meta.RunID = report.NewRunID()
	meta.StartedAt = time.Now().UTC()
	meta.MaxTurns = combo.MaxTurns
	meta.Temperature = combo.Temperature

	results, runErr := run.Run(ctx, cases, logPath)
	meta.CompletedAt = time.Now().UTC()

	rep := report.Build(results, meta)
	if err := report.Write(reportPath, rep); err != nil {
		return report.GridEntry{}, err
	}
	if runErr != nil {
		return report.GridEntry{}, runErr
	}
	return report.GridEntry{
		Combination:     name,
		MaxTurns:        combo.MaxTurns,
		Temperature:     combo.Temperature,
		ReportPath:      reportPath,
		AvgQualityScore: rep.AvgQualityScore,
	}, nil
}
