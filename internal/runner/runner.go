// Package runner drives benchmark cases end-to-end: snapshot the repo,
// invoke the search harness under an outer timeout, score the answer,
// and persist one result per case as it completes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/locbench/locbench/internal/dataset"
	"github.com/locbench/locbench/internal/harness"
	"github.com/locbench/locbench/internal/metrics"
)

// SnapshotProvider supplies a checkout per (repo, commit) and releases
// it when the case finishes.
type SnapshotProvider interface {
	Worktree(ctx context.Context, repo, commit string) (string, error)
	Release(path string)
}

// ErrFailFast aborts a run after too many consecutive failed cases.
var ErrFailFast = errors.New("consecutive failure threshold reached")

// Options parameterize one runner pass. FailFast is the consecutive
// error/timeout count that aborts the run; zero disables it. Timeout is
// the outer per-case budget, enforced independently of the harness's
// own Budget.
type Options struct {
	Timeout     time.Duration
	Budget      time.Duration
	FailFast    int
	MaxTurns    int
	Temperature float64
	PromptFile  string
	Resume      bool
}

type Runner struct {
	snapshots SnapshotProvider
	harness   harness.Harness
	log       zerolog.Logger
	opts      Options
}

func New(snapshots SnapshotProvider, h harness.Harness, opts Options, log zerolog.Logger) *Runner {
	return &Runner{snapshots: snapshots, harness: h, log: log, opts: opts}
}

// Run executes cases in the given order, appending each result to the
// results log at logPath as soon as it exists. With Resume, cases whose
// ids already appear in the log are skipped and their persisted results
// carried into the returned slice. Returns ErrFailFast when the
// consecutive failure threshold aborts the run.
func (r *Runner) Run(ctx context.Context, cases []dataset.Case, logPath string) ([]Result, error) {
	var prior map[string]Result
	if r.opts.Resume {
		existing, err := ReadLog(logPath)
		if err == nil {
			prior = make(map[string]Result, len(existing))
			for _, res := range existing {
				prior[res.CaseID] = res
			}
		}
	}

	resultsLog, err := OpenLog(logPath, r.opts.Resume)
	if err != nil {
		return nil, err
	}
	defer resultsLog.Close()

	var results []Result
	consecutive := 0
	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if res, ok := prior[c.ID]; ok {
			r.log.Debug().Str("case", c.ID).Msg("already completed, skipping")
			results = append(results, res)
			continue
		}

		r.log.Info().
			Str("case", c.ID).
			Str("repo", c.Repo).
			Int("index", i+1).
			Int("total", len(cases)).
			Msg("running case")

		res := r.runCase(ctx, c)
		if err := resultsLog.Append(&res); err != nil {
			return results, err
		}
		results = append(results, res)

		r.log.Info().
			Str("case", c.ID).
			Str("status", res.Status).
			Float64("quality", res.QualityScore).
			Int64("latency_ms", res.LatencyMS).
			Msg("case finished")

		if res.Failed() {
			consecutive++
			if r.opts.FailFast > 0 && consecutive >= r.opts.FailFast {
				r.log.Error().
					Int("consecutive", consecutive).
					Msg("aborting run")
				return results, fmt.Errorf("%w after %d cases", ErrFailFast, consecutive)
			}
		} else {
			consecutive = 0
		}
	}
	return results, nil
}

func (r *Runner) runCase(ctx context.Context, c dataset.Case) Result {
	res := Result{
		CaseID:                c.ID,
		Repo:                  c.Repo,
		GroundTruthFilesCount: len(c.GroundTruthFiles()),
	}

	prepStart := time.Now()
	root, err := r.snapshots.Worktree(ctx, c.Repo, c.BaseCommit)
	res.RepoPrepMS = time.Since(prepStart).Milliseconds()
	if err != nil {
		res.Status = StatusError
		res.Error = fmt.Sprintf("preparing snapshot: %v", err)
		return res
	}
	defer r.snapshots.Release(root)

	req := &harness.Request{
		Query:       c.Query,
		RepoPath:    root,
		MaxTurns:    r.opts.MaxTurns,
		Temperature: r.opts.Temperature,
		PromptFile:  r.opts.PromptFile,
		Budget:      r.opts.Budget,
	}

	resp, latency, err := r.invoke(ctx, req)
	res.LatencyMS = latency.Milliseconds()
	switch {
	case errors.Is(err, errOuterTimeout):
		res.Status = StatusTimeout
		res.Error = fmt.Sprintf("exceeded %s outer timeout", r.opts.Timeout)
		return res
	case err != nil:
		res.Status = StatusError
		res.Error = err.Error()
		return res
	}

	res.Status = StatusSuccess
	if resp.Partial {
		res.Status = StatusPartial
	}
	res.TurnsUsed = resp.TurnsUsed
	res.ReturnedFilesCount = len(resp.Files)
	r.score(&res, c, resp.Files, root)
	return res
}

var errOuterTimeout = errors.New("outer timeout expired")

// invoke runs the harness in its own goroutine so an implementation
// that ignores context cancellation can still be abandoned when the
// outer timeout expires. The goroutine finishes in the background; its
// late answer is discarded.
func (r *Runner) invoke(parent context.Context, req *harness.Request) (*harness.Response, time.Duration, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	type outcome struct {
		resp *harness.Response
		err  error
	}
	ch := make(chan outcome, 1)
	start := time.Now()
	go func() {
		resp, err := r.harness.Invoke(ctx, req)
		ch <- outcome{resp: resp, err: err}
	}()

	timer := time.NewTimer(r.opts.Timeout)
	defer timer.Stop()
	select {
	case out := <-ch:
		return out.resp, time.Since(start), out.err
	case <-timer.C:
		return nil, r.opts.Timeout, errOuterTimeout
	case <-parent.Done():
		return nil, time.Since(start), parent.Err()
	}
}

// score fills in every metric field from the harness's file map.
// Timeout and error cases never reach here and keep zeroed metrics.
func (r *Runner) score(res *Result, c dataset.Case, files map[string][]dataset.LineRange, root string) {
	gt := c.GroundTruthFiles()
	res.FileRecall = metrics.FileRecall(files, gt, root)
	res.FilePrecision = metrics.FilePrecision(files, gt, root)
	res.FileF1 = metrics.FileF1(res.FileRecall, res.FilePrecision)
	res.LineCoverage = metrics.LineCoverage(files, gt, root)
	res.LinePrecisionMatched = metrics.LinePrecisionMatched(files, gt, root)
	res.LineIoUMatched = metrics.LineIoUMatched(files, gt, root)

	if soft := c.ContextFiles(); len(soft) > 0 {
		res.ContextLineCoverage = metrics.LineCoverage(files, soft, root)
		res.ContextLinePrecisionMatched = metrics.LinePrecisionMatched(files, soft, root)
	}

	res.FunctionsHit, res.FunctionsTotal = metrics.FunctionHits(files, c.FunctionTargets(), root)
	hasFunctions := res.FunctionsTotal > 0
	if hasFunctions {
		res.FunctionHitRate = float64(res.FunctionsHit) / float64(res.FunctionsTotal)
	}
	res.QualityScore = metrics.QualityScore(res.FileRecall, res.LinePrecisionMatched, res.FunctionHitRate, hasFunctions)
}
