package report_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locbench/locbench/internal/report"
	"github.com/locbench/locbench/internal/runner"
)

func sampleResults() []runner.Result {
	return []runner.Result{
		{
			CaseID: "c1", Status: runner.StatusSuccess,
			FileRecall: 1.0, FilePrecision: 1.0, FileF1: 1.0,
			LineCoverage: 0.8, LinePrecisionMatched: 0.9,
			FunctionsHit: 1, FunctionsTotal: 1, FunctionHitRate: 1.0,
			QualityScore: 0.96, LatencyMS: 1000, TurnsUsed: 3,
		},
		{
			CaseID: "c2", Status: runner.StatusPartial,
			FileRecall: 0.5, FilePrecision: 1.0, FileF1: 2.0 / 3.0,
			LineCoverage: 0.4, LinePrecisionMatched: 0.5,
			QualityScore: 0.4, LatencyMS: 3000, TurnsUsed: 6,
		},
		{
			CaseID: "c3", Status: runner.StatusError,
			Error: "agent crashed",
		},
		{
			CaseID: "c4", Status: runner.StatusTimeout,
			Error: "exceeded 5m0s outer timeout", LatencyMS: 300000,
		},
	}
}

func TestBuildAverages(t *testing.T) {
	r := report.Build(sampleResults(), report.Metadata{RunID: "run-1"})

	assert.Equal(t, 4, r.TotalCases)
	assert.Equal(t, 1, r.Completed)
	assert.Equal(t, 1, r.Partial)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 1, r.Timeouts)
	assert.InDelta(t, 0.5, r.CompletionRate, 1e-9)
	assert.InDelta(t, 0.5, r.ErrorRate, 1e-9)

	// Error and timeout cases stay in the denominator with zero metrics.
	assert.InDelta(t, 1.5/4.0, r.AvgFileRecall, 1e-9)
	assert.InDelta(t, 1.4/4.0, r.AvgLinePrecisionMatched, 1e-9)
	assert.InDelta(t, 1.36/4.0, r.AvgQualityScore, 1e-9)

	// The hit rate averages only over function-bearing cases.
	assert.Equal(t, 1, r.FunctionCases)
	assert.InDelta(t, 1.0, r.AvgFunctionHitRate, 1e-9)
}

func TestBuildEmptyResults(t *testing.T) {
	r := report.Build(nil, report.Metadata{})
	assert.Zero(t, r.TotalCases)
	assert.Zero(t, r.AvgQualityScore)
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	original := report.Build(sampleResults(), report.Metadata{RunID: report.NewRunID()})

	require.NoError(t, report.Write(path, original))
	loaded, err := report.Read(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	fp, err := report.Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, path, fp.Path)
	assert.Equal(t, int64(3), fp.Bytes)
	assert.Len(t, fp.SHA256, 64)

	again, err := report.Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, fp.SHA256, again.SHA256)
}

func TestFromLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "results.jsonl")
	log, err := runner.OpenLog(logPath, false)
	require.NoError(t, err)
	for _, res := range sampleResults() {
		require.NoError(t, log.Append(&res))
	}
	require.NoError(t, log.Close())

	r, err := report.FromLog(logPath, report.Metadata{RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, 4, r.TotalCases)
	assert.Equal(t, 1, r.Timeouts)
}

func TestComparisonOutput(t *testing.T) {
	a := report.Build(sampleResults(), report.Metadata{RunID: "aaaaaaaa-1111"})
	b := report.Build(sampleResults()[:2], report.Metadata{RunID: "bbbbbbbb-2222"})

	var buf bytes.Buffer
	require.NoError(t, report.Comparison([]*report.Report{a, b}, &buf))
	out := buf.String()
	assert.Contains(t, out, "aaaaaaaa")
	assert.Contains(t, out, "bbbbbbbb")
	assert.Contains(t, out, "QUALITY")
}

func TestGridSummaryBest(t *testing.T) {
	s := &report.GridSummary{Entries: []report.GridEntry{
		{Combination: "t4__temp0", AvgQualityScore: 0.4},
		{Combination: "t6__temp0p2", AvgQualityScore: 0.7},
		{Combination: "t6__temp0", AvgQualityScore: 0.6},
	}}
	best, err := s.Best()
	require.NoError(t, err)
	assert.Equal(t, "t6__temp0p2", best.Combination)
}

func TestGridSummaryBestEmpty(t *testing.T) {
	s := &report.GridSummary{}
	_, err := s.Best()
	assert.Error(t, err)
}

func TestGridSummaryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid_summary.json")
	s := &report.GridSummary{Entries: []report.GridEntry{
		{Combination: "t4__temp0", MaxTurns: 4, ReportPath: "r.json", AvgQualityScore: 0.5},
	}}
	require.NoError(t, report.WriteGridSummary(path, s))
	loaded, err := report.ReadGridSummary(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestBucketFailures(t *testing.T) {
	results := []runner.Result{
		{CaseID: "ok", Status: runner.StatusSuccess},
		{CaseID: "t", Status: runner.StatusTimeout, Error: "exceeded outer timeout"},
		{CaseID: "rl", Status: runner.StatusError, Error: "chat completion: 429 rate limit exceeded"},
		{CaseID: "repo", Status: runner.StatusError, Error: "preparing snapshot: repository unavailable"},
		{CaseID: "misc", Status: runner.StatusError, Error: "something odd"},
	}
	b := report.BucketFailures(results)
	assert.Len(t, b.Timeout, 1)
	assert.Len(t, b.RateLimit, 1)
	assert.Len(t, b.Repo, 1)
	assert.Len(t, b.Other, 1)
	assert.Empty(t, b.API)
}

func TestAnalyzeOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Analyze(sampleResults(), &buf))
	out := buf.String()
	assert.Contains(t, out, "cases: 4")
	assert.Contains(t, out, "timeout=1")
	assert.Contains(t, out, "c2")
}
