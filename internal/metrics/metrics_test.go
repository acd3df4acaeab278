package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/locbench/locbench/internal/dataset"
	"github.com/locbench/locbench/internal/metrics"
)

func ranges(pairs ...[2]int) []dataset.LineRange {
	out := make([]dataset.LineRange, len(pairs))
	for i, p := range pairs {
		out[i] = dataset.LineRange{p[0], p[1]}
	}
	return out
}

func TestFileMetricsExactMatch(t *testing.T) {
	gt := map[string][]dataset.LineRange{
		"a.py": ranges([2]int{10, 20}),
		"b.py": ranges([2]int{1, 5}),
	}
	returned := map[string][]dataset.LineRange{
		"a.py": ranges([2]int{10, 20}),
		"b.py": ranges([2]int{1, 5}),
	}

	assert.Equal(t, 1.0, metrics.FileRecall(returned, gt, ""))
	assert.Equal(t, 1.0, metrics.FilePrecision(returned, gt, ""))
	assert.Equal(t, 1.0, metrics.FileF1(1.0, 1.0))
}

func TestEmptyReturnedFiles(t *testing.T) {
	gt := map[string][]dataset.LineRange{"a.py": ranges([2]int{10, 20})}
	returned := map[string][]dataset.LineRange{}

	assert.Equal(t, 0.0, metrics.FileRecall(returned, gt, ""))
	assert.Equal(t, 0.0, metrics.FilePrecision(returned, gt, ""))
	assert.Equal(t, 0.0, metrics.LinePrecisionMatched(returned, gt, ""))
	assert.Equal(t, 0.0, metrics.LineCoverage(returned, gt, ""))
}

func TestLineCoveragePartialOverlap(t *testing.T) {
	gt := map[string][]dataset.LineRange{"a.py": ranges([2]int{10, 20})}
	returned := map[string][]dataset.LineRange{"a.py": ranges([2]int{12, 18})}

	// 7 of 11 ground truth lines covered.
	assert.InDelta(t, 7.0/11.0, metrics.LineCoverage(returned, gt, ""), 1e-9)
	assert.Equal(t, 1.0, metrics.FileRecall(returned, gt, ""))
	assert.Equal(t, 1.0, metrics.LinePrecisionMatched(returned, gt, ""))
	assert.InDelta(t, 7.0/11.0, metrics.LineIoUMatched(returned, gt, ""), 1e-9)
}

func TestDuplicateReturnedRangesDoNotDoubleCount(t *testing.T) {
	gt := map[string][]dataset.LineRange{"a.py": ranges([2]int{10, 20})}
	once := map[string][]dataset.LineRange{"a.py": ranges([2]int{12, 18})}
	duplicated := map[string][]dataset.LineRange{
		"a.py": ranges([2]int{12, 18}, [2]int{12, 18}, [2]int{14, 16}),
	}

	assert.Equal(t,
		metrics.LineCoverage(once, gt, ""),
		metrics.LineCoverage(duplicated, gt, ""))
	assert.Equal(t,
		metrics.LinePrecisionMatched(once, gt, ""),
		metrics.LinePrecisionMatched(duplicated, gt, ""))
}

func TestPathNormalization(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		repoRoot string
		want     string
	}{
		{"plain", "src/main.py", "", "src/main.py"},
		{"dot slash", "./src/main.py", "", "src/main.py"},
		{"diff a prefix", "a/src/main.py", "", "src/main.py"},
		{"diff b prefix", "b/src/main.py", "", "src/main.py"},
		{"backslashes", "src\\main.py", "", "src/main.py"},
		{"absolute under root", "/tmp/repo/src/main.py", "/tmp/repo", "src/main.py"},
		{"absolute outside root", "/etc/passwd", "/tmp/repo", "/etc/passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, metrics.NormalizePath(tt.path, tt.repoRoot))
		})
	}
}

func TestNormalizedPathsMatchAcrossStyles(t *testing.T) {
	gt := map[string][]dataset.LineRange{"src/main.py": ranges([2]int{1, 10})}
	returned := map[string][]dataset.LineRange{"./src/main.py": ranges([2]int{1, 10})}

	assert.Equal(t, 1.0, metrics.FileRecall(returned, gt, ""))
}

func TestCaseSensitivePaths(t *testing.T) {
	gt := map[string][]dataset.LineRange{"Main.py": ranges([2]int{1, 10})}
	returned := map[string][]dataset.LineRange{"main.py": ranges([2]int{1, 10})}

	assert.Equal(t, 0.0, metrics.FileRecall(returned, gt, ""))
}

func TestLinePrecisionIgnoresUnreturnedGTFiles(t *testing.T) {
	returned := map[string][]dataset.LineRange{"a.py": ranges([2]int{10, 15})}
	gt := map[string][]dataset.LineRange{"a.py": ranges([2]int{10, 20})}
	gtExtra := map[string][]dataset.LineRange{
		"a.py": ranges([2]int{10, 20}),
		"b.py": ranges([2]int{1, 100}),
	}

	assert.Equal(t,
		metrics.LinePrecisionMatched(returned, gt, ""),
		metrics.LinePrecisionMatched(returned, gtExtra, ""))
}

func TestFunctionHits(t *testing.T) {
	targets := []dataset.FunctionTarget{
		{Path: "a.py", Name: "Server.handle", Ranges: ranges([2]int{10, 30})},
		{Path: "b.py", Name: "parse", Ranges: ranges([2]int{5, 15})},
	}
	returned := map[string][]dataset.LineRange{
		"a.py": ranges([2]int{25, 40}),
	}

	hits, total := metrics.FunctionHits(returned, targets, "")
	assert.Equal(t, 1, hits)
	assert.Equal(t, 2, total)
}

func TestFunctionHitsNoTargets(t *testing.T) {
	hits, total := metrics.FunctionHits(map[string][]dataset.LineRange{}, nil, "")
	assert.Zero(t, hits)
	assert.Zero(t, total)
}

func TestQualityScoreWeights(t *testing.T) {
	assert.InDelta(t, 1.0, metrics.QualityScore(1, 1, 1, true), 1e-9)
	assert.InDelta(t, 0.8, metrics.QualityScore(1, 1, 0, true), 1e-9)
	assert.InDelta(t, 0.8, metrics.QualityScore(1, 1, 1, false), 1e-9)
	assert.InDelta(t, 0.4, metrics.QualityScore(1, 0, 0, true), 1e-9)
}

func TestQualityScoreMonotonic(t *testing.T) {
	base := metrics.QualityScore(0.5, 0.5, 0.5, true)
	assert.Greater(t, metrics.QualityScore(0.6, 0.5, 0.5, true), base)
	assert.Greater(t, metrics.QualityScore(0.5, 0.6, 0.5, true), base)
	assert.Greater(t, metrics.QualityScore(0.5, 0.5, 0.6, true), base)
}

func TestInvalidRangesDropped(t *testing.T) {
	gt := map[string][]dataset.LineRange{"a.py": ranges([2]int{10, 20})}
	returned := map[string][]dataset.LineRange{
		"a.py": ranges([2]int{0, 5}, [2]int{18, 12}, [2]int{12, 18}),
	}

	assert.InDelta(t, 7.0/11.0, metrics.LineCoverage(returned, gt, ""), 1e-9)
	assert.Equal(t, 1.0, metrics.LinePrecisionMatched(returned, gt, ""))
}

func TestAdjacentRangesMerge(t *testing.T) {
	gt := map[string][]dataset.LineRange{"a.py": ranges([2]int{1, 10})}
	returned := map[string][]dataset.LineRange{
		"a.py": ranges([2]int{1, 3}, [2]int{4, 6}),
	}

	assert.InDelta(t, 0.6, metrics.LineCoverage(returned, gt, ""), 1e-9)
}
