// Package metrics computes overlap statistics between the file/range
// mapping a search harness returns and a case's ground truth. All
// functions are pure: paths are normalized, per-file ranges are merged
// into line sets, and results are independent of map iteration order.
package metrics

import "github.com/locbench/locbench/internal/dataset"

// FileRecall is the fraction of ground truth files the harness returned.
// Ground truth is non-empty by dataset invariant; an empty map yields 1.0
// so a degenerate case never divides by zero.
func FileRecall(returned, groundTruth map[string][]dataset.LineRange, repoRoot string) float64 {
	gt := normalizeFiles(groundTruth, repoRoot)
	if len(gt) == 0 {
		return 1.0
	}
	ret := normalizeFiles(returned, repoRoot)
	matched := 0
	for path := range gt {
		if _, ok := ret[path]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(gt))
}

// FilePrecision is the fraction of returned files that are ground truth
// files. Zero when nothing was returned.
func FilePrecision(returned, groundTruth map[string][]dataset.LineRange, repoRoot string) float64 {
	ret := normalizeFiles(returned, repoRoot)
	if len(ret) == 0 {
		return 0.0
	}
	gt := normalizeFiles(groundTruth, repoRoot)
	matched := 0
	for path := range ret {
		if _, ok := gt[path]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(ret))
}

// FileF1 is the harmonic mean of file recall and precision.
func FileF1(recall, precision float64) float64 {
	if recall+precision == 0 {
		return 0.0
	}
	return 2 * recall * precision / (recall + precision)
}

// LineCoverage is the fraction of ground truth lines, over the union of
// all ground truth ranges across all files, that the returned ranges
// cover.
func LineCoverage(returned, groundTruth map[string][]dataset.LineRange, repoRoot string) float64 {
	ret := normalizeFiles(returned, repoRoot)
	gt := normalizeFiles(groundTruth, repoRoot)

	totalGT := 0
	covered := 0
	for path, gtRanges := range gt {
		totalGT += totalLen(gtRanges)
		if retRanges, ok := ret[path]; ok {
			covered += intersectionLen(gtRanges, retRanges)
		}
	}
	if totalGT == 0 {
		return 0.0
	}
	return float64(covered) / float64(totalGT)
}

// LinePrecisionMatched is line precision restricted to files present in
// both the returned set and ground truth, so a file-level miss is not
// penalized a second time at line level. Zero when no returned lines
// fall in matched files.
func LinePrecisionMatched(returned, groundTruth map[string][]dataset.LineRange, repoRoot string) float64 {
	ret := normalizeFiles(returned, repoRoot)
	gt := normalizeFiles(groundTruth, repoRoot)

	totalReturned := 0
	correct := 0
	for path, retRanges := range ret {
		gtRanges, ok := gt[path]
		if !ok {
			continue
		}
		totalReturned += totalLen(retRanges)
		correct += intersectionLen(retRanges, gtRanges)
	}
	if totalReturned == 0 {
		return 0.0
	}
	return float64(correct) / float64(totalReturned)
}

// LineIoUMatched is intersection-over-union of lines across matched
// files only; file-level misses are covered by file recall/precision.
func LineIoUMatched(returned, groundTruth map[string][]dataset.LineRange, repoRoot string) float64 {
	ret := normalizeFiles(returned, repoRoot)
	gt := normalizeFiles(groundTruth, repoRoot)

	intersection := 0
	union := 0
	for path, gtRanges := range gt {
		retRanges, ok := ret[path]
		if !ok {
			continue
		}
		inter := intersectionLen(gtRanges, retRanges)
		intersection += inter
		union += totalLen(gtRanges) + totalLen(retRanges) - inter
	}
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// FunctionHits counts target functions whose span has any line overlap
// with the returned ranges for the same file. Returns (hits, total);
// total is zero when the case has no function-bearing ground truth, in
// which case the hit rate is undefined and excluded from averages.
func FunctionHits(returned map[string][]dataset.LineRange, targets []dataset.FunctionTarget, repoRoot string) (hits, total int) {
	if len(targets) == 0 {
		return 0, 0
	}
	ret := normalizeFiles(returned, repoRoot)
	for _, target := range targets {
		ranges := mergeRanges(target.Ranges)
		if len(ranges) == 0 {
			continue
		}
		total++
		path := NormalizePath(target.Path, repoRoot)
		retRanges, ok := ret[path]
		if !ok {
			continue
		}
		if intersectionLen(ranges, retRanges) > 0 {
			hits++
		}
	}
	return hits, total
}

// Quality score weights. File recall and matched-file line precision
// dominate; function hit rate contributes the remainder.
const (
	weightFileRecall           = 0.4
	weightLinePrecisionMatched = 0.4
	weightFunctionHitRate      = 0.2
)

// QualityScore is the composite per-case score. When the case has no
// function targets the hit-rate term contributes zero.
func QualityScore(fileRecall, linePrecisionMatched, functionHitRate float64, hasFunctions bool) float64 {
	score := weightFileRecall*fileRecall + weightLinePrecisionMatched*linePrecisionMatched
	if hasFunctions {
		score += weightFunctionHitRate * functionHitRate
	}
	return score
}
