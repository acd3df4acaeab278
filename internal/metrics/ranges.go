package metrics

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/locbench/locbench/internal/dataset"
)

// NormalizePath canonicalizes a returned or ground-truth path for
// comparison: forward slashes, no "./" or diff-style "a/"/"b/" prefixes,
// and absolute paths under repoRoot rewritten relative to it. Comparison
// stays case-sensitive.
func NormalizePath(path, repoRoot string) string {
	p := strings.TrimSpace(path)
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		p = p[2:]
	}
	if repoRoot != "" && filepath.IsAbs(p) {
		root := filepath.ToSlash(repoRoot)
		if !strings.HasSuffix(root, "/") {
			root += "/"
		}
		if strings.HasPrefix(p, root) {
			p = strings.TrimPrefix(p, root)
		}
	}
	return p
}

// mergeRanges unions a set of valid ranges into sorted, disjoint ranges.
// Adjacent ranges ([1,3] and [4,6]) are coalesced, so duplicate and
// overlapping input never double-counts.
func mergeRanges(ranges []dataset.LineRange) []dataset.LineRange {
	var valid []dataset.LineRange
	for _, r := range ranges {
		if r.Valid() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i][0] != valid[j][0] {
			return valid[i][0] < valid[j][0]
		}
		return valid[i][1] < valid[j][1]
	})
	merged := []dataset.LineRange{valid[0]}
	for _, r := range valid[1:] {
		last := &merged[len(merged)-1]
		if r[0] <= last[1]+1 {
			if r[1] > last[1] {
				last[1] = r[1]
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// totalLen sums the line count of merged (disjoint) ranges.
func totalLen(ranges []dataset.LineRange) int {
	total := 0
	for _, r := range ranges {
		total += r.Len()
	}
	return total
}

// intersectionLen counts the lines shared by two merged range lists.
func intersectionLen(a, b []dataset.LineRange) int {
	i, j, total := 0, 0, 0
	for i < len(a) && j < len(b) {
		start := max(a[i][0], b[j][0])
		end := min(a[i][1], b[j][1])
		if start <= end {
			total += end - start + 1
		}
		if a[i][1] < b[j][1] {
			i++
		} else {
			j++
		}
	}
	return total
}

// normalizeFiles canonicalizes paths and merges each file's ranges.
// Ranges that fail the 1-based start<=end check are dropped rather than
// guessed at.
func normalizeFiles(files map[string][]dataset.LineRange, repoRoot string) map[string][]dataset.LineRange {
	normalized := make(map[string][]dataset.LineRange, len(files))
	for path, ranges := range files {
		key := NormalizePath(path, repoRoot)
		normalized[key] = append(normalized[key], ranges...)
	}
	for path, ranges := range normalized {
		normalized[path] = mergeRanges(ranges)
	}
	return normalized
}
