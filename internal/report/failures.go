package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/locbench/locbench/internal/runner"
)

// FailureBuckets groups failed cases by a coarse cause so a degraded
// run can be triaged without reading the full log.
type FailureBuckets struct {
	Timeout   []runner.Result
	RateLimit []runner.Result
	API       []runner.Result
	Repo      []runner.Result
	Other     []runner.Result
}

// BucketFailures classifies every error and timeout result.
func BucketFailures(results []runner.Result) FailureBuckets {
	var b FailureBuckets
	for _, r := range results {
		if !r.Failed() {
			continue
		}
		msg := strings.ToLower(r.Error)
		switch {
		case r.Status == runner.StatusTimeout:
			b.Timeout = append(b.Timeout, r)
		case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
			b.RateLimit = append(b.RateLimit, r)
		case strings.Contains(msg, "snapshot") || strings.Contains(msg, "repository unavailable"):
			b.Repo = append(b.Repo, r)
		case strings.Contains(msg, "api") || strings.Contains(msg, "completion") || strings.Contains(msg, "status code"):
			b.API = append(b.API, r)
		default:
			b.Other = append(b.Other, r)
		}
	}
	return b
}

// Analyze writes a failure breakdown and the worst-scoring completed
// cases for one run.
func Analyze(results []runner.Result, w io.Writer) error {
	buckets := BucketFailures(results)

	fmt.Fprintf(w, "cases: %d\n", len(results))
	fmt.Fprintf(w, "failures: timeout=%d rate_limit=%d api=%d repo=%d other=%d\n\n",
		len(buckets.Timeout), len(buckets.RateLimit), len(buckets.API), len(buckets.Repo), len(buckets.Other))

	var completed []runner.Result
	for _, r := range results {
		if !r.Failed() {
			completed = append(completed, r)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].QualityScore < completed[j].QualityScore
	})
	if len(completed) > 10 {
		completed = completed[:10]
	}

	fmt.Fprintln(w, "lowest scoring cases:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tSTATUS\tFILE RECALL\tLINE PREC\tQUALITY")
	for _, r := range completed {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%.3f\n",
			r.CaseID, r.Status, r.FileRecall, r.LinePrecisionMatched, r.QualityScore)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	printBucket := func(name string, rs []runner.Result) {
		if len(rs) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s failures:\n", name)
		for _, r := range rs {
			fmt.Fprintf(w, "  %s: %s\n", r.CaseID, firstLine(r.Error))
		}
	}
	printBucket("timeout", buckets.Timeout)
	printBucket("rate limit", buckets.RateLimit)
	printBucket("api", buckets.API)
	printBucket("repo", buckets.Repo)
	printBucket("other", buckets.Other)
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
