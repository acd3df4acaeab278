// Package report aggregates persisted run results into summary
// reports, compares runs side by side, and selects the best grid
// combination.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/locbench/locbench/internal/runner"
)

// DatasetFingerprint pins a report to the exact dataset bytes it was
// computed from.
type DatasetFingerprint struct {
	Path   string `json:"dataset_path"`
	Bytes  int64  `json:"dataset_bytes"`
	SHA256 string `json:"dataset_sha256"`
}

type Metadata struct {
	RunID       string             `json:"run_id"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Harness     string             `json:"harness"`
	MaxTurns    int                `json:"max_turns"`
	Temperature float64            `json:"temperature"`
	PromptFile  string             `json:"prompt_file,omitempty"`
	Seed        int64              `json:"seed"`
	Shuffle     bool               `json:"shuffle"`
	Limit       int                `json:"limit"`
	Dataset     DatasetFingerprint `json:"dataset"`
}

// Report summarizes one run. Averages cover every persisted case,
// including error and timeout cases with zeroed metrics, except
// AvgFunctionHitRate which averages only over cases that have
// function-bearing ground truth.
type Report struct {
	Metadata Metadata `json:"metadata"`

	TotalCases    int `json:"total_cases"`
	Completed     int `json:"completed"`
	Partial       int `json:"partial"`
	Errors        int `json:"errors"`
	Timeouts      int `json:"timeouts"`
	FunctionCases int `json:"function_cases"`

	CompletionRate float64 `json:"completion_rate"`
	ErrorRate      float64 `json:"error_rate"`

	AvgFileRecall           float64 `json:"avg_file_recall"`
	AvgFilePrecision        float64 `json:"avg_file_precision"`
	AvgFileF1               float64 `json:"avg_file_f1"`
	AvgLineCoverage         float64 `json:"avg_line_coverage"`
	AvgLinePrecisionMatched float64 `json:"avg_line_precision_matched"`
	AvgLineIoUMatched       float64 `json:"avg_line_iou_matched"`
	AvgFunctionHitRate      float64 `json:"avg_function_hit_rate"`
	AvgQualityScore         float64 `json:"avg_quality_score"`
	AvgLatencyMS            float64 `json:"avg_latency_ms"`
	AvgTurnsUsed            float64 `json:"avg_turns_used"`
}

// NewRunID returns the identifier stamped into report metadata.
func NewRunID() string {
	return uuid.NewString()
}

// Fingerprint hashes the dataset file so reports are traceable to the
// exact input bytes.
func Fingerprint(path string) (DatasetFingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return DatasetFingerprint{}, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return DatasetFingerprint{}, fmt.Errorf("hashing dataset %s: %w", path, err)
	}
	return DatasetFingerprint{
		Path:   path,
		Bytes:  n,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Build aggregates results into a report. Results with zeroed metrics
// from errors and timeouts stay in the averages so a degraded run
// cannot look better than a clean one.
func Build(results []runner.Result, meta Metadata) *Report {
	r := &Report{Metadata: meta, TotalCases: len(results)}
	if len(results) == 0 {
		return r
	}

	var hitRateSum float64
	for _, res := range results {
		switch res.Status {
		case runner.StatusSuccess:
			r.Completed++
		case runner.StatusPartial:
			r.Partial++
		case runner.StatusError:
			r.Errors++
		case runner.StatusTimeout:
			r.Timeouts++
		}
		r.AvgFileRecall += res.FileRecall
		r.AvgFilePrecision += res.FilePrecision
		r.AvgFileF1 += res.FileF1
		r.AvgLineCoverage += res.LineCoverage
		r.AvgLinePrecisionMatched += res.LinePrecisionMatched
		r.AvgLineIoUMatched += res.LineIoUMatched
		r.AvgQualityScore += res.QualityScore
		r.AvgLatencyMS += float64(res.LatencyMS)
		r.AvgTurnsUsed += float64(res.TurnsUsed)
		if res.FunctionsTotal > 0 {
			r.FunctionCases++
			hitRateSum += res.FunctionHitRate
		}
	}

	n := float64(len(results))
	r.CompletionRate = float64(r.Completed+r.Partial) / n
	r.ErrorRate = float64(r.Errors+r.Timeouts) / n
	r.AvgFileRecall /= n
	r.AvgFilePrecision /= n
	r.AvgFileF1 /= n
	r.AvgLineCoverage /= n
	r.AvgLinePrecisionMatched /= n
	r.AvgLineIoUMatched /= n
	r.AvgQualityScore /= n
	r.AvgLatencyMS /= n
	r.AvgTurnsUsed /= n
	if r.FunctionCases > 0 {
		r.AvgFunctionHitRate = hitRateSum / float64(r.FunctionCases)
	}
	return r
}

// FromLog rebuilds a report from a results log, for runs that were
// interrupted before the report was written.
func FromLog(logPath string, meta Metadata) (*Report, error) {
	results, err := runner.ReadLog(logPath)
	if err != nil {
		return nil, err
	}
	return Build(results, meta), nil
}

func Write(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}

func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return &r, nil
}

// Comparison writes reports side by side, one row per run, best
// average quality score first.
func Comparison(reports []*Report, w io.Writer) error {
	sorted := make([]*Report, len(reports))
	copy(sorted, reports)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AvgQualityScore > sorted[j].AvgQualityScore
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCASES\tCOMPLETE\tERR RATE\tFILE RECALL\tLINE PREC\tFUNC HIT\tQUALITY")
	for _, r := range sorted {
		fmt.Fprintf(tw, "%s\t%d\t%.0f%%\t%.0f%%\t%.3f\t%.3f\t%.3f\t%.3f\n",
			shortID(r.Metadata.RunID),
			r.TotalCases,
			r.CompletionRate*100,
			r.ErrorRate*100,
			r.AvgFileRecall,
			r.AvgLinePrecisionMatched,
			r.AvgFunctionHitRate,
			r.AvgQualityScore,
		)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
