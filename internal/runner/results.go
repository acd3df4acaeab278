package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Case statuses. Success and partial carry metrics; error and timeout
// carry a diagnostic and zeroed metrics.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Result is the per-case record appended to the results log. Written
// once and never mutated.
type Result struct {
	CaseID string `json:"case_id"`
	Repo   string `json:"repo"`
	Status string `json:"status"`

	ReturnedFilesCount    int `json:"returned_files_count"`
	GroundTruthFilesCount int `json:"ground_truth_files_count"`

	FileRecall           float64 `json:"file_recall"`
	FilePrecision        float64 `json:"file_precision"`
	FileF1               float64 `json:"file_f1"`
	LineCoverage         float64 `json:"line_coverage"`
	LinePrecisionMatched float64 `json:"line_precision_matched"`
	LineIoUMatched       float64 `json:"line_iou_matched"`

	ContextLineCoverage         float64 `json:"context_line_coverage"`
	ContextLinePrecisionMatched float64 `json:"context_line_precision_matched"`

	FunctionsHit    int     `json:"functions_hit"`
	FunctionsTotal  int     `json:"functions_total"`
	FunctionHitRate float64 `json:"function_hit_rate"`

	QualityScore float64 `json:"quality_score"`

	TurnsUsed  int    `json:"turns_used"`
	LatencyMS  int64  `json:"latency_ms"`
	RepoPrepMS int64  `json:"repo_prep_ms"`
	Error      string `json:"error,omitempty"`
}

// Failed reports whether the result counts toward the fail-fast
// threshold. Partial answers are degraded, not failed.
func (r *Result) Failed() bool {
	return r.Status == StatusError || r.Status == StatusTimeout
}

// Log is an append-only JSONL results file. Each Append writes one line
// and syncs, so a killed process loses at most the in-flight case and
// the file is always a valid prefix of the full run.
type Log struct {
	file *os.File
	path string
}

// OpenLog opens the results log for appending. Without resume an
// existing file is truncated, so a run owns its output exclusively.
func OpenLog(path string, resume bool) (*Log, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if !resume {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening results log %s: %w", path, err)
	}
	return &Log{file: f, path: path}, nil
}

func (l *Log) Append(r *Result) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result for %s: %w", r.CaseID, err)
	}
	line = append(line, '\n')
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("appending result for %s: %w", r.CaseID, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing results log: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	return l.file.Close()
}

// ReadLog loads every persisted result from a results log. A trailing
// partial line from a killed process is skipped, not fatal.
func ReadLog(path string) ([]Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening results log %s: %w", path, err)
	}
	defer f.Close()

	var results []Result
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Result
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		results = append(results, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading results log %s: %w", path, err)
	}
	return results, nil
}

// DoneSet folds persisted results into the set of completed case ids.
func DoneSet(results []Result) map[string]bool {
	done := make(map[string]bool, len(results))
	for _, r := range results {
		done[r.CaseID] = true
	}
	return done
}
