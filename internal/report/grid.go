package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// GridEntry is one combination's row in a grid summary.
type GridEntry struct {
	Combination     string  `json:"config_combination"`
	MaxTurns        int     `json:"max_turns"`
	Temperature     float64 `json:"temperature"`
	ReportPath      string  `json:"report_path"`
	AvgQualityScore float64 `json:"avg_quality_score"`
}

// GridSummary collects one entry per grid combination.
type GridSummary struct {
	Entries []GridEntry `json:"combinations"`
}

func WriteGridSummary(path string, s *GridSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding grid summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing grid summary %s: %w", path, err)
	}
	return nil
}

func ReadGridSummary(path string) (*GridSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading grid summary %s: %w", path, err)
	}
	var s GridSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing grid summary %s: %w", path, err)
	}
	return &s, nil
}

// Best returns the combination with the highest average quality score.
func (s *GridSummary) Best() (GridEntry, error) {
	if len(s.Entries) == 0 {
		return GridEntry{}, fmt.Errorf("grid summary has no combinations")
	}
	sorted := make([]GridEntry, len(s.Entries))
	copy(sorted, s.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AvgQualityScore > sorted[j].AvgQualityScore
	})
	return sorted[0], nil
}
