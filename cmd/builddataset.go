package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/locbench/locbench/internal/dataset"
)

var (
	flagBuildInput  string
	flagBuildOutput string
)

func newBuildDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build-dataset",
		Short: "Assemble per-case JSON files into a dataset JSONL",
		RunE:  runBuildDataset,
	}
	cmd.Flags().StringVar(&flagBuildInput, "input", "cases", "directory of per-case JSON files")
	cmd.Flags().StringVar(&flagBuildOutput, "output", "dataset.jsonl", "output dataset path")
	return cmd
}

func runBuildDataset(cmd *cobra.Command, args []string) error {
	entries, err := os.ReadDir(flagBuildInput)
	if err != nil {
		return fmt.Errorf("reading case dir %s: %w", flagBuildInput, err)
	}

	cases, skipped, err := collectCases(flagBuildInput, entries)
	if err != nil {
		return err
	}
	for _, path := range skipped {
		fmt.Printf("skipping %s: no ground truth\n", path)
	}
	if len(cases) == 0 {
		return fmt.Errorf("no case files found in %s", flagBuildInput)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })

	seen := make(map[string]bool, len(cases))
	for _, c := range cases {
		if seen[c.ID] {
			return fmt.Errorf("duplicate case id %q", c.ID)
		}
		seen[c.ID] = true
	}

	f, err := os.Create(flagBuildOutput)
	if err != nil {
		return fmt.Errorf("creating dataset %s: %w", flagBuildOutput, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, c := range cases {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("writing case %s: %w", c.ID, err)
		}
	}

	fmt.Printf("wrote %d cases to %s\n", len(cases), flagBuildOutput)
	return nil
}

// collectCases parses every .json file in dir. Records with no hard
// ground truth cannot be scored and are dropped; their paths come back
// in skipped. Any other structural problem is an error.
func collectCases(dir string, entries []os.DirEntry) (cases []dataset.Case, skipped []string, err error) {
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading case file %s: %w", path, err)
		}
		var c dataset.Case
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, nil, fmt.Errorf("parsing case file %s: %w", path, err)
		}
		if len(c.HardGT) == 0 {
			skipped = append(skipped, path)
			continue
		}
		if err := dataset.CheckStructure(&c); err != nil {
			return nil, nil, fmt.Errorf("case file %s: %w", path, err)
		}
		cases = append(cases, c)
	}
	return cases, skipped, nil
}
