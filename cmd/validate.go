package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/locbench/locbench/internal/dataset"
	"github.com/locbench/locbench/internal/validate"
)

var (
	flagValidateInput  string
	flagValidateOutput string
	flagValidateLimit  int
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a dataset against its repository snapshots",
		RunE:  runValidate,
	}
	cmd.Flags().StringVar(&flagValidateInput, "input", "", "dataset JSONL path")
	cmd.Flags().StringVar(&flagValidateOutput, "output", "", "write the validation report as JSON to this path")
	cmd.Flags().IntVar(&flagValidateLimit, "limit", 0, "validate at most N cases")
	cmd.MarkFlagRequired("input")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	cases, err := dataset.Load(flagValidateInput, dataset.Options{Limit: flagValidateLimit})
	if err != nil {
		return err
	}

	snapshots := newSnapshotManager(cfg, log)
	snapshots.Prewarm(cmd.Context(), dataset.Repos(cases), cfg.PrewarmParallel)

	v := validate.New(snapshots, log)
	rep, err := v.Validate(cmd.Context(), cases)
	if err != nil {
		return err
	}

	fmt.Printf("cases:    %d\n", rep.TotalCases)
	fmt.Printf("valid:    %d\n", rep.ValidCases)
	fmt.Printf("invalid:  %d\n", rep.InvalidCases)
	fmt.Printf("errors:   %d\n", rep.TotalErrors)
	fmt.Printf("warnings: %d\n", rep.TotalWarnings)
	for _, result := range rep.Results {
		for _, d := range result.Errors {
			fmt.Printf("  %s %s [%s]: %s\n", result.CaseID, d.Section, d.Kind, d.Message)
		}
		for _, d := range result.Warnings {
			fmt.Printf("  %s %s [%s] (warning): %s\n", result.CaseID, d.Section, d.Kind, d.Message)
		}
	}

	if flagValidateOutput != "" {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding validation report: %w", err)
		}
		if err := os.WriteFile(flagValidateOutput, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing validation report: %w", err)
		}
		fmt.Printf("report:   %s\n", flagValidateOutput)
	}

	if rep.InvalidCases > 0 {
		return fmt.Errorf("%d of %d cases invalid", rep.InvalidCases, rep.TotalCases)
	}
	return nil
}
