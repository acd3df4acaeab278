package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/locbench/locbench/internal/report"
	"github.com/locbench/locbench/internal/runner"
)

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [results.jsonl]",
		Short: "Break down failures and lowest-scoring cases from a results log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := runner.ReadLog(args[0])
			if err != nil {
				return err
			}
			return report.Analyze(results, os.Stdout)
		},
	}
}
