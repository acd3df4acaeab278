package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/locbench/locbench/internal/report"
)

var (
	flagReportBest bool
	flagReportGrid string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [report.json...]",
		Short: "Compare stored reports or pick the best grid combination",
		RunE:  runReport,
	}
	cmd.Flags().BoolVar(&flagReportBest, "best", false, "print only the best combination from --grid")
	cmd.Flags().StringVar(&flagReportGrid, "grid", "", "grid summary JSON path")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	if flagReportGrid != "" {
		summary, err := report.ReadGridSummary(flagReportGrid)
		if err != nil {
			return err
		}
		best, err := summary.Best()
		if err != nil {
			return err
		}
		if flagReportBest {
			fmt.Printf("%s  quality %.3f  (%s)\n", best.Combination, best.AvgQualityScore, best.ReportPath)
			return nil
		}
		for _, e := range summary.Entries {
			marker := "  "
			if e.Combination == best.Combination {
				marker = "* "
			}
			fmt.Printf("%s%-16s turns=%d temp=%g quality %.3f\n",
				marker, e.Combination, e.MaxTurns, e.Temperature, e.AvgQualityScore)
		}
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("pass one or more report paths or --grid")
	}
	var reports []*report.Report
	for _, path := range args {
		r, err := report.Read(path)
		if err != nil {
			return err
		}
		reports = append(reports, r)
	}
	return report.Comparison(reports, os.Stdout)
}
