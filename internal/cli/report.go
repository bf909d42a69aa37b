package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillfence/skillfence/internal/report"
)

var reportJSONFlag bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Collate audit artifacts into CSV, Markdown, and JSON summaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		writer, err := report.NewWriter(rt.cfg.OutputDir)
		if err != nil {
			return err
		}
		result, err := writer.Write()
		if err != nil {
			return err
		}

		if reportJSONFlag {
			return printJSON(cmd, map[string]any{
				"summary": result.Summary,
				"csv":     result.CSVPath,
				"md":      result.MDPath,
				"json":    result.JSONPath,
			})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Collated %d skills: %d pass, %d fail\n",
			result.Summary.Total, result.Summary.PassCount, result.Summary.FailCount)
		for _, row := range result.Rows {
			fmt.Fprintf(out, "%s  %-30s lint=%d egress=%d writes=%d\n",
				statusLabel(row.Status() == "pass"), row.SkillName,
				row.LintViolations, row.ProbeEgress, row.ProbeWrites)
		}
		fmt.Fprintf(out, "  csv: %s\n  md:  %s\n  json: %s\n", result.CSVPath, result.MDPath, result.JSONPath)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSONFlag, "json", false, "emit the summary as JSON")
}
