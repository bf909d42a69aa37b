package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skillfence/skillfence/internal/bundle"
	"github.com/skillfence/skillfence/internal/fixer"
	"github.com/skillfence/skillfence/internal/lint"
)

var lintJSON bool

var lintCmd = &cobra.Command{
	Use:   "lint <skill-dir-or-zip>",
	Short: "Run static lint rules over a skill bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		b, err := bundle.Open(args[0])
		if err != nil {
			return err
		}
		defer b.Close()

		report, err := lint.Run(b.Root, rt.pol)
		if err != nil {
			return err
		}

		stem := fixer.Slugify(report.SkillName)
		artifactPath, err := writeArtifact(rt.cfg.OutputDir, stem, ".lint", report)
		if err != nil {
			return fmt.Errorf("write lint artifact: %w", err)
		}

		if lintJSON {
			if err := printJSON(cmd, report); err != nil {
				return err
			}
		} else {
			printLintReport(cmd, report, artifactPath)
		}
		if !report.OK() {
			return fmt.Errorf("lint found %d violations", report.ViolationCount())
		}
		return nil
	},
}

func init() {
	lintCmd.Flags().BoolVar(&lintJSON, "json", false, "emit the report as JSON")
}

func printLintReport(cmd *cobra.Command, report *lint.Report, artifactPath string) {
	out := cmd.OutOrStdout()
	name := report.SkillName
	if report.SkillVersion != "" {
		name += " " + report.SkillVersion
	}
	fmt.Fprintf(out, "%s  %s\n", statusLabel(report.OK()), color.New(color.Bold).Sprint(name))
	fmt.Fprintf(out, "  files scanned: %d\n", report.FilesScanned)
	fmt.Fprintf(out, "  issues:        %d (%d violations)\n", len(report.Issues), report.ViolationCount())
	for _, issue := range report.Issues {
		mark := color.YellowString("•")
		if issue.IsError() {
			mark = color.RedString("✗")
		}
		fmt.Fprintf(out, "  %s %s [%s]: %s\n", mark, issue.Code, issue.Path, issue.Message)
	}
	fmt.Fprintf(out, "  artifact: %s\n", artifactPath)
}
