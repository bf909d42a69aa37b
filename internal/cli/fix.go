package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skillfence/skillfence/internal/fixer"
)

var (
	fixApply bool
	fixJSON  bool
)

var fixCmd = &cobra.Command{
	Use:   "fix <skill-dir>",
	Short: "Apply safe SKILL.md frontmatter remediations (dry run by default)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		result := fixer.Run(args[0], rt.pol, fixApply)

		if fixJSON {
			return printJSON(cmd, result)
		}
		out := cmd.OutOrStdout()
		for _, action := range result.Applied {
			fmt.Fprintf(out, "%s %s [%s]: %s\n", color.GreenString("applied"), action.Code, action.Path, action.Message)
		}
		for _, action := range result.Skipped {
			fmt.Fprintf(out, "%s %s [%s]: %s\n", color.YellowString("would apply"), action.Code, action.Path, action.Message)
		}
		for _, msg := range result.Errors {
			fmt.Fprintf(out, "%s %s\n", color.RedString("error"), msg)
		}
		if !result.Proposed() && len(result.Errors) == 0 {
			fmt.Fprintln(out, "Nothing to fix.")
		}
		if !fixApply && result.Proposed() {
			fmt.Fprintln(out, "Re-run with --apply to write these changes.")
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("fix completed with %d errors", len(result.Errors))
		}
		return nil
	},
}

func init() {
	fixCmd.Flags().BoolVar(&fixApply, "apply", false, "write the remediations instead of listing them")
	fixCmd.Flags().BoolVar(&fixJSON, "json", false, "emit the result as JSON")
}
