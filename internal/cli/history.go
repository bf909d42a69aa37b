package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillfence/skillfence/internal/attest"
	"github.com/skillfence/skillfence/internal/history"
)

var (
	historySkill string
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past audit runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent probe runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		store, err := history.Open(rt.cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(historySkill, historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(cmd, runs)
		}
		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No recorded runs.")
			return nil
		}
		for _, run := range runs {
			fmt.Fprintf(out, "%s  %s  %-25s egress=%d writes=%d files=%d  %s\n",
				statusLabel(run.Status == "pass"),
				run.CreatedAt.Format("2006-01-02 15:04:05"),
				run.SkillName, run.EgressCount, run.WritesCount, run.FilesLoaded,
				run.RunID)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the stored probe artifact for one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		store, err := history.Open(rt.cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := store.GetRunResult(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var historyVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain of the audit log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		if err := attest.VerifyAuditChain(rt.cfg.AuditLog); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Audit chain intact.")
		return nil
	},
}

func init() {
	historyListCmd.Flags().StringVar(&historySkill, "skill", "", "filter by skill name")
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum rows to return")
	historyListCmd.Flags().BoolVar(&historyJSON, "json", false, "emit rows as JSON")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyVerifyCmd)
}
