package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skillfence/skillfence/internal/attest"
	"github.com/skillfence/skillfence/internal/bundle"
	"github.com/skillfence/skillfence/internal/fixer"
	"github.com/skillfence/skillfence/internal/history"
	"github.com/skillfence/skillfence/internal/probe"
)

var (
	probeExec      bool
	probeJSON      bool
	probeNoHistory bool
)

var probeCmd = &cobra.Command{
	Use:   "probe <skill-dir-or-zip>",
	Short: "Audit a skill bundle with static scanning and optional sandboxed execution",
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

		runnerCfg := probe.Config{Policy: rt.pol}
		if cmd.Flags().Changed("exec") {
			runnerCfg.ExecOverride = &probeExec
		}
		result, err := probe.NewRunner(runnerCfg).Run(b.Root)
		if err != nil {
			return err
		}

		stem := fixer.Slugify(result.SkillName)
		artifactPath, err := writeArtifact(rt.cfg.OutputDir, stem, ".probe", result)
		if err != nil {
			return fmt.Errorf("write probe artifact: %w", err)
		}

		recordProbeRun(cmd, rt, result)

		if probeJSON {
			if err := printJSON(cmd, result); err != nil {
				return err
			}
		} else {
			printProbeResult(cmd, result, artifactPath)
		}
		if !result.OK() {
			return fmt.Errorf("probe found %d egress and %d write violations", len(result.Egress), len(result.Writes))
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeExec, "exec", false, "run matching entry scripts in the sandbox (overrides policy and environment)")
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "emit the result as JSON")
	probeCmd.Flags().BoolVar(&probeNoHistory, "no-history", false, "skip recording this run in the history database")
}

// recordProbeRun persists the run and audit trail. Both are best effort:
// a read-only artifact directory must not mask the audit verdict.
func recordProbeRun(cmd *cobra.Command, rt *runtimeContext, result *probe.Result) {
	if !probeNoHistory {
		if store, err := history.Open(rt.cfg.HistoryDB); err == nil {
			if _, err := store.RecordProbe(result); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: history record failed: %v\n", err)
			}
			store.Close()
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: history unavailable: %v\n", err)
		}
	}
	err := attest.AppendAuditEvent(rt.cfg.AuditLog, "probe", map[string]any{
		"skill":       result.SkillName,
		"policy_hash": result.PolicyHash,
		"egress":      len(result.Egress),
		"writes":      len(result.Writes),
		"ok":          result.OK(),
	})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: audit log append failed: %v\n", err)
	}
}

func printProbeResult(cmd *cobra.Command, result *probe.Result, artifactPath string) {
	out := cmd.OutOrStdout()
	name := result.SkillName
	if result.SkillVersion != "" {
		name += " " + result.SkillVersion
	}
	fmt.Fprintf(out, "%s  %s\n", statusLabel(result.OK()), color.New(color.Bold).Sprint(name))
	fmt.Fprintf(out, "  files loaded:      %d\n", result.FilesLoaded)
	fmt.Fprintf(out, "  egress attempts:   %d\n", len(result.Egress))
	fmt.Fprintf(out, "  disallowed writes: %d\n", len(result.Writes))
	for _, f := range result.Egress {
		fmt.Fprintf(out, "  %s %s: %s\n", color.RedString("✗"), f.Code, f.Message)
	}
	for _, f := range result.Writes {
		fmt.Fprintf(out, "  %s %s: %s\n", color.RedString("✗"), f.Code, f.Message)
	}
	for _, note := range result.Notes {
		fmt.Fprintf(out, "  %s %s\n", color.YellowString("•"), note)
	}
	fmt.Fprintf(out, "  artifact: %s\n", artifactPath)
}
