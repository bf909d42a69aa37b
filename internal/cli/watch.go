package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skillfence/skillfence/internal/fixer"
	"github.com/skillfence/skillfence/internal/probe"
	"github.com/skillfence/skillfence/internal/watch"
)

var watchExec bool

var watchCmd = &cobra.Command{
	Use:   "watch <skill-dir>",
	Short: "Re-audit a skill directory whenever its files change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		skillRoot := args[0]

		runnerCfg := probe.Config{Policy: rt.pol}
		if cmd.Flags().Changed("exec") {
			runnerCfg.ExecOverride = &watchExec
		}
		runner := probe.NewRunner(runnerCfg)

		audit := func() {
			result, err := runner.Run(skillRoot)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "audit failed: %v\n", err)
				return
			}
			stem := fixer.Slugify(result.SkillName)
			artifactPath, err := writeArtifact(rt.cfg.OutputDir, stem, ".probe", result)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "write probe artifact: %v\n", err)
				return
			}
			printProbeResult(cmd, result, artifactPath)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", skillRoot)
		audit()
		return watch.New(skillRoot, audit).Run(ctx)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchExec, "exec", false, "run matching entry scripts in the sandbox on each audit")
}
