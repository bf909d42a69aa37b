package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillfence/skillfence/internal/attest"
	"github.com/skillfence/skillfence/internal/bundle"
	"github.com/skillfence/skillfence/internal/fixer"
	"github.com/skillfence/skillfence/internal/lint"
	"github.com/skillfence/skillfence/internal/probe"
)

var (
	attestExec bool
	attestJSON bool
)

var attestCmd = &cobra.Command{
	Use:   "attest <skill-dir-or-zip>",
	Short: "Run lint and probe, generate an SBOM, and build a signed attestation",
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

		lintReport, err := lint.Run(b.Root, rt.pol)
		if err != nil {
			return err
		}
		runnerCfg := probe.Config{Policy: rt.pol}
		if cmd.Flags().Changed("exec") {
			runnerCfg.ExecOverride = &attestExec
		}
		probeResult, err := probe.NewRunner(runnerCfg).Run(b.Root)
		if err != nil {
			return err
		}

		stem := fixer.Slugify(lintReport.SkillName)
		if _, err := writeArtifact(rt.cfg.OutputDir, stem, ".lint", lintReport); err != nil {
			return fmt.Errorf("write lint artifact: %w", err)
		}
		if _, err := writeArtifact(rt.cfg.OutputDir, stem, ".probe", probeResult); err != nil {
			return fmt.Errorf("write probe artifact: %w", err)
		}

		sbomPath := filepath.Join(rt.cfg.OutputDir, stem+".sbom.json")
		if err := attest.WriteSBOM(b.Root, sbomPath); err != nil {
			return fmt.Errorf("write sbom: %w", err)
		}

		signer := attest.DetectSigner(rt.cfg.Attest.SigningKeyPath)
		builder := attest.NewBuilder(rt.pol, signer)
		attestationPath, err := builder.Build(b.Root, lintReport, probeResult, sbomPath, rt.cfg.OutputDir, stem)
		if err != nil {
			return fmt.Errorf("build attestation: %w", err)
		}

		if err := attest.AppendAuditEvent(rt.cfg.AuditLog, "attest", map[string]any{
			"skill":       lintReport.SkillName,
			"attestation": attestationPath,
			"signed":      signer.Status() == attest.SignerAvailable,
		}); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: audit log append failed: %v\n", err)
		}

		if attestJSON {
			return printJSON(cmd, map[string]any{
				"attestation": attestationPath,
				"sbom":        sbomPath,
				"lint_ok":     lintReport.OK(),
				"probe_ok":    probeResult.OK(),
			})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  lint\n", statusLabel(lintReport.OK()))
		fmt.Fprintf(out, "%s  probe\n", statusLabel(probeResult.OK()))
		fmt.Fprintf(out, "  sbom:        %s\n", sbomPath)
		fmt.Fprintf(out, "  attestation: %s\n", attestationPath)
		if !lintReport.OK() || !probeResult.OK() {
			return fmt.Errorf("attestation recorded a failing audit")
		}
		return nil
	},
}

func init() {
	attestCmd.Flags().BoolVar(&attestExec, "exec", false, "run matching entry scripts in the sandbox (overrides policy and environment)")
	attestCmd.Flags().BoolVar(&attestJSON, "json", false, "emit artifact paths as JSON")
}
