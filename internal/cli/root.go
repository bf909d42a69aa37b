// Package cli wires the skillfence commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skillfence/skillfence/internal/config"
	"github.com/skillfence/skillfence/internal/policy"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/skillfence/skillfence/internal/cli.version=1.2.3"
	version = "0.1.0"
	logo    = "\n" +
		"     _    _ _ _  __\n" +
		" ___| | _(_) | |/ _| ___ _ __   ___ ___\n" +
		"/ __| |/ / | | | |_ / _ \\ '_ \\ / __/ _ \\\n" +
		"\\__ \\   <| | | |  _|  __/ | | | (_|  __/\n" +
		"|___/_|\\_\\_|_|_|_|  \\___|_| |_|\\___\\___|\n"
)

var (
	rootPolicyPath    string
	rootPolicyPack    string
	rootPolicyVersion int
	rootOutputDir     string
)

var rootCmd = &cobra.Command{
	Use:   "skillfence",
	Short: "skillfence - security auditor for agent skill bundles",
	Long:  color.CyanString(logo) + "\nStatic scanning, sandboxed probing, and attestation for skill bundles.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootPolicyPath, "policy", "", "path to a policy YAML file (overrides --pack)")
	rootCmd.PersistentFlags().StringVar(&rootPolicyPack, "pack", "", "bundled policy pack (strict, balanced, research, enterprise)")
	rootCmd.PersistentFlags().IntVar(&rootPolicyVersion, "policy-version", 0, "require this policy version, fail on mismatch")
	rootCmd.PersistentFlags().StringVar(&rootOutputDir, "out", "", "artifact output directory (default .skillfence)")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(attestCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

// runtimeContext resolves config plus the policy flags shared by most
// commands.
type runtimeContext struct {
	cfg *config.Config
	pol *policy.Policy
}

func loadRuntime() (*runtimeContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if rootOutputDir != "" {
		cfg.OutputDir = rootOutputDir
		cfg.HistoryDB = filepath.Join(rootOutputDir, "history.db")
		cfg.AuditLog = filepath.Join(rootOutputDir, "audit.jsonl")
	}

	opts := policy.Options{
		Path:            cfg.Policy.Path,
		Pack:            cfg.Policy.Pack,
		ExpectedVersion: cfg.Policy.ExpectedVersion,
	}
	if rootPolicyPath != "" {
		opts.Path = rootPolicyPath
	}
	if rootPolicyPack != "" {
		opts.Pack = rootPolicyPack
		if rootPolicyPath == "" {
			opts.Path = ""
		}
	}
	if rootPolicyVersion != 0 {
		opts.ExpectedVersion = rootPolicyVersion
	}

	pol, err := policy.Load(opts)
	if err != nil {
		return nil, err
	}
	return &runtimeContext{cfg: cfg, pol: pol}, nil
}

// writeArtifact serializes v into <outputDir>/<stem><suffix>.json.
func writeArtifact(outputDir, stem, suffix string, v any) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, stem+suffix+".json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

var (
	passLabel = color.New(color.FgGreen, color.Bold).Sprint("PASS")
	failLabel = color.New(color.FgRed, color.Bold).Sprint("FAIL")
)

func statusLabel(ok bool) string {
	if ok {
		return passLabel
	}
	return failLabel
}
