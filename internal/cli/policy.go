package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skillfence/skillfence/internal/policy"
)

var policyShowJSON bool

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the resolved audit policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the policy in effect for the current flags and config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		if policyShowJSON {
			return printJSON(cmd, rt.pol.Summary())
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint("source:"), rt.pol.Source)
		fmt.Fprintf(out, "sha256:  %s\n", rt.pol.Hash)
		fmt.Fprintf(out, "version: %d (pack %d)\n", rt.pol.Version, rt.pol.Pack)
		fmt.Fprintf(out, "limits:  name<=%d description<=%d\n", rt.pol.SkillNameMax, rt.pol.SkillDescriptionMax)
		fmt.Fprintf(out, "network hosts (%d):\n", len(rt.pol.NetworkHosts))
		for _, host := range rt.pol.NetworkHosts {
			fmt.Fprintf(out, "  - %s\n", host)
		}
		fmt.Fprintf(out, "write globs (%d):\n", len(rt.pol.WriteGlobs))
		for _, glob := range rt.pol.WriteGlobs {
			fmt.Fprintf(out, "  - %s\n", glob)
		}
		fmt.Fprintf(out, "forbidden patterns: %d, waivers: %d\n", len(rt.pol.ForbiddenPatterns), len(rt.pol.Waivers))
		fmt.Fprintf(out, "probe: exec=%v globs=%v timeout=%.1fs\n",
			rt.pol.Probe.EnableExec, rt.pol.Probe.ExecGlobs, rt.pol.Probe.Timeout)
		return nil
	},
}

var policyPacksCmd = &cobra.Command{
	Use:   "packs",
	Short: "List the bundled policy packs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, name := range policy.PackNames() {
			pol, err := policy.Load(policy.Options{Pack: name})
			if err != nil {
				return err
			}
			marker := " "
			if name == policy.DefaultPack {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-10s version=%d hosts=%d writes=%d exec=%v\n",
				marker, name, pol.Version, len(pol.NetworkHosts), len(pol.WriteGlobs), pol.Probe.EnableExec)
		}
		return nil
	},
}

func init() {
	policyShowCmd.Flags().BoolVar(&policyShowJSON, "json", false, "emit the policy summary as JSON")
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyPacksCmd)
}
