// Package probe orchestrates static scanning and sandboxed execution into a
// single audit result per skill.
package probe

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kelseyhightower/envconfig"

	"github.com/skillfence/skillfence/internal/manifest"
	"github.com/skillfence/skillfence/internal/policy"
	"github.com/skillfence/skillfence/internal/sandbox"
	"github.com/skillfence/skillfence/internal/scanner"
)

const noteExcerptLen = 200

// envOverrides are read once at runner construction. SKILLFENCE_PROBE_EXEC
// toggles sandboxed execution independent of the policy default. The value is
// kept as a string so boolean-like forms (yes, on) count as enabled instead
// of failing strict parsing.
type envOverrides struct {
	ProbeExec string `envconfig:"PROBE_EXEC"`
}

func boolish(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Config configures one probe runner. ExecOverride, when non-nil, wins over
// both the environment and the policy's probe.enable_exec.
type Config struct {
	Policy       *policy.Policy
	ExecOverride *bool
}

// Runner drives the scanner and the sandbox and merges their findings.
// Findings are data, never errors: Run fails only on infrastructure
// problems (unreadable root, missing interpreter in exec mode).
type Runner struct {
	pol        *policy.Policy
	enableExec bool
}

// NewRunner resolves the exec mode with precedence explicit override >
// environment > policy default.
func NewRunner(cfg Config) *Runner {
	var env envOverrides
	_ = envconfig.Process("SKILLFENCE", &env)

	enable := cfg.Policy.Probe.EnableExec || boolish(env.ProbeExec)
	if cfg.ExecOverride != nil {
		enable = *cfg.ExecOverride
	}
	return &Runner{pol: cfg.Policy, enableExec: enable}
}

// ExecEnabled reports the resolved exec mode.
func (r *Runner) ExecEnabled() bool { return r.enableExec }

// Run audits one skill root and returns the aggregate result. The result is
// immutable once returned.
func (r *Runner) Run(skillRoot string) (*Result, error) {
	if _, err := os.ReadDir(skillRoot); err != nil {
		return nil, fmt.Errorf("read skill root: %w", err)
	}

	name := filepath.Base(skillRoot)
	version := ""
	var notes []string

	meta, _, err := manifest.Load(skillRoot, r.pol)
	if err != nil {
		var structErr *manifest.StructureError
		if !errors.As(err, &structErr) {
			return nil, err
		}
		// A broken manifest never blocks the probe; the skill still gets
		// scanned and the issue travels with the result.
		notes = append(notes, fmt.Sprintf("Schema issue: %s", structErr.Reason))
	} else {
		name = meta.Name
		version = meta.Version
	}

	scan, err := scanner.Scan(skillRoot, r.pol)
	if err != nil {
		return nil, err
	}
	egress := scan.Egress
	writes := scan.Writes
	notes = append(notes, scan.Notes...)

	if r.enableExec {
		execEgress, execWrites, execNotes, err := r.runExec(skillRoot)
		if err != nil {
			return nil, err
		}
		egress = append(egress, execEgress...)
		writes = append(writes, execWrites...)
		notes = append(notes, execNotes...)
	}

	return &Result{
		SkillName:    name,
		SkillVersion: version,
		FilesLoaded:  scan.FilesLoaded,
		Egress:       egress,
		Writes:       writes,
		Notes:        notes,
		PolicyHash:   r.pol.Hash,
	}, nil
}

func (r *Runner) runExec(skillRoot string) (egress, writes []scanner.Finding, notes []string, err error) {
	runner, err := sandbox.NewRunner(r.pol)
	if err != nil {
		return nil, nil, nil, err
	}
	targets, err := runner.CollectTargets(skillRoot)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, rel := range targets {
		slog.Debug("sandbox exec", "script", rel)
		notes = append(notes, fmt.Sprintf("Sandbox exec: %s", rel))
		outcome, execErr := runner.Execute(skillRoot, rel)
		if execErr != nil {
			return nil, nil, nil, execErr
		}
		if outcome.TimedOut {
			// No partial violation data is trusted from a killed child.
			notes = append(notes, fmt.Sprintf("Sandbox timeout while executing %s (>%s)", rel, runner.Timeout()))
			continue
		}
		if outcome.Payload == nil {
			notes = append(notes, fmt.Sprintf("Sandbox returned invalid payload for %s", rel))
			continue
		}
		for _, v := range outcome.Payload.Violations {
			switch v.Category {
			case "network":
				egress = append(egress, scanner.Finding{
					Code:    "EGRESS_SANDBOX",
					Message: fmt.Sprintf("%s: %s", rel, v.Detail),
				})
			case "write":
				writes = append(writes, scanner.Finding{
					Code:    "WRITE_SANDBOX",
					Message: fmt.Sprintf("%s: %s", rel, v.Detail),
				})
			default:
				notes = append(notes, fmt.Sprintf("%s: sandbox noted %s -> %s", rel, v.Category, v.Detail))
			}
		}
		if excerpt := truncate(outcome.Payload.Stdout); excerpt != "" {
			notes = append(notes, fmt.Sprintf("%s stdout: %s", rel, excerpt))
		}
		if excerpt := truncate(outcome.Stderr); excerpt != "" {
			notes = append(notes, fmt.Sprintf("%s stderr: %s", rel, excerpt))
		}
	}
	return egress, writes, notes, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= noteExcerptLen {
		return s
	}
	cut := noteExcerptLen
	// Back off to a rune boundary so the excerpt stays valid UTF-8.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
