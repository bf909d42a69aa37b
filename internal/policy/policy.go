// Package policy loads and queries the audit policy shared by every check.
package policy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// PatternRule is a compiled forbidden-content pattern from the policy.
type PatternRule struct {
	Code    string
	Pattern *regexp.Regexp
	Reason  string
}

// Waiver suppresses one rule code for one bundle-relative path.
type Waiver struct {
	Path string `yaml:"path"`
	Rule string `yaml:"rule"`
}

// ProbeConfig holds execution parameters for the sandboxed probe.
type ProbeConfig struct {
	EnableExec bool
	ExecGlobs  []string
	Timeout    float64
}

// Policy is the immutable policy document for one run.
// All consumers share the same instance; nothing mutates it after Load.
type Policy struct {
	Source string
	Hash   string
	Pack   int
	Version int

	SkillNameMax        int
	SkillDescriptionMax int

	NetworkHosts []string
	ReadGlobs    []string
	WriteGlobs   []string

	ForbiddenPatterns []PatternRule
	Waivers           []Waiver
	DependencyAllow   map[string][]string

	Probe ProbeConfig
}

// IsReadAllowed reports whether a bundle-relative path may be read.
// Reads default open: an empty read allowlist allows everything.
func (p *Policy) IsReadAllowed(rel string) bool {
	if len(p.ReadGlobs) == 0 {
		return true
	}
	return anyGlobMatch(p.ReadGlobs, rel)
}

// IsWriteAllowed reports whether a bundle-relative path may be written.
// Writes default closed: an empty write allowlist denies everything.
func (p *Policy) IsWriteAllowed(rel string) bool {
	if len(p.WriteGlobs) == 0 {
		return false
	}
	return anyGlobMatch(p.WriteGlobs, rel)
}

// IsHostAllowed reports whether the host of a URL is covered by the network
// allowlist. Each allow entry is a glob matched against both the bare host
// and the full scheme://host origin. An empty allowlist denies everything.
func (p *Policy) IsHostAllowed(rawURL string) bool {
	if rawURL == "" || len(p.NetworkHosts) == 0 {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := strings.ToLower(parsed.Host)
	origin := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	for _, entry := range p.NetworkHosts {
		pattern := strings.ToLower(strings.TrimSpace(entry))
		if pattern == "" {
			continue
		}
		if GlobMatch(pattern, host) || GlobMatch(pattern, origin) {
			return true
		}
	}
	return false
}

// IsDependencyAllowed reports whether a discovered dependency is covered by
// the ecosystem allowlist. Entries match the bare name exactly or the full
// spec as a glob. Unknown ecosystems deny everything.
func (p *Policy) IsDependencyAllowed(ecosystem, name, spec string) bool {
	entries, ok := p.DependencyAllow[ecosystem]
	if !ok {
		return false
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.EqualFold(entry, name) {
			return true
		}
		if GlobMatch(entry, spec) {
			return true
		}
	}
	return false
}

// Summary returns a stable map used in attestation payloads.
func (p *Policy) Summary() map[string]any {
	patterns := make([]map[string]string, 0, len(p.ForbiddenPatterns))
	for _, rule := range p.ForbiddenPatterns {
		patterns = append(patterns, map[string]string{
			"code":    rule.Code,
			"pattern": rule.Pattern.String(),
			"reason":  rule.Reason,
		})
	}
	waivers := make([]map[string]string, 0, len(p.Waivers))
	for _, w := range p.Waivers {
		waivers = append(waivers, map[string]string{"path": w.Path, "rule": w.Rule})
	}
	return map[string]any{
		"source": p.Source,
		"sha256": p.Hash,
		"limits": map[string]int{
			"skill_name_max":        p.SkillNameMax,
			"skill_description_max": p.SkillDescriptionMax,
		},
		"allow": map[string]any{
			"network_hosts":    p.NetworkHosts,
			"filesystem_read":  p.ReadGlobs,
			"filesystem_write": p.WriteGlobs,
		},
		"forbidden_patterns": patterns,
		"waivers":            waivers,
		"dependencies":       p.DependencyAllow,
		"probe": map[string]any{
			"enable_exec": p.Probe.EnableExec,
			"exec_globs":  p.Probe.ExecGlobs,
			"timeout":     p.Probe.Timeout,
		},
	}
}

func anyGlobMatch(globs []string, rel string) bool {
	for _, g := range globs {
		if GlobMatch(g, rel) {
			return true
		}
	}
	return false
}

// PolicyError reports a malformed or mismatched policy source.
// It is fatal: a run never starts against a policy that failed to load.
type PolicyError struct {
	Source string
	Err    error
}

func (e *PolicyError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("policy %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("policy: %v", e.Err)
}

func (e *PolicyError) Unwrap() error { return e.Err }
