package policy

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed packs/*.policy.yaml
var packFS embed.FS

// DefaultPack is the pack loaded when no source is given.
const DefaultPack = "balanced"

// DefaultExecGlobs select candidate entry scripts when the policy omits its own.
var DefaultExecGlobs = []string{"scripts/**/*.py", "*.py"}

// DefaultExecTimeout is the sandbox wall-clock budget in seconds.
const DefaultExecTimeout = 5.0

// Options select a policy source. Path wins over Pack; with neither set the
// default pack is used. ExpectedVersion, when non-zero, must equal the loaded
// document's version (optimistic lock against silent policy drift).
type Options struct {
	Path            string
	Pack            string
	ExpectedVersion int
}

type rawPolicy struct {
	Pack    int `yaml:"pack"`
	Version int `yaml:"version"`
	Limits  struct {
		SkillNameMax        int `yaml:"skill_name_max"`
		SkillDescriptionMax int `yaml:"skill_description_max"`
	} `yaml:"limits"`
	Allow struct {
		Network struct {
			Hosts []string `yaml:"hosts"`
		} `yaml:"network"`
		Filesystem struct {
			ReadGlobs  []string `yaml:"read_globs"`
			WriteGlobs []string `yaml:"write_globs"`
		} `yaml:"filesystem"`
	} `yaml:"allow"`
	ForbiddenPatterns []struct {
		Pattern string `yaml:"pattern"`
		Reason  string `yaml:"reason"`
	} `yaml:"forbidden_patterns"`
	Waivers      []Waiver            `yaml:"waivers"`
	Dependencies map[string][]string `yaml:"dependencies"`
	Probe        struct {
		EnableExec bool     `yaml:"enable_exec"`
		ExecGlobs  []string `yaml:"exec_globs"`
		Timeout    float64  `yaml:"timeout"`
	} `yaml:"probe"`
}

// Load reads a policy document and returns the immutable Policy for the run.
func Load(opts Options) (*Policy, error) {
	data, source, err := readSource(opts)
	if err != nil {
		return nil, err
	}

	var raw rawPolicy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &PolicyError{Source: source, Err: fmt.Errorf("parse: %w", err)}
	}
	if opts.ExpectedVersion != 0 && raw.Version != opts.ExpectedVersion {
		return nil, &PolicyError{
			Source: source,
			Err:    fmt.Errorf("version mismatch: loaded %d, expected %d", raw.Version, opts.ExpectedVersion),
		}
	}

	sum := sha256.Sum256(data)
	p := &Policy{
		Source:              source,
		Hash:                hex.EncodeToString(sum[:]),
		Pack:                raw.Pack,
		Version:             raw.Version,
		SkillNameMax:        raw.Limits.SkillNameMax,
		SkillDescriptionMax: raw.Limits.SkillDescriptionMax,
		NetworkHosts:        raw.Allow.Network.Hosts,
		ReadGlobs:           raw.Allow.Filesystem.ReadGlobs,
		WriteGlobs:          raw.Allow.Filesystem.WriteGlobs,
		Waivers:             raw.Waivers,
		DependencyAllow:     normalizeDependencyAllow(raw.Dependencies),
		Probe: ProbeConfig{
			EnableExec: raw.Probe.EnableExec,
			ExecGlobs:  raw.Probe.ExecGlobs,
			Timeout:    raw.Probe.Timeout,
		},
	}
	if p.SkillNameMax <= 0 {
		p.SkillNameMax = 64
	}
	if p.SkillDescriptionMax <= 0 {
		p.SkillDescriptionMax = 200
	}
	if len(p.Probe.ExecGlobs) == 0 {
		p.Probe.ExecGlobs = append([]string{}, DefaultExecGlobs...)
	}
	if p.Probe.Timeout <= 0 {
		p.Probe.Timeout = DefaultExecTimeout
	}

	for i, entry := range raw.ForbiddenPatterns {
		if entry.Pattern == "" {
			continue
		}
		compiled, err := regexp.Compile(entry.Pattern)
		if err != nil {
			return nil, &PolicyError{Source: source, Err: fmt.Errorf("forbidden pattern %d: %w", i+1, err)}
		}
		reason := entry.Reason
		if reason == "" {
			reason = "Policy violation"
		}
		p.ForbiddenPatterns = append(p.ForbiddenPatterns, PatternRule{
			Code:    fmt.Sprintf("forbidden_pattern_%d", i+1),
			Pattern: compiled,
			Reason:  reason,
		})
	}
	return p, nil
}

func readSource(opts Options) (data []byte, source string, err error) {
	if opts.Path != "" {
		data, err = os.ReadFile(opts.Path)
		if err != nil {
			return nil, "", &PolicyError{Source: opts.Path, Err: err}
		}
		return data, opts.Path, nil
	}
	pack := opts.Pack
	if pack == "" {
		pack = DefaultPack
	}
	name := fmt.Sprintf("packs/%s.policy.yaml", pack)
	data, err = packFS.ReadFile(name)
	if err != nil {
		return nil, "", &PolicyError{Source: pack, Err: fmt.Errorf("unknown policy pack %q", pack)}
	}
	return data, "pack://" + pack, nil
}

// PackNames lists the bundled policy packs.
func PackNames() []string {
	return []string{"strict", "balanced", "research", "enterprise"}
}

// Dependency allowlists are declared as allow_<ecosystem> keys; strip the
// prefix so lookups use the bare ecosystem name.
func normalizeDependencyAllow(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for key, entries := range in {
		eco := key
		if len(key) > len("allow_") && key[:len("allow_")] == "allow_" {
			eco = key[len("allow_"):]
		}
		out[eco] = entries
	}
	return out
}
