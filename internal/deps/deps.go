// Package deps discovers declared dependencies in a skill bundle and checks
// them against the policy's ecosystem allowlists.
package deps

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/skillfence/skillfence/internal/policy"
)

// Dependency is one declared dependency from a manifest file.
type Dependency struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
	Spec      string `json:"spec"`
	Source    string `json:"source"`
}

// Issue is a manifest parse problem surfaced as a finding, not an error.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

var reqNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*`)

// Collect walks the bundle for requirements*.txt (with -r includes),
// package.json dependency sections, and pyproject.toml. pyproject files are
// recorded as an issue rather than parsed; there is no TOML support here.
func Collect(skillRoot string) ([]Dependency, []Issue) {
	var deps []Dependency
	var issues []Issue

	seen := map[string]bool{}
	for _, path := range findManifests(skillRoot, "requirements") {
		deps = append(deps, collectRequirements(path, skillRoot, &issues, seen)...)
	}
	for _, path := range findManifests(skillRoot, "package.json") {
		deps = append(deps, parsePackageJSON(path, skillRoot, &issues)...)
	}
	if _, err := os.Stat(filepath.Join(skillRoot, "pyproject.toml")); err == nil {
		issues = append(issues, Issue{
			Code:    "DEPENDENCY_PYPI_TOML",
			Message: "pyproject.toml present but not parsed; declare dependencies in requirements.txt",
			Path:    "pyproject.toml",
		})
	}
	return deps, issues
}

// CheckAllowlist evaluates discovered dependencies against policy and
// returns one issue per disallowed entry.
func CheckAllowlist(deps []Dependency, pol *policy.Policy) []Issue {
	var issues []Issue
	for _, dep := range deps {
		if pol.IsDependencyAllowed(dep.Ecosystem, dep.Name, dep.Spec) {
			continue
		}
		issues = append(issues, Issue{
			Code:    "DEPENDENCY_NOT_ALLOWED",
			Message: fmt.Sprintf("%s dependency %q is not on the policy allowlist", dep.Ecosystem, dep.Spec),
			Path:    dep.Source,
		})
	}
	return issues
}

func findManifests(skillRoot, kind string) []string {
	var out []string
	_ = filepath.WalkDir(skillRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		switch kind {
		case "requirements":
			if strings.HasPrefix(name, "requirements") && (strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".in")) {
				out = append(out, p)
			}
		case "package.json":
			if name == "package.json" {
				out = append(out, p)
			}
		}
		return nil
	})
	return out
}

func relOf(skillRoot, p string) string {
	if rel, err := filepath.Rel(skillRoot, p); err == nil {
		return filepath.ToSlash(rel)
	}
	return p
}

func collectRequirements(path, skillRoot string, issues *[]Issue, seen map[string]bool) []Dependency {
	if seen[path] {
		return nil
	}
	seen[path] = true
	rel := relOf(skillRoot, path)

	data, err := os.ReadFile(path)
	if err != nil {
		*issues = append(*issues, Issue{
			Code:    "DEPENDENCY_PYPI_MISSING",
			Message: fmt.Sprintf("referenced requirements file not found: %s", rel),
			Path:    rel,
		})
		return nil
	}
	var deps []Dependency
	for _, line := range strings.Split(string(data), "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		if strings.HasPrefix(stripped, "-r ") || strings.HasPrefix(stripped, "--requirement ") {
			parts := strings.SplitN(stripped, " ", 2)
			ref := filepath.Join(filepath.Dir(path), strings.TrimSpace(parts[1]))
			deps = append(deps, collectRequirements(ref, skillRoot, issues, seen)...)
			continue
		}
		if strings.HasPrefix(stripped, "-") {
			continue
		}
		if strings.HasPrefix(stripped, ".") || strings.HasPrefix(stripped, "/") {
			*issues = append(*issues, Issue{
				Code:    "DEPENDENCY_PYPI_PATH",
				Message: fmt.Sprintf("local path dependency is not allowed: %s", stripped),
				Path:    rel,
			})
			continue
		}
		if strings.Contains(stripped, "://") || strings.HasPrefix(stripped, "git+") {
			*issues = append(*issues, Issue{
				Code:    "DEPENDENCY_PYPI_VCS",
				Message: fmt.Sprintf("VCS or URL dependency is not allowed: %s", stripped),
				Path:    rel,
			})
			continue
		}
		name := reqNameRe.FindString(stripped)
		if name == "" {
			*issues = append(*issues, Issue{
				Code:    "DEPENDENCY_PYPI_PARSE",
				Message: fmt.Sprintf("could not parse dependency line: %s", stripped),
				Path:    rel,
			})
			continue
		}
		deps = append(deps, Dependency{Ecosystem: "pypi", Name: name, Spec: stripped, Source: rel})
	}
	return deps
}

func parsePackageJSON(path, skillRoot string, issues *[]Issue) []Dependency {
	rel := relOf(skillRoot, path)
	data, err := os.ReadFile(path)
	if err != nil {
		*issues = append(*issues, Issue{
			Code:    "DEPENDENCY_NPM_PARSE",
			Message: fmt.Sprintf("failed to read package.json: %v", err),
			Path:    rel,
		})
		return nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		*issues = append(*issues, Issue{
			Code:    "DEPENDENCY_NPM_PARSE",
			Message: fmt.Sprintf("failed to parse package.json: %v", err),
			Path:    rel,
		})
		return nil
	}
	var deps []Dependency
	for _, section := range []string{"dependencies", "devDependencies", "optionalDependencies"} {
		raw, ok := doc[section]
		if !ok {
			continue
		}
		var entries map[string]string
		if err := json.Unmarshal(raw, &entries); err != nil {
			*issues = append(*issues, Issue{
				Code:    "DEPENDENCY_NPM_PARSE",
				Message: fmt.Sprintf("%s must be an object of string versions", section),
				Path:    rel,
			})
			continue
		}
		for name, version := range entries {
			deps = append(deps, Dependency{
				Ecosystem: "npm",
				Name:      name,
				Spec:      name + "@" + version,
				Source:    rel,
			})
		}
	}
	return deps
}
