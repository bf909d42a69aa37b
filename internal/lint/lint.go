// Package lint runs the static rule set over a skill bundle: policy
// forbidden patterns, secret heuristics, traversal detection, manifest
// structure, and dependency allowlists.
package lint

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/skillfence/skillfence/internal/deps"
	"github.com/skillfence/skillfence/internal/manifest"
	"github.com/skillfence/skillfence/internal/policy"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// monolithCharThreshold flags SKILL.md bodies that should be split into
// progressive-disclosure files.
const monolithCharThreshold = 5000

var (
	secretPattern    = regexp.MustCompile(`(?i)(api[_-]?key|secret|token)\s*[:=]\s*[^\s]+`)
	traversalPattern = regexp.MustCompile(`\.\./|\.\.\\`)
)

// Issue is one lint finding.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path"`
	Severity string `json:"severity"`
}

// IsError reports whether the issue blocks a clean result.
func (i Issue) IsError() bool { return strings.EqualFold(i.Severity, SeverityError) }

// Report aggregates lint findings for one skill.
type Report struct {
	SkillName    string
	SkillVersion string
	Issues       []Issue
	FilesScanned int
}

// ViolationCount is the number of error-severity issues.
func (r *Report) ViolationCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.IsError() {
			n++
		}
	}
	return n
}

// OK reports whether the skill passed with no error-severity issues.
func (r *Report) OK() bool { return r.ViolationCount() == 0 }

type reportJSON struct {
	Skill struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"skill"`
	Summary struct {
		FilesScanned    int `json:"files_scanned"`
		IssueCount      int `json:"issue_count"`
		ViolationsCount int `json:"violations_count"`
	} `json:"summary"`
	Issues []Issue `json:"issues"`
}

// MarshalJSON emits the boundary artifact consumed by the report command.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{Issues: r.Issues}
	if out.Issues == nil {
		out.Issues = []Issue{}
	}
	out.Skill.Name = r.SkillName
	out.Skill.Version = r.SkillVersion
	out.Summary.FilesScanned = r.FilesScanned
	out.Summary.IssueCount = len(r.Issues)
	out.Summary.ViolationsCount = r.ViolationCount()
	return json.Marshal(out)
}

var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".skillfence":  true,
}

// Run lints one skill root. A broken manifest short-circuits into a single
// SCHEMA_INVALID issue; everything else accumulates.
func Run(skillRoot string, pol *policy.Policy) (*Report, error) {
	meta, body, err := manifest.Load(skillRoot, pol)
	if err != nil {
		structErr, ok := err.(*manifest.StructureError)
		if !ok {
			return nil, err
		}
		return &Report{
			SkillName: filepath.Base(skillRoot),
			Issues: []Issue{{
				Code:     "SCHEMA_INVALID",
				Message:  structErr.Reason,
				Path:     "SKILL.md",
				Severity: SeverityError,
			}},
		}, nil
	}

	report := &Report{SkillName: meta.Name, SkillVersion: meta.Version}

	var files []string
	walkErr := filepath.WalkDir(skillRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, p)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	sort.Strings(files)
	report.FilesScanned = len(files)

	for _, p := range files {
		rel, relErr := filepath.Rel(skillRoot, p)
		if relErr != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		data, readErr := os.ReadFile(p)
		if readErr != nil || !utf8.Valid(data) {
			// Binary files are counted but not rule-checked.
			continue
		}
		text := string(data)
		checkForbiddenPatterns(pol, rel, text, report)
		checkSecret(pol, rel, text, report)
		checkTraversal(pol, rel, text, report)
	}

	if len(body) > monolithCharThreshold {
		report.Issues = append(report.Issues, Issue{
			Code:     "SKILL_MONOLITH",
			Message:  "SKILL.md body exceeds recommended size. Consider progressive disclosure via separate files.",
			Path:     "SKILL.md",
			Severity: SeverityWarning,
		})
	}

	discovered, depIssues := deps.Collect(skillRoot)
	depIssues = append(depIssues, deps.CheckAllowlist(discovered, pol)...)
	for _, issue := range depIssues {
		report.Issues = append(report.Issues, Issue{
			Code:     issue.Code,
			Message:  issue.Message,
			Path:     issue.Path,
			Severity: SeverityError,
		})
	}

	return report, nil
}

func waived(pol *policy.Policy, code, rel string) bool {
	for _, w := range pol.Waivers {
		if w.Path == rel && w.Rule == code {
			return true
		}
	}
	return false
}

func checkForbiddenPatterns(pol *policy.Policy, rel, text string, report *Report) {
	for _, rule := range pol.ForbiddenPatterns {
		if !rule.Pattern.MatchString(text) || waived(pol, rule.Code, rel) {
			continue
		}
		report.Issues = append(report.Issues, Issue{
			Code:     rule.Code,
			Message:  rule.Reason,
			Path:     rel,
			Severity: SeverityError,
		})
	}
}

func checkSecret(pol *policy.Policy, rel, text string, report *Report) {
	if !secretPattern.MatchString(text) || waived(pol, "SECRET_SUSPECT", rel) {
		return
	}
	report.Issues = append(report.Issues, Issue{
		Code:     "SECRET_SUSPECT",
		Message:  "Potential secret token detected",
		Path:     rel,
		Severity: SeverityError,
	})
}

func checkTraversal(pol *policy.Policy, rel, text string, report *Report) {
	if !traversalPattern.MatchString(text) || waived(pol, "PATH_TRAVERSAL", rel) {
		return
	}
	report.Issues = append(report.Issues, Issue{
		Code:     "PATH_TRAVERSAL",
		Message:  "Relative path traversal detected ('../'); writes must stay within allowed globs.",
		Path:     rel,
		Severity: SeverityError,
	})
}
