// Package scanner performs static heuristic detection of risky operations
// in skill bundle files, without executing any code.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/skillfence/skillfence/internal/policy"
)

// Finding is a single detection with a stable namespaced code and
// file-relative evidence. Findings are value objects.
type Finding struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result aggregates one static scan pass over a skill root.
type Result struct {
	FilesLoaded int
	Egress      []Finding
	Writes      []Finding
	Notes       []string
}

// Directories excluded from the walk entirely: version control, caches,
// vendored dependencies.
var excludedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".skillfence":  true,
}

// Scan walks every file under skillRoot in sorted order, classifies it, and
// evaluates the applicable pattern sets against policy. Detection is
// deliberately conservative regex matching; matches inside comments or
// string literals are an accepted tradeoff.
func Scan(skillRoot string, pol *policy.Policy) (*Result, error) {
	res := &Result{}
	err := filepath.WalkDir(skillRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == skillRoot {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p != skillRoot && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(skillRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		if pol.IsReadAllowed(rel) {
			res.FilesLoaded++
		} else {
			res.Notes = append(res.Notes, fmt.Sprintf("Read outside policy allowlist ignored: %s", rel))
		}
		if !utf8.Valid(data) {
			// Binary content is counted above but never pattern-scanned.
			return nil
		}
		text := string(data)
		langs := Classify(rel)
		res.Egress = append(res.Egress, detectEgress(rel, text, langs, pol)...)
		res.Writes = append(res.Writes, detectWrites(rel, text, langs, pol)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", skillRoot, err)
	}
	return res, nil
}

// Classify derives the language set for a bundle-relative path. Files under
// scripts/ with an unknown extension are still candidate script sources.
func Classify(rel string) Language {
	ext := strings.ToLower(path.Ext(rel))
	if lang, ok := extLanguages[ext]; ok {
		return lang | LangText
	}
	if strings.HasPrefix(rel, "scripts/") || strings.Contains(rel, "/scripts/") {
		return langAllScripts | LangText
	}
	return LangText
}

func detectEgress(rel, text string, langs Language, pol *policy.Policy) []Finding {
	var findings []Finding
	for _, def := range egressPatterns {
		if def.langs&langs == 0 {
			continue
		}
		for _, match := range def.re.FindAllStringSubmatch(text, -1) {
			rawURL := captureGroup(def, match, "url")
			if rawURL == "" || pol.IsHostAllowed(rawURL) {
				continue
			}
			findings = append(findings, Finding{
				Code:    "EGRESS_" + strings.ToUpper(def.code),
				Message: fmt.Sprintf("%s: outbound call to %s blocked by policy", rel, rawURL),
			})
		}
	}
	return findings
}

func detectWrites(rel, text string, langs Language, pol *policy.Policy) []Finding {
	var findings []Finding
	for _, def := range writePatterns {
		if def.langs&langs == 0 {
			continue
		}
		for _, match := range def.re.FindAllStringSubmatch(text, -1) {
			target := strings.TrimSpace(captureGroup(def, match, "path"))
			if target == "" {
				continue
			}
			code := "WRITE_" + strings.ToUpper(def.code)
			switch {
			case isTraversal(target):
				// Traversal can never be in scope, regardless of allowlist.
				findings = append(findings, Finding{
					Code:    code,
					Message: fmt.Sprintf("%s: attempt to access %s escapes skill root", rel, target),
				})
			case isAbsolutePath(target):
				findings = append(findings, Finding{
					Code:    code,
					Message: fmt.Sprintf("%s: write to absolute path %s outside skill root", rel, target),
				})
			case !pol.IsWriteAllowed(target):
				findings = append(findings, Finding{
					Code:    code,
					Message: fmt.Sprintf("%s: write to '%s' not covered by policy allowlist", rel, target),
				})
			}
		}
	}
	return findings
}

func isTraversal(target string) bool {
	return strings.HasPrefix(target, "../") || strings.HasPrefix(target, `..\`)
}

func isAbsolutePath(target string) bool {
	if strings.HasPrefix(target, "/") || strings.HasPrefix(target, `\`) {
		return true
	}
	// Windows drive letter.
	if len(target) >= 3 && target[1] == ':' && (target[2] == '\\' || target[2] == '/') {
		return true
	}
	return false
}
