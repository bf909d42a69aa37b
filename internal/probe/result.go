package probe

import (
	"encoding/json"

	"github.com/skillfence/skillfence/internal/scanner"
)

// Result is the aggregate of one skill audit, immutable after construction.
type Result struct {
	SkillName    string
	SkillVersion string
	FilesLoaded  int
	Egress       []scanner.Finding
	Writes       []scanner.Finding
	Notes        []string
	PolicyHash   string
}

// OK reports whether the audit produced no egress or write findings.
func (r *Result) OK() bool {
	return len(r.Egress) == 0 && len(r.Writes) == 0
}

type resultJSON struct {
	Skill struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"skill"`
	Summary struct {
		FilesLoadedCount int `json:"files_loaded_count"`
		EgressAttempts   int `json:"egress_attempts"`
		DisallowedWrites int `json:"disallowed_writes"`
	} `json:"summary"`
	EgressAttempts   []scanner.Finding `json:"egress_attempts"`
	DisallowedWrites []scanner.Finding `json:"disallowed_writes"`
	Notes            []string          `json:"notes"`
	PolicyHash       string            `json:"policy_hash"`
}

// MarshalJSON emits the boundary artifact consumed by report and attest
// collaborators.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		EgressAttempts:   emptyIfNil(r.Egress),
		DisallowedWrites: emptyIfNil(r.Writes),
		Notes:            r.Notes,
		PolicyHash:       r.PolicyHash,
	}
	if out.Notes == nil {
		out.Notes = []string{}
	}
	out.Skill.Name = r.SkillName
	out.Skill.Version = r.SkillVersion
	out.Summary.FilesLoadedCount = r.FilesLoaded
	out.Summary.EgressAttempts = len(r.Egress)
	out.Summary.DisallowedWrites = len(r.Writes)
	return json.Marshal(out)
}

func emptyIfNil(findings []scanner.Finding) []scanner.Finding {
	if findings == nil {
		return []scanner.Finding{}
	}
	return findings
}
