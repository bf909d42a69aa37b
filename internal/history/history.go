// Package history persists audit outcomes in a local SQLite database so past
// runs can be listed and compared without keeping the JSON artifacts around.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/skillfence/skillfence/internal/probe"
)

const schema = `
CREATE TABLE IF NOT EXISTS probe_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT UNIQUE NOT NULL,
	skill_name TEXT NOT NULL,
	skill_version TEXT DEFAULT '',
	policy_hash TEXT DEFAULT '',
	files_loaded INTEGER NOT NULL DEFAULT 0,
	egress_count INTEGER NOT NULL DEFAULT 0,
	writes_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	result_json TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_probe_runs_skill ON probe_runs(skill_name);
CREATE INDEX IF NOT EXISTS idx_probe_runs_created ON probe_runs(created_at);
`

// Run is one stored audit outcome.
type Run struct {
	ID           int64
	RunID        string
	SkillName    string
	SkillVersion string
	PolicyHash   string
	FilesLoaded  int
	EgressCount  int
	WritesCount  int
	Status       string
	CreatedAt    time.Time
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordProbe stores one probe result and returns the generated run ID.
func (s *Store) RecordProbe(result *probe.Result) (string, error) {
	status := "fail"
	if result.OK() {
		status = "pass"
	}
	doc, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("serialize probe result: %w", err)
	}
	runID := uuid.NewString()
	_, err = s.db.Exec(`INSERT INTO probe_runs
		(run_id, skill_name, skill_version, policy_hash, files_loaded, egress_count, writes_count, status, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, result.SkillName, result.SkillVersion, result.PolicyHash,
		result.FilesLoaded, len(result.Egress), len(result.Writes), status, string(doc))
	if err != nil {
		return "", fmt.Errorf("record probe run: %w", err)
	}
	return runID, nil
}

// ListRuns returns the most recent runs, optionally filtered by skill name.
func (s *Store) ListRuns(skillName string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, run_id, skill_name, COALESCE(skill_version,''), COALESCE(policy_hash,''),
		files_loaded, egress_count, writes_count, status, created_at
		FROM probe_runs WHERE 1=1`
	args := []any{}
	if skillName != "" {
		query += " AND skill_name = ?"
		args = append(args, skillName)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RunID, &r.SkillName, &r.SkillVersion, &r.PolicyHash,
			&r.FilesLoaded, &r.EgressCount, &r.WritesCount, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRunResult returns the stored probe artifact for one run.
func (s *Store) GetRunResult(runID string) (map[string]any, error) {
	var doc string
	err := s.db.QueryRow(`SELECT result_json FROM probe_runs WHERE run_id = ?`, runID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, fmt.Errorf("stored result for %s is corrupt: %w", runID, err)
	}
	return out, nil
}
