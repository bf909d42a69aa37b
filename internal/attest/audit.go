package attest

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AppendAuditEvent appends one hash-chained JSONL line to the audit log at
// path. Each entry carries the hash of its own canonical form and the hash of
// the previous entry, so tampering with history breaks the chain.
func AppendAuditEvent(path, eventType string, payload map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	entry := map[string]any{
		"time":      time.Now().UTC().Format(time.RFC3339),
		"eventType": strings.TrimSpace(eventType),
	}
	for k, v := range payload {
		if k == "hash" || k == "prevHash" {
			continue
		}
		entry[k] = v
	}
	prevHash, err := readLastAuditHash(path)
	if err != nil {
		return err
	}
	if prevHash != "" {
		entry["prevHash"] = prevHash
	}
	entry["hash"] = computeAuditHash(entry)

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// VerifyAuditChain walks the log and reports the first broken link, if any.
func VerifyAuditChain(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var prevHash string
	lineNo := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return fmt.Errorf("audit line %d: invalid JSON: %w", lineNo, err)
		}
		stored, _ := entry["hash"].(string)
		if stored == "" {
			return fmt.Errorf("audit line %d: missing hash", lineNo)
		}
		got, _ := entry["prevHash"].(string)
		if got != prevHash {
			return fmt.Errorf("audit line %d: chain break: prevHash %q, expected %q", lineNo, got, prevHash)
		}
		if computeAuditHash(entry) != stored {
			return fmt.Errorf("audit line %d: hash mismatch", lineNo)
		}
		prevHash = stored
	}
	return sc.Err()
}

func readLastAuditHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	var last string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if last == "" {
		return "", nil
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(last), &entry); err != nil {
		return "", fmt.Errorf("invalid existing audit line: %w", err)
	}
	hash, _ := entry["hash"].(string)
	return strings.TrimSpace(hash), nil
}

// computeAuditHash digests the entry's canonical JSON form with the hash
// field itself excluded.
func computeAuditHash(entry map[string]any) string {
	canonical := make(map[string]any, len(entry))
	for k, v := range entry {
		if k == "hash" {
			continue
		}
		canonical[k] = v
	}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
