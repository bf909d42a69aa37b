// Package bundle opens skill sources from directories or zip archives.
package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxArchiveEntryBytes = 5 << 20
	maxArchiveTotalBytes = 40 << 20
)

// Error reports a skill source that cannot be opened as a bundle.
type Error struct {
	Target string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("skill bundle %s: %s", e.Target, e.Reason)
}

// Bundle is an opened skill source rooted at a local directory.
// Close removes any temporary extraction directory; it is a no-op for
// bundles opened directly from a directory.
type Bundle struct {
	Root    string
	cleanup string
}

// Close removes the temporary extraction root, if any.
func (b *Bundle) Close() {
	if b.cleanup != "" {
		_ = os.RemoveAll(b.cleanup)
	}
}

// Open yields a directory containing a skill, expanding zip archives into a
// temporary root as needed. The returned bundle must be closed by the caller.
func Open(path string) (*Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Target: path, Reason: err.Error()}
	}
	if info.IsDir() {
		if !hasSkillMD(path) {
			return nil, &Error{Target: path, Reason: "missing SKILL.md (or skill.md)"}
		}
		return &Bundle{Root: path}, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		tmp, err := os.MkdirTemp("", "skillfence-bundle-")
		if err != nil {
			return nil, &Error{Target: path, Reason: err.Error()}
		}
		if err := extractZip(path, tmp); err != nil {
			_ = os.RemoveAll(tmp)
			return nil, err
		}
		root, err := findSkillRoot(tmp)
		if err != nil {
			_ = os.RemoveAll(tmp)
			return nil, &Error{Target: path, Reason: err.Error()}
		}
		return &Bundle{Root: root, cleanup: tmp}, nil
	}
	return nil, &Error{Target: path, Reason: "unsupported skill bundle type"}
}

func hasSkillMD(root string) bool {
	for _, name := range []string{"SKILL.md", "skill.md"} {
		if st, err := os.Stat(filepath.Join(root, name)); err == nil && !st.IsDir() {
			return true
		}
	}
	return false
}

// findSkillRoot locates the directory holding SKILL.md: either the extraction
// root itself or a single wrapping directory (archives often nest one level).
func findSkillRoot(extracted string) (string, error) {
	if hasSkillMD(extracted) {
		return extracted, nil
	}
	entries, err := os.ReadDir(extracted)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "__MACOSX" {
			continue
		}
		candidate := filepath.Join(extracted, entry.Name())
		if hasSkillMD(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("archive does not contain a SKILL.md (or skill.md) file")
}

func extractZip(archivePath, targetRoot string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return &Error{Target: archivePath, Reason: err.Error()}
	}
	defer reader.Close()

	targetRoot, err = filepath.Abs(targetRoot)
	if err != nil {
		return &Error{Target: archivePath, Reason: err.Error()}
	}

	var total int64
	for _, entry := range reader.File {
		name := filepath.ToSlash(entry.Name)
		if !isSafeRelativePath(name) {
			return &Error{Target: archivePath, Reason: fmt.Sprintf("archive contains unsafe path: %s", entry.Name)}
		}
		dest := filepath.Join(targetRoot, filepath.FromSlash(name))
		if !strings.HasPrefix(dest, targetRoot+string(os.PathSeparator)) && dest != targetRoot {
			return &Error{Target: archivePath, Reason: fmt.Sprintf("archive path escapes target: %s", entry.Name)}
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if entry.UncompressedSize64 > maxArchiveEntryBytes {
			return &Error{Target: archivePath, Reason: fmt.Sprintf("archive entry too large: %s", entry.Name)}
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		src, err := entry.Open()
		if err != nil {
			return err
		}
		written, err := copyLimited(dest, src, maxArchiveEntryBytes)
		src.Close()
		if err != nil {
			return err
		}
		total += written
		if total > maxArchiveTotalBytes {
			return &Error{Target: archivePath, Reason: "archive exceeds total extraction limit"}
		}
	}
	return nil
}

func copyLimited(dest string, src io.Reader, limit int64) (int64, error) {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	return io.Copy(out, io.LimitReader(src, limit))
}

func isSafeRelativePath(rel string) bool {
	if rel == "" || strings.HasPrefix(rel, "/") {
		return false
	}
	if len(rel) >= 2 && rel[1] == ':' {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
