package bundle

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skill.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return path
}

func TestOpenDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("---\nname: x\ndescription: y\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("open dir: %v", err)
	}
	defer b.Close()
	if b.Root != dir {
		t.Fatalf("root = %q, want %q", b.Root, dir)
	}
}

func TestOpenDirectoryWithoutManifest(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without SKILL.md")
	}
}

func TestOpenZip(t *testing.T) {
	path := writeZip(t, map[string]string{
		"SKILL.md":       "---\nname: zipped\ndescription: z\n---\n",
		"scripts/run.py": "print('hi')\n",
	})
	b, err := Open(path)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer b.Close()
	if _, err := os.Stat(filepath.Join(b.Root, "scripts", "run.py")); err != nil {
		t.Fatalf("extracted script missing: %v", err)
	}
}

func TestOpenNestedZip(t *testing.T) {
	path := writeZip(t, map[string]string{
		"my-skill/SKILL.md":  "---\nname: nested\ndescription: n\n---\n",
		"my-skill/helper.py": "pass\n",
		"__MACOSX/junk":      "",
	})
	b, err := Open(path)
	if err != nil {
		t.Fatalf("open nested zip: %v", err)
	}
	defer b.Close()
	if filepath.Base(b.Root) != "my-skill" {
		t.Fatalf("root = %q, want nested dir", b.Root)
	}
}

func TestOpenZipRejectsTraversal(t *testing.T) {
	path := writeZip(t, map[string]string{
		"SKILL.md":      "---\nname: evil\ndescription: e\n---\n",
		"../escape.txt": "bad",
	})
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for traversal entry")
	}
}

func TestOpenZipRejectsAbsolutePath(t *testing.T) {
	path := writeZip(t, map[string]string{
		"/etc/passwd": "bad",
	})
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for absolute entry")
	}
}

func TestOpenZipWithoutManifest(t *testing.T) {
	path := writeZip(t, map[string]string{"readme.txt": "no manifest"})
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for zip without SKILL.md")
	}
}

func TestOpenUnsupportedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skill.tar")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
