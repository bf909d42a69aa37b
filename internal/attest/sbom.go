package attest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// sbomFile is one file entry in the SPDX-lite document.
type sbomFile struct {
	SPDXID    string         `json:"spdxid"`
	FileName  string         `json:"fileName"`
	Checksums []sbomChecksum `json:"checksums"`
}

type sbomChecksum struct {
	Algorithm     string `json:"algorithm"`
	ChecksumValue string `json:"checksumValue"`
}

type sbomDocument struct {
	SPDXVersion  string `json:"spdxVersion"`
	Name         string `json:"name"`
	CreationInfo struct {
		Created  string   `json:"created"`
		Creators []string `json:"creators"`
	} `json:"creationInfo"`
	Files []sbomFile `json:"files"`
}

// WriteSBOM generates a minimal SPDX-2.3 document for the skill bundle and
// writes it to outputPath.
func WriteSBOM(skillRoot, outputPath string) error {
	hashes, err := collectFileHashes(skillRoot)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := sbomDocument{
		SPDXVersion: "SPDX-2.3",
		Name:        filepath.Base(skillRoot),
		Files:       make([]sbomFile, 0, len(names)),
	}
	doc.CreationInfo.Created = time.Now().UTC().Format(time.RFC3339)
	doc.CreationInfo.Creators = []string{"Tool: skillfence/" + Version}
	for _, name := range names {
		doc.Files = append(doc.Files, sbomFile{
			SPDXID:   "SPDXRef-" + strings.ReplaceAll(name, "/", "-"),
			FileName: name,
			Checksums: []sbomChecksum{
				{Algorithm: "SHA256", ChecksumValue: hashes[name]},
			},
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, append(data, '\n'), 0o644)
}

// collectFileHashes maps bundle-relative paths to SHA-256 digests.
func collectFileHashes(skillRoot string) (map[string]string, error) {
	hashes := map[string]string{}
	err := filepath.WalkDir(skillRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(skillRoot, p)
		if relErr != nil {
			return relErr
		}
		sum, hashErr := hashFile(p)
		if hashErr != nil {
			return hashErr
		}
		hashes[filepath.ToSlash(rel)] = sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
