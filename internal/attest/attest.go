// Package attest builds signed (or explicitly unsigned) audit attestations:
// a JSON manifest binding the skill's content hashes, the policy, the lint
// and probe results, and an SPDX-lite SBOM into one verifiable artifact.
package attest

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/skillfence/skillfence/internal/lint"
	"github.com/skillfence/skillfence/internal/policy"
	"github.com/skillfence/skillfence/internal/probe"
	"github.com/skillfence/skillfence/internal/sandbox"
)

// Version is the tool version stamped into attestations and SBOMs.
const Version = "0.1.0"

// SchemaVersion identifies the attestation payload layout.
const SchemaVersion = "1.0"

// SignerStatus is the result of the one-time signing capability probe.
// Without key material the attestation is stored unsigned with an explicit
// reason; missing keys are never an error.
type SignerStatus int

const (
	SignerUnavailable SignerStatus = iota
	SignerAvailable
)

// Signer holds optional ed25519 key material for attestation signatures.
type Signer struct {
	status SignerStatus
	reason string
	key    ed25519.PrivateKey
}

// DetectSigner probes keyPath for a PEM-encoded ed25519 private key. An
// empty path or unusable key yields an unavailable signer, not an error.
func DetectSigner(keyPath string) *Signer {
	if keyPath == "" {
		return &Signer{status: SignerUnavailable, reason: "no signing key configured; attestation stored without signature"}
	}
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return &Signer{status: SignerUnavailable, reason: fmt.Sprintf("signing key unreadable: %v", err)}
	}
	block, _ := pem.Decode(data)
	var raw []byte
	if block != nil {
		raw = block.Bytes
	} else {
		raw = data
	}
	if len(raw) == ed25519.SeedSize {
		return &Signer{status: SignerAvailable, key: ed25519.NewKeyFromSeed(raw)}
	}
	if len(raw) == ed25519.PrivateKeySize {
		return &Signer{status: SignerAvailable, key: ed25519.PrivateKey(raw)}
	}
	return &Signer{status: SignerUnavailable, reason: "signing key is not a usable ed25519 key; attestation stored without signature"}
}

// Status reports whether this signer can produce signatures.
func (s *Signer) Status() SignerStatus { return s.status }

func (s *Signer) sign(payload []byte) map[string]string {
	if s.status != SignerAvailable {
		return map[string]string{"mode": "unsigned", "reason": s.reason}
	}
	sig := ed25519.Sign(s.key, payload)
	pub := s.key.Public().(ed25519.PublicKey)
	return map[string]string{
		"mode":      "ed25519",
		"signature": hex.EncodeToString(sig),
		"publicKey": hex.EncodeToString(pub),
	}
}

// Builder assembles attestation manifests for one policy.
type Builder struct {
	pol    *policy.Policy
	signer *Signer
}

// NewBuilder binds the policy and the signing capability.
func NewBuilder(pol *policy.Policy, signer *Signer) *Builder {
	if signer == nil {
		signer = DetectSigner("")
	}
	return &Builder{pol: pol, signer: signer}
}

// Build writes <stem>.attestation.json under outputDir and returns its path.
// The SBOM must already exist at sbomPath; its digest is bound into the
// payload alongside every bundle file hash.
func (b *Builder) Build(skillRoot string, lintReport *lint.Report, probeResult *probe.Result, sbomPath, outputDir, stem string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	hashes, err := collectFileHashes(skillRoot)
	if err != nil {
		return "", fmt.Errorf("hash bundle files: %w", err)
	}
	sbomHash, err := hashFile(sbomPath)
	if err != nil {
		return "", fmt.Errorf("hash sbom: %w", err)
	}

	lintDoc, err := remarshal(lintReport)
	if err != nil {
		return "", err
	}
	probeDoc, err := remarshal(probeResult)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"schemaVersion": SchemaVersion,
		"id":            uuid.NewString(),
		"generatedAt":   time.Now().UTC().Format(time.RFC3339),
		"skill": map[string]any{
			"name":    lintReport.SkillName,
			"version": lintReport.SkillVersion,
			"path":    skillRoot,
		},
		"policy": b.pol.Summary(),
		"lint":   lintDoc,
		"probe":  probeDoc,
		"sandbox": map[string]string{
			"runnerSha256": sandbox.Hash(),
		},
		"sbom": map[string]string{
			"path":   sbomPath,
			"sha256": sbomHash,
		},
		"files": hashes,
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	payload["signature"] = b.signer.sign(serialized)

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, stem+".attestation.json")
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// remarshal round-trips a typed report through its MarshalJSON so the
// attestation embeds the same shape the standalone artifacts use.
func remarshal(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
