// Package config resolves tool settings from file and environment.
// Priority: environment > file > defaults.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name under $HOME.
	ConfigDir = ".skillfence"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
	// OutputDirName is the default artifact directory inside a working tree.
	OutputDirName = ".skillfence"
)

// PolicyConfig selects the policy source for a run.
type PolicyConfig struct {
	Path            string `json:"path" envconfig:"PATH"`
	Pack            string `json:"pack" envconfig:"PACK"`
	ExpectedVersion int    `json:"expectedVersion" envconfig:"EXPECTED_VERSION"`
}

// ProbeConfig carries probe toggles that precede the policy defaults.
type ProbeConfig struct {
	Exec bool `json:"exec" envconfig:"EXEC"`
}

// AttestConfig holds optional signing material.
type AttestConfig struct {
	SigningKeyPath string `json:"signingKeyPath" envconfig:"SIGNING_KEY_PATH"`
}

// Config is the resolved tool configuration.
type Config struct {
	OutputDir string       `json:"outputDir" envconfig:"OUTPUT_DIR"`
	HistoryDB string       `json:"historyDb" envconfig:"HISTORY_DB"`
	AuditLog  string       `json:"auditLog" envconfig:"AUDIT_LOG"`
	Policy    PolicyConfig `json:"policy"`
	Probe     ProbeConfig  `json:"probe"`
	Attest    AttestConfig `json:"attest"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputDir: OutputDirName,
		HistoryDB: filepath.Join(OutputDirName, "history.db"),
		AuditLog:  filepath.Join(OutputDirName, "audit.jsonl"),
	}
}

// Path returns the config file location, honoring SKILLFENCE_CONFIG.
func Path() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("SKILLFENCE_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load reads the config file (if present) and applies environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := Path()
	if err == nil {
		data, readErr := os.ReadFile(path)
		if readErr == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(readErr) {
			return nil, readErr
		}
	}

	envconfig.Process("SKILLFENCE", cfg)
	envconfig.Process("SKILLFENCE_POLICY", &cfg.Policy)
	envconfig.Process("SKILLFENCE_PROBE", &cfg.Probe)
	envconfig.Process("SKILLFENCE_ATTEST", &cfg.Attest)

	expandHome := func(p *string) {
		if strings.HasPrefix(*p, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				*p = filepath.Join(home, (*p)[1:])
			}
		}
	}
	expandHome(&cfg.OutputDir)
	expandHome(&cfg.HistoryDB)
	expandHome(&cfg.AuditLog)
	expandHome(&cfg.Policy.Path)
	expandHome(&cfg.Attest.SigningKeyPath)

	return cfg, nil
}

// Save writes the configuration back to the config file.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// EnsureOutputDir creates the artifact directory.
func EnsureOutputDir(cfg *Config) error {
	return os.MkdirAll(cfg.OutputDir, 0o755)
}
