// Package config provides unified configuration loading for hddl.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/hddl-sim/internal/merge"
	"gopkg.in/yaml.v3"
)

// DefaultScenarioPattern matches scenario files anywhere below the root.
const DefaultScenarioPattern = "**/*.scenario.json"

// HDDLConfig contains all hddl configuration settings.
type HDDLConfig struct {
	// Logging contains settings for operational and audit logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Merge contains settings for patch application.
	Merge MergeConfig `json:"merge" yaml:"merge"`

	// Validation contains settings for batch scenario validation.
	Validation ValidateConfig `json:"validate" yaml:"validate"`

	// Catalog contains settings for the scenario catalog.
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`
}

// LoggingConfig configures hddl's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" and "trace" enable the audit log at .hddl/audit.jsonl.
	Level string `json:"level" yaml:"level"`
}

// MergeConfig configures how patches are merged onto scenarios.
type MergeConfig struct {
	// EnvelopePolicy resolves envelopes defined by both base and patch:
	// "base_wins" (default) or "patch_wins".
	EnvelopePolicy string `json:"envelope_policy" yaml:"envelope_policy"`
}

// ValidateConfig configures batch validation.
type ValidateConfig struct {
	// Patterns are doublestar globs, relative to the project root, used when
	// no paths are given on the command line.
	Patterns []string `json:"patterns" yaml:"patterns"`

	// Workers bounds concurrent file validation. 0 uses GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`

	// Strict makes warnings fail validation as well as errors.
	Strict bool `json:"strict" yaml:"strict"`
}

// CatalogConfig configures the scenario catalog.
type CatalogConfig struct {
	// Path is the SQLite database file. Empty means <root>/.hddl/catalog.db.
	// Supports ${VAR} expansion.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Default returns an HDDLConfig with sensible defaults.
func Default() *HDDLConfig {
	return &HDDLConfig{
		Logging: LoggingConfig{
			Level: "info",
		},
		Merge: MergeConfig{
			EnvelopePolicy: string(merge.EnvelopeBaseWins),
		},
		Validation: ValidateConfig{
			Patterns: []string{DefaultScenarioPattern},
			Workers:  0,
			Strict:   false,
		},
	}
}

// GlobalConfigPath returns ~/.hddl/config.yaml.
func GlobalConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".hddl", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.hddl/config.yaml -> environment variables
func Load() (*HDDLConfig, error) {
	config := Default()

	configPath, err := GlobalConfigPath()
	if err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*HDDLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Catalog.Path = expandEnvVars(config.Catalog.Path)

	return config, nil
}

// Save writes the configuration to path as YAML, creating parent directories.
func (c *HDDLConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *HDDLConfig) Validate() error {
	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if _, err := merge.ParseEnvelopePolicy(c.Merge.EnvelopePolicy); err != nil {
		return err
	}

	if c.Validation.Workers < 0 {
		return fmt.Errorf("validate.workers must be non-negative, got %d", c.Validation.Workers)
	}

	for _, p := range c.Validation.Patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("validate.patterns must not contain empty entries")
		}
	}

	return nil
}

// EnvelopePolicy returns the parsed merge policy, falling back to base_wins.
func (c *HDDLConfig) EnvelopePolicy() merge.EnvelopePolicy {
	p, err := merge.ParseEnvelopePolicy(c.Merge.EnvelopePolicy)
	if err != nil {
		return merge.EnvelopeBaseWins
	}
	return p
}

// CatalogPath returns the catalog database path for the project root.
func (c *HDDLConfig) CatalogPath(root string) string {
	if c.Catalog.Path != "" {
		return c.Catalog.Path
	}
	return filepath.Join(root, ".hddl", "catalog.db")
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *HDDLConfig) {
	if v := os.Getenv("HDDL_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("HDDL_ENVELOPE_POLICY"); v != "" {
		config.Merge.EnvelopePolicy = v
	}

	if v := os.Getenv("HDDL_VALIDATE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Validation.Workers = n
		}
	}

	if v := os.Getenv("HDDL_VALIDATE_STRICT"); v != "" {
		config.Validation.Strict = v == "true" || v == "1"
	}

	if v := os.Getenv("HDDL_CATALOG_PATH"); v != "" {
		config.Catalog.Path = expandEnvVars(v)
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
