package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nvandessel/hddl-sim/internal/config"
)

func TestConfigCmd_SetGet(t *testing.T) {
	isolateHome(t, t.TempDir())

	if _, _, err := execute(t, newConfigCmd(), "config", "set", "merge.envelope_policy", "patch_wins"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if _, _, err := execute(t, newConfigCmd(), "config", "set", "validate.patterns", "a/*.scenario.json, b/**/*.scenario.yaml"); err != nil {
		t.Fatalf("config set patterns failed: %v", err)
	}

	stdout, _, err := execute(t, newConfigCmd(), "config", "get", "merge.envelope_policy")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(stdout) != "merge.envelope_policy = patch_wins" {
		t.Errorf("unexpected output: %q", stdout)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Validation.Patterns) != 2 || cfg.Validation.Patterns[1] != "b/**/*.scenario.yaml" {
		t.Errorf("Patterns = %v", cfg.Validation.Patterns)
	}
}

func TestConfigCmd_SetDoesNotPersistEnv(t *testing.T) {
	isolateHome(t, t.TempDir())
	t.Setenv("HDDL_LOG_LEVEL", "trace")

	if _, _, err := execute(t, newConfigCmd(), "config", "set", "validate.workers", "3"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}

	path, err := config.GlobalConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("saved level = %q, env override should not be persisted", cfg.Logging.Level)
	}
	if cfg.Validation.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Validation.Workers)
	}
}

func TestConfigCmd_InvalidValues(t *testing.T) {
	isolateHome(t, t.TempDir())

	tests := []struct {
		key, value string
	}{
		{"merge.envelope_policy", "newest_wins"},
		{"validate.workers", "many"},
		{"validate.workers", "-2"},
		{"validate.strict", "maybe"},
		{"validate.patterns", " , "},
		{"logging.level", "loud"},
		{"no.such.key", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			if _, _, err := execute(t, newConfigCmd(), "config", "set", tt.key, tt.value); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfigCmd_ListJSON(t *testing.T) {
	isolateHome(t, t.TempDir())

	stdout, _, err := execute(t, newConfigCmd(), "config", "list", "--json")
	if err != nil {
		t.Fatalf("config list failed: %v", err)
	}
	var cfg config.HDDLConfig
	if err := json.Unmarshal([]byte(stdout), &cfg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if cfg.Merge.EnvelopePolicy != "base_wins" {
		t.Errorf("EnvelopePolicy = %q, want base_wins", cfg.Merge.EnvelopePolicy)
	}

	stdout, _, err = execute(t, newConfigCmd(), "config", "list")
	if err != nil {
		t.Fatalf("config list failed: %v", err)
	}
	for _, key := range configKeys {
		if !strings.Contains(stdout, key+":") {
			t.Errorf("list output missing %s", key)
		}
	}
}

func TestConfigCmd_GetUnknown(t *testing.T) {
	isolateHome(t, t.TempDir())
	if _, _, err := execute(t, newConfigCmd(), "config", "get", "llm.provider"); err == nil {
		t.Error("expected error for unknown key")
	}
}
