// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conveyor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Environment != Development {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	timeout, err := cfg.DefaultStepTimeout()
	if err != nil {
		t.Fatal(err)
	}
	if timeout != 5*time.Minute {
		t.Errorf("DefaultStepTimeout = %v, want 5m", timeout)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: development
paths:
  root: /var/lib/conveyor
artifacts:
  key_file: /etc/conveyor/artifact.key
runner:
  default_step_timeout: 10m
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Paths.Root != "/var/lib/conveyor" {
		t.Errorf("Paths.Root = %q", cfg.Paths.Root)
	}
	// Dependent paths expand against the configured root.
	if cfg.Paths.Workflows != "/var/lib/conveyor/workflows" {
		t.Errorf("Paths.Workflows = %q", cfg.Paths.Workflows)
	}
	if cfg.Artifacts.KeyFile != "/etc/conveyor/artifact.key" {
		t.Errorf("Artifacts.KeyFile = %q", cfg.Artifacts.KeyFile)
	}
	timeout, err := cfg.DefaultStepTimeout()
	if err != nil {
		t.Fatal(err)
	}
	if timeout != 10*time.Minute {
		t.Errorf("DefaultStepTimeout = %v, want 10m", timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
paths:
  root: /var/lib/conveyor
runner:
  default_step_timeout: 5m
production:
  paths:
    root: /srv/conveyor
  runner:
    default_step_timeout: 30m
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Paths.Root != "/srv/conveyor" {
		t.Errorf("Paths.Root = %q, want production override", cfg.Paths.Root)
	}
	if cfg.Runner.DefaultStepTimeout != "30m" {
		t.Errorf("DefaultStepTimeout = %q, want 30m", cfg.Runner.DefaultStepTimeout)
	}
}

func TestOverridesOnlyApplyToMatchingEnvironment(t *testing.T) {
	path := writeConfig(t, `
environment: development
paths:
  root: /var/lib/conveyor
production:
  paths:
    root: /srv/conveyor
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Paths.Root != "/var/lib/conveyor" {
		t.Errorf("Paths.Root = %q, production override leaked into development", cfg.Paths.Root)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("CONVEYOR_TEST_VAR", "expanded")

	tests := []struct {
		input string
		want  string
	}{
		{"${CONVEYOR_TEST_VAR}/data", "expanded/data"},
		{"${CONVEYOR_TEST_UNSET:-fallback}/data", "fallback/data"},
		{"no variables", "no variables"},
	}
	for _, tt := range tests {
		if got := expandVars(tt.input, nil); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Environment = "quality-assurance"
	cfg.Paths.Root = ""
	cfg.Runner.DefaultStepTimeout = "not-a-duration"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted an invalid config")
	}
}

func TestLoadWithoutConfigUsesDefaults(t *testing.T) {
	t.Setenv("CONVEYOR_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.Root == "" {
		t.Error("default root is empty")
	}
}
