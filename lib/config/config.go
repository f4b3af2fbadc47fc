// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Conveyor.
//
// Configuration is loaded from a single file specified by:
//   - CONVEYOR_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, production) that override base values when the
// environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for CI hosts.
	Production Environment = "production"
)

// Config is the master configuration for Conveyor.
type Config struct {
	// Environment identifies the deployment type (development,
	// production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Artifacts configures the artifact store.
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// Runner configures step execution.
	Runner RunnerConfig `yaml:"runner"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Artifacts *ArtifactsConfig `yaml:"artifacts,omitempty"`
	Runner    *RunnerConfig    `yaml:"runner,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Conveyor data.
	Root string `yaml:"root"`

	// Workflows is the directory containing workflow definition
	// files, scanned by "conveyor dispatch".
	Workflows string `yaml:"workflows"`

	// Artifacts is the artifact store root.
	Artifacts string `yaml:"artifacts"`

	// RunLogs is where JSONL run logs are written.
	RunLogs string `yaml:"run_logs"`
}

// ArtifactsConfig configures the artifact store.
type ArtifactsConfig struct {
	// KeyFile is the path to a hex-encoded 32-byte master key. When
	// set, stored blobs are encrypted. Generate with "conveyor
	// artifact keygen".
	KeyFile string `yaml:"key_file"`
}

// RunnerConfig configures step execution.
type RunnerConfig struct {
	// DefaultStepTimeout bounds steps that declare no timeout of
	// their own. Parsed with time.ParseDuration. Default: 5m.
	DefaultStepTimeout string `yaml:"default_step_timeout"`
}

// Default returns the built-in configuration that a config file
// overrides.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:      "${HOME}/.conveyor",
			Workflows: "${CONVEYOR_ROOT}/workflows",
			Artifacts: "${CONVEYOR_ROOT}/artifacts",
			RunLogs:   "${CONVEYOR_ROOT}/runs",
		},
		Runner: RunnerConfig{
			DefaultStepTimeout: "5m",
		},
	}
}

// Load loads configuration from the CONVEYOR_CONFIG environment
// variable, falling back to built-in defaults when it is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("CONVEYOR_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific override
// section matching the configured environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Workflows != "" {
			c.Paths.Workflows = overrides.Paths.Workflows
		}
		if overrides.Paths.Artifacts != "" {
			c.Paths.Artifacts = overrides.Paths.Artifacts
		}
		if overrides.Paths.RunLogs != "" {
			c.Paths.RunLogs = overrides.Paths.RunLogs
		}
	}

	if overrides.Artifacts != nil {
		if overrides.Artifacts.KeyFile != "" {
			c.Artifacts.KeyFile = overrides.Artifacts.KeyFile
		}
	}

	if overrides.Runner != nil {
		if overrides.Runner.DefaultStepTimeout != "" {
			c.Runner.DefaultStepTimeout = overrides.Runner.DefaultStepTimeout
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CONVEYOR_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["CONVEYOR_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Workflows = expandVars(c.Paths.Workflows, vars)
	c.Paths.Artifacts = expandVars(c.Paths.Artifacts, vars)
	c.Paths.RunLogs = expandVars(c.Paths.RunLogs, vars)
	c.Artifacts.KeyFile = expandVars(c.Artifacts.KeyFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// DefaultStepTimeout returns the parsed runner default step timeout.
func (c *Config) DefaultStepTimeout() (time.Duration, error) {
	if c.Runner.DefaultStepTimeout == "" {
		return 5 * time.Minute, nil
	}
	timeout, err := time.ParseDuration(c.Runner.DefaultStepTimeout)
	if err != nil {
		return 0, fmt.Errorf("runner.default_step_timeout: %w", err)
	}
	return timeout, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if _, err := c.DefaultStepTimeout(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Workflows,
		c.Paths.Artifacts,
		c.Paths.RunLogs,
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
