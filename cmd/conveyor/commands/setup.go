// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/conveyorci/conveyor/lib/artifactstore"
	"github.com/conveyorci/conveyor/lib/config"
)

// loadConfig loads the configuration from an explicit --config path,
// or from CONVEYOR_CONFIG / built-in defaults when the flag is unset.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// openStore opens the configured artifact store, with encryption when
// a key file is configured.
func openStore(cfg *config.Config, logger *slog.Logger) (*artifactstore.Store, error) {
	options := []artifactstore.Option{artifactstore.WithLogger(logger)}
	if cfg.Artifacts.KeyFile != "" {
		key, err := artifactstore.ReadKeyFile(cfg.Artifacts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading artifact key file: %w", err)
		}
		options = append(options, artifactstore.WithEncryption(key))
	}
	return artifactstore.Open(cfg.Paths.Artifacts, options...)
}

// runLogPath builds a timestamped run log path for a workflow under
// the configured run log directory.
func runLogPath(cfg *config.Config, workflowName string) string {
	stamp := time.Now().UTC().Format("20060102-150405")
	return filepath.Join(cfg.Paths.RunLogs, fmt.Sprintf("%s-%s.jsonl", fileSafeName(workflowName), stamp))
}

// fileSafeName maps a workflow name to a filename-safe slug.
func fileSafeName(name string) string {
	safe := []rune(strings.ToLower(name))
	for i, r := range safe {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			safe[i] = '-'
		}
	}
	return string(safe)
}
