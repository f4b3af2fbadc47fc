// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/conveyorci/conveyor/lib/schema"
)

// RunLog writes structured JSONL to a file during workflow execution.
// Each line is an independent JSON object, making the log:
//
//   - Crash-safe: a SIGKILL mid-run preserves all completed step
//     results. A single JSON file would be truncated and unparseable.
//   - Streamable: a watcher can tail the file for real-time
//     step-by-step progress instead of waiting for completion.
//
// A nil *RunLog is valid: all methods are no-ops, so callers that do
// not want a result file skip the nil checks.
type RunLog struct {
	logger  *slog.Logger
	file    *os.File
	encoder *json.Encoder
}

// NewRunLog creates a JSONL run log at the given path. The file is
// created (truncating any existing content) immediately.
func NewRunLog(path string, logger *slog.Logger) (*RunLog, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating run log %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RunLog{
		logger:  logger,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Close flushes and closes the run log file.
func (r *RunLog) Close() error {
	if r == nil {
		return nil
	}
	return r.file.Close()
}

// writeStart records workflow execution start.
func (r *RunLog) writeStart(workflow string, stepCount int) {
	if r == nil {
		return
	}
	r.write(runLogStartEntry{
		Type:      "start",
		Workflow:  workflow,
		StepCount: stepCount,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeStep records the outcome of a single step.
func (r *RunLog) writeStep(index int, name string, status schema.StepResultStatus, durationMS int64, stepError string, outputs map[string]string) {
	if r == nil {
		return
	}
	r.write(runLogStepEntry{
		Type:       "step",
		Index:      index,
		Name:       name,
		Status:     status,
		DurationMS: durationMS,
		Error:      stepError,
		Outputs:    outputs,
	})
}

// writeResult records the terminal run result as the last line.
func (r *RunLog) writeResult(result schema.RunResultContent) {
	if r == nil {
		return
	}
	r.write(runLogResultEntry{
		Type:   "result",
		Result: result,
	})
}

func (r *RunLog) write(entry any) {
	if err := r.encoder.Encode(entry); err != nil {
		r.logger.Warn("failed to write run log entry", "error", err)
		return
	}
	// Sync after each line so that partial results survive a crash
	// and are visible to readers tailing the file immediately.
	if err := r.file.Sync(); err != nil {
		r.logger.Warn("failed to sync run log", "error", err)
	}
}

// JSONL entry types. Each struct documents exactly which fields appear
// in that line type. Separate structs (rather than one with omitempty
// everywhere) make the wire format explicit and self-documenting.

// runLogStartEntry is the first line, written at run start.
type runLogStartEntry struct {
	Type      string `json:"type"`
	Workflow  string `json:"workflow"`
	StepCount int    `json:"step_count"`
	Timestamp string `json:"timestamp"`
}

// runLogStepEntry is written after each step completes (or is
// skipped).
type runLogStepEntry struct {
	Type       string                  `json:"type"`
	Index      int                     `json:"index"`
	Name       string                  `json:"name"`
	Status     schema.StepResultStatus `json:"status"`
	DurationMS int64                   `json:"duration_ms"`
	Error      string                  `json:"error,omitempty"`
	Outputs    map[string]string       `json:"outputs,omitempty"`
}

// runLogResultEntry is the last line: the full run result record.
type runLogResultEntry struct {
	Type   string                  `json:"type"`
	Result schema.RunResultContent `json:"result"`
}
