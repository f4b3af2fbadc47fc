// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// RunResultContentVersion is the current schema version for
// RunResultContent records. Increment when adding fields that existing
// code must not silently drop during read-modify-write.
const RunResultContentVersion = 1

// Conclusion is the terminal outcome of a workflow run.
type Conclusion string

const (
	// ConclusionSuccess means every required step succeeded.
	// Tolerated (continue-on-error) failures do not prevent it.
	ConclusionSuccess Conclusion = "success"

	// ConclusionFailure means a required step failed.
	ConclusionFailure Conclusion = "failure"

	// ConclusionCancelled means the run was cancelled before
	// completion, typically by a newer run in the same concurrency
	// group with cancel_in_progress set.
	ConclusionCancelled Conclusion = "cancelled"
)

// StepResultStatus is the recorded outcome of a single step.
type StepResultStatus string

const (
	// StepStatusOK means the step succeeded.
	StepStatusOK StepResultStatus = "ok"

	// StepStatusFailed means the step failed and was required, so
	// the run failed.
	StepStatusFailed StepResultStatus = "failed"

	// StepStatusTolerated means the step failed but declared
	// continue_on_error, so the run proceeded.
	StepStatusTolerated StepResultStatus = "failed (tolerated)"

	// StepStatusSkipped means the step's if condition was false.
	StepStatusSkipped StepResultStatus = "skipped"

	// StepStatusCancelled means the run was cancelled while this
	// step was executing.
	StepStatusCancelled StepResultStatus = "cancelled"
)

// Outcome maps a step status to the value visible to later steps'
// if expressions as steps.<id>.outcome: "success", "failure",
// "skipped", or "cancelled". A tolerated failure is still a "failure"
// outcome — tolerance affects the run's aggregate status, not the
// step's own record.
func (s StepResultStatus) Outcome() string {
	switch s {
	case StepStatusOK:
		return "success"
	case StepStatusFailed, StepStatusTolerated:
		return "failure"
	case StepStatusSkipped:
		return "skipped"
	case StepStatusCancelled:
		return "cancelled"
	default:
		return string(s)
	}
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	// Name is the step's human-readable name.
	Name string `json:"name"`

	// Status is the recorded outcome.
	Status StepResultStatus `json:"status"`

	// DurationMS is the step's wall-clock time in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// Error is the failure message for failed/tolerated/cancelled
	// steps. Empty on success and skip.
	Error string `json:"error,omitempty"`

	// Outputs holds the step's captured output values (inline
	// content or art-* refs).
	Outputs map[string]string `json:"outputs,omitempty"`
}

// RunResultContent is the structured record of a completed workflow
// run. Written as the terminal entry of the JSONL run log and printed
// by the CLI; consumers key off Conclusion the way a CI gate would.
type RunResultContent struct {
	// Version is the schema version (see RunResultContentVersion).
	Version int `json:"version"`

	// Workflow is the name of the executed workflow.
	Workflow string `json:"workflow"`

	// Conclusion is the terminal outcome.
	Conclusion Conclusion `json:"conclusion"`

	// StartedAt is an ISO 8601 timestamp of when execution began.
	StartedAt string `json:"started_at"`

	// CompletedAt is an ISO 8601 timestamp of when execution
	// finished.
	CompletedAt string `json:"completed_at"`

	// DurationMS is the total wall-clock time in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// StepCount is the number of steps in the workflow definition
	// (not counting on_failure steps).
	StepCount int `json:"step_count"`

	// StepResults records the outcome of every step in order. Steps
	// whose condition was false (including steps after a required
	// failure) appear with status "skipped".
	StepResults []StepResult `json:"step_results,omitempty"`

	// FailedStep is the name of the step that caused a failure
	// conclusion. Empty otherwise.
	FailedStep string `json:"failed_step,omitempty"`

	// ErrorMessage is the failure or cancellation detail. Empty on
	// success.
	ErrorMessage string `json:"error_message,omitempty"`
}

// Validate checks the result record is well-formed.
func (r RunResultContent) Validate() error {
	if r.Version < 1 {
		return fmt.Errorf("run result version must be >= 1, got %d", r.Version)
	}
	switch r.Conclusion {
	case ConclusionSuccess, ConclusionFailure, ConclusionCancelled:
	default:
		return fmt.Errorf("unknown conclusion %q", r.Conclusion)
	}
	return nil
}

// CanModify returns true if the caller's code understands this
// version. Callers performing read-modify-write should check CanModify
// before writing back to avoid silently dropping fields added in newer
// versions.
func (r RunResultContent) CanModify() bool {
	return r.Version <= RunResultContentVersion
}
