// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conveyorci/conveyor/lib/schema"
)

// Validate checks a WorkflowContent for structural issues. Returns a
// list of human-readable issue descriptions. An empty list means the
// workflow is valid.
//
// Structural checks include:
//   - At least one step is required
//   - Each step must have a non-empty Name
//   - Step IDs must be unique
//   - Each step must set exactly one of Run or Upload
//   - Check and Outputs are only valid on run steps
//   - Upload steps must have Name and Path
//   - Timeout and GracePeriod must parse with time.ParseDuration
//   - If expressions must parse, and their step references must
//     resolve to the ID of an earlier step
//   - Branch trigger globs must be valid doublestar patterns
//   - Concurrency.Group must be non-empty when concurrency is set
func Validate(content *schema.WorkflowContent) []string {
	var issues []string

	if len(content.Steps) == 0 {
		issues = append(issues, "workflow has no steps (at least one step is required)")
	}

	if content.On != nil && content.On.Push != nil {
		for _, pattern := range content.On.Push.Branches {
			if !doublestar.ValidatePattern(pattern) {
				issues = append(issues, fmt.Sprintf("on.push.branches: invalid pattern %q", pattern))
			}
		}
	}

	if content.Concurrency != nil && content.Concurrency.Group == "" {
		issues = append(issues, "concurrency.group is required when concurrency is configured")
	}

	// IDs of steps seen so far, for uniqueness and forward-reference
	// checks. Condition expressions may only reference earlier steps:
	// a later step has no outcome when the condition is evaluated.
	seenIDs := map[string]int{}

	for index, step := range content.Steps {
		prefix := fmt.Sprintf("steps[%d]", index)
		if step.Name != "" {
			prefix = fmt.Sprintf("steps[%d] %q", index, step.Name)
		}

		issues = append(issues, validateStep(step, prefix, seenIDs)...)

		if step.ID != "" {
			if previous, exists := seenIDs[step.ID]; exists {
				issues = append(issues, fmt.Sprintf("%s: duplicate step ID %q (also used by steps[%d])", prefix, step.ID, previous))
			} else {
				seenIDs[step.ID] = index
			}
		}
	}

	// on_failure steps run after the main sequence, so they may
	// reference any main-sequence step ID. They have no IDs of their
	// own worth referencing, but uniqueness against the main
	// sequence still holds.
	for index, step := range content.OnFailure {
		prefix := fmt.Sprintf("on_failure[%d]", index)
		if step.Name != "" {
			prefix = fmt.Sprintf("on_failure[%d] %q", index, step.Name)
		}
		issues = append(issues, validateStep(step, prefix, seenIDs)...)
	}

	return issues
}

// validateStep checks a single step. seenIDs holds the IDs of steps
// that precede it (used to validate condition references).
func validateStep(step schema.WorkflowStep, prefix string, seenIDs map[string]int) []string {
	var issues []string

	if step.Name == "" {
		issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
	}

	hasRun := step.Run != ""
	hasUpload := step.Upload != nil

	switch {
	case hasRun && hasUpload:
		issues = append(issues, fmt.Sprintf("%s: run and upload are mutually exclusive (set exactly one)", prefix))
	case !hasRun && !hasUpload:
		issues = append(issues, fmt.Sprintf("%s: must set either run or upload", prefix))
	}

	// Fields that are only meaningful for run steps.
	if !hasRun {
		if step.Check != "" {
			issues = append(issues, fmt.Sprintf("%s: check is only valid on run steps", prefix))
		}
		if len(step.Outputs) > 0 {
			issues = append(issues, fmt.Sprintf("%s: outputs are only valid on run steps", prefix))
		}
	}

	// Upload step must have name and path.
	if hasUpload {
		if step.Upload.Name == "" {
			issues = append(issues, fmt.Sprintf("%s: upload.name is required", prefix))
		}
		if step.Upload.Path == "" {
			issues = append(issues, fmt.Sprintf("%s: upload.path is required", prefix))
		}
		switch step.Upload.IfNoFilesFound {
		case "", "warn", "error", "ignore":
		default:
			issues = append(issues, fmt.Sprintf("%s: upload.if_no_files_found must be warn, error, or ignore, got %q", prefix, step.Upload.IfNoFilesFound))
		}
	}

	// Durations must be parseable when present.
	if step.Timeout != "" {
		if _, err := time.ParseDuration(step.Timeout); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid timeout %q: %v", prefix, step.Timeout, err))
		}
	}
	if step.GracePeriod != "" {
		if _, err := time.ParseDuration(step.GracePeriod); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid grace_period %q: %v", prefix, step.GracePeriod, err))
		}
	}

	// Condition must parse and reference only earlier steps.
	if step.If != "" {
		condition, err := ParseCondition(step.If)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", prefix, err))
		} else {
			for _, ref := range condition.StepRefs() {
				if _, exists := seenIDs[ref]; !exists {
					issues = append(issues, fmt.Sprintf("%s: if references steps.%s.outcome, but no earlier step has ID %q", prefix, ref, ref))
				}
			}
		}
	}

	// Output declarations need a path.
	for name, output := range step.Outputs {
		if output.Path == "" {
			issues = append(issues, fmt.Sprintf("%s: outputs[%s]: path is required", prefix, name))
		}
	}

	return issues
}
