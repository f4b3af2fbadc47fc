// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// WorkflowContent is a complete workflow definition: an ordered list
// of steps executed sequentially by the runner when a trigger event
// matches. Workflows are authored as YAML (or JSONC) files.
//
// Variable substitution (${NAME}) is applied to all string fields in
// steps before execution. Variables are resolved from declared
// defaults, trigger event fields, explicit run parameters, and the
// process environment.
type WorkflowContent struct {
	// Name is a human-readable workflow name (e.g., "Lint & Test").
	// When empty, the file basename is used.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Description is a human-readable summary of what this workflow
	// does, shown by "conveyor show".
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// On declares which trigger events start this workflow. A
	// workflow with no triggers can only be run explicitly via
	// "conveyor run".
	On *Triggers `yaml:"on,omitempty" json:"on,omitempty"`

	// Env is the workflow-level environment: variables exported to
	// every step's command. Values support ${NAME} substitution.
	// Step-level env entries override workflow-level ones.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Concurrency assigns this workflow's runs to a concurrency
	// group. At most one run per group is in flight at a time; see
	// Concurrency.CancelInProgress for what happens to the previous
	// run when a new one starts.
	Concurrency *Concurrency `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`

	// Variables declares the variables this workflow expects, with
	// optional defaults and required flags. The runner validates
	// required variables before starting execution.
	Variables map[string]WorkflowVariable `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Steps is the ordered list of steps to execute. At least one
	// step is required. Steps run strictly sequentially; there is no
	// parallel step execution (use shell backgrounding if needed).
	Steps []WorkflowStep `yaml:"steps" json:"steps"`

	// OnFailure is a list of steps to execute when a required
	// (non-tolerated) step fails. These are best-effort: an
	// on_failure step that itself fails is logged and the remaining
	// on_failure steps still run. The variables FAILED_STEP and
	// FAILED_ERROR are injected for them.
	OnFailure []WorkflowStep `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
}

// WorkflowVariable declares an expected variable for a workflow.
type WorkflowVariable struct {
	// Description explains what this variable is for.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Default is the fallback value when the variable is not
	// provided by any source. Empty string is a valid default.
	Default string `yaml:"default,omitempty" json:"default,omitempty"`

	// Required means the runner must fail if this variable has no
	// value from any source (including Default).
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`
}

// Triggers declares which events start a workflow. A nil trigger
// block for an event kind means that kind never matches.
type Triggers struct {
	// Push matches push events, optionally filtered by branch.
	Push *PushTrigger `yaml:"push,omitempty" json:"push,omitempty"`

	// PullRequest matches pull request events, optionally filtered
	// by action type.
	PullRequest *PullRequestTrigger `yaml:"pull_request,omitempty" json:"pull_request,omitempty"`
}

// PushTrigger filters push events by branch name.
type PushTrigger struct {
	// Branches is a list of branch glob patterns (doublestar syntax,
	// e.g. "main", "release/**"). Empty means any branch matches.
	Branches []string `yaml:"branches,omitempty" json:"branches,omitempty"`
}

// PullRequestTrigger filters pull request events by action.
type PullRequestTrigger struct {
	// Types is a list of pull request actions ("opened",
	// "synchronize", "reopened", ...). Empty means any action
	// matches.
	Types []string `yaml:"types,omitempty" json:"types,omitempty"`
}

// Concurrency assigns runs to a named group. The dispatcher
// serializes runs within a group: a group has at most one run in
// flight.
type Concurrency struct {
	// Group is the group key. Supports ${NAME} substitution against
	// trigger event variables, so "ci-${EVENT_REF}" serializes per
	// branch. Required when the concurrency block is present.
	Group string `yaml:"group" json:"group"`

	// CancelInProgress makes a newly started run cancel the group's
	// in-flight run instead of waiting for it. The cancelled run
	// finishes with conclusion "cancelled".
	CancelInProgress bool `yaml:"cancel_in_progress,omitempty" json:"cancel_in_progress,omitempty"`
}

// WorkflowStep is a single step in a workflow. Exactly one of Run or
// Upload must be set:
//   - Run: execute a shell command
//   - Upload: store files in the artifact store under a fixed name
type WorkflowStep struct {
	// ID identifies this step for outcome references in later steps'
	// if expressions (steps.<id>.outcome) and for output variable
	// names (OUTPUT_<id>_<name>). Required when another step
	// references this one; otherwise optional. Must be unique within
	// the workflow. Letters, digits, underscores, and dashes.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// Name is a human-readable label used in log output and status
	// messages (e.g., "Install dependencies"). Required.
	Name string `yaml:"name" json:"name"`

	// Run is a shell command executed via sh -c. Multi-line strings
	// are supported. Mutually exclusive with Upload.
	Run string `yaml:"run,omitempty" json:"run,omitempty"`

	// Check is a post-step verification command. Runs after Run
	// succeeds; a non-zero exit fails the step. Catches commands
	// that "succeed" without producing the expected result. Only
	// valid with Run.
	Check string `yaml:"check,omitempty" json:"check,omitempty"`

	// If is a condition expression controlling whether the step
	// executes. Supports success(), failure(), always(), cancelled(),
	// and steps.<id>.outcome comparisons combined with && || ! and
	// parentheses. When empty, the step runs only while the run has
	// no required-step failure (implicit success()). A step whose
	// condition is false is recorded as skipped.
	If string `yaml:"if,omitempty" json:"if,omitempty"`

	// Env sets additional environment variables for this step's
	// command. Values support ${NAME} substitution and override
	// workflow-level env entries with the same name.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// ContinueOnError makes a failure of this step non-fatal: the
	// failure is recorded ("failed (tolerated)") and the run
	// proceeds with the aggregate status unchanged. The step's own
	// outcome is still "failure" for steps.<id>.outcome references.
	ContinueOnError bool `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`

	// Timeout bounds the step's execution ("30s", "5m"). When empty
	// the runner default applies. Parsed with time.ParseDuration.
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// GracePeriod, when set, makes timeout termination graceful:
	// SIGTERM first, SIGKILL after the grace period. When empty,
	// SIGKILL is immediate.
	GracePeriod string `yaml:"grace_period,omitempty" json:"grace_period,omitempty"`

	// WorkingDir is the directory the command runs in. Defaults to
	// the runner's working directory.
	WorkingDir string `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`

	// Outputs declares files to capture as named output values after
	// the step's run command (and check, if present) succeeds. Each
	// entry is either a bare file path (inline capture, 64 KB limit,
	// trailing whitespace trimmed) or an object selecting artifact
	// mode. Captured values are injected as variables for subsequent
	// steps: OUTPUT_<id>_<name> (dashes in IDs become underscores).
	// Only valid on run steps.
	Outputs map[string]StepOutput `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// Upload stores files in the artifact store as a named artifact.
	// Mutually exclusive with Run.
	Upload *ArtifactUpload `yaml:"upload,omitempty" json:"upload,omitempty"`
}

// StepOutput declares how to capture a single output value from a
// file produced by a run step. In workflow files it is written either
// as a bare string (the path, inline capture) or as a mapping with
// explicit fields.
type StepOutput struct {
	// Path is the filesystem path to read after the step succeeds.
	// Supports ${NAME} substitution.
	Path string `yaml:"path" json:"path"`

	// Artifact stores the file in the artifact store instead of
	// reading it inline. The output value becomes the art-* ref
	// returned by the store. Use for large or binary outputs.
	Artifact bool `yaml:"artifact,omitempty" json:"artifact,omitempty"`

	// ContentType is the MIME type hint for artifact storage. Only
	// meaningful when Artifact is true.
	ContentType string `yaml:"content_type,omitempty" json:"content_type,omitempty"`

	// Description explains what this output represents.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// UnmarshalYAML accepts both the string shorthand ("out.txt") and the
// mapping form for a step output.
func (o *StepOutput) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		o.Path = value.Value
		return nil
	}

	// Alias type avoids recursing into this method.
	type plain StepOutput
	var decoded plain
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	*o = StepOutput(decoded)
	return nil
}

// UnmarshalJSON accepts both the string shorthand and the object form,
// mirroring UnmarshalYAML for JSONC workflow files.
func (o *StepOutput) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		o.Path = path
		return nil
	}

	type plain StepOutput
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("output must be a string (file path) or object, got: %s", string(data))
	}
	*o = StepOutput(decoded)
	return nil
}

// ArtifactUpload describes an upload step: files matched by Path are
// stored in the artifact store under the artifact Name. The stored
// refs are injected as output variables (OUTPUT_<id>_<basename with
// non-alphanumerics as underscores>) for later steps.
type ArtifactUpload struct {
	// Name is the artifact name the files are stored under (e.g.,
	// "pull-request-payload"). Required. Supports ${NAME}
	// substitution.
	Name string `yaml:"name" json:"name"`

	// Path is a file path or doublestar glob selecting the files to
	// upload. Required. Supports ${NAME} substitution.
	Path string `yaml:"path" json:"path"`

	// ContentType is the MIME type hint for the stored files.
	ContentType string `yaml:"content_type,omitempty" json:"content_type,omitempty"`

	// IfNoFilesFound controls behavior when Path matches nothing:
	// "warn" (default) logs and succeeds, "error" fails the step,
	// "ignore" succeeds silently.
	IfNoFilesFound string `yaml:"if_no_files_found,omitempty" json:"if_no_files_found,omitempty"`
}
