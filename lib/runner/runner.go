// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/conveyorci/conveyor/lib/artifactstore"
	"github.com/conveyorci/conveyor/lib/schema"
	"github.com/conveyorci/conveyor/lib/workflow"
)

// Runner executes workflows one at a time. The zero value is usable
// for tests; callers normally set at least Store and Logger.
type Runner struct {
	// Store is the artifact store used by upload steps and
	// artifact-mode outputs. May be nil; steps that need it fail
	// with a clear error.
	Store *artifactstore.Store

	// Logger receives run progress. When nil, logging is discarded.
	Logger *slog.Logger

	// RunLog receives the JSONL execution record. May be nil.
	RunLog *RunLog

	// Stdout and Stderr are attached to step commands. They default
	// to the process's own stdout and stderr.
	Stdout io.Writer
	Stderr io.Writer

	// DefaultTimeout bounds steps that declare no timeout of their
	// own. Zero means DefaultStepTimeout.
	DefaultTimeout time.Duration

	// BaseEnv is the base process environment for step commands.
	// When nil, os.Environ() is used.
	BaseEnv []string
}

// runState tracks the run's aggregate status and per-step outcomes
// for condition evaluation.
type runState struct {
	failed    bool
	cancelled bool
	outcomes  map[string]string
}

func (s *runState) Failed() bool    { return s.failed }
func (s *runState) Cancelled() bool { return s.cancelled }

func (s *runState) StepOutcome(id string) (string, bool) {
	outcome, ok := s.outcomes[id]
	return outcome, ok
}

var _ workflow.RunState = (*runState)(nil)

// Run executes a workflow with the given resolved variables and
// returns the run result. The returned error is non-nil only for
// setup problems that prevented execution from starting; step
// failures and cancellation are reported through the result's
// Conclusion.
//
// Cancelling ctx cancels the run: the current step's process group is
// killed, the step is recorded as cancelled, and only steps whose
// condition still holds under cancellation (always(), cancelled())
// execute afterwards, each under its own timeout.
func (r *Runner) Run(ctx context.Context, name string, content *schema.WorkflowContent, variables map[string]string) (schema.RunResultContent, error) {
	if issues := workflow.Validate(content); len(issues) > 0 {
		return schema.RunResultContent{}, fmt.Errorf("workflow %q has validation errors:\n  %s", name, strings.Join(issues, "\n  "))
	}

	logger := r.logger()
	startedAt := time.Now()

	// Variables are mutated during the run as step outputs are
	// captured; work on a copy so the caller's map is untouched.
	runVariables := make(map[string]string, len(variables))
	for key, value := range variables {
		runVariables[key] = value
	}

	logger.Info("workflow starting", "workflow", name, "steps", len(content.Steps))
	r.RunLog.writeStart(name, len(content.Steps))

	state := &runState{outcomes: make(map[string]string)}
	var stepResults []schema.StepResult
	var failedStep, errorMessage string
	onFailureRan := false

	for index, step := range content.Steps {
		if ctx.Err() != nil {
			state.cancelled = true
		}

		record := func(result stepResult) {
			recordOutcome(state, step.ID, result.status)
			errText := ""
			if result.err != nil {
				errText = result.err.Error()
			}
			r.RunLog.writeStep(index, step.Name, result.status, result.duration.Milliseconds(), errText, result.outputs)
			stepResults = append(stepResults, schema.StepResult{
				Name:       step.Name,
				Status:     result.status,
				DurationMS: result.duration.Milliseconds(),
				Error:      errText,
				Outputs:    result.outputs,
			})
		}

		fail := func(err error) {
			record(stepResult{status: schema.StepStatusFailed, err: err})
			if !state.failed {
				state.failed = true
				failedStep = step.Name
				errorMessage = err.Error()
			}
			logger.Error("step failed",
				"workflow", name,
				"step", step.Name,
				"index", index+1,
				"total", len(content.Steps),
				"error", err)
			if !onFailureRan {
				onFailureRan = true
				r.runOnFailureSteps(ctx, content, runVariables, step.Name, err)
			}
		}

		condition, err := workflow.ParseCondition(step.If)
		if err != nil {
			fail(err)
			continue
		}
		shouldRun, err := condition.Evaluate(state)
		if err != nil {
			fail(fmt.Errorf("evaluating condition: %w", err))
			continue
		}
		if !shouldRun {
			logger.Info("step skipped",
				"workflow", name,
				"step", step.Name,
				"index", index+1,
				"total", len(content.Steps))
			record(stepResult{status: schema.StepStatusSkipped})
			continue
		}

		expandedStep, err := workflow.ExpandStep(step, runVariables)
		if err != nil {
			fail(fmt.Errorf("expanding step: %w", err))
			continue
		}

		env, err := r.stepEnvironment(content.Env, expandedStep.Env, runVariables)
		if err != nil {
			fail(err)
			continue
		}

		// Steps that run after cancellation (always-gated cleanup)
		// get a fresh context so the run-level cancellation does not
		// kill them; their own timeout still applies.
		stepContext := ctx
		if state.cancelled {
			stepContext = context.WithoutCancel(ctx)
		}

		logger.Info("step starting",
			"workflow", name,
			"step", expandedStep.Name,
			"index", index+1,
			"total", len(content.Steps))
		result := r.executeStep(stepContext, expandedStep, env)

		switch result.status {
		case schema.StepStatusOK:
			logger.Info("step ok",
				"workflow", name,
				"step", expandedStep.Name,
				"duration", result.duration.Round(time.Millisecond))
			record(result)
			injectOutputVariables(runVariables, step.ID, result.outputs)

		case schema.StepStatusCancelled:
			state.cancelled = true
			logger.Warn("step cancelled",
				"workflow", name,
				"step", expandedStep.Name,
				"error", result.err)
			record(result)
			if errorMessage == "" {
				failedStep = step.Name
				errorMessage = result.err.Error()
			}

		case schema.StepStatusFailed:
			if step.ContinueOnError {
				result.status = schema.StepStatusTolerated
				logger.Warn("step failed (tolerated)",
					"workflow", name,
					"step", expandedStep.Name,
					"error", result.err)
				record(result)
				continue
			}
			fail(result.err)

		default:
			record(result)
		}
	}

	conclusion := schema.ConclusionSuccess
	switch {
	case state.cancelled:
		conclusion = schema.ConclusionCancelled
	case state.failed:
		conclusion = schema.ConclusionFailure
	}

	totalDuration := time.Since(startedAt)
	result := schema.RunResultContent{
		Version:      schema.RunResultContentVersion,
		Workflow:     name,
		Conclusion:   conclusion,
		StartedAt:    startedAt.UTC().Format(time.RFC3339),
		CompletedAt:  time.Now().UTC().Format(time.RFC3339),
		DurationMS:   totalDuration.Milliseconds(),
		StepCount:    len(content.Steps),
		StepResults:  stepResults,
		FailedStep:   failedStep,
		ErrorMessage: errorMessage,
	}
	r.RunLog.writeResult(result)

	logger.Info("workflow complete",
		"workflow", name,
		"conclusion", conclusion,
		"duration", totalDuration.Round(time.Millisecond))
	return result, nil
}

// runOnFailureSteps executes the workflow's on_failure steps after a
// required step fails. They run with the same variables as the main
// run, plus:
//
//   - FAILED_STEP: the name of the step that failed
//   - FAILED_ERROR: the error message from the failed step
//
// All on_failure steps are best-effort: if one fails, the error is
// logged and execution continues with the remaining steps, so a
// broken notification hook cannot hide the original failure. Their
// results are written to the run log but do not appear in the run's
// step results or change its conclusion.
func (r *Runner) runOnFailureSteps(ctx context.Context, content *schema.WorkflowContent, variables map[string]string, failedStepName string, failedError error) {
	if len(content.OnFailure) == 0 {
		return
	}
	logger := r.logger()

	failureVariables := make(map[string]string, len(variables)+2)
	for key, value := range variables {
		failureVariables[key] = value
	}
	failureVariables["FAILED_STEP"] = failedStepName
	failureVariables["FAILED_ERROR"] = failedError.Error()

	logger.Info("running on_failure steps", "count", len(content.OnFailure))

	for index, step := range content.OnFailure {
		expandedStep, err := workflow.ExpandStep(step, failureVariables)
		if err != nil {
			logger.Warn("on_failure step expansion failed (continuing)",
				"step", step.Name, "error", err)
			continue
		}

		env, err := r.stepEnvironment(content.Env, expandedStep.Env, failureVariables)
		if err != nil {
			logger.Warn("on_failure step environment failed (continuing)",
				"step", step.Name, "error", err)
			continue
		}

		// A cancelled run still gets its failure hooks.
		result := r.executeStep(context.WithoutCancel(ctx), expandedStep, env)
		if result.err != nil {
			logger.Warn("on_failure step failed (continuing)",
				"step", expandedStep.Name, "error", result.err)
		}
		errText := ""
		if result.err != nil {
			errText = result.err.Error()
		}
		r.RunLog.writeStep(index, "on_failure:"+expandedStep.Name, result.status,
			result.duration.Milliseconds(), errText, result.outputs)
	}
}

// stepEnvironment builds the process environment for one step: the
// base environment, then workflow-level env entries, then step-level
// entries, later entries overriding earlier ones. Workflow-level
// values are expanded against the run variables here; step-level
// values were already expanded by ExpandStep.
func (r *Runner) stepEnvironment(workflowEnv, stepEnv map[string]string, variables map[string]string) ([]string, error) {
	base := r.BaseEnv
	if base == nil {
		base = os.Environ()
	}

	env := make([]string, len(base), len(base)+len(workflowEnv)+len(stepEnv))
	copy(env, base)

	for _, name := range sortedKeys(workflowEnv) {
		value, err := workflow.Expand(workflowEnv[name], variables)
		if err != nil {
			return nil, fmt.Errorf("expanding env %s: %w", name, err)
		}
		env = append(env, name+"="+value)
	}
	for _, name := range sortedKeys(stepEnv) {
		env = append(env, name+"="+stepEnv[name])
	}
	return env, nil
}

// recordOutcome stores the step's outcome for later condition
// references. Steps without an ID cannot be referenced.
func recordOutcome(state *runState, stepID string, status schema.StepResultStatus) {
	if stepID == "" {
		return
	}
	state.outcomes[stepID] = status.Outcome()
}

// injectOutputVariables makes a step's captured outputs available to
// subsequent steps as OUTPUT_<id>_<name> variables. Dashes become
// underscores so the names stay valid in ${...} substitution.
func injectOutputVariables(variables map[string]string, stepID string, outputs map[string]string) {
	if stepID == "" || len(outputs) == 0 {
		return
	}
	for name, value := range outputs {
		variables[outputVariableName(stepID, name)] = value
	}
}

func outputVariableName(stepID, outputName string) string {
	sanitize := func(s string) string {
		var b strings.Builder
		for _, c := range s {
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z',
				c >= '0' && c <= '9', c == '_':
				b.WriteRune(c)
			default:
				b.WriteByte('_')
			}
		}
		return b.String()
	}
	return "OUTPUT_" + sanitize(stepID) + "_" + sanitize(outputName)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}
