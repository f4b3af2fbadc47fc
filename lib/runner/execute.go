// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conveyorci/conveyor/lib/schema"
)

// DefaultStepTimeout is used when a step does not specify its own
// timeout.
const DefaultStepTimeout = 5 * time.Minute

// maxInlineOutputSize is the maximum size for inline (non-artifact)
// output files. 64 KB is sufficient for commit SHAs, branch names,
// version strings, and other small text values that steps typically
// produce. Larger outputs should use artifact mode.
const maxInlineOutputSize = 64 * 1024

// stepResult captures the outcome of executing a single step.
type stepResult struct {
	status   schema.StepResultStatus
	duration time.Duration
	err      error
	outputs  map[string]string
}

// executeStep runs a single already-expanded step: the run command,
// the check command, and output capture for run steps, or the file
// upload for upload steps. Condition evaluation happens in the run
// loop before this is called.
func (r *Runner) executeStep(ctx context.Context, step schema.WorkflowStep, env []string) stepResult {
	startTime := time.Now()

	timeout := r.defaultTimeout()
	if step.Timeout != "" {
		parsed, err := time.ParseDuration(step.Timeout)
		if err != nil {
			// Validate should have caught this, but fail loud if not.
			return stepResult{
				status:   schema.StepStatusFailed,
				duration: time.Since(startTime),
				err:      fmt.Errorf("invalid timeout %q: %w", step.Timeout, err),
			}
		}
		timeout = parsed
	}

	var gracePeriod time.Duration
	if step.GracePeriod != "" {
		parsed, err := time.ParseDuration(step.GracePeriod)
		if err != nil {
			return stepResult{
				status:   schema.StepStatusFailed,
				duration: time.Since(startTime),
				err:      fmt.Errorf("invalid grace_period %q: %w", step.GracePeriod, err),
			}
		}
		gracePeriod = parsed
	}

	stepContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if step.Upload != nil {
		return r.executeUpload(step, startTime)
	}

	exitCode, err := r.runShellCommand(stepContext, step.Run, step.WorkingDir, env, gracePeriod)
	if err != nil {
		return stepResult{
			status:   runFailureStatus(ctx),
			duration: time.Since(startTime),
			err:      fmt.Errorf("run: %w", err),
		}
	}
	if exitCode != 0 {
		return stepResult{
			status:   schema.StepStatusFailed,
			duration: time.Since(startTime),
			err:      fmt.Errorf("run: exit code %d", exitCode),
		}
	}

	// Run the check command if present. Checks are quick verification
	// commands, so a timeout always kills immediately (no grace
	// period).
	if step.Check != "" {
		checkExitCode, err := r.runShellCommand(stepContext, step.Check, step.WorkingDir, env, 0)
		if err != nil {
			return stepResult{
				status:   runFailureStatus(ctx),
				duration: time.Since(startTime),
				err:      fmt.Errorf("check: %w", err),
			}
		}
		if checkExitCode != 0 {
			return stepResult{
				status:   schema.StepStatusFailed,
				duration: time.Since(startTime),
				err:      fmt.Errorf("check: exit code %d", checkExitCode),
			}
		}
	}

	// Capture declared outputs after the step action succeeds.
	var outputs map[string]string
	if len(step.Outputs) > 0 {
		captured, err := r.captureStepOutputs(step.Outputs)
		if err != nil {
			return stepResult{
				status:   schema.StepStatusFailed,
				duration: time.Since(startTime),
				err:      fmt.Errorf("capturing outputs: %w", err),
			}
		}
		outputs = captured
	}

	return stepResult{
		status:   schema.StepStatusOK,
		duration: time.Since(startTime),
		outputs:  outputs,
	}
}

// runFailureStatus distinguishes a step killed by run cancellation
// from an ordinary failure. The step context's own timeout is a
// failure; the parent run context being cancelled is a cancellation.
func runFailureStatus(runContext context.Context) schema.StepResultStatus {
	if runContext.Err() != nil {
		return schema.StepStatusCancelled
	}
	return schema.StepStatusFailed
}

// executeUpload resolves the upload glob and stores every matched
// file in the artifact store under the step's artifact name. The
// stored refs become the step's outputs, keyed by file basename.
func (r *Runner) executeUpload(step schema.WorkflowStep, startTime time.Time) stepResult {
	upload := step.Upload

	fail := func(err error) stepResult {
		return stepResult{
			status:   schema.StepStatusFailed,
			duration: time.Since(startTime),
			err:      err,
		}
	}

	if r.Store == nil {
		return fail(fmt.Errorf("upload step %q requires an artifact store, but none is configured", step.Name))
	}

	matches, err := doublestar.FilepathGlob(upload.Path)
	if err != nil {
		return fail(fmt.Errorf("upload: invalid path pattern %q: %w", upload.Path, err))
	}

	if len(matches) == 0 {
		switch upload.IfNoFilesFound {
		case "error":
			return fail(fmt.Errorf("upload: no files match %q", upload.Path))
		case "ignore":
		default: // "warn" and empty
			r.logger().Warn("upload matched no files",
				"step", step.Name,
				"artifact", upload.Name,
				"path", upload.Path)
		}
		return stepResult{status: schema.StepStatusOK, duration: time.Since(startTime)}
	}

	outputs := make(map[string]string, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			return fail(fmt.Errorf("upload: %w", err))
		}
		if info.IsDir() {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fail(fmt.Errorf("upload: reading %s: %w", path, err))
		}

		// A single-file upload stores under the artifact name
		// directly; multiple matches get the basename appended so
		// each file stays addressable.
		name := upload.Name
		if len(matches) > 1 {
			name = upload.Name + "/" + filepath.Base(path)
		}

		meta, err := r.Store.Put(name, upload.ContentType, data)
		if err != nil {
			return fail(fmt.Errorf("upload: storing %s: %w", path, err))
		}
		outputs[filepath.Base(path)] = meta.Ref()

		r.logger().Info("uploaded artifact",
			"step", step.Name,
			"artifact", name,
			"ref", meta.Ref(),
			"size", meta.Size)
	}

	return stepResult{
		status:   schema.StepStatusOK,
		duration: time.Since(startTime),
		outputs:  outputs,
	}
}

// captureStepOutputs reads the declared output files and returns a
// map of output name to value. For inline outputs, the file content
// is read as a string (64 KB limit, trailing whitespace trimmed). For
// artifact outputs, the file is stored in the artifact store and the
// returned art-* reference becomes the value.
func (r *Runner) captureStepOutputs(outputs map[string]schema.StepOutput) (map[string]string, error) {
	result := make(map[string]string, len(outputs))
	for name, output := range outputs {
		value, err := r.captureOneOutput(name, output)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		result[name] = value
	}
	return result, nil
}

func (r *Runner) captureOneOutput(name string, output schema.StepOutput) (string, error) {
	if output.Artifact {
		return r.captureArtifactOutput(name, output)
	}
	return captureInlineOutput(output.Path)
}

// captureInlineOutput reads a file as an inline string value. The
// file must exist and be at most maxInlineOutputSize bytes. Trailing
// whitespace is trimmed, since most commands write a trailing newline
// that callers don't want in their variables.
func captureInlineOutput(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("output file %s: %w", path, err)
	}
	if info.Size() > maxInlineOutputSize {
		return "", fmt.Errorf(
			"output file %s is %d bytes, exceeding the %d byte limit for inline outputs; "+
				"use artifact mode for large outputs",
			path, info.Size(), maxInlineOutputSize,
		)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading output file %s: %w", path, err)
	}
	return strings.TrimRight(string(data), " \t\n\r"), nil
}

// captureArtifactOutput stores an output file in the artifact store
// and returns its art-* content-addressed reference.
func (r *Runner) captureArtifactOutput(name string, output schema.StepOutput) (string, error) {
	if r.Store == nil {
		return "", fmt.Errorf("artifact mode requires an artifact store, but none is configured")
	}

	data, err := os.ReadFile(output.Path)
	if err != nil {
		return "", fmt.Errorf("reading output file %s: %w", output.Path, err)
	}
	meta, err := r.Store.Put(name, output.ContentType, data)
	if err != nil {
		return "", fmt.Errorf("storing artifact for output %q: %w", name, err)
	}
	return meta.Ref(), nil
}

// runShellCommand executes a command via sh -c with stdout and stderr
// attached to the runner's writers. Returns the exit code and any
// error (signals, context cancellation, etc.).
//
// The shell is resolved via PATH, not hardcoded to /bin/sh, which is
// more correct on hosts where /bin/sh is a different shell than the
// environment's.
//
// The command runs in its own process group so that context
// cancellation (timeout or run cancellation) kills the shell and all
// its children. Without Setpgid, only the shell receives the signal
// and child processes survive holding the inherited stdout/stderr
// file descriptors.
//
// When gracePeriod is zero, SIGKILL is sent immediately on
// cancellation. When positive, SIGTERM is sent first to give the
// process a chance to clean up; if it has not exited after
// gracePeriod, SIGKILL forces termination.
func (r *Runner) runShellCommand(ctx context.Context, command, workingDir string, env []string, gracePeriod time.Duration) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = r.stdout()
	cmd.Stderr = r.stderr()
	cmd.Dir = workingDir
	cmd.Env = env

	// Put the command in its own process group so that signals reach
	// the shell and all its children (negative PID = all processes
	// in the group).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if gracePeriod > 0 {
		// Graceful: SIGTERM the process group first. A background
		// goroutine escalates to SIGKILL after the grace period if
		// the process has not exited.
		cmd.Cancel = func() error {
			processGroupID := -cmd.Process.Pid
			if err := syscall.Kill(processGroupID, syscall.SIGTERM); err != nil {
				// SIGTERM failed (process group already gone), escalate.
				return syscall.Kill(processGroupID, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(gracePeriod)
				// Best-effort: ESRCH from a dead process group is
				// harmless.
				_ = syscall.Kill(processGroupID, syscall.SIGKILL)
			}()
			return nil
		}
	} else {
		// Immediate: SIGKILL the entire process group.
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}

	// Non-exit errors: context cancellation (timeout), signal, etc.
	return -1, err
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}

func (r *Runner) defaultTimeout() time.Duration {
	if r.DefaultTimeout > 0 {
		return r.DefaultTimeout
	}
	return DefaultStepTimeout
}

