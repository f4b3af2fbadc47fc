// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/conveyorci/conveyor/lib/event"
	"github.com/conveyorci/conveyor/lib/schema"
	"github.com/conveyorci/conveyor/lib/workflow"
	"github.com/conveyorci/conveyor/lib/workflowdef"
)

// Workflow pairs a workflow definition with its name (usually the
// file basename).
type Workflow struct {
	Name    string
	Content *schema.WorkflowContent
}

// RunFunc executes one workflow run. The runner's Run method
// satisfies it.
type RunFunc func(ctx context.Context, name string, content *schema.WorkflowContent, variables map[string]string) (schema.RunResultContent, error)

// Dispatcher matches an event against workflows and runs the matches
// concurrently, each through the Coordinator's concurrency-group
// admission.
type Dispatcher struct {
	// Run executes a single matched workflow. Required.
	Run RunFunc

	// Coordinator serializes runs by concurrency group. Required.
	Coordinator *Coordinator

	// Logger receives dispatch decisions. When nil, logging is
	// discarded.
	Logger *slog.Logger

	// Environ resolves environment variables during variable
	// resolution. Defaults to os.Getenv.
	Environ func(string) string
}

// Dispatch runs every workflow whose triggers match the event.
// Matched workflows run concurrently (they are independent
// definitions; ordering within a concurrency group is the
// Coordinator's job). Returns the run results in workflow order.
//
// A run cancelled through cancel_in_progress supersession is a normal
// outcome (conclusion "cancelled"), not an error. A failed run does
// not abort the other matched runs; Dispatch returns the first
// workflow-level error, if any, after all runs finish.
func (d *Dispatcher) Dispatch(ctx context.Context, workflows []Workflow, evt *event.Event) ([]schema.RunResultContent, error) {
	eventVariables := evt.Variables()

	var matched []Workflow
	for _, wf := range workflows {
		ok, err := event.Matches(wf.Content.On, evt)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wf.Name, err)
		}
		if !ok {
			d.logger().Debug("workflow not triggered",
				"workflow", wf.Name,
				"event", evt.Kind)
			continue
		}
		matched = append(matched, wf)
	}
	if len(matched) == 0 {
		d.logger().Info("no workflows match event", "event", evt.Kind)
		return nil, nil
	}

	results := make([]schema.RunResultContent, len(matched))
	started := make([]bool, len(matched))
	var resultsMu sync.Mutex

	group, groupContext := errgroup.WithContext(ctx)
	for index, wf := range matched {
		group.Go(func() error {
			result, err := d.dispatchOne(groupContext, wf, eventVariables)
			if err != nil {
				return fmt.Errorf("workflow %q: %w", wf.Name, err)
			}
			resultsMu.Lock()
			results[index] = result
			started[index] = true
			resultsMu.Unlock()
			return nil
		})
	}
	err := group.Wait()

	// Keep only results of runs that actually ran (an errgroup
	// error cancels siblings that have not started).
	var completed []schema.RunResultContent
	for index := range results {
		if started[index] {
			completed = append(completed, results[index])
		}
	}
	return completed, err
}

// dispatchOne resolves variables, claims the workflow's concurrency
// group, and executes the run.
func (d *Dispatcher) dispatchOne(ctx context.Context, wf Workflow, eventVariables map[string]string) (schema.RunResultContent, error) {
	environ := d.Environ
	if environ == nil {
		environ = os.Getenv
	}
	variables, err := workflow.ResolveVariables(wf.Content.Variables, eventVariables, environ)
	if err != nil {
		return schema.RunResultContent{}, err
	}

	var groupKey string
	cancelInProgress := false
	if wf.Content.Concurrency != nil {
		groupKey, err = workflow.Expand(wf.Content.Concurrency.Group, variables)
		if err != nil {
			return schema.RunResultContent{}, fmt.Errorf("expanding concurrency.group: %w", err)
		}
		cancelInProgress = wf.Content.Concurrency.CancelInProgress
	}

	runContext, release, err := d.Coordinator.Begin(ctx, groupKey, cancelInProgress)
	if err != nil {
		return schema.RunResultContent{}, err
	}
	defer release()

	d.logger().Info("dispatching workflow",
		"workflow", wf.Name,
		"group", groupKey)
	return d.Run(runContext, wf.Name, wf.Content, variables)
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// workflowExtensions are the file extensions recognized by LoadDir.
var workflowExtensions = map[string]bool{
	".yaml":  true,
	".yml":   true,
	".json":  true,
	".jsonc": true,
}

// LoadDir loads every workflow definition file in a directory
// (non-recursive), sorted by name. Files with unrecognized extensions
// are ignored.
func LoadDir(dir string) ([]Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading workflow directory: %w", err)
	}

	var workflows []Workflow
	for _, entry := range entries {
		if entry.IsDir() || !workflowExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := workflowdef.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		name := content.Name
		if name == "" {
			name = workflowdef.NameFromPath(path)
		}
		workflows = append(workflows, Workflow{Name: name, Content: content})
	}
	sort.Slice(workflows, func(i, j int) bool { return workflows[i].Name < workflows[j].Name })
	if len(workflows) == 0 {
		return nil, fmt.Errorf("no workflow files in %s", dir)
	}
	return workflows, nil
}

// IsSuperseded reports whether a run context was cancelled because a
// newer run took over its concurrency group.
func IsSuperseded(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrSuperseded)
}
