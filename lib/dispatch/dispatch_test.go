// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/conveyorci/conveyor/lib/event"
	"github.com/conveyorci/conveyor/lib/schema"
	"github.com/conveyorci/conveyor/lib/testutil"
)

func pushEvent(t *testing.T, branch string) *event.Event {
	t.Helper()
	evt, err := event.Parse([]byte(`{
		"kind": "push",
		"push": {
			"ref": "refs/heads/` + branch + `",
			"after": "abc123",
			"repository": {"full_name": "conveyorci/conveyor"},
			"sender": {"login": "dev"}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	return evt
}

func TestCoordinatorFreeGroup(t *testing.T) {
	t.Parallel()

	coordinator := &Coordinator{}
	runContext, release, err := coordinator.Begin(context.Background(), "ci-main", false)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer release()

	if runContext.Err() != nil {
		t.Errorf("fresh run context already cancelled: %v", runContext.Err())
	}
	if !coordinator.InFlight("ci-main") {
		t.Error("group not marked in flight")
	}
	release()
	if coordinator.InFlight("ci-main") {
		t.Error("group still in flight after release")
	}
}

func TestCoordinatorEmptyGroupUnserialized(t *testing.T) {
	t.Parallel()

	coordinator := &Coordinator{}
	_, releaseA, err := coordinator.Begin(context.Background(), "", false)
	if err != nil {
		t.Fatal(err)
	}
	defer releaseA()

	// A second ungrouped run is admitted immediately.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, releaseB, err := coordinator.Begin(context.Background(), "", false)
		if err != nil {
			t.Errorf("second Begin: %v", err)
			return
		}
		releaseB()
	}()
	testutil.RequireClosed(t, done, 5*time.Second, "ungrouped run admitted")
}

func TestCoordinatorCancelInProgress(t *testing.T) {
	t.Parallel()

	coordinator := &Coordinator{}
	firstContext, firstRelease, err := coordinator.Begin(context.Background(), "ci-main", true)
	if err != nil {
		t.Fatal(err)
	}

	// The first run releases its slot when its context is cancelled,
	// the way a real run finishes with conclusion "cancelled".
	go func() {
		<-firstContext.Done()
		firstRelease()
	}()

	secondAdmitted := make(chan func(), 1)
	go func() {
		_, secondRelease, err := coordinator.Begin(context.Background(), "ci-main", true)
		if err != nil {
			t.Errorf("second Begin: %v", err)
			return
		}
		secondAdmitted <- secondRelease
	}()

	release := testutil.RequireReceive(t, secondAdmitted, 5*time.Second, "newer run admitted")
	defer release()

	if !errors.Is(context.Cause(firstContext), ErrSuperseded) {
		t.Errorf("first run cause = %v, want ErrSuperseded", context.Cause(firstContext))
	}
	if !IsSuperseded(firstContext) {
		t.Error("IsSuperseded(firstContext) = false")
	}
}

func TestCoordinatorWaitsWithoutCancel(t *testing.T) {
	t.Parallel()

	coordinator := &Coordinator{}
	firstContext, firstRelease, err := coordinator.Begin(context.Background(), "ci-main", false)
	if err != nil {
		t.Fatal(err)
	}

	admitted := make(chan struct{})
	go func() {
		defer close(admitted)
		_, secondRelease, err := coordinator.Begin(context.Background(), "ci-main", false)
		if err != nil {
			t.Errorf("second Begin: %v", err)
			return
		}
		secondRelease()
	}()

	// The second run must not be admitted while the first holds the
	// group, and the first run must not be cancelled.
	select {
	case <-admitted:
		t.Fatal("second run admitted while first still in flight")
	case <-time.After(100 * time.Millisecond):
	}
	if firstContext.Err() != nil {
		t.Errorf("first run cancelled without cancel_in_progress: %v", firstContext.Err())
	}

	firstRelease()
	testutil.RequireClosed(t, admitted, 5*time.Second, "second run admitted after release")
}

func TestCoordinatorBeginHonorsCallerCancellation(t *testing.T) {
	t.Parallel()

	coordinator := &Coordinator{}
	_, release, err := coordinator.Begin(context.Background(), "ci-main", false)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := coordinator.Begin(ctx, "ci-main", false); !errors.Is(err, context.Canceled) {
		t.Errorf("Begin with cancelled ctx: err = %v, want context.Canceled", err)
	}
}

func TestDispatchFiltersByTrigger(t *testing.T) {
	t.Parallel()

	var ranMu sync.Mutex
	var ran []string
	dispatcher := &Dispatcher{
		Coordinator: &Coordinator{},
		Environ:     func(string) string { return "" },
		Run: func(_ context.Context, name string, _ *schema.WorkflowContent, _ map[string]string) (schema.RunResultContent, error) {
			ranMu.Lock()
			ran = append(ran, name)
			ranMu.Unlock()
			return schema.RunResultContent{
				Version:    schema.RunResultContentVersion,
				Workflow:   name,
				Conclusion: schema.ConclusionSuccess,
			}, nil
		},
	}

	workflows := []Workflow{
		{Name: "on-main", Content: &schema.WorkflowContent{
			On:    &schema.Triggers{Push: &schema.PushTrigger{Branches: []string{"main"}}},
			Steps: []schema.WorkflowStep{{Name: "s", Run: "true"}},
		}},
		{Name: "on-release", Content: &schema.WorkflowContent{
			On:    &schema.Triggers{Push: &schema.PushTrigger{Branches: []string{"release/**"}}},
			Steps: []schema.WorkflowStep{{Name: "s", Run: "true"}},
		}},
		{Name: "on-pr", Content: &schema.WorkflowContent{
			On:    &schema.Triggers{PullRequest: &schema.PullRequestTrigger{}},
			Steps: []schema.WorkflowStep{{Name: "s", Run: "true"}},
		}},
		{Name: "manual-only", Content: &schema.WorkflowContent{
			Steps: []schema.WorkflowStep{{Name: "s", Run: "true"}},
		}},
	}

	results, err := dispatcher.Dispatch(context.Background(), workflows, pushEvent(t, "main"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if len(ran) != 1 || ran[0] != "on-main" {
		t.Errorf("ran = %v, want [on-main]", ran)
	}
}

func TestDispatchExpandsConcurrencyGroup(t *testing.T) {
	t.Parallel()

	groupSeen := make(chan string, 1)
	coordinator := &Coordinator{}
	dispatcher := &Dispatcher{
		Coordinator: coordinator,
		Environ:     func(string) string { return "" },
		Run: func(_ context.Context, name string, _ *schema.WorkflowContent, _ map[string]string) (schema.RunResultContent, error) {
			if coordinator.InFlight("ci-main") {
				groupSeen <- "ci-main"
			}
			return schema.RunResultContent{Conclusion: schema.ConclusionSuccess}, nil
		},
	}

	workflows := []Workflow{
		{Name: "ci", Content: &schema.WorkflowContent{
			On:          &schema.Triggers{Push: &schema.PushTrigger{}},
			Concurrency: &schema.Concurrency{Group: "ci-${EVENT_BRANCH}", CancelInProgress: true},
			Steps:       []schema.WorkflowStep{{Name: "s", Run: "true"}},
		}},
	}

	if _, err := dispatcher.Dispatch(context.Background(), workflows, pushEvent(t, "main")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	group := testutil.RequireReceive(t, groupSeen, 5*time.Second, "expanded group observed")
	if group != "ci-main" {
		t.Errorf("group = %q, want ci-main", group)
	}
}

func TestDispatchNoMatches(t *testing.T) {
	t.Parallel()

	dispatcher := &Dispatcher{
		Coordinator: &Coordinator{},
		Run: func(context.Context, string, *schema.WorkflowContent, map[string]string) (schema.RunResultContent, error) {
			t.Error("Run called with no matching workflows")
			return schema.RunResultContent{}, nil
		},
	}
	workflows := []Workflow{
		{Name: "pr-only", Content: &schema.WorkflowContent{
			On:    &schema.Triggers{PullRequest: &schema.PullRequestTrigger{}},
			Steps: []schema.WorkflowStep{{Name: "s", Run: "true"}},
		}},
	}
	results, err := dispatcher.Dispatch(context.Background(), workflows, pushEvent(t, "main"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeFile("ci.yaml", "name: CI\nsteps:\n  - name: lint\n    run: make lint\n")
	writeFile("deploy.jsonc", `{
		// deployment workflow
		"steps": [{"name": "ship", "run": "make deploy"}]
	}`)
	writeFile("README.md", "not a workflow")

	workflows, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(workflows) != 2 {
		t.Fatalf("got %d workflows, want 2", len(workflows))
	}
	// Sorted by name: "CI" then "deploy" (file basename fallback).
	if workflows[0].Name != "CI" {
		t.Errorf("first workflow = %q, want CI", workflows[0].Name)
	}
	if workflows[1].Name != "deploy" {
		t.Errorf("second workflow = %q, want deploy", workflows[1].Name)
	}
}

func TestLoadDirEmpty(t *testing.T) {
	t.Parallel()

	if _, err := LoadDir(t.TempDir()); err == nil {
		t.Error("LoadDir accepted a directory with no workflow files")
	}
}
