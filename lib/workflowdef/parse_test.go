// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflowdef

import (
	"os"
	"path/filepath"
	"testing"
)

const yamlWorkflow = `
name: Lint & Test
on:
  push:
    branches: [main]
  pull_request: {}
env:
  CI: "true"
concurrency:
  group: ci-${EVENT_BRANCH}
  cancel_in_progress: true
steps:
  - name: Install dependencies
    run: make deps
  - id: tests
    name: Run tests
    run: make test
    continue_on_error: true
  - name: Upload payload
    if: always() && steps.tests.outcome == 'success'
    upload:
      name: test-results
      path: results.json
`

const jsoncWorkflow = `{
	// continuous integration workflow
	"name": "CI",
	"on": {"push": {"branches": ["main", "release/**"]}},
	"steps": [
		{"name": "lint", "run": "make lint"},
		{"name": "test", "run": "make test"}, // trailing comma next
	],
}`

func TestParseYAML(t *testing.T) {
	t.Parallel()

	content, err := Parse([]byte(yamlWorkflow))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if content.Name != "Lint & Test" {
		t.Errorf("Name = %q", content.Name)
	}
	if content.On == nil || content.On.Push == nil || content.On.Push.Branches[0] != "main" {
		t.Errorf("On = %+v", content.On)
	}
	if content.On.PullRequest == nil {
		t.Error("pull_request trigger missing")
	}
	if content.Env["CI"] != "true" {
		t.Errorf("Env = %v", content.Env)
	}
	if content.Concurrency == nil || !content.Concurrency.CancelInProgress {
		t.Errorf("Concurrency = %+v", content.Concurrency)
	}
	if len(content.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(content.Steps))
	}
	if !content.Steps[1].ContinueOnError || content.Steps[1].ID != "tests" {
		t.Errorf("tests step = %+v", content.Steps[1])
	}
	upload := content.Steps[2].Upload
	if upload == nil || upload.Name != "test-results" {
		t.Errorf("upload step = %+v", content.Steps[2])
	}
	if content.Steps[2].If != "always() && steps.tests.outcome == 'success'" {
		t.Errorf("If = %q", content.Steps[2].If)
	}
}

func TestParseJSONC(t *testing.T) {
	t.Parallel()

	content, err := ParseJSONC([]byte(jsoncWorkflow))
	if err != nil {
		t.Fatalf("ParseJSONC: %v", err)
	}
	if content.Name != "CI" {
		t.Errorf("Name = %q", content.Name)
	}
	if len(content.Steps) != 2 {
		t.Errorf("got %d steps, want 2", len(content.Steps))
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("steps: [\n")); err == nil {
		t.Error("malformed YAML accepted")
	}
	if _, err := ParseJSONC([]byte(`{"steps": }`)); err == nil {
		t.Error("malformed JSONC accepted")
	}
}

func TestReadFileDispatchesOnExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "ci.yaml")
	jsoncPath := filepath.Join(dir, "ci.jsonc")
	if err := os.WriteFile(yamlPath, []byte(yamlWorkflow), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jsoncPath, []byte(jsoncWorkflow), 0o644); err != nil {
		t.Fatal(err)
	}

	fromYAML, err := ReadFile(yamlPath)
	if err != nil {
		t.Fatalf("ReadFile yaml: %v", err)
	}
	if fromYAML.Name != "Lint & Test" {
		t.Errorf("yaml Name = %q", fromYAML.Name)
	}

	fromJSONC, err := ReadFile(jsoncPath)
	if err != nil {
		t.Fatalf("ReadFile jsonc: %v", err)
	}
	if fromJSONC.Name != "CI" {
		t.Errorf("jsonc Name = %q", fromJSONC.Name)
	}

	if _, err := ReadFile(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"workflows/lint-test.yaml", "lint-test"},
		{"/etc/conveyor/workflows/deploy.jsonc", "deploy"},
		{"ci.yml", "ci"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := NameFromPath(tt.path); got != tt.want {
			t.Errorf("NameFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
