// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestStepOutputUnmarshalYAML(t *testing.T) {
	t.Parallel()

	t.Run("string shorthand", func(t *testing.T) {
		t.Parallel()
		var step WorkflowStep
		input := `
name: resolve
run: git rev-parse HEAD > sha.txt
outputs:
  sha: sha.txt
`
		if err := yaml.Unmarshal([]byte(input), &step); err != nil {
			t.Fatal(err)
		}
		output := step.Outputs["sha"]
		if output.Path != "sha.txt" {
			t.Errorf("Path = %q, want sha.txt", output.Path)
		}
		if output.Artifact {
			t.Error("string shorthand set Artifact")
		}
	})

	t.Run("mapping form", func(t *testing.T) {
		t.Parallel()
		var step WorkflowStep
		input := `
name: build
run: make dist
outputs:
  bundle:
    path: dist/app.tar.gz
    artifact: true
    content_type: application/gzip
`
		if err := yaml.Unmarshal([]byte(input), &step); err != nil {
			t.Fatal(err)
		}
		output := step.Outputs["bundle"]
		if output.Path != "dist/app.tar.gz" || !output.Artifact || output.ContentType != "application/gzip" {
			t.Errorf("output = %+v", output)
		}
	})
}

func TestStepOutputUnmarshalJSON(t *testing.T) {
	t.Parallel()

	var step WorkflowStep
	input := `{
		"name": "build",
		"run": "make",
		"outputs": {
			"sha": "sha.txt",
			"bundle": {"path": "dist/app.tar.gz", "artifact": true}
		}
	}`
	if err := json.Unmarshal([]byte(input), &step); err != nil {
		t.Fatal(err)
	}
	if step.Outputs["sha"].Path != "sha.txt" {
		t.Errorf("sha output = %+v", step.Outputs["sha"])
	}
	if !step.Outputs["bundle"].Artifact {
		t.Errorf("bundle output = %+v", step.Outputs["bundle"])
	}

	if err := json.Unmarshal([]byte(`{"outputs": {"bad": 42}}`), &step); err == nil {
		t.Error("numeric output accepted")
	}
}

func TestStepResultStatusOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status StepResultStatus
		want   string
	}{
		{StepStatusOK, "success"},
		{StepStatusFailed, "failure"},
		{StepStatusTolerated, "failure"},
		{StepStatusSkipped, "skipped"},
		{StepStatusCancelled, "cancelled"},
	}
	for _, tt := range tests {
		if got := tt.status.Outcome(); got != tt.want {
			t.Errorf("%q.Outcome() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRunResultContentValidate(t *testing.T) {
	t.Parallel()

	valid := RunResultContent{Version: 1, Conclusion: ConclusionSuccess}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := (RunResultContent{Version: 0, Conclusion: ConclusionSuccess}).Validate(); err == nil {
		t.Error("version 0 accepted")
	}
	if err := (RunResultContent{Version: 1, Conclusion: "maybe"}).Validate(); err == nil {
		t.Error("unknown conclusion accepted")
	}
}

func TestRunResultContentCanModify(t *testing.T) {
	t.Parallel()

	if !(RunResultContent{Version: RunResultContentVersion}).CanModify() {
		t.Error("current version not modifiable")
	}
	if (RunResultContent{Version: RunResultContentVersion + 1}).CanModify() {
		t.Error("future version modifiable")
	}
}
