// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflowdef provides parsing for workflow definitions.
// Workflows are authored on disk as YAML files, or as JSONC (JSON
// extended with comments and trailing commas) for tooling that emits
// JSON. This package handles both formats.
//
// The typical flow:
//
//  1. ReadFile or Parse: bytes → schema.WorkflowContent
//  2. workflow.Validate: structural checks (Run XOR Upload, required
//     fields, parseable timeouts, condition syntax)
//  3. workflow.ResolveVariables + ExpandStep: substitute ${NAME}
//     references before execution
package workflowdef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/conveyorci/conveyor/lib/schema"
)

// Parse unmarshals YAML workflow bytes into a WorkflowContent.
func Parse(data []byte) (*schema.WorkflowContent, error) {
	var content schema.WorkflowContent
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("parsing workflow: %w", err)
	}
	return &content, nil
}

// ParseJSONC strips JSONC comments and trailing commas from data,
// then unmarshals the result into a WorkflowContent.
func ParseJSONC(data []byte) (*schema.WorkflowContent, error) {
	stripped := jsonc.ToJSON(data)

	var content schema.WorkflowContent
	if err := json.Unmarshal(stripped, &content); err != nil {
		return nil, fmt.Errorf("parsing workflow: %w", err)
	}
	return &content, nil
}

// ReadFile reads a workflow file from disk and parses it according to
// its extension: .json and .jsonc as JSONC, everything else as YAML.
// Returns a descriptive error if the file cannot be read or is
// malformed.
func ReadFile(path string) (*schema.WorkflowContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var content *schema.WorkflowContent
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		content, err = ParseJSONC(data)
	default:
		content, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return content, nil
}

// NameFromPath extracts a workflow name from a file path by stripping
// the directory prefix and the file extension. For example,
// "workflows/lint-test.yaml" returns "lint-test". Used when the
// definition has no explicit name.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	extension := filepath.Ext(base)
	return strings.TrimSuffix(base, extension)
}
