// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/conveyorci/conveyor/lib/schema"
)

// variablePattern matches ${NAME} references in strings. Only the
// braced form is recognized — bare $NAME is left for shell
// interpretation. Variable names must start with a letter or
// underscore and contain only letters, digits, and underscores.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolveVariables merges variable sources according to workflow
// resolution order (lowest to highest priority):
//
//  1. Declared defaults from workflow variable definitions
//  2. Provided values (trigger event variables, then explicit run
//     parameters — the caller merges those two before calling)
//  3. Environment lookup via the environ function
//
// Returns the merged variable map. Returns an error if any required
// variable (per its declaration) has no value from any source.
//
// The environ function is typically os.Getenv for production use, or
// a stub for testing. It is only consulted for variables that are
// declared in the workflow — undeclared environment variables are not
// pulled in.
func ResolveVariables(declarations map[string]schema.WorkflowVariable, provided map[string]string, environ func(string) string) (map[string]string, error) {
	resolved := make(map[string]string, len(declarations)+len(provided))

	// Start with declared defaults (lowest priority).
	for name, declaration := range declarations {
		if declaration.Default != "" {
			resolved[name] = declaration.Default
		}
	}

	// Overlay provided values (medium priority).
	for name, value := range provided {
		resolved[name] = value
	}

	// Overlay environment values for declared variables (highest
	// priority). Only declared variables are looked up — the whole
	// process environment is never pulled in.
	if environ != nil {
		for name := range declarations {
			if value := environ(name); value != "" {
				resolved[name] = value
			}
		}
	}

	// Check that all required variables have a value.
	var missing []string
	for name, declaration := range declarations {
		if declaration.Required {
			if _, exists := resolved[name]; !exists {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("required workflow variables not set: %s", strings.Join(missing, ", "))
	}

	return resolved, nil
}

// Expand replaces ${NAME} references in input with values from the
// variables map. Only the ${NAME} form is recognized (braces
// required); bare $NAME is left for shell interpretation.
//
// Returns an error listing all referenced variables that have no
// value in the map, so definitions fail fast on unresolvable
// references rather than producing broken commands.
func Expand(input string, variables map[string]string) (string, error) {
	var unresolved []string

	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		// Extract the variable name from ${NAME}.
		name := match[2 : len(match)-1]
		if value, exists := variables[name]; exists {
			return value
		}
		unresolved = append(unresolved, name)
		return match
	})

	if len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved workflow variables: %s", strings.Join(unresolved, ", "))
	}

	return result, nil
}

// ExpandStep returns a copy of step with all string fields expanded
// using Expand. Step-level Env values are expanded first (against the
// given variables only), then merged into the variable map for
// expanding other fields. This means a run command can reference step
// env variables with ${NAME}, and those values will already have
// their own ${REFERENCES} resolved.
//
// The If expression is NOT expanded — conditions reference step
// outcomes, not variables, and are evaluated separately.
//
// The original step and variables map are not modified.
func ExpandStep(step schema.WorkflowStep, variables map[string]string) (schema.WorkflowStep, error) {
	// First pass: expand step-level env values against workflow
	// variables only (no cross-referencing between env entries).
	var expandedEnv map[string]string
	if len(step.Env) > 0 {
		expandedEnv = make(map[string]string, len(step.Env))
		for name, value := range step.Env {
			expandedValue, err := Expand(value, variables)
			if err != nil {
				return schema.WorkflowStep{}, fmt.Errorf("step %q env[%s]: %w", step.Name, name, err)
			}
			expandedEnv[name] = expandedValue
		}
	}

	// Merged variable map: workflow variables as base, expanded step
	// env on top. Step env takes precedence.
	merged := make(map[string]string, len(variables)+len(expandedEnv))
	for name, value := range variables {
		merged[name] = value
	}
	for name, value := range expandedEnv {
		merged[name] = value
	}

	var err error

	if step.Run, err = Expand(step.Run, merged); err != nil {
		return schema.WorkflowStep{}, fmt.Errorf("step %q run: %w", step.Name, err)
	}
	if step.Check, err = Expand(step.Check, merged); err != nil {
		return schema.WorkflowStep{}, fmt.Errorf("step %q check: %w", step.Name, err)
	}
	if step.WorkingDir, err = Expand(step.WorkingDir, merged); err != nil {
		return schema.WorkflowStep{}, fmt.Errorf("step %q working_dir: %w", step.Name, err)
	}

	// Expand output paths.
	if len(step.Outputs) > 0 {
		expandedOutputs := make(map[string]schema.StepOutput, len(step.Outputs))
		for name, output := range step.Outputs {
			if output.Path, err = Expand(output.Path, merged); err != nil {
				return schema.WorkflowStep{}, fmt.Errorf("step %q outputs[%s]: %w", step.Name, name, err)
			}
			expandedOutputs[name] = output
		}
		step.Outputs = expandedOutputs
	}

	// Expand upload fields if present.
	if step.Upload != nil {
		expanded := *step.Upload
		if expanded.Name, err = Expand(expanded.Name, merged); err != nil {
			return schema.WorkflowStep{}, fmt.Errorf("step %q upload.name: %w", step.Name, err)
		}
		if expanded.Path, err = Expand(expanded.Path, merged); err != nil {
			return schema.WorkflowStep{}, fmt.Errorf("step %q upload.path: %w", step.Name, err)
		}
		step.Upload = &expanded
	}

	step.Env = expandedEnv
	return step, nil
}
